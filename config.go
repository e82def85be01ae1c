package raven_transport

import (
	"fmt"
	"time"
)

const PluginName = "raven_transport"

// TLS policies applied when the collector presents a certificate that fails verification.
const (
	TLSPolicyLenient = "lenient"
	TLSPolicyStrict  = "strict"
)

// Config represents the plugin configuration
type Config struct {
	// Enable/disable the plugin
	Enabled bool `mapstructure:"enabled"`

	// Sentry DSN. Empty DSN disables delivery.
	DSN string `mapstructure:"dsn"`

	// Client identification sent in User-Agent and X-Sentry-Auth
	Client ClientConfig `mapstructure:"client"`

	// HTTP transport settings
	Transport TransportConfig `mapstructure:"transport"`

	// Redirect handling
	Redirect RedirectConfig `mapstructure:"redirect"`

	// Shutdown drain settings
	Drain DrainConfig `mapstructure:"drain"`

	// Tags attached to every event
	Tags map[string]string `mapstructure:"tags"`

	// Logging configuration
	Logging LoggingConfig `mapstructure:"logging"`
}

// ClientConfig identifies this client to the collector
type ClientConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
}

// TransportConfig contains HTTP transport settings
type TransportConfig struct {
	// Request timeout
	Timeout time.Duration `mapstructure:"timeout"`
	// Connection timeout
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	// Enable gzip compression
	Compression bool `mapstructure:"compression"`
	// lenient or strict certificate handling
	TLSPolicy string `mapstructure:"tls_policy"`
	// Proxy settings
	Proxy string `mapstructure:"proxy"`
}

// RedirectConfig bounds redirect chains per event
type RedirectConfig struct {
	MaxHops int `mapstructure:"max_hops"`
}

// DrainConfig contains the bounded wait used on shutdown
type DrainConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	// Log level for plugin operations
	Level string `mapstructure:"level"`
}

// InitDefaults initializes default configuration values
func (cfg *Config) InitDefaults() {
	if cfg.Client.Name == "" {
		cfg.Client.Name = ClientName
	}
	if cfg.Client.Version == "" {
		cfg.Client.Version = ClientVersion
	}

	if cfg.Transport.Timeout == 0 {
		cfg.Transport.Timeout = 30 * time.Second
	}
	if cfg.Transport.ConnectTimeout == 0 {
		cfg.Transport.ConnectTimeout = 10 * time.Second
	}
	if cfg.Transport.TLSPolicy == "" {
		cfg.Transport.TLSPolicy = TLSPolicyLenient
	}

	if cfg.Redirect.MaxHops == 0 {
		cfg.Redirect.MaxHops = 5
	}

	if cfg.Drain.Timeout == 0 {
		cfg.Drain.Timeout = 2 * time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// Validate validates the configuration
func (cfg *Config) Validate() error {
	switch cfg.Transport.TLSPolicy {
	case TLSPolicyLenient, TLSPolicyStrict:
	default:
		return fmt.Errorf("unknown tls_policy %q, expected %q or %q",
			cfg.Transport.TLSPolicy, TLSPolicyLenient, TLSPolicyStrict)
	}

	if cfg.DSN == "" {
		return nil // DSN can be empty to disable transmission
	}

	if cfg.Redirect.MaxHops < 0 {
		cfg.Redirect.MaxHops = 0
	}

	if cfg.Drain.Timeout < 0 {
		return fmt.Errorf("drain timeout must not be negative, got %s", cfg.Drain.Timeout)
	}

	return nil
}
