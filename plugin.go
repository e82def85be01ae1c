package raven_transport

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/roadrunner-server/endure/v2/dep"
	"github.com/roadrunner-server/errors"
	"go.uber.org/zap"
)

// Plugin represents the main plugin structure
type Plugin struct {
	config  *Config
	logger  *zap.Logger
	client  *Client
	metrics *metricsCollector

	// Lifecycle
	stopCh chan struct{}
	doneCh chan struct{}
}

// Configurer interface for config plugin
type Configurer interface {
	UnmarshalKey(name string, out interface{}) error
	Has(name string) bool
}

// Logger interface for logger plugin
type Logger interface {
	NamedLogger(name string) *zap.Logger
}

// Init initializes the plugin
func (p *Plugin) Init(cfg Configurer, log Logger) error {
	const op = errors.Op("raven_transport_init")

	// Check if configuration section exists
	if !cfg.Has(PluginName) {
		return errors.E(op, errors.Disabled)
	}

	// Unmarshal configuration
	config := &Config{}
	if err := cfg.UnmarshalKey(PluginName, config); err != nil {
		return errors.E(op, err)
	}

	// Check if plugin is enabled
	if !config.Enabled {
		return errors.E(op, errors.Disabled)
	}

	p.config = config
	p.logger = log.NamedLogger(PluginName)
	p.metrics = newMetricsCollector()

	// defaults and validation happen inside NewClient
	client, err := NewClient(config, p.logger, WithMetrics(p.metrics))
	if err != nil {
		return errors.E(op, err)
	}
	p.client = client

	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})

	p.logger.Info("Raven transport plugin initialized",
		zap.Bool("enabled", config.Enabled),
		zap.Bool("dsn_configured", config.DSN != ""),
		zap.Duration("drain_timeout", config.Drain.Timeout))

	return nil
}

// Serve starts the plugin
func (p *Plugin) Serve() chan error {
	errCh := make(chan error, 1)

	if p.config == nil {
		errCh <- errors.E(errors.Op("raven_transport_serve"), "plugin not initialized")
		return errCh
	}

	go func() {
		defer close(p.doneCh)

		p.logger.Info("Raven transport plugin started")
		<-p.stopCh
		p.logger.Info("Raven transport plugin stopping")
	}()

	return errCh
}

// Stop drains in-flight deliveries, bounded by the drain timeout and the ctx deadline
func (p *Plugin) Stop(ctx context.Context) error {
	if p.stopCh != nil {
		close(p.stopCh)
	}
	if p.client == nil {
		return nil
	}

	timeout := p.config.Drain.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}

	result, err := p.client.Shutdown(timeout)
	p.logger.Info("Raven transport plugin stopped",
		zap.String("drain", string(result.Outcome)),
		zap.Duration("elapsed", result.Elapsed),
		zap.Int("abandoned", result.Pending))

	select {
	case <-p.doneCh:
	case <-ctx.Done():
		p.logger.Warn("Plugin stop timed out")
		return ctx.Err()
	}

	return err
}

// Name returns the plugin name
func (p *Plugin) Name() string {
	return PluginName
}

// RPC returns the RPC interface
func (p *Plugin) RPC() interface{} {
	return NewRPC(p, p.logger)
}

// MetricsCollector exposes delivery metrics to the metrics plugin
func (p *Plugin) MetricsCollector() []prometheus.Collector {
	return []prometheus.Collector{p.metrics}
}

// Provides returns the dependencies this plugin provides
func (p *Plugin) Provides() []*dep.Out {
	return []*dep.Out{
		dep.Bind((*Reporter)(nil), p.Reporter),
	}
}

// Reporter returns the client for other plugins to report through
func (p *Plugin) Reporter() Reporter {
	return p.client
}

// Reporter interface for other plugins to use
type Reporter interface {
	CaptureMessage(level Level, culprit, message string, extra map[string]any, tags map[string]string)
	Submit(payload []byte)
	WaitForIdle(timeout time.Duration) DrainResult
}
