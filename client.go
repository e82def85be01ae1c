package raven_transport

import (
	"time"

	"github.com/roadrunner-server/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Client reports events to a Sentry collector. It is created explicitly and
// shared by reference; there is no package-level instance.
type Client struct {
	config     *Config
	logger     *zap.Logger
	endpoint   *DSN
	encoder    *Encoder
	dispatcher *Dispatcher
	transport  Transport
	metrics    *metricsCollector
}

// Option customizes a Client
type Option func(*Client)

// WithTransport replaces the HTTP transport
func WithTransport(t Transport) Option {
	return func(c *Client) {
		c.transport = t
	}
}

// WithMetrics makes the client report into an existing collector
func WithMetrics(m *metricsCollector) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient creates a client for cfg. An empty DSN yields a disabled client
// that accepts and discards events; a malformed DSN is an error.
func NewClient(cfg *Config, logger *zap.Logger, opts ...Option) (*Client, error) {
	const op = errors.Op("raven_client_new")

	cfg.InitDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, errors.E(op, err)
	}

	c := &Client{
		config:  cfg,
		logger:  logger,
		encoder: NewEncoder(cfg.Client),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = newMetricsCollector()
	}

	for k, v := range cfg.Tags {
		c.encoder.SetGlobalTag(k, v)
	}

	if cfg.DSN == "" {
		logger.Info("Raven client is disabled, no DSN configured")
		c.dispatcher = NewDispatcher(nil, cfg, nil, logger, c.metrics)
		return c, nil
	}

	endpoint, err := ParseDSN(cfg.DSN)
	if err != nil {
		return nil, errors.E(op, err)
	}
	c.endpoint = endpoint

	// the transport hook needs the dispatcher, which needs the transport
	var dispatcher *Dispatcher
	if c.transport == nil {
		transport, err := NewHTTPTransport(&cfg.Transport, logger, func(host string, err error) bool {
			return dispatcher.certificateWarning(host, err)
		})
		if err != nil {
			return nil, errors.E(op, err)
		}
		c.transport = transport
	}
	dispatcher = NewDispatcher(endpoint, cfg, c.transport, logger, c.metrics)
	c.dispatcher = dispatcher

	logger.Info("Raven client is ready",
		zap.String("store_url", endpoint.StoreURL),
		zap.String("tls_policy", cfg.Transport.TLSPolicy),
		zap.Int("max_redirect_hops", cfg.Redirect.MaxHops))

	return c, nil
}

// Enabled reports whether events are delivered
func (c *Client) Enabled() bool {
	return c.endpoint != nil
}

// CaptureMessage encodes and submits one event
func (c *Client) CaptureMessage(level Level, culprit, message string, extra map[string]any, tags map[string]string) {
	c.Capture(&Event{
		Level:   level,
		Culprit: culprit,
		Message: message,
		Extra:   extra,
		Tags:    tags,
	})
}

// Capture encodes and submits ev. Encoding failures are logged, never returned.
func (c *Client) Capture(ev *Event) {
	if !c.Enabled() {
		c.logger.Debug("Raven client is disabled, event dropped", zap.String("message", ev.Message))
		return
	}

	payload, err := c.encoder.Encode(ev)
	if err != nil {
		c.logger.Error("Failed to encode event",
			zap.String("message", ev.Message),
			zap.Error(err))
		return
	}

	c.dispatcher.Submit(payload)
}

// Submit delivers an already serialized payload
func (c *Client) Submit(payload []byte) {
	c.dispatcher.Submit(payload)
}

// WaitForIdle waits for in-flight deliveries, see Dispatcher.WaitForIdle
func (c *Client) WaitForIdle(timeout time.Duration) DrainResult {
	return c.dispatcher.WaitForIdle(timeout)
}

// SetGlobalTag adds a tag that is sent with every event
func (c *Client) SetGlobalTag(key, value string) {
	c.encoder.SetGlobalTag(key, value)
}

// SetUser sets the user identity attached to events
func (c *Client) SetUser(user User) {
	c.encoder.SetUser(user)
}

// SetUserData adds a custom user field
func (c *Client) SetUserData(key, value string) {
	c.encoder.SetUserData(key, value)
}

// Metrics returns current delivery counters
func (c *Client) Metrics() *TransportMetrics {
	return c.metrics.Snapshot()
}

// Close drains with the configured timeout and releases the transport
func (c *Client) Close() error {
	_, err := c.Shutdown(c.config.Drain.Timeout)
	return err
}

// Shutdown waits up to timeout for in-flight deliveries, then releases the
// transport. Deliveries still pending afterwards are abandoned.
func (c *Client) Shutdown(timeout time.Duration) (DrainResult, error) {
	var err error

	result := c.WaitForIdle(timeout)
	switch result.Outcome {
	case DrainTimedOut:
		c.logger.Warn("Shutting down with deliveries still in flight", zap.Int("pending", result.Pending))
	case DrainRejected:
		err = multierr.Append(err, errors.E(errors.Op("raven_client_shutdown"), "another drain is in progress"))
	}

	if c.transport != nil {
		err = multierr.Append(err, c.transport.Close())
	}

	return result, err
}
