package raven_transport

import (
	"time"

	"github.com/roadrunner-server/errors"
	"go.uber.org/zap"
)

// CaptureRequest is an event as sent over RPC
type CaptureRequest struct {
	Level   string            `json:"level"`
	Culprit string            `json:"culprit"`
	Message string            `json:"message"`
	Extra   map[string]any    `json:"extra,omitempty"`
	Tags    map[string]string `json:"tags,omitempty"`
}

// UserRequest sets the user context over RPC
type UserRequest struct {
	ID       string            `json:"id"`
	Username string            `json:"username"`
	Email    string            `json:"email"`
	Data     map[string]string `json:"data,omitempty"`
}

// Status represents plugin state reported over RPC
type Status struct {
	Enabled bool              `json:"enabled"`
	Pending int               `json:"pending"`
	Metrics *TransportMetrics `json:"metrics"`
}

// RPC provides RPC methods for the application side
type RPC struct {
	plugin *Plugin
	logger *zap.Logger
}

// NewRPC creates a new RPC instance
func NewRPC(plugin *Plugin, logger *zap.Logger) *RPC {
	return &RPC{
		plugin: plugin,
		logger: logger,
	}
}

// Capture encodes and submits one event. Delivery itself is asynchronous.
func (r *RPC) Capture(req *CaptureRequest, ok *bool) error {
	const op = errors.Op("raven_transport_rpc_capture")

	level, err := ParseLevel(req.Level)
	if err != nil {
		return errors.E(op, err)
	}

	r.logger.Debug("Received event via RPC",
		zap.String("level", level.String()),
		zap.String("culprit", req.Culprit))

	r.plugin.client.CaptureMessage(level, req.Culprit, req.Message, req.Extra, req.Tags)
	*ok = true
	return nil
}

// Submit delivers a payload that was already serialized by the caller
func (r *RPC) Submit(payload []byte, ok *bool) error {
	r.logger.Debug("Received payload via RPC", zap.Int("payload_size", len(payload)))

	r.plugin.client.Submit(payload)
	*ok = true
	return nil
}

// WaitForIdle drains in-flight deliveries for up to timeoutMs milliseconds
func (r *RPC) WaitForIdle(timeoutMs int64, result *DrainResult) error {
	*result = r.plugin.client.WaitForIdle(time.Duration(timeoutMs) * time.Millisecond)
	return nil
}

// SetGlobalTags adds tags sent with every event
func (r *RPC) SetGlobalTags(tags map[string]string, ok *bool) error {
	for k, v := range tags {
		r.plugin.client.SetGlobalTag(k, v)
	}
	*ok = true
	return nil
}

// SetUser sets the user context attached to events
func (r *RPC) SetUser(req *UserRequest, ok *bool) error {
	r.plugin.client.SetUser(User{ID: req.ID, Username: req.Username, Email: req.Email})
	for k, v := range req.Data {
		r.plugin.client.SetUserData(k, v)
	}
	*ok = true
	return nil
}

// Status reports whether delivery is enabled and the current counters
func (r *RPC) Status(_ bool, status *Status) error {
	*status = Status{
		Enabled: r.plugin.client.Enabled(),
		Pending: r.plugin.client.dispatcher.Pending(),
		Metrics: r.plugin.client.Metrics(),
	}
	return nil
}
