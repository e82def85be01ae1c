package raven_transport

import (
	"errors"

	"go.uber.org/zap"
)

// ErrTooManyRedirects is reported for a delivery whose redirect chain exceeded the configured hop limit
var ErrTooManyRedirects = errors.New("too many redirects")

// RedirectPolicy decides whether a redirected delivery is replayed against its new target
type RedirectPolicy struct {
	config *RedirectConfig
	logger *zap.Logger
}

// NewRedirectPolicy creates a new redirect policy
func NewRedirectPolicy(config *RedirectConfig, logger *zap.Logger) *RedirectPolicy {
	return &RedirectPolicy{
		config: config,
		logger: logger,
	}
}

// ShouldFollow determines if the request may be reissued to location
func (rp *RedirectPolicy) ShouldFollow(req *pendingRequest, location string) bool {
	if req.hops >= rp.config.MaxHops {
		rp.logger.Error("Request exceeded max redirect hops",
			zap.Uint64("request_id", req.id),
			zap.String("location", location),
			zap.Int("hops", req.hops),
			zap.Int("max_hops", rp.config.MaxHops))
		return false
	}

	return true
}
