package raven_transport

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// Dispatcher issues deliveries, follows redirects and settles completions.
// The pending table and drain state share one mutex because completions
// arrive on transport goroutines.
type Dispatcher struct {
	mu       sync.Mutex
	table    *PendingTable
	draining bool
	idle     chan struct{}

	// nil endpoint means delivery is disabled
	endpoint  *DSN
	client    ClientConfig
	tlsPolicy string
	transport Transport
	redirects *RedirectPolicy
	logger    *zap.Logger
	metrics   *metricsCollector
	now       func() time.Time
}

// NewDispatcher creates a dispatcher posting to endpoint. A nil endpoint
// turns Submit into a no-op.
func NewDispatcher(endpoint *DSN, cfg *Config, transport Transport, logger *zap.Logger, metrics *metricsCollector) *Dispatcher {
	return &Dispatcher{
		table:     NewPendingTable(),
		endpoint:  endpoint,
		client:    cfg.Client,
		tlsPolicy: cfg.Transport.TLSPolicy,
		transport: transport,
		redirects: NewRedirectPolicy(&cfg.Redirect, logger),
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
	}
}

// Submit hands payload to the transport and returns without waiting
func (d *Dispatcher) Submit(payload []byte) {
	if d.endpoint == nil || d.transport == nil {
		return
	}

	header := d.createHeader()

	d.mu.Lock()
	req := &pendingRequest{
		id:        d.table.NextID(),
		body:      payload,
		header:    header,
		url:       d.endpoint.StoreURL,
		submitted: d.now(),
	}
	d.table.Insert(req)
	pending := d.table.Len()
	d.metrics.IncSubmittedEvents()
	d.metrics.SetInFlight(pending)
	d.mu.Unlock()

	d.logger.Debug("Event submitted",
		zap.Uint64("request_id", req.id),
		zap.Int("payload_size", len(payload)),
		zap.Int("pending", pending))

	d.post(req.id, req.url, header, payload)
}

func (d *Dispatcher) post(id uint64, target string, header http.Header, body []byte) {
	d.transport.Post(target, header, body, func(o Outcome) {
		d.complete(id, target, o)
	})
}

// complete settles one transport operation for request id that was sent to target
func (d *Dispatcher) complete(id uint64, target string, o Outcome) {
	d.mu.Lock()
	req, ok := d.table.Lookup(id)
	if !ok {
		d.releaseIfIdleLocked()
		d.mu.Unlock()

		d.metrics.IncStaleCompletions()
		d.logger.Debug("Completion for request that is no longer pending",
			zap.Uint64("request_id", id),
			zap.Stringer("outcome", o.Kind))
		return
	}

	if o.Kind == OutcomeRedirected && o.Location != target {
		if d.redirects.ShouldFollow(req, o.Location) {
			req.hops++
			req.url = o.Location
			hops := req.hops
			d.mu.Unlock()

			d.metrics.IncRedirects()
			d.logger.Debug("Following redirect",
				zap.Uint64("request_id", id),
				zap.String("from", target),
				zap.String("to", o.Location),
				zap.Int("hops", hops))

			d.post(id, o.Location, req.header, req.body)
			return
		}
		o = Outcome{Kind: OutcomeFailure, StatusCode: o.StatusCode, Body: o.Body, Err: ErrTooManyRedirects}
	}

	d.table.Remove(id)
	// counters move before the drain is released so a drained caller sees them
	if o.Kind == OutcomeSuccess {
		d.metrics.IncSuccessfulEvents()
	} else {
		d.metrics.IncFailedEvents()
	}
	d.metrics.SetInFlight(d.table.Len())
	d.releaseIfIdleLocked()
	d.mu.Unlock()

	elapsed := d.now().Sub(req.submitted)

	if o.Kind == OutcomeSuccess {
		d.logger.Info("Event sent successfully",
			zap.Uint64("request_id", id),
			zap.String("sentry_event_id", collectorEventID(o.Body)),
			zap.Int("status_code", o.StatusCode),
			zap.Duration("elapsed", elapsed))
		return
	}

	err := o.Err
	if err == nil {
		err = fmt.Errorf("unexpected %s outcome with status %d", o.Kind, o.StatusCode)
	}
	d.logger.Error("Event send failed",
		zap.Uint64("request_id", id),
		zap.String("url", target),
		zap.Int("status_code", o.StatusCode),
		zap.ByteString("response", o.Body),
		zap.Duration("elapsed", elapsed),
		zap.Error(err))
}

// certificateWarning is the transport's CertificateHook
func (d *Dispatcher) certificateWarning(host string, err error) bool {
	d.metrics.IncCertWarnings()

	if d.tlsPolicy == TLSPolicyStrict {
		d.logger.Error("Collector certificate rejected",
			zap.String("host", host),
			zap.Error(err))
		return false
	}

	d.logger.Warn("Ignoring collector certificate error",
		zap.String("host", host),
		zap.Error(err))
	return true
}

// Pending returns the number of in-flight deliveries
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.table.Len()
}

// createHeader creates the request headers, including the X-Sentry-Auth header
func (d *Dispatcher) createHeader() http.Header {
	clientInfo := d.client.Name + "/" + d.client.Version

	header := make(http.Header)
	header.Set("Content-Type", "application/json")
	header.Set("User-Agent", clientInfo)
	header.Set("X-Sentry-Auth", fmt.Sprintf(
		"Sentry sentry_version=%d,sentry_client=%s,sentry_timestamp=%d,sentry_key=%s,sentry_secret=%s",
		ProtocolVersion, clientInfo, d.now().Unix(), d.endpoint.PublicKey, d.endpoint.SecretKey))

	return header
}

// collectorEventID extracts the id the collector assigned from a store response
func collectorEventID(body []byte) string {
	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return ""
	}
	return resp.ID
}
