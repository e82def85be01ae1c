package raven_transport

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "rr_raven_transport"
)

// metricsCollector implements prometheus.Collector interface
type metricsCollector struct {
	// Atomic counters for thread-safe metric updates
	submittedEvents  *int64 // Total payloads handed to the dispatcher
	successfulEvents *int64 // Total events accepted by the collector
	failedEvents     *int64 // Total events that failed terminally
	redirects        *int64 // Total redirect hops followed
	staleCompletions *int64 // Completions for requests no longer tracked
	certWarnings     *int64 // Certificate verification failures seen
	inFlight         *int64 // Current number of pending requests

	// Prometheus metric descriptors
	submittedEventsDesc  *prometheus.Desc
	successfulEventsDesc *prometheus.Desc
	failedEventsDesc     *prometheus.Desc
	redirectsDesc        *prometheus.Desc
	staleCompletionsDesc *prometheus.Desc
	certWarningsDesc     *prometheus.Desc
	inFlightDesc         *prometheus.Desc

	// Vector metric for drains by outcome
	drainsByOutcome *prometheus.CounterVec
}

// newMetricsCollector creates a new metrics collector
func newMetricsCollector() *metricsCollector {
	return &metricsCollector{
		submittedEvents:  ptrTo(int64(0)),
		successfulEvents: ptrTo(int64(0)),
		failedEvents:     ptrTo(int64(0)),
		redirects:        ptrTo(int64(0)),
		staleCompletions: ptrTo(int64(0)),
		certWarnings:     ptrTo(int64(0)),
		inFlight:         ptrTo(int64(0)),

		submittedEventsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "submitted_events_total"),
			"Total number of events submitted for delivery",
			nil, nil),

		successfulEventsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "successful_events_total"),
			"Total number of successfully sent events",
			nil, nil),

		failedEventsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "failed_events_total"),
			"Total number of failed events",
			nil, nil),

		redirectsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "redirects_total"),
			"Total number of redirects followed",
			nil, nil),

		staleCompletionsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "stale_completions_total"),
			"Total number of completions for requests no longer pending",
			nil, nil),

		certWarningsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "certificate_warnings_total"),
			"Total number of collector certificate verification failures",
			nil, nil),

		inFlightDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "in_flight_requests"),
			"Number of requests awaiting a terminal outcome",
			nil, nil),

		drainsByOutcome: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: prometheus.BuildFQName(namespace, "", "drains_total"),
				Help: "Total number of drains by outcome",
			},
			[]string{"outcome"}),
	}
}

func (mc *metricsCollector) IncSubmittedEvents() {
	atomic.AddInt64(mc.submittedEvents, 1)
}

func (mc *metricsCollector) IncSuccessfulEvents() {
	atomic.AddInt64(mc.successfulEvents, 1)
}

func (mc *metricsCollector) IncFailedEvents() {
	atomic.AddInt64(mc.failedEvents, 1)
}

func (mc *metricsCollector) IncRedirects() {
	atomic.AddInt64(mc.redirects, 1)
}

func (mc *metricsCollector) IncStaleCompletions() {
	atomic.AddInt64(mc.staleCompletions, 1)
}

func (mc *metricsCollector) IncCertWarnings() {
	atomic.AddInt64(mc.certWarnings, 1)
}

// SetInFlight records the current pending table size
func (mc *metricsCollector) SetInFlight(n int) {
	atomic.StoreInt64(mc.inFlight, int64(n))
}

// IncDrains increments the drain counter for outcome
func (mc *metricsCollector) IncDrains(outcome DrainOutcome) {
	mc.drainsByOutcome.WithLabelValues(string(outcome)).Inc()
}

// Snapshot returns a copy of the current counters
func (mc *metricsCollector) Snapshot() *TransportMetrics {
	return &TransportMetrics{
		EventsSubmitted:  atomic.LoadInt64(mc.submittedEvents),
		EventsSent:       atomic.LoadInt64(mc.successfulEvents),
		EventsFailed:     atomic.LoadInt64(mc.failedEvents),
		Redirects:        atomic.LoadInt64(mc.redirects),
		StaleCompletions: atomic.LoadInt64(mc.staleCompletions),
		InFlight:         int(atomic.LoadInt64(mc.inFlight)),
	}
}

// Describe sends all metric descriptions to Prometheus
func (mc *metricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- mc.submittedEventsDesc
	ch <- mc.successfulEventsDesc
	ch <- mc.failedEventsDesc
	ch <- mc.redirectsDesc
	ch <- mc.staleCompletionsDesc
	ch <- mc.certWarningsDesc
	ch <- mc.inFlightDesc

	mc.drainsByOutcome.Describe(ch)
}

// Collect sends current metric values to Prometheus
func (mc *metricsCollector) Collect(ch chan<- prometheus.Metric) {
	counter := func(desc *prometheus.Desc, v *int64) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(atomic.LoadInt64(v)))
	}

	counter(mc.submittedEventsDesc, mc.submittedEvents)
	counter(mc.successfulEventsDesc, mc.successfulEvents)
	counter(mc.failedEventsDesc, mc.failedEvents)
	counter(mc.redirectsDesc, mc.redirects)
	counter(mc.staleCompletionsDesc, mc.staleCompletions)
	counter(mc.certWarningsDesc, mc.certWarnings)

	ch <- prometheus.MustNewConstMetric(
		mc.inFlightDesc,
		prometheus.GaugeValue,
		float64(atomic.LoadInt64(mc.inFlight)))

	mc.drainsByOutcome.Collect(ch)
}

// Helper function for pointer creation
func ptrTo[T any](v T) *T {
	return &v
}
