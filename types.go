package raven_transport

import (
	"time"
)

const (
	// ClientName is reported in User-Agent, X-Sentry-Auth and the event logger field
	ClientName = "raven-rr"
	// ClientVersion is the version reported alongside ClientName
	ClientVersion = "0.2.0"
	// ProtocolVersion of the Sentry store API spoken by this client
	ProtocolVersion = 5
)

// OutcomeKind classifies a transport completion
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeFailure
	OutcomeRedirected
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	case OutcomeRedirected:
		return "redirected"
	default:
		return "unknown"
	}
}

// Outcome is what the transport reports when an operation completes
type Outcome struct {
	Kind OutcomeKind
	// Location is the absolute redirect target, set for OutcomeRedirected
	Location string
	// StatusCode is zero when the request never got a response
	StatusCode int
	Body       []byte
	Err        error
}

// DrainOutcome tells why WaitForIdle returned
type DrainOutcome string

const (
	// DrainIdle means nothing was in flight when the drain started
	DrainIdle DrainOutcome = "idle"
	// DrainCompleted means the last in-flight request settled before the timeout
	DrainCompleted DrainOutcome = "completed"
	// DrainTimedOut means requests were still in flight when the timeout elapsed
	DrainTimedOut DrainOutcome = "timed_out"
	// DrainRejected means another drain was already waiting
	DrainRejected DrainOutcome = "rejected"
)

// DrainResult represents the result of a drain
type DrainResult struct {
	Outcome DrainOutcome  `json:"outcome"`
	Elapsed time.Duration `json:"elapsed"`
	// Pending is the number of requests still in flight on return
	Pending int `json:"pending"`
}

// TransportMetrics represents plugin metrics
type TransportMetrics struct {
	EventsSubmitted  int64
	EventsSent       int64
	EventsFailed     int64
	Redirects        int64
	StaleCompletions int64
	InFlight         int
}
