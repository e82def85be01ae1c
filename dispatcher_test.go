package raven_transport

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const storeURL = "http://localhost:9000/api/42/store/"

func TestSubmitBuildsStoreRequest(t *testing.T) {
	d, transport, _ := newTestDispatcher(t, testConfig(testDSN))

	d.Submit([]byte(`{"message":"boom"}`))

	require.Equal(t, 1, transport.count())
	post := transport.post(t, 0)
	assert.Equal(t, storeURL, post.url)
	assert.Equal(t, `{"message":"boom"}`, string(post.body))
	assert.Equal(t, "application/json", post.header.Get("Content-Type"))
	assert.Equal(t, "raven-rr/0.2.0", post.header.Get("User-Agent"))
	assert.Equal(t,
		"Sentry sentry_version=5,sentry_client=raven-rr/0.2.0,sentry_timestamp=1700000000,sentry_key=public,sentry_secret=secret",
		post.header.Get("X-Sentry-Auth"))
	assert.Equal(t, 1, d.Pending())
}

func TestSubmitAssignsIncreasingIDs(t *testing.T) {
	d, _, _ := newTestDispatcher(t, testConfig(testDSN))

	for i := 0; i < 3; i++ {
		d.Submit([]byte("x"))
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for id := uint64(1); id <= 3; id++ {
		_, ok := d.table.Lookup(id)
		assert.True(t, ok, "id %d", id)
	}
}

func TestTerminalOutcomesRemoveEntries(t *testing.T) {
	d, transport, _ := newTestDispatcher(t, testConfig(testDSN))

	d.Submit([]byte("a"))
	d.Submit([]byte("b"))
	d.Submit([]byte("c"))
	require.Equal(t, 3, d.Pending())

	transport.post(t, 1).done(Outcome{Kind: OutcomeSuccess, StatusCode: 200, Body: []byte(`{"id":"x"}`)})
	assert.Equal(t, 2, d.Pending())

	transport.post(t, 0).done(Outcome{Kind: OutcomeFailure, StatusCode: 500, Body: []byte("oops")})
	assert.Equal(t, 1, d.Pending())

	transport.post(t, 2).done(Outcome{Kind: OutcomeFailure, Err: errors.New("connection refused")})
	assert.Equal(t, 0, d.Pending())

	m := d.metrics.Snapshot()
	assert.Equal(t, int64(3), m.EventsSubmitted)
	assert.Equal(t, int64(1), m.EventsSent)
	assert.Equal(t, int64(2), m.EventsFailed)
	assert.Equal(t, 0, m.InFlight)
}

func TestRedirectReplaysBodyUnderSameID(t *testing.T) {
	d, transport, _ := newTestDispatcher(t, testConfig(testDSN))
	const target = "https://collector.example.com/api/42/store/"

	d.Submit([]byte("payload"))
	first := transport.post(t, 0)
	first.done(Outcome{Kind: OutcomeRedirected, StatusCode: 301, Location: target})

	require.Equal(t, 2, transport.count())
	second := transport.post(t, 1)
	assert.Equal(t, target, second.url)
	assert.Equal(t, "payload", string(second.body))
	assert.Equal(t, first.header.Get("X-Sentry-Auth"), second.header.Get("X-Sentry-Auth"))
	assert.Equal(t, 1, d.Pending())

	d.mu.Lock()
	req, ok := d.table.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, 1, req.hops)
	assert.Equal(t, target, req.url)
	d.mu.Unlock()

	second.done(Outcome{Kind: OutcomeSuccess, StatusCode: 200})
	assert.Equal(t, 0, d.Pending())

	m := d.metrics.Snapshot()
	assert.Equal(t, int64(1), m.Redirects)
	assert.Equal(t, int64(1), m.EventsSent)
	assert.Equal(t, int64(0), m.StaleCompletions)
}

func TestRedirectHopLimitFailsDelivery(t *testing.T) {
	cfg := testConfig(testDSN)
	cfg.Redirect.MaxHops = 2
	d, transport, logs := newTestDispatcher(t, cfg)

	d.Submit([]byte("payload"))
	transport.post(t, 0).done(Outcome{Kind: OutcomeRedirected, Location: "http://a/"})
	transport.post(t, 1).done(Outcome{Kind: OutcomeRedirected, Location: "http://b/"})
	transport.post(t, 2).done(Outcome{Kind: OutcomeRedirected, Location: "http://c/"})

	assert.Equal(t, 3, transport.count())
	assert.Equal(t, 0, d.Pending())
	assert.Equal(t, int64(1), d.metrics.Snapshot().EventsFailed)

	failed := logs.FilterMessage("Event send failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, ErrTooManyRedirects.Error(), failed[0].ContextMap()["error"])
}

func TestRedirectToCurrentURLIsTerminal(t *testing.T) {
	d, transport, _ := newTestDispatcher(t, testConfig(testDSN))

	d.Submit([]byte("payload"))
	transport.post(t, 0).done(Outcome{Kind: OutcomeRedirected, StatusCode: 302, Location: storeURL})

	assert.Equal(t, 1, transport.count())
	assert.Equal(t, 0, d.Pending())
	assert.Equal(t, int64(1), d.metrics.Snapshot().EventsFailed)
}

func TestStaleCompletionIsAbsorbed(t *testing.T) {
	d, transport, logs := newTestDispatcher(t, testConfig(testDSN))

	d.Submit([]byte("payload"))
	require.NotPanics(t, func() {
		d.complete(999, storeURL, Outcome{Kind: OutcomeSuccess})
	})
	assert.Equal(t, 1, d.Pending())

	done := transport.post(t, 0).done
	done(Outcome{Kind: OutcomeSuccess})
	done(Outcome{Kind: OutcomeFailure, StatusCode: 500})

	assert.Equal(t, 0, d.Pending())
	m := d.metrics.Snapshot()
	assert.Equal(t, int64(2), m.StaleCompletions)
	assert.Equal(t, int64(1), m.EventsSent)
	assert.Equal(t, int64(0), m.EventsFailed)
	assert.Equal(t, 2, logs.FilterMessage("Completion for request that is no longer pending").Len())
}

func TestDisabledDispatcherNeverPosts(t *testing.T) {
	d, transport, _ := newTestDispatcher(t, testConfig(""))

	d.Submit([]byte("payload"))
	d.Submit(nil)

	assert.Equal(t, 0, transport.count())
	assert.Equal(t, 0, d.Pending())
	assert.Equal(t, int64(0), d.metrics.Snapshot().EventsSubmitted)
}

func TestSuccessLogsCollectorEventID(t *testing.T) {
	d, transport, logs := newTestDispatcher(t, testConfig(testDSN))

	d.Submit([]byte("payload"))
	transport.post(t, 0).done(Outcome{Kind: OutcomeSuccess, StatusCode: 200, Body: []byte(`{"id":"fc6d8c0c43fc4630ad850ee518f1b9d0"}`)})

	sent := logs.FilterMessage("Event sent successfully").All()
	require.Len(t, sent, 1)
	assert.Equal(t, "fc6d8c0c43fc4630ad850ee518f1b9d0", sent[0].ContextMap()["sentry_event_id"])
}

func TestFailureLogsStatusAndBody(t *testing.T) {
	d, transport, logs := newTestDispatcher(t, testConfig(testDSN))

	d.Submit([]byte("payload"))
	transport.post(t, 0).done(Outcome{Kind: OutcomeFailure, StatusCode: 403, Body: []byte("invalid api key"), Err: errors.New("HTTP 403")})

	failed := logs.FilterMessage("Event send failed").All()
	require.Len(t, failed, 1)
	fields := failed[0].ContextMap()
	assert.Equal(t, int64(403), fields["status_code"])
	assert.Equal(t, "invalid api key", fields["response"])
}

func TestCertificateWarningFollowsPolicy(t *testing.T) {
	lenient, _, logs := newTestDispatcher(t, testConfig(testDSN))
	assert.True(t, lenient.certificateWarning("localhost", errors.New("x509: unknown authority")))
	assert.Equal(t, 1, logs.FilterMessage("Ignoring collector certificate error").Len())

	cfg := testConfig(testDSN)
	cfg.Transport.TLSPolicy = TLSPolicyStrict
	strict, _, _ := newTestDispatcher(t, cfg)
	assert.False(t, strict.certificateWarning("localhost", errors.New("x509: unknown authority")))

	// neither decision touches the table
	assert.Equal(t, 0, lenient.Pending())
	assert.Equal(t, 0, strict.Pending())
}

func TestPendingEqualsSubmissionsMinusTerminalCompletions(t *testing.T) {
	cfg := testConfig(testDSN)
	cfg.Redirect.MaxHops = 1000
	d, transport, _ := newTestDispatcher(t, cfg)
	rnd := rand.New(rand.NewSource(7))

	// open holds indexes of posts whose completion has not been delivered yet
	var open []int
	submitted, settled := 0, 0

	for step := 0; step < 500; step++ {
		switch {
		case len(open) == 0 || rnd.Intn(3) == 0:
			d.Submit([]byte("e"))
			open = append(open, transport.count()-1)
			submitted++
		default:
			i := rnd.Intn(len(open))
			idx := open[i]
			open = append(open[:i], open[i+1:]...)

			switch rnd.Intn(3) {
			case 0:
				transport.post(t, idx).done(Outcome{Kind: OutcomeSuccess})
				settled++
			case 1:
				transport.post(t, idx).done(Outcome{Kind: OutcomeFailure, StatusCode: 500})
				settled++
			default:
				transport.post(t, idx).done(Outcome{Kind: OutcomeRedirected, Location: fmt.Sprintf("http://elsewhere/%d/", step)})
				open = append(open, transport.count()-1)
			}
		}

		require.Equal(t, submitted-settled, d.Pending(), "step %d", step)
	}
}
