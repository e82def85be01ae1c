package raven_transport

import (
	"time"

	"go.uber.org/zap"
)

// WaitForIdle blocks until every pending delivery has settled or timeout
// elapses. Only one drain may wait at a time; a concurrent call returns
// DrainRejected at once and leaves the active drain alone. Requests still
// pending on timeout stay in the table and their late completions are
// absorbed.
func (d *Dispatcher) WaitForIdle(timeout time.Duration) DrainResult {
	start := time.Now()

	d.mu.Lock()
	if d.draining {
		pending := d.table.Len()
		d.mu.Unlock()

		d.logger.Error("Recursive drain rejected", zap.Int("pending", pending))
		return d.drainResult(DrainRejected, start, pending)
	}

	if d.table.Empty() {
		d.mu.Unlock()
		return d.drainResult(DrainIdle, start, 0)
	}

	idle := make(chan struct{})
	d.draining = true
	d.idle = idle
	d.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	outcome := DrainCompleted
	select {
	case <-idle:
	case <-timer.C:
		outcome = DrainTimedOut
	}

	d.mu.Lock()
	d.draining = false
	d.idle = nil
	pending := d.table.Len()
	d.mu.Unlock()

	result := d.drainResult(outcome, start, pending)
	if outcome == DrainTimedOut {
		d.logger.Warn("Drain ended on timeout",
			zap.Duration("timeout", timeout),
			zap.Int("pending", pending))
	} else {
		d.logger.Debug("Drain finished",
			zap.Duration("elapsed", result.Elapsed))
	}

	return result
}

// releaseIfIdleLocked wakes the active drain once the table is empty. d.mu must be held.
func (d *Dispatcher) releaseIfIdleLocked() {
	if d.draining && d.idle != nil && d.table.Empty() {
		close(d.idle)
		d.idle = nil
	}
}

func (d *Dispatcher) drainResult(outcome DrainOutcome, start time.Time, pending int) DrainResult {
	d.metrics.IncDrains(outcome)
	return DrainResult{
		Outcome: outcome,
		Elapsed: time.Since(start),
		Pending: pending,
	}
}
