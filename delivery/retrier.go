package delivery

import "time"

// Decision is the outcome of evaluating a delivery attempt.
type Decision int

const (
	// Succeed means the delivery was acknowledged (2xx).
	Succeed Decision = iota

	// Retry means the delivery should be attempted again later.
	Retry

	// Fail means the delivery has exhausted its attempts and is terminal.
	Fail
)

// Result holds the outcome of a single delivery attempt.
type Result struct {
	StatusCode int
	Error      string
	Response   string
	LatencyMs  int
}

// Retrier decides what to do after a delivery attempt.
type Retrier struct {
	schedule []time.Duration
}

// NewRetrier creates a retrier with the given backoff schedule. The schedule
// must be non-decreasing; the last entry is the cap for all later attempts.
func NewRetrier(schedule []time.Duration) *Retrier {
	return &Retrier{schedule: schedule}
}

// Decide determines what to do with a delivery after an attempt.
//
// Decision matrix:
//   - 2xx → Succeed
//   - anything else (non-2xx response, or status 0 for a transport error) →
//     Retry while attempts remain, else Fail. Rejections and transport
//     failures follow the same retry curve; they differ only in the recorded
//     status code.
func (r *Retrier) Decide(res Result, d *Delivery) Decision {
	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return Succeed
	}

	if d.Attempts < d.MaxAttempts {
		return Retry
	}
	return Fail
}

// ComputeNextAttempt returns the time at which the next attempt should be
// made. The backoff interval is non-decreasing in attempts and clamped to
// the last schedule entry.
func (r *Retrier) ComputeNextAttempt(attempts int) time.Time {
	return time.Now().UTC().Add(r.Backoff(attempts))
}

// Backoff returns the wait interval after the given attempt count. An empty
// schedule means no backoff; retries become due immediately.
func (r *Retrier) Backoff(attempts int) time.Duration {
	if len(r.schedule) == 0 {
		return 0
	}
	idx := attempts - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(r.schedule) {
		idx = len(r.schedule) - 1
	}
	return r.schedule[idx]
}
