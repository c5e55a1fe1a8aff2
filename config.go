package dispatch

import "time"

// Config holds the configuration for a Dispatcher instance.
type Config struct {
	// Concurrency is the number of delivery worker goroutines.
	Concurrency int

	// PollInterval is how often the delivery engine checks for due deliveries.
	PollInterval time.Duration

	// BatchSize is the maximum number of deliveries claimed per poll cycle.
	BatchSize int

	// RequestTimeout is the HTTP timeout per delivery attempt.
	RequestTimeout time.Duration

	// MaxAttempts is the number of attempts before a delivery is
	// terminal-failed.
	MaxAttempts int

	// RetrySchedule defines the backoff intervals between retry attempts.
	// Must be non-decreasing; the last entry caps the interval for all later
	// attempts.
	RetrySchedule []time.Duration

	// ShutdownTimeout is the maximum time to wait for in-flight deliveries on
	// shutdown.
	ShutdownTimeout time.Duration
}

// DefaultRetrySchedule defines the default bounded exponential backoff
// intervals.
var DefaultRetrySchedule = []time.Duration{
	5 * time.Second,
	30 * time.Second,
	2 * time.Minute,
	15 * time.Minute,
	2 * time.Hour,
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:     10,
		PollInterval:    1 * time.Second,
		BatchSize:       50,
		RequestTimeout:  30 * time.Second,
		MaxAttempts:     5,
		RetrySchedule:   DefaultRetrySchedule,
		ShutdownTimeout: 30 * time.Second,
	}
}
