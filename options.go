package dispatch

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/stocklane/dispatch/observability"
	"github.com/stocklane/dispatch/store"
)

// Option configures a Dispatcher instance.
type Option func(*Dispatcher) error

// WithStore sets the persistence backend for the Dispatcher instance.
func WithStore(s store.Store) Option {
	return func(d *Dispatcher) error {
		d.store = s
		return nil
	}
}

// WithLogger sets the structured logger for the Dispatcher instance.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) error {
		d.logger = logger
		return nil
	}
}

// WithMetrics sets the Prometheus instruments recorded by the Dispatcher and
// its delivery engine.
func WithMetrics(m *observability.Metrics) Option {
	return func(d *Dispatcher) error {
		d.metrics = m
		return nil
	}
}

// WithTracer sets the OpenTelemetry tracer for delivery attempt spans.
func WithTracer(t *observability.Tracer) Option {
	return func(d *Dispatcher) error {
		d.tracer = t
		return nil
	}
}

// WithConcurrency sets the number of delivery worker goroutines.
func WithConcurrency(n int) Option {
	return func(d *Dispatcher) error {
		d.config.Concurrency = n
		return nil
	}
}

// WithPollInterval sets how often the delivery engine checks for due deliveries.
func WithPollInterval(interval time.Duration) Option {
	return func(d *Dispatcher) error {
		d.config.PollInterval = interval
		return nil
	}
}

// WithBatchSize sets the maximum number of deliveries claimed per poll cycle.
func WithBatchSize(n int) Option {
	return func(d *Dispatcher) error {
		d.config.BatchSize = n
		return nil
	}
}

// WithRequestTimeout sets the HTTP timeout per delivery attempt.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) error {
		d.config.RequestTimeout = timeout
		return nil
	}
}

// WithMaxAttempts sets the number of attempts before terminal failure.
func WithMaxAttempts(n int) Option {
	return func(d *Dispatcher) error {
		d.config.MaxAttempts = n
		return nil
	}
}

// WithRetrySchedule sets the backoff intervals between retry attempts.
func WithRetrySchedule(schedule []time.Duration) Option {
	return func(d *Dispatcher) error {
		d.config.RetrySchedule = schedule
		return nil
	}
}

// WithShutdownTimeout sets the maximum time to wait for in-flight deliveries
// on shutdown.
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) error {
		d.config.ShutdownTimeout = timeout
		return nil
	}
}

// WithPayloadSchema attaches a JSON Schema to an event name. Dispatching that
// event validates the data against the schema before any delivery is created.
func WithPayloadSchema(eventName string, schema json.RawMessage) Option {
	return func(d *Dispatcher) error {
		d.schemas[eventName] = schema
		return nil
	}
}
