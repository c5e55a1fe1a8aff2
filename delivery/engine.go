package delivery

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/stocklane/dispatch/id"
	"github.com/stocklane/dispatch/observability"
	"github.com/stocklane/dispatch/ratelimit"
	"github.com/stocklane/dispatch/webhook"
)

// EngineStore is the interface the engine needs for delivery operations.
type EngineStore interface {
	Dequeue(ctx context.Context, limit int) ([]*Delivery, error)
	UpdateDelivery(ctx context.Context, d *Delivery) error
	GetWebhook(ctx context.Context, whID id.ID) (*webhook.Webhook, error)
}

// EngineConfig holds engine configuration.
type EngineConfig struct {
	Concurrency     int
	PollInterval    time.Duration
	BatchSize       int
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	RetrySchedule   []time.Duration
	Metrics         *observability.Metrics
	Tracer          *observability.Tracer
}

// Engine is the delivery worker pool that dequeues and processes deliveries.
// Delivery failures never propagate to callers; they are recorded on the
// delivery record and drive the retry state machine.
type Engine struct {
	store   EngineStore
	sender  *Sender
	retrier *Retrier
	limiter *ratelimit.Limiter
	config  EngineConfig
	logger  *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEngine creates a delivery engine.
func NewEngine(store EngineStore, cfg EngineConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:   store,
		sender:  NewSender(cfg.RequestTimeout),
		retrier: NewRetrier(cfg.RetrySchedule),
		limiter: ratelimit.New(),
		config:  cfg,
		logger:  logger,
	}
}

// Start begins the delivery workers and poll loop.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.pollLoop(ctx)
	}()
}

// Stop cancels the poll loop and waits for in-flight deliveries to complete,
// up to the configured shutdown timeout. A zero timeout waits indefinitely.
// Deliveries still in flight when the timeout elapses keep their claim until
// the lease expires, so they are retried rather than lost.
func (e *Engine) Stop(ctx context.Context) {
	if e.cancel != nil {
		e.cancel()
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	if e.config.ShutdownTimeout <= 0 {
		<-done
		return
	}

	select {
	case <-done:
	case <-time.After(e.config.ShutdownTimeout):
		e.logger.WarnContext(ctx, "shutdown timeout elapsed with deliveries in flight",
			"timeout", e.config.ShutdownTimeout)
	}
}

// pollLoop periodically dequeues due deliveries and dispatches them to workers.
func (e *Engine) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(e.config.PollInterval)
	defer ticker.Stop()

	sem := make(chan struct{}, e.config.Concurrency)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			batch, err := e.store.Dequeue(ctx, e.config.BatchSize)
			if err != nil {
				e.logger.ErrorContext(ctx, "dequeue failed", "error", err)
				continue
			}

			for _, d := range batch {
				select {
				case <-ctx.Done():
					return
				case sem <- struct{}{}:
				}

				e.wg.Add(1)
				go func(del *Delivery) {
					defer e.wg.Done()
					defer func() { <-sem }()
					e.process(ctx, del)
				}(d)
			}
		}
	}
}

// process handles a single claimed delivery: resolve the webhook, send,
// decide, update. Retries for one delivery are strictly sequential because
// the claim is held until the update releases it.
func (e *Engine) process(ctx context.Context, d *Delivery) {
	if d.State != StatePending {
		// Terminal rows are never reprocessed.
		e.logger.WarnContext(ctx, "skipping non-pending delivery",
			"delivery_id", d.ID, "state", d.State)
		return
	}

	var span trace.Span
	if e.config.Tracer != nil {
		ctx, span = e.config.Tracer.StartDeliverySpan(ctx, d.ID.String(), d.MessageID.String(), d.WebhookID.String())
	}

	wh, err := e.store.GetWebhook(ctx, d.WebhookID)
	if err != nil {
		// Likely a concurrent webhook delete; release the claim and let the
		// cascade (or the next sweep) settle it.
		e.logger.ErrorContext(ctx, "get webhook failed",
			"delivery_id", d.ID, "webhook_id", d.WebhookID, "error", err)
		if span != nil {
			e.config.Tracer.EndDeliverySpan(span, 0, 0, err.Error())
		}
		e.update(ctx, d)
		return
	}

	// Deactivated webhooks stop receiving attempts: short-circuit pending
	// deliveries to failed with a recorded reason, without touching the
	// attempt counter.
	if !wh.Active {
		now := time.Now().UTC()
		d.State = StateFailed
		d.LastError = "webhook deactivated"
		d.CompletedAt = &now
		if e.config.Metrics != nil {
			e.config.Metrics.RecordDelivery("failed", 0)
			e.config.Metrics.PendingDeliveries.Dec()
		}
		e.logger.InfoContext(ctx, "delivery short-circuited: webhook deactivated",
			"delivery_id", d.ID, "webhook_id", d.WebhookID)
		if span != nil {
			e.config.Tracer.EndDeliverySpan(span, 0, 0, d.LastError)
		}
		e.update(ctx, d)
		return
	}

	if err := e.limiter.Wait(ctx, wh.ID.String(), wh.RateLimit); err != nil {
		// Context cancelled while throttled; release the claim untouched.
		if span != nil {
			e.config.Tracer.EndDeliverySpan(span, 0, 0, err.Error())
		}
		e.update(ctx, d)
		return
	}

	// Perform the HTTP delivery.
	d.Attempts++
	result := e.sender.Send(ctx, wh, d)

	// Record result on delivery.
	d.LastError = result.Error
	d.LastStatusCode = result.StatusCode
	d.LastResponse = result.Response
	d.LastLatencyMs = result.LatencyMs

	latencySeconds := float64(result.LatencyMs) / 1000.0

	switch e.retrier.Decide(result, d) {
	case Succeed:
		now := time.Now().UTC()
		d.State = StateSuccess
		d.CompletedAt = &now
		if e.config.Metrics != nil {
			e.config.Metrics.RecordDelivery("success", latencySeconds)
			e.config.Metrics.PendingDeliveries.Dec()
		}
		e.logger.DebugContext(ctx, "delivered",
			"delivery_id", d.ID, "status", result.StatusCode, "latency_ms", result.LatencyMs)

	case Retry:
		d.NextAttemptAt = e.retrier.ComputeNextAttempt(d.Attempts)
		if e.config.Metrics != nil {
			e.config.Metrics.RecordDelivery("retried", latencySeconds)
		}
		e.logger.DebugContext(ctx, "retry scheduled",
			"delivery_id", d.ID, "attempt", d.Attempts, "next_at", d.NextAttemptAt)

	case Fail:
		now := time.Now().UTC()
		d.State = StateFailed
		d.CompletedAt = &now
		if e.config.Metrics != nil {
			e.config.Metrics.RecordDelivery("failed", latencySeconds)
			e.config.Metrics.PendingDeliveries.Dec()
		}
		e.logger.WarnContext(ctx, "delivery failed permanently",
			"delivery_id", d.ID, "attempts", d.Attempts, "status", result.StatusCode, "error", result.Error)
	}

	if span != nil {
		e.config.Tracer.EndDeliverySpan(span, d.LastStatusCode, d.LastLatencyMs, d.LastError)
	}

	e.update(ctx, d)
}

// update persists the delivery state and releases the claim.
func (e *Engine) update(ctx context.Context, d *Delivery) {
	if err := e.store.UpdateDelivery(ctx, d); err != nil {
		e.logger.ErrorContext(ctx, "update delivery failed",
			"delivery_id", d.ID, "error", err)
	}
}
