package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/stocklane/dispatch/delivery"
	"github.com/stocklane/dispatch/event"
	"github.com/stocklane/dispatch/id"
	"github.com/stocklane/dispatch/internal/entity"
	"github.com/stocklane/dispatch/observability"
	"github.com/stocklane/dispatch/store"
	"github.com/stocklane/dispatch/webhook"
)

// Dispatcher is the root of the webhook dispatch pipeline. It resolves
// subscriptions, persists deliveries, and runs the background delivery
// engine.
type Dispatcher struct {
	config     Config
	store      store.Store
	webhookSvc *webhook.Service
	engine     *delivery.Engine
	validator  *event.Validator
	schemas    map[string]json.RawMessage
	metrics    *observability.Metrics
	tracer     *observability.Tracer
	logger     *slog.Logger
}

// New creates a new Dispatcher with the given options.
func New(opts ...Option) (*Dispatcher, error) {
	d := &Dispatcher{
		config:  DefaultConfig(),
		schemas: make(map[string]json.RawMessage),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	if d.store == nil {
		return nil, ErrNoStore
	}
	d.wireServices()
	return d, nil
}

// wireServices initializes the internal services after options have been applied.
func (d *Dispatcher) wireServices() {
	d.validator = event.NewValidator()

	d.webhookSvc = webhook.NewService(d.store, d.logger)

	d.engine = delivery.NewEngine(d.store, delivery.EngineConfig{
		Concurrency:     d.config.Concurrency,
		PollInterval:    d.config.PollInterval,
		BatchSize:       d.config.BatchSize,
		RequestTimeout:  d.config.RequestTimeout,
		ShutdownTimeout: d.config.ShutdownTimeout,
		RetrySchedule:   d.config.RetrySchedule,
		Metrics:         d.metrics,
		Tracer:          d.tracer,
	}, d.logger)
}

// Start begins the delivery engine.
func (d *Dispatcher) Start(ctx context.Context) {
	d.engine.Start(ctx)
}

// Stop gracefully shuts down the delivery engine.
func (d *Dispatcher) Stop(ctx context.Context) {
	d.engine.Stop(ctx)
}

// Dispatch fans a domain event out to the organization's subscribed webhooks.
//
// The critical path:
//  1. Log-and-count event names outside the known vocabulary (still
//     dispatched, for forward compatibility).
//  2. Validate the data against the event's JSON Schema when one is
//     configured.
//  3. Resolve the organization's active webhooks subscribed to this event.
//  4. Snapshot one envelope per webhook and persist a pending delivery
//     carrying the serialized bytes.
//  5. Enqueue the batch for the delivery engine.
//
// Dispatch never performs network I/O and never reports delivery failures;
// matching zero webhooks is a no-op, not an error.
func (d *Dispatcher) Dispatch(ctx context.Context, eventName string, data any, orgID int64) error {
	if !event.Known(eventName) {
		if d.metrics != nil {
			d.metrics.UnknownEvents.Inc()
		}
		d.logger.WarnContext(ctx, "dispatching unknown event name",
			"event", eventName, "organization_id", orgID)
	}

	if schema, ok := d.schemas[eventName]; ok && len(schema) > 0 {
		if validateErr := d.validator.Validate(schema, data); validateErr != nil {
			return fmt.Errorf("%w: %s", ErrPayloadValidationFailed, validateErr.Error())
		}
	}

	webhooks, err := d.store.ListActiveForEvent(ctx, orgID, eventName)
	if err != nil {
		return fmt.Errorf("dispatch: resolve webhooks: %w", err)
	}

	if d.metrics != nil {
		d.metrics.EventsDispatched.Inc()
	}

	if len(webhooks) == 0 {
		return nil // no matching webhooks, nothing to deliver
	}

	now := time.Now().UTC()
	deliveries := make([]*delivery.Delivery, 0, len(webhooks))
	for _, wh := range webhooks {
		env, envErr := event.NewEnvelope(eventName, data, orgID)
		if envErr != nil {
			return fmt.Errorf("dispatch: build envelope: %w", envErr)
		}
		payload, marshalErr := env.Marshal()
		if marshalErr != nil {
			return fmt.Errorf("dispatch: serialize envelope: %w", marshalErr)
		}

		deliveries = append(deliveries, &delivery.Delivery{
			Entity:        entity.New(),
			ID:            id.NewDeliveryID(),
			WebhookID:     wh.ID,
			MessageID:     env.ID,
			OrgID:         orgID,
			Event:         eventName,
			Payload:       payload,
			State:         delivery.StatePending,
			Attempts:      0,
			MaxAttempts:   d.config.MaxAttempts,
			NextAttemptAt: now,
		})
	}

	if err := d.store.EnqueueBatch(ctx, deliveries); err != nil {
		return fmt.Errorf("dispatch: enqueue deliveries: %w", err)
	}

	if d.metrics != nil {
		d.metrics.PendingDeliveries.Add(float64(len(deliveries)))
	}

	d.logger.DebugContext(ctx, "event dispatched",
		"event", eventName,
		"organization_id", orgID,
		"webhooks", len(webhooks),
	)

	return nil
}

// Replay re-enqueues a terminally failed delivery as a fresh pending
// delivery. The stored payload bytes are reused verbatim, so the receiver
// sees the same message ID and the original signature still verifies.
func (d *Dispatcher) Replay(ctx context.Context, delID id.ID) (*delivery.Delivery, error) {
	orig, err := d.store.GetDelivery(ctx, delID)
	if err != nil {
		return nil, err
	}

	if orig.State != delivery.StateFailed {
		return nil, fmt.Errorf("%w: %s is %s", ErrDeliveryTerminal, delID, orig.State)
	}

	replay := &delivery.Delivery{
		Entity:        entity.New(),
		ID:            id.NewDeliveryID(),
		WebhookID:     orig.WebhookID,
		MessageID:     orig.MessageID,
		OrgID:         orig.OrgID,
		Event:         orig.Event,
		Payload:       orig.Payload,
		State:         delivery.StatePending,
		Attempts:      0,
		MaxAttempts:   d.config.MaxAttempts,
		NextAttemptAt: time.Now().UTC(),
	}

	if err := d.store.Enqueue(ctx, replay); err != nil {
		return nil, fmt.Errorf("dispatch: enqueue replay: %w", err)
	}

	if d.metrics != nil {
		d.metrics.PendingDeliveries.Inc()
	}

	return replay, nil
}

// Webhooks returns the webhook registry service.
func (d *Dispatcher) Webhooks() *webhook.Service {
	return d.webhookSvc
}

// Store returns the underlying store.
func (d *Dispatcher) Store() store.Store {
	return d.store
}
