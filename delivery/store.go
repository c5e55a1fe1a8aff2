package delivery

import (
	"context"

	"github.com/stocklane/dispatch/id"
)

// Store defines the persistence contract for deliveries.
type Store interface {
	// Enqueue creates a pending delivery.
	Enqueue(ctx context.Context, d *Delivery) error

	// EnqueueBatch creates multiple deliveries atomically (fan-out).
	EnqueueBatch(ctx context.Context, ds []*Delivery) error

	// Dequeue claims pending deliveries that are due: state=pending and
	// next_attempt_at <= now and not held by another worker. The claim is a
	// lease; a worker that crashes before updating the row leaves it due
	// again, so deliveries never get stuck. Implementations must guarantee
	// at-most-one-worker-per-delivery while the claim is held (e.g. FOR
	// UPDATE SKIP LOCKED, an atomic sorted-set pop, or a claim map).
	Dequeue(ctx context.Context, limit int) ([]*Delivery, error)

	// UpdateDelivery records the outcome of an attempt and releases the
	// claim. Terminal rows are never modified again.
	UpdateDelivery(ctx context.Context, d *Delivery) error

	// GetDelivery returns a delivery by ID.
	GetDelivery(ctx context.Context, delID id.ID) (*Delivery, error)

	// ListByWebhook returns delivery history for a webhook.
	ListByWebhook(ctx context.Context, whID id.ID, opts ListOpts) ([]*Delivery, error)

	// CountPending returns the number of deliveries awaiting attempt.
	CountPending(ctx context.Context) (int64, error)
}
