// Package bunstore provides a Store implementation backed by a SQL database
// via the bun ORM. It works with any dialect bun supports; the delivery claim
// uses a lease column rather than row locks so SQLite is usable too.
package bunstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/stocklane/dispatch"
	"github.com/stocklane/dispatch/delivery"
	"github.com/stocklane/dispatch/id"
	dispatchstore "github.com/stocklane/dispatch/store"
	"github.com/stocklane/dispatch/webhook"
)

// compile-time interface check
var _ dispatchstore.Store = (*Store)(nil)

// claimLease is how long a dequeued delivery stays invisible to other
// workers. A worker that crashes mid-attempt leaves the row due again after
// the lease expires.
const claimLease = time.Minute

// Store implements store.Store using bun.
type Store struct {
	db *bun.DB
}

// New creates a new bun-backed store.
func New(db *bun.DB) *Store {
	return &Store{db: db}
}

// Migrate creates tables and indexes if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	models := []any{
		(*webhookModel)(nil),
		(*deliveryModel)(nil),
	}
	for _, model := range models {
		if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("dispatch/bunstore: create table: %w", err)
		}
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_dispatch_webhooks_org ON dispatch_webhooks (org_id)`,
		`CREATE INDEX IF NOT EXISTS idx_dispatch_deliveries_webhook ON dispatch_deliveries (webhook_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_dispatch_deliveries_due ON dispatch_deliveries (next_attempt_at) WHERE state = 'pending'`,
	}
	for _, ddl := range indexes {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("dispatch/bunstore: create index: %w", err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func now() time.Time {
	return time.Now().UTC()
}

// CreateWebhook persists a new webhook.
func (s *Store) CreateWebhook(ctx context.Context, wh *webhook.Webhook) error {
	m, err := toWebhookModel(wh)
	if err != nil {
		return fmt.Errorf("dispatch/bunstore: create webhook: %w", err)
	}
	if _, err := s.db.NewInsert().Model(m).Exec(ctx); err != nil {
		return fmt.Errorf("dispatch/bunstore: create webhook: %w", err)
	}
	return nil
}

// GetWebhook returns a webhook by ID.
func (s *Store) GetWebhook(ctx context.Context, whID id.ID) (*webhook.Webhook, error) {
	m := new(webhookModel)
	err := s.db.NewSelect().Model(m).Where("id = ?", whID.String()).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, dispatch.ErrWebhookNotFound
		}
		return nil, fmt.Errorf("dispatch/bunstore: get webhook: %w", err)
	}
	return fromWebhookModel(m)
}

// UpdateWebhook modifies an existing webhook. The stored secret is preserved.
func (s *Store) UpdateWebhook(ctx context.Context, wh *webhook.Webhook) error {
	existing := new(webhookModel)
	err := s.db.NewSelect().Model(existing).Where("id = ?", wh.ID.String()).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return dispatch.ErrWebhookNotFound
		}
		return fmt.Errorf("dispatch/bunstore: update webhook: %w", err)
	}

	m, err := toWebhookModel(wh)
	if err != nil {
		return fmt.Errorf("dispatch/bunstore: update webhook: %w", err)
	}
	m.Secret = existing.Secret
	m.CreatedAt = existing.CreatedAt
	m.UpdatedAt = now()
	wh.Secret = existing.Secret

	if _, err := s.db.NewUpdate().Model(m).WherePK().Exec(ctx); err != nil {
		return fmt.Errorf("dispatch/bunstore: update webhook: %w", err)
	}
	return nil
}

// DeleteWebhook removes a webhook and cascades to its delivery history.
func (s *Store) DeleteWebhook(ctx context.Context, whID id.ID) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewDelete().
			Model((*webhookModel)(nil)).
			Where("id = ?", whID.String()).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("dispatch/bunstore: delete webhook: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("dispatch/bunstore: delete webhook: %w", err)
		}
		if affected == 0 {
			return dispatch.ErrWebhookNotFound
		}

		if _, err := tx.NewDelete().
			Model((*deliveryModel)(nil)).
			Where("webhook_id = ?", whID.String()).
			Exec(ctx); err != nil {
			return fmt.Errorf("dispatch/bunstore: delete webhook deliveries: %w", err)
		}
		return nil
	})
}

// ListWebhooks returns webhooks for an organization, optionally filtered.
func (s *Store) ListWebhooks(ctx context.Context, orgID int64, opts webhook.ListOpts) ([]*webhook.Webhook, error) {
	var models []webhookModel
	q := s.db.NewSelect().
		Model(&models).
		Where("org_id = ?", orgID).
		Order("created_at ASC")
	if opts.Active != nil {
		q = q.Where("active = ?", *opts.Active)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("dispatch/bunstore: list webhooks: %w", err)
	}

	result := make([]*webhook.Webhook, 0, len(models))
	for i := range models {
		wh, err := fromWebhookModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, wh)
	}
	return result, nil
}

// ListActiveForEvent returns active webhooks subscribed to an event name,
// scoped strictly to orgID. Subscription matching happens in Go because the
// events column is JSON text.
func (s *Store) ListActiveForEvent(ctx context.Context, orgID int64, eventName string) ([]*webhook.Webhook, error) {
	var models []webhookModel
	err := s.db.NewSelect().
		Model(&models).
		Where("org_id = ?", orgID).
		Where("active = ?", true).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("dispatch/bunstore: list active for event: %w", err)
	}

	var result []*webhook.Webhook
	for i := range models {
		wh, err := fromWebhookModel(&models[i])
		if err != nil {
			return nil, err
		}
		if wh.SubscribedTo(eventName) {
			result = append(result, wh)
		}
	}
	return result, nil
}

// SetActive activates or deactivates a webhook. Idempotent.
func (s *Store) SetActive(ctx context.Context, whID id.ID, active bool) error {
	res, err := s.db.NewUpdate().
		Model((*webhookModel)(nil)).
		Set("active = ?", active).
		Set("updated_at = ?", now()).
		Where("id = ?", whID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("dispatch/bunstore: set active: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("dispatch/bunstore: set active: %w", err)
	}
	if affected == 0 {
		return dispatch.ErrWebhookNotFound
	}
	return nil
}

// Enqueue creates a pending delivery.
func (s *Store) Enqueue(ctx context.Context, d *delivery.Delivery) error {
	m := toDeliveryModel(d)
	if _, err := s.db.NewInsert().Model(m).Exec(ctx); err != nil {
		return fmt.Errorf("dispatch/bunstore: enqueue delivery: %w", err)
	}
	return nil
}

// EnqueueBatch creates multiple deliveries in one insert.
func (s *Store) EnqueueBatch(ctx context.Context, ds []*delivery.Delivery) error {
	if len(ds) == 0 {
		return nil
	}
	models := make([]*deliveryModel, 0, len(ds))
	for _, d := range ds {
		models = append(models, toDeliveryModel(d))
	}
	if _, err := s.db.NewInsert().Model(&models).Exec(ctx); err != nil {
		return fmt.Errorf("dispatch/bunstore: enqueue batch: %w", err)
	}
	return nil
}

// Dequeue claims due pending deliveries by stamping a lease. The claim is a
// single conditional UPDATE so concurrent workers never pick the same rows.
func (s *Store) Dequeue(ctx context.Context, limit int) ([]*delivery.Delivery, error) {
	if limit <= 0 {
		return nil, nil
	}
	ts := now()
	lease := ts.Add(claimLease)

	var claimed []deliveryModel
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var ids []string
		err := tx.NewSelect().
			Model((*deliveryModel)(nil)).
			Column("id").
			Where("state = ?", string(delivery.StatePending)).
			Where("next_attempt_at <= ?", ts).
			Where("claimed_until IS NULL OR claimed_until <= ?", ts).
			Order("next_attempt_at ASC").
			Limit(limit).
			Scan(ctx, &ids)
		if err != nil {
			return fmt.Errorf("dispatch/bunstore: select due: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}

		if _, err := tx.NewUpdate().
			Model((*deliveryModel)(nil)).
			Set("claimed_until = ?", lease).
			Where("id IN (?)", bun.In(ids)).
			Exec(ctx); err != nil {
			return fmt.Errorf("dispatch/bunstore: stamp lease: %w", err)
		}

		if err := tx.NewSelect().
			Model(&claimed).
			Where("id IN (?)", bun.In(ids)).
			Order("next_attempt_at ASC").
			Scan(ctx); err != nil {
			return fmt.Errorf("dispatch/bunstore: fetch claimed: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(claimed) == 0 {
		return nil, nil
	}

	result := make([]*delivery.Delivery, 0, len(claimed))
	for i := range claimed {
		d, err := fromDeliveryModel(&claimed[i])
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, nil
}

// UpdateDelivery records the outcome of an attempt and releases the claim.
// Terminal rows are never modified.
func (s *Store) UpdateDelivery(ctx context.Context, d *delivery.Delivery) error {
	existing := new(deliveryModel)
	err := s.db.NewSelect().Model(existing).Where("id = ?", d.ID.String()).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return dispatch.ErrDeliveryNotFound
		}
		return fmt.Errorf("dispatch/bunstore: update delivery: %w", err)
	}
	if delivery.State(existing.State).Terminal() {
		return nil
	}

	m := toDeliveryModel(d)
	m.CreatedAt = existing.CreatedAt
	m.UpdatedAt = now()
	m.ClaimedUntil = nil

	res, err := s.db.NewUpdate().
		Model(m).
		WherePK().
		Where("state = ?", string(delivery.StatePending)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("dispatch/bunstore: update delivery: %w", err)
	}
	if _, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("dispatch/bunstore: update delivery: %w", err)
	}
	return nil
}

// GetDelivery returns a delivery by ID.
func (s *Store) GetDelivery(ctx context.Context, delID id.ID) (*delivery.Delivery, error) {
	m := new(deliveryModel)
	err := s.db.NewSelect().Model(m).Where("id = ?", delID.String()).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, dispatch.ErrDeliveryNotFound
		}
		return nil, fmt.Errorf("dispatch/bunstore: get delivery: %w", err)
	}
	return fromDeliveryModel(m)
}

// ListByWebhook returns delivery history for a webhook, newest first.
func (s *Store) ListByWebhook(ctx context.Context, whID id.ID, opts delivery.ListOpts) ([]*delivery.Delivery, error) {
	var models []deliveryModel
	q := s.db.NewSelect().
		Model(&models).
		Where("webhook_id = ?", whID.String()).
		Order("created_at DESC")
	if opts.State != nil {
		q = q.Where("state = ?", string(*opts.State))
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("dispatch/bunstore: list by webhook: %w", err)
	}

	result := make([]*delivery.Delivery, 0, len(models))
	for i := range models {
		d, err := fromDeliveryModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, nil
}

// CountPending returns the number of deliveries awaiting attempt.
func (s *Store) CountPending(ctx context.Context) (int64, error) {
	count, err := s.db.NewSelect().
		Model((*deliveryModel)(nil)).
		Where("state = ?", string(delivery.StatePending)).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("dispatch/bunstore: count pending: %w", err)
	}
	return int64(count), nil
}
