package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/stocklane/dispatch"
	"github.com/stocklane/dispatch/delivery"
	"github.com/stocklane/dispatch/id"
	"github.com/stocklane/dispatch/internal/entity"
)

// deliveryModel is the JSON representation stored in Redis.
type deliveryModel struct {
	ID             string          `json:"id"`
	WebhookID      string          `json:"webhook_id"`
	MessageID      string          `json:"message_id"`
	OrgID          int64           `json:"organization_id"`
	Event          string          `json:"event"`
	Payload        json.RawMessage `json:"payload"`
	State          string          `json:"state"`
	Attempts       int             `json:"attempts"`
	MaxAttempts    int             `json:"max_attempts"`
	NextAttemptAt  time.Time       `json:"next_attempt_at"`
	LastStatusCode int             `json:"last_status_code"`
	LastError      string          `json:"last_error"`
	LastResponse   string          `json:"last_response"`
	LastLatencyMs  int             `json:"last_latency_ms"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func toDeliveryModel(d *delivery.Delivery) *deliveryModel {
	return &deliveryModel{
		ID:             d.ID.String(),
		WebhookID:      d.WebhookID.String(),
		MessageID:      d.MessageID.String(),
		OrgID:          d.OrgID,
		Event:          d.Event,
		Payload:        d.Payload,
		State:          string(d.State),
		Attempts:       d.Attempts,
		MaxAttempts:    d.MaxAttempts,
		NextAttemptAt:  d.NextAttemptAt,
		LastStatusCode: d.LastStatusCode,
		LastError:      d.LastError,
		LastResponse:   d.LastResponse,
		LastLatencyMs:  d.LastLatencyMs,
		CompletedAt:    d.CompletedAt,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

func fromDeliveryModel(m *deliveryModel) (*delivery.Delivery, error) {
	delID, err := id.ParseDeliveryID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse delivery ID %q: %w", m.ID, err)
	}
	whID, err := id.ParseWebhookID(m.WebhookID)
	if err != nil {
		return nil, fmt.Errorf("parse webhook ID %q: %w", m.WebhookID, err)
	}
	msgID, err := id.ParseMessageID(m.MessageID)
	if err != nil {
		return nil, fmt.Errorf("parse message ID %q: %w", m.MessageID, err)
	}
	return &delivery.Delivery{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             delID,
		WebhookID:      whID,
		MessageID:      msgID,
		OrgID:          m.OrgID,
		Event:          m.Event,
		Payload:        m.Payload,
		State:          delivery.State(m.State),
		Attempts:       m.Attempts,
		MaxAttempts:    m.MaxAttempts,
		NextAttemptAt:  m.NextAttemptAt,
		LastStatusCode: m.LastStatusCode,
		LastError:      m.LastError,
		LastResponse:   m.LastResponse,
		LastLatencyMs:  m.LastLatencyMs,
		CompletedAt:    m.CompletedAt,
	}, nil
}

// claimScript atomically claims due delivery IDs by pushing their scores a
// lease into the future. A worker that crashes before updating leaves the
// row due again after the lease expires.
// KEYS[1] = dispatch:z:del:pending
// ARGV[1] = current score threshold
// ARGV[2] = limit
// ARGV[3] = lease score (now + lease)
var claimScript = goredis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
if #ids == 0 then return {} end
for i, id in ipairs(ids) do
    redis.call('ZADD', KEYS[1], ARGV[3], id)
end
return ids
`)

// Enqueue creates a pending delivery.
func (s *Store) Enqueue(ctx context.Context, d *delivery.Delivery) error {
	m := toDeliveryModel(d)

	if err := s.setEntity(ctx, deliveryKey(m.ID), m); err != nil {
		return fmt.Errorf("dispatch/redis: enqueue delivery: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.ZAdd(ctx, zDeliveryPend, goredis.Z{Score: scoreFromTime(m.NextAttemptAt), Member: m.ID})
	pipe.ZAdd(ctx, webhookDeliveriesKey(m.WebhookID), goredis.Z{Score: scoreFromTime(m.CreatedAt), Member: m.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("dispatch/redis: enqueue delivery indexes: %w", err)
	}
	return nil
}

// EnqueueBatch creates multiple deliveries atomically.
func (s *Store) EnqueueBatch(ctx context.Context, ds []*delivery.Delivery) error {
	if len(ds) == 0 {
		return nil
	}

	pipe := s.rdb.Pipeline()
	for _, d := range ds {
		m := toDeliveryModel(d)

		raw, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("dispatch/redis: enqueue batch marshal: %w", err)
		}
		pipe.Set(ctx, deliveryKey(m.ID), raw, 0)
		pipe.ZAdd(ctx, zDeliveryPend, goredis.Z{Score: scoreFromTime(m.NextAttemptAt), Member: m.ID})
		pipe.ZAdd(ctx, webhookDeliveriesKey(m.WebhookID), goredis.Z{Score: scoreFromTime(m.CreatedAt), Member: m.ID})
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("dispatch/redis: enqueue batch: %w", err)
	}
	return nil
}

// Dequeue claims due pending deliveries via the lease script.
func (s *Store) Dequeue(ctx context.Context, limit int) ([]*delivery.Delivery, error) {
	nowScore := fmt.Sprintf("%f", scoreFromTime(now()))
	leaseScore := fmt.Sprintf("%f", scoreFromTime(now().Add(claimLease)))

	result, err := claimScript.Run(ctx, s.rdb, []string{zDeliveryPend}, nowScore, limit, leaseScore).StringSlice()
	if err != nil {
		if isRedisNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("dispatch/redis: claim script: %w", err)
	}
	if len(result) == 0 {
		return nil, nil
	}

	deliveries := make([]*delivery.Delivery, 0, len(result))
	for _, delID := range result {
		var m deliveryModel
		if err := s.getEntity(ctx, deliveryKey(delID), &m); err != nil {
			if isRedisNil(err) {
				// Blob gone (cascade delete); drop the orphaned index entry.
				s.rdb.ZRem(ctx, zDeliveryPend, delID)
				continue
			}
			return nil, fmt.Errorf("dispatch/redis: dequeue get: %w", err)
		}

		d, err := fromDeliveryModel(&m)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}

	return deliveries, nil
}

// UpdateDelivery records the outcome of an attempt and releases the claim.
func (s *Store) UpdateDelivery(ctx context.Context, d *delivery.Delivery) error {
	var existing deliveryModel
	if err := s.getEntity(ctx, deliveryKey(d.ID.String()), &existing); err != nil {
		if isRedisNil(err) {
			return dispatch.ErrDeliveryNotFound
		}
		return fmt.Errorf("dispatch/redis: update delivery: %w", err)
	}
	if delivery.State(existing.State).Terminal() {
		return nil
	}

	m := toDeliveryModel(d)
	m.UpdatedAt = now()

	if err := s.setEntity(ctx, deliveryKey(m.ID), m); err != nil {
		return fmt.Errorf("dispatch/redis: update delivery: %w", err)
	}

	if d.State == delivery.StatePending {
		// Still retrying: reschedule at the real next attempt time.
		return s.rdb.ZAdd(ctx, zDeliveryPend, goredis.Z{Score: scoreFromTime(m.NextAttemptAt), Member: m.ID}).Err()
	}
	return s.rdb.ZRem(ctx, zDeliveryPend, m.ID).Err()
}

// GetDelivery returns a delivery by ID.
func (s *Store) GetDelivery(ctx context.Context, delID id.ID) (*delivery.Delivery, error) {
	var m deliveryModel
	if err := s.getEntity(ctx, deliveryKey(delID.String()), &m); err != nil {
		if isRedisNil(err) {
			return nil, dispatch.ErrDeliveryNotFound
		}
		return nil, fmt.Errorf("dispatch/redis: get delivery: %w", err)
	}
	return fromDeliveryModel(&m)
}

// ListByWebhook returns delivery history for a webhook, newest first.
func (s *Store) ListByWebhook(ctx context.Context, whID id.ID, opts delivery.ListOpts) ([]*delivery.Delivery, error) {
	ids, err := s.rdb.ZRevRange(ctx, webhookDeliveriesKey(whID.String()), 0, -1).Result()
	if err != nil {
		if isRedisNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("dispatch/redis: list by webhook: %w", err)
	}

	result := make([]*delivery.Delivery, 0, len(ids))
	for _, delID := range ids {
		var m deliveryModel
		if err := s.getEntity(ctx, deliveryKey(delID), &m); err != nil {
			if isRedisNil(err) {
				continue
			}
			return nil, fmt.Errorf("dispatch/redis: list by webhook get: %w", err)
		}
		if opts.State != nil && delivery.State(m.State) != *opts.State {
			continue
		}
		d, err := fromDeliveryModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}

	result = applyPagination(result, opts.Offset, opts.Limit)
	return result, nil
}

// CountPending returns the number of deliveries awaiting attempt.
func (s *Store) CountPending(ctx context.Context) (int64, error) {
	count, err := s.rdb.ZCard(ctx, zDeliveryPend).Result()
	if err != nil {
		if isRedisNil(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("dispatch/redis: count pending: %w", err)
	}
	return count, nil
}
