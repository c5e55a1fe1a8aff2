package redis

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/stocklane/dispatch"
	"github.com/stocklane/dispatch/id"
	"github.com/stocklane/dispatch/internal/entity"
	"github.com/stocklane/dispatch/webhook"
)

// webhookModel is the JSON representation stored in Redis. Unlike the domain
// type, it carries the secret; the blob is only readable with datastore
// access.
type webhookModel struct {
	ID        string            `json:"id"`
	OrgID     int64             `json:"organization_id"`
	Name      string            `json:"name"`
	URL       string            `json:"url"`
	Secret    string            `json:"secret"`
	Events    []string          `json:"events"`
	Active    bool              `json:"active"`
	Headers   map[string]string `json:"headers,omitempty"`
	RateLimit int               `json:"rate_limit"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func toWebhookModel(wh *webhook.Webhook) *webhookModel {
	return &webhookModel{
		ID:        wh.ID.String(),
		OrgID:     wh.OrgID,
		Name:      wh.Name,
		URL:       wh.URL,
		Secret:    wh.Secret,
		Events:    wh.Events,
		Active:    wh.Active,
		Headers:   wh.Headers,
		RateLimit: wh.RateLimit,
		CreatedAt: wh.CreatedAt,
		UpdatedAt: wh.UpdatedAt,
	}
}

func fromWebhookModel(m *webhookModel) (*webhook.Webhook, error) {
	whID, err := id.ParseWebhookID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse webhook ID %q: %w", m.ID, err)
	}
	return &webhook.Webhook{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:        whID,
		OrgID:     m.OrgID,
		Name:      m.Name,
		URL:       m.URL,
		Secret:    m.Secret,
		Events:    m.Events,
		Active:    m.Active,
		Headers:   m.Headers,
		RateLimit: m.RateLimit,
	}, nil
}

// CreateWebhook persists a new webhook and indexes it under its organization.
func (s *Store) CreateWebhook(ctx context.Context, wh *webhook.Webhook) error {
	m := toWebhookModel(wh)

	if err := s.setEntity(ctx, webhookKey(m.ID), m); err != nil {
		return fmt.Errorf("dispatch/redis: create webhook: %w", err)
	}
	if err := s.rdb.SAdd(ctx, orgSetKey(m.OrgID), m.ID).Err(); err != nil {
		return fmt.Errorf("dispatch/redis: index webhook: %w", err)
	}
	return nil
}

// GetWebhook returns a webhook by ID.
func (s *Store) GetWebhook(ctx context.Context, whID id.ID) (*webhook.Webhook, error) {
	var m webhookModel
	if err := s.getEntity(ctx, webhookKey(whID.String()), &m); err != nil {
		if isRedisNil(err) {
			return nil, dispatch.ErrWebhookNotFound
		}
		return nil, fmt.Errorf("dispatch/redis: get webhook: %w", err)
	}
	return fromWebhookModel(&m)
}

// UpdateWebhook modifies an existing webhook. The stored secret is preserved.
func (s *Store) UpdateWebhook(ctx context.Context, wh *webhook.Webhook) error {
	var existing webhookModel
	if err := s.getEntity(ctx, webhookKey(wh.ID.String()), &existing); err != nil {
		if isRedisNil(err) {
			return dispatch.ErrWebhookNotFound
		}
		return fmt.Errorf("dispatch/redis: update webhook: %w", err)
	}

	m := toWebhookModel(wh)
	m.Secret = existing.Secret
	m.UpdatedAt = now()
	wh.Secret = existing.Secret

	return s.setEntity(ctx, webhookKey(m.ID), m)
}

// DeleteWebhook removes a webhook and cascades to its delivery history.
func (s *Store) DeleteWebhook(ctx context.Context, whID id.ID) error {
	var m webhookModel
	if err := s.getEntity(ctx, webhookKey(whID.String()), &m); err != nil {
		if isRedisNil(err) {
			return dispatch.ErrWebhookNotFound
		}
		return fmt.Errorf("dispatch/redis: delete webhook: %w", err)
	}

	// Collect the webhook's delivery IDs before dropping the index.
	delIDs, err := s.rdb.ZRange(ctx, webhookDeliveriesKey(m.ID), 0, -1).Result()
	if err != nil && !isRedisNil(err) {
		return fmt.Errorf("dispatch/redis: list webhook deliveries: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, webhookKey(m.ID))
	pipe.SRem(ctx, orgSetKey(m.OrgID), m.ID)
	pipe.Del(ctx, webhookDeliveriesKey(m.ID))
	for _, delID := range delIDs {
		pipe.Del(ctx, deliveryKey(delID))
		pipe.ZRem(ctx, zDeliveryPend, delID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("dispatch/redis: delete webhook cascade: %w", err)
	}
	return nil
}

// ListWebhooks returns webhooks for an organization, optionally filtered.
func (s *Store) ListWebhooks(ctx context.Context, orgID int64, opts webhook.ListOpts) ([]*webhook.Webhook, error) {
	hooks, err := s.orgWebhooks(ctx, orgID)
	if err != nil {
		return nil, err
	}

	result := make([]*webhook.Webhook, 0, len(hooks))
	for _, wh := range hooks {
		if opts.Active != nil && wh.Active != *opts.Active {
			continue
		}
		result = append(result, wh)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	result = applyPagination(result, opts.Offset, opts.Limit)
	return result, nil
}

// ListActiveForEvent returns active webhooks subscribed to an event name,
// scoped strictly to orgID.
func (s *Store) ListActiveForEvent(ctx context.Context, orgID int64, eventName string) ([]*webhook.Webhook, error) {
	hooks, err := s.orgWebhooks(ctx, orgID)
	if err != nil {
		return nil, err
	}

	var result []*webhook.Webhook
	for _, wh := range hooks {
		if !wh.Active {
			continue
		}
		if wh.SubscribedTo(eventName) {
			result = append(result, wh)
		}
	}
	return result, nil
}

// SetActive activates or deactivates a webhook. Idempotent.
func (s *Store) SetActive(ctx context.Context, whID id.ID, active bool) error {
	var m webhookModel
	if err := s.getEntity(ctx, webhookKey(whID.String()), &m); err != nil {
		if isRedisNil(err) {
			return dispatch.ErrWebhookNotFound
		}
		return fmt.Errorf("dispatch/redis: set active: %w", err)
	}

	m.Active = active
	m.UpdatedAt = now()
	return s.setEntity(ctx, webhookKey(m.ID), &m)
}

// orgWebhooks fetches all webhooks in an organization's index set.
func (s *Store) orgWebhooks(ctx context.Context, orgID int64) ([]*webhook.Webhook, error) {
	ids, err := s.rdb.SMembers(ctx, orgSetKey(orgID)).Result()
	if err != nil {
		if isRedisNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("dispatch/redis: org webhooks: %w", err)
	}

	result := make([]*webhook.Webhook, 0, len(ids))
	for _, whID := range ids {
		var m webhookModel
		if err := s.getEntity(ctx, webhookKey(whID), &m); err != nil {
			if isRedisNil(err) {
				continue // index lag after delete
			}
			return nil, fmt.Errorf("dispatch/redis: org webhook %s: %w", whID, err)
		}
		wh, err := fromWebhookModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, wh)
	}
	return result, nil
}
