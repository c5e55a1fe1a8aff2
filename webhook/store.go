package webhook

import (
	"context"

	"github.com/stocklane/dispatch/id"
)

// Store defines the persistence contract for webhooks.
type Store interface {
	// CreateWebhook persists a new webhook.
	CreateWebhook(ctx context.Context, wh *Webhook) error

	// GetWebhook returns a webhook by ID.
	GetWebhook(ctx context.Context, whID id.ID) (*Webhook, error)

	// UpdateWebhook modifies an existing webhook. The secret column is never
	// changed after creation.
	UpdateWebhook(ctx context.Context, wh *Webhook) error

	// DeleteWebhook removes a webhook and its delivery history.
	DeleteWebhook(ctx context.Context, whID id.ID) error

	// ListWebhooks returns webhooks for an organization, optionally filtered.
	ListWebhooks(ctx context.Context, orgID int64, opts ListOpts) ([]*Webhook, error)

	// ListActiveForEvent returns active webhooks subscribed to an event name,
	// scoped strictly to orgID. This is the hot path; it runs on every
	// Dispatch.
	ListActiveForEvent(ctx context.Context, orgID int64, eventName string) ([]*Webhook, error)

	// SetActive activates or deactivates a webhook without deleting it.
	// Idempotent.
	SetActive(ctx context.Context, whID id.ID, active bool) error
}
