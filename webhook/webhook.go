// Package webhook manages tenant webhook subscriptions: the target URL,
// signing secret, and subscribed event set for each registration.
package webhook

import (
	"github.com/stocklane/dispatch/id"
	"github.com/stocklane/dispatch/internal/entity"
)

// Webhook represents a delivery subscription registered by an organization.
type Webhook struct {
	entity.Entity

	// ID is the unique TypeID for this webhook.
	ID id.ID `json:"id"`

	// OrgID identifies the organization that owns this webhook.
	OrgID int64 `json:"organization_id"`

	// Name is a human-readable display name.
	Name string `json:"name"`

	// URL is the delivery target. Must be an absolute http(s) URL.
	URL string `json:"url"`

	// Secret is the HMAC signing secret. Immutable once set and never
	// serialized; read it from the value returned by Subscribe.
	Secret string `json:"-"`

	// Events is the set of subscribed event names.
	Events []string `json:"events"`

	// Active indicates whether the webhook receives new deliveries.
	Active bool `json:"active"`

	// Headers are custom HTTP headers sent with each delivery.
	Headers map[string]string `json:"headers,omitempty"`

	// RateLimit is the maximum deliveries per second. 0 means unlimited.
	RateLimit int `json:"rate_limit"`
}

// SubscribedTo reports whether the webhook's event set contains name.
func (w *Webhook) SubscribedTo(name string) bool {
	for _, ev := range w.Events {
		if ev == name {
			return true
		}
	}
	return false
}

// ListOpts configures filtering and pagination for webhook listing.
type ListOpts struct {
	Offset int
	Limit  int
	Active *bool
}
