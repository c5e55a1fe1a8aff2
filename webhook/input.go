package webhook

// Input is the creation/update payload for webhooks.
type Input struct {
	// OrgID identifies the organization that owns this webhook.
	OrgID int64 `json:"organization_id"`

	// Name is a human-readable display name.
	Name string `json:"name"`

	// URL is the delivery target. Must be an absolute http(s) URL.
	URL string `json:"url"`

	// Secret is the HMAC signing secret. Auto-generated if empty on create.
	// Ignored on update; secrets are immutable.
	Secret string `json:"secret"`

	// Events is the set of subscribed event names.
	Events []string `json:"events"`

	// Headers are custom HTTP headers sent with each delivery.
	Headers map[string]string `json:"headers,omitempty"`

	// RateLimit is the maximum deliveries per second. 0 means unlimited.
	RateLimit int `json:"rate_limit"`
}
