package webhook

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/stocklane/dispatch/event"
	"github.com/stocklane/dispatch/id"
	"github.com/stocklane/dispatch/internal/entity"
	"github.com/stocklane/dispatch/signature"
)

// Service provides webhook registry operations.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a new webhook service.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		logger: logger,
	}
}

// Subscribe registers a new webhook. The returned value is the only place the
// generated secret is visible in plaintext; it is never serialized afterwards.
func (svc *Service) Subscribe(ctx context.Context, in Input) (*Webhook, error) {
	if err := validateURL(in.URL); err != nil {
		return nil, err
	}

	if in.OrgID <= 0 {
		return nil, &ValidationError{Field: "organization_id", Message: "required"}
	}

	if len(in.Events) == 0 {
		return nil, &ValidationError{Field: "events", Message: "at least one event name required"}
	}
	for _, ev := range in.Events {
		if !event.Known(ev) {
			return nil, &ValidationError{Field: "events", Message: "unknown event name: " + ev}
		}
	}

	secret := in.Secret
	if secret == "" {
		secret = signature.GenerateSecret()
	}

	wh := &Webhook{
		Entity:    entity.New(),
		ID:        id.NewWebhookID(),
		OrgID:     in.OrgID,
		Name:      in.Name,
		URL:       in.URL,
		Secret:    secret,
		Events:    in.Events,
		Active:    true,
		Headers:   in.Headers,
		RateLimit: in.RateLimit,
	}

	if err := svc.store.CreateWebhook(ctx, wh); err != nil {
		return nil, err
	}

	return wh, nil
}

// Get returns a webhook by ID.
func (svc *Service) Get(ctx context.Context, whID id.ID) (*Webhook, error) {
	return svc.store.GetWebhook(ctx, whID)
}

// Update modifies an existing webhook. The signing secret cannot be changed.
func (svc *Service) Update(ctx context.Context, whID id.ID, in Input) (*Webhook, error) {
	wh, err := svc.store.GetWebhook(ctx, whID)
	if err != nil {
		return nil, err
	}

	if in.URL != "" {
		if err := validateURL(in.URL); err != nil {
			return nil, err
		}
		wh.URL = in.URL
	}
	if in.Name != "" {
		wh.Name = in.Name
	}
	if len(in.Events) > 0 {
		for _, ev := range in.Events {
			if !event.Known(ev) {
				return nil, &ValidationError{Field: "events", Message: "unknown event name: " + ev}
			}
		}
		wh.Events = in.Events
	}
	if in.Headers != nil {
		wh.Headers = in.Headers
	}
	if in.RateLimit >= 0 {
		wh.RateLimit = in.RateLimit
	}

	if err := svc.store.UpdateWebhook(ctx, wh); err != nil {
		return nil, err
	}

	return wh, nil
}

// Deactivate stops new deliveries to a webhook without losing its history.
// Idempotent.
func (svc *Service) Deactivate(ctx context.Context, whID id.ID) error {
	return svc.store.SetActive(ctx, whID, false)
}

// Activate re-enables deliveries to a webhook. Idempotent.
func (svc *Service) Activate(ctx context.Context, whID id.ID) error {
	return svc.store.SetActive(ctx, whID, true)
}

// Delete removes a webhook and cascades to its delivery history.
func (svc *Service) Delete(ctx context.Context, whID id.ID) error {
	return svc.store.DeleteWebhook(ctx, whID)
}

// List returns webhooks for an organization.
func (svc *Service) List(ctx context.Context, orgID int64, opts ListOpts) ([]*Webhook, error) {
	return svc.store.ListWebhooks(ctx, orgID, opts)
}

// ListActiveForEvent returns the organization's active webhooks subscribed to
// eventName. Scoped strictly to orgID.
func (svc *Service) ListActiveForEvent(ctx context.Context, orgID int64, eventName string) ([]*Webhook, error) {
	return svc.store.ListActiveForEvent(ctx, orgID, eventName)
}

// validateURL rejects anything that is not an absolute http(s) URL.
func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return &ValidationError{Field: "url", Message: "must be an absolute URL"}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &ValidationError{Field: "url", Message: "scheme must be http or https"}
	}
	return nil
}

// ValidationError indicates invalid input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "webhook validation: " + e.Field + ": " + e.Message
}
