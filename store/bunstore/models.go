package bunstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/stocklane/dispatch/delivery"
	"github.com/stocklane/dispatch/id"
	"github.com/stocklane/dispatch/internal/entity"
	"github.com/stocklane/dispatch/webhook"
)

// Collection columns (events, headers) are stored as JSON text so the same
// model works on Postgres and SQLite.

type webhookModel struct {
	bun.BaseModel `bun:"table:dispatch_webhooks"`

	ID        string    `bun:"id,pk"`
	OrgID     int64     `bun:"org_id,notnull"`
	Name      string    `bun:"name"`
	URL       string    `bun:"url,notnull"`
	Secret    string    `bun:"secret,notnull"`
	Events    []byte    `bun:"events,notnull"`
	Active    bool      `bun:"active,notnull"`
	Headers   []byte    `bun:"headers"`
	RateLimit int       `bun:"rate_limit"`
	CreatedAt time.Time `bun:"created_at,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

func toWebhookModel(wh *webhook.Webhook) (*webhookModel, error) {
	events, err := json.Marshal(wh.Events)
	if err != nil {
		return nil, fmt.Errorf("marshal events: %w", err)
	}
	var headers []byte
	if wh.Headers != nil {
		headers, err = json.Marshal(wh.Headers)
		if err != nil {
			return nil, fmt.Errorf("marshal headers: %w", err)
		}
	}
	return &webhookModel{
		ID:        wh.ID.String(),
		OrgID:     wh.OrgID,
		Name:      wh.Name,
		URL:       wh.URL,
		Secret:    wh.Secret,
		Events:    events,
		Active:    wh.Active,
		Headers:   headers,
		RateLimit: wh.RateLimit,
		CreatedAt: wh.CreatedAt,
		UpdatedAt: wh.UpdatedAt,
	}, nil
}

func fromWebhookModel(m *webhookModel) (*webhook.Webhook, error) {
	whID, err := id.ParseWebhookID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse webhook ID %q: %w", m.ID, err)
	}
	var events []string
	if len(m.Events) > 0 {
		if err := json.Unmarshal(m.Events, &events); err != nil {
			return nil, fmt.Errorf("unmarshal events: %w", err)
		}
	}
	var headers map[string]string
	if len(m.Headers) > 0 {
		if err := json.Unmarshal(m.Headers, &headers); err != nil {
			return nil, fmt.Errorf("unmarshal headers: %w", err)
		}
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
		Events:    events,
		Active:    m.Active,
		Headers:   headers,
		RateLimit: m.RateLimit,
	}, nil
}

type deliveryModel struct {
	bun.BaseModel `bun:"table:dispatch_deliveries"`

	ID             string     `bun:"id,pk"`
	WebhookID      string     `bun:"webhook_id,notnull"`
	MessageID      string     `bun:"message_id,notnull"`
	OrgID          int64      `bun:"org_id,notnull"`
	Event          string     `bun:"event,notnull"`
	Payload        []byte     `bun:"payload,notnull"`
	State          string     `bun:"state,notnull"`
	Attempts       int        `bun:"attempts,notnull"`
	MaxAttempts    int        `bun:"max_attempts,notnull"`
	NextAttemptAt  time.Time  `bun:"next_attempt_at,notnull"`
	ClaimedUntil   *time.Time `bun:"claimed_until"`
	LastStatusCode int        `bun:"last_status_code"`
	LastError      string     `bun:"last_error"`
	LastResponse   string     `bun:"last_response"`
	LastLatencyMs  int        `bun:"last_latency_ms"`
	CompletedAt    *time.Time `bun:"completed_at"`
	CreatedAt      time.Time  `bun:"created_at,notnull"`
	UpdatedAt      time.Time  `bun:"updated_at,notnull"`
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
