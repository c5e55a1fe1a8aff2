// Package delivery implements the asynchronous execution layer: the delivery
// records, the HTTP sender, the retry policy, and the worker engine that
// drives pending deliveries to a terminal state.
package delivery

import (
	"encoding/json"
	"time"

	"github.com/stocklane/dispatch/id"
	"github.com/stocklane/dispatch/internal/entity"
)

// State represents the current state of a delivery.
type State string

const (
	// StatePending indicates the delivery is awaiting an attempt or a retry.
	StatePending State = "pending"

	// StateSuccess indicates the endpoint acknowledged the delivery with a
	// 2xx response. Terminal.
	StateSuccess State = "success"

	// StateFailed indicates the delivery exhausted its attempts or was
	// short-circuited. Terminal.
	StateFailed State = "failed"
)

// Terminal reports whether s is a terminal state.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateFailed
}

// Delivery represents one attempted-or-pending transmission of one event
// occurrence to one webhook.
type Delivery struct {
	entity.Entity

	// ID is the unique TypeID for this delivery record.
	ID id.ID `json:"id"`

	// WebhookID references the target webhook.
	WebhookID id.ID `json:"webhook_id"`

	// MessageID is the envelope message ID ("wh_...") receivers use for
	// idempotency. Distinct from the record ID.
	MessageID id.ID `json:"message_id"`

	// OrgID identifies the owning organization.
	OrgID int64 `json:"organization_id"`

	// Event is the dot-separated event name.
	Event string `json:"event"`

	// Payload is the serialized envelope, captured at dispatch time.
	// Immutable: every attempt sends and signs exactly these bytes.
	Payload json.RawMessage `json:"payload"`

	// State is the current delivery state.
	State State `json:"state"`

	// Attempts is the number of delivery attempts made so far.
	Attempts int `json:"attempts"`

	// MaxAttempts is the maximum number of attempts before terminal failure.
	MaxAttempts int `json:"max_attempts"`

	// NextAttemptAt is when the next delivery attempt should occur.
	NextAttemptAt time.Time `json:"next_attempt_at"`

	// LastStatusCode is the HTTP status from the most recent attempt.
	// 0 means a transport failure (timeout, DNS, connection refused).
	LastStatusCode int `json:"last_status_code,omitempty"`

	// LastError is the error message from the most recent failed attempt.
	LastError string `json:"last_error,omitempty"`

	// LastResponse is the response body excerpt from the most recent attempt,
	// capped at 2000 bytes.
	LastResponse string `json:"last_response,omitempty"`

	// LastLatencyMs is the latency in milliseconds of the most recent attempt.
	LastLatencyMs int `json:"last_latency_ms,omitempty"`

	// CompletedAt is set on transition to a terminal state.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ListOpts configures filtering and pagination for delivery listing.
type ListOpts struct {
	Offset int
	Limit  int
	State  *State
}
