package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/stocklane/dispatch/id"
)

// Envelope is the wire-format JSON object POSTed to a webhook URL.
//
// The "id" field is a fresh message ID per delivery ("wh_..."), distinct from
// the Delivery record ID; receivers use it for idempotency. The envelope is
// serialized exactly once at dispatch time and the resulting bytes are stored
// on the Delivery, so the signature stays verifiable on every attempt even
// if the source entity mutates afterwards.
type Envelope struct {
	// ID is the unique message ID for this delivery.
	ID id.ID `json:"id"`

	// Event is the dot-separated event name.
	Event string `json:"event"`

	// Timestamp is the dispatch time, RFC 3339 UTC.
	Timestamp time.Time `json:"timestamp"`

	// OrganizationID is the owning tenant.
	OrganizationID int64 `json:"organization_id"`

	// Data is the event-specific payload snapshot.
	Data json.RawMessage `json:"data"`
}

// NewEnvelope builds an envelope with a fresh message ID and the current UTC
// timestamp, snapshotting data into raw JSON.
func NewEnvelope(eventName string, data any, orgID int64) (*Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("event: marshal data: %w", err)
	}

	return &Envelope{
		ID:             id.NewMessageID(),
		Event:          eventName,
		Timestamp:      time.Now().UTC(),
		OrganizationID: orgID,
		Data:           raw,
	}, nil
}

// Marshal returns the canonical JSON bytes of the envelope. These are the
// exact bytes that are persisted, signed, and sent.
func (e *Envelope) Marshal() ([]byte, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("event: marshal envelope: %w", err)
	}
	return raw, nil
}
