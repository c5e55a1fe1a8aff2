package dispatch

import "errors"

// Sentinel errors returned by dispatch operations.
var (
	// ErrNoStore is returned when a Dispatcher is created without a store.
	ErrNoStore = errors.New("dispatch: store is required")

	// ErrWebhookNotFound is returned when a webhook cannot be found.
	ErrWebhookNotFound = errors.New("dispatch: webhook not found")

	// ErrDeliveryNotFound is returned when a delivery cannot be found.
	ErrDeliveryNotFound = errors.New("dispatch: delivery not found")

	// ErrDeliveryTerminal is returned when attempting to modify or replay a
	// delivery in a state that does not allow it.
	ErrDeliveryTerminal = errors.New("dispatch: delivery is not in a terminal failed state")

	// ErrPayloadValidationFailed is returned when event data fails JSON
	// Schema validation.
	ErrPayloadValidationFailed = errors.New("dispatch: payload validation failed")

	// ErrStoreClosed is returned when a store operation is attempted after
	// the store is closed.
	ErrStoreClosed = errors.New("dispatch: store is closed")
)
