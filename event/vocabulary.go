// Package event defines the domain event vocabulary, the wire envelope, and
// payload schema validation for webhook dispatch.
package event

import "encoding/json"

// Event names emitted by the inventory and order subsystems. The vocabulary
// is closed at this boundary; Dispatch accepts unknown names for forward
// compatibility but logs them as unexpected.
const (
	ProductCreated    = "product.created"
	ProductUpdated    = "product.updated"
	ProductDeleted    = "product.deleted"
	ProductLowStock   = "product.low_stock"
	ProductOutOfStock = "product.out_of_stock"

	OrderCreated       = "order.created"
	OrderUpdated       = "order.updated"
	OrderStatusChanged = "order.status_changed"
	OrderApproved      = "order.approved"
	OrderRejected      = "order.rejected"

	StockAdjusted = "stock.adjusted"

	PurchaseOrderCreated   = "purchase_order.created"
	PurchaseOrderReceived  = "purchase_order.received"
	PurchaseOrderCancelled = "purchase_order.cancelled"
)

// Definition describes a known event type: its name, documentation group,
// and an optional JSON Schema (draft-07) the payload is validated against
// at dispatch time.
type Definition struct {
	// Name is the dot-separated event name, "<resource>.<action>".
	Name string `json:"name"`

	// Description is a human-readable explanation of when this event fires.
	Description string `json:"description"`

	// Group is the resource category for organizing event types in docs/UI.
	Group string `json:"group"`

	// Schema is an optional JSON Schema describing the payload shape.
	// When set, Dispatch validates the event data against it.
	Schema json.RawMessage `json:"schema,omitempty"`
}

// definitions is the built-in vocabulary, keyed by event name.
var definitions = map[string]Definition{
	ProductCreated:    {Name: ProductCreated, Group: "product", Description: "A product was created."},
	ProductUpdated:    {Name: ProductUpdated, Group: "product", Description: "A product was updated."},
	ProductDeleted:    {Name: ProductDeleted, Group: "product", Description: "A product was deleted."},
	ProductLowStock:   {Name: ProductLowStock, Group: "product", Description: "A product's stock fell below its reorder threshold."},
	ProductOutOfStock: {Name: ProductOutOfStock, Group: "product", Description: "A product's stock reached zero."},

	OrderCreated:       {Name: OrderCreated, Group: "order", Description: "An order was created."},
	OrderUpdated:       {Name: OrderUpdated, Group: "order", Description: "An order was updated."},
	OrderStatusChanged: {Name: OrderStatusChanged, Group: "order", Description: "An order's status changed."},
	OrderApproved:      {Name: OrderApproved, Group: "order", Description: "An order was approved."},
	OrderRejected:      {Name: OrderRejected, Group: "order", Description: "An order was rejected."},

	StockAdjusted: {Name: StockAdjusted, Group: "stock", Description: "A stock level was manually adjusted."},

	PurchaseOrderCreated:   {Name: PurchaseOrderCreated, Group: "purchase_order", Description: "A purchase order was created."},
	PurchaseOrderReceived:  {Name: PurchaseOrderReceived, Group: "purchase_order", Description: "A purchase order was received."},
	PurchaseOrderCancelled: {Name: PurchaseOrderCancelled, Group: "purchase_order", Description: "A purchase order was cancelled."},
}

// Known reports whether name is part of the built-in vocabulary.
func Known(name string) bool {
	_, ok := definitions[name]
	return ok
}

// Lookup returns the definition for a known event name.
func Lookup(name string) (Definition, bool) {
	def, ok := definitions[name]
	return def, ok
}

// Names returns all known event names, unordered.
func Names() []string {
	names := make([]string, 0, len(definitions))
	for name := range definitions {
		names = append(names, name)
	}
	return names
}
