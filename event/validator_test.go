package event_test

import (
	"encoding/json"
	"testing"

	"github.com/stocklane/dispatch/event"
)

func TestValidatorNilSchema(t *testing.T) {
	v := event.NewValidator()

	if err := v.Validate(nil, map[string]any{"key": "value"}); err != nil {
		t.Fatal("nil schema should skip validation, got:", err)
	}
}

func TestValidatorEmptyRawSchema(t *testing.T) {
	v := event.NewValidator()

	if err := v.Validate(json.RawMessage(nil), map[string]any{"key": "value"}); err != nil {
		t.Fatal("empty raw schema should skip validation, got:", err)
	}
}

func TestValidatorValidPayload(t *testing.T) {
	v := event.NewValidator()

	schema := json.RawMessage(`{
		"type": "object",
		"properties": {
			"sku": {"type": "string"},
			"delta": {"type": "integer"}
		},
		"required": ["sku", "delta"]
	}`)

	data := map[string]any{"sku": "WID-1", "delta": -3}

	if err := v.Validate(schema, data); err != nil {
		t.Fatal("valid payload should pass, got:", err)
	}
}

func TestValidatorInputForms(t *testing.T) {
	v := event.NewValidator()

	schema := json.RawMessage(`{
		"type": "object",
		"properties": {
			"order_id": {"type": "integer"}
		},
		"required": ["order_id"]
	}`)

	type orderEvent struct {
		OrderID int `json:"order_id"`
	}

	valid := []struct {
		name string
		data any
	}{
		{"map", map[string]any{"order_id": 42}},
		{"struct", orderEvent{OrderID: 42}},
		{"struct pointer", &orderEvent{OrderID: 42}},
		{"raw message", json.RawMessage(`{"order_id":42}`)},
		{"byte slice", []byte(`{"order_id":42}`)},
	}
	for _, tt := range valid {
		t.Run(tt.name, func(t *testing.T) {
			if err := v.Validate(schema, tt.data); err != nil {
				t.Fatalf("valid payload as %s rejected: %v", tt.name, err)
			}
		})
	}

	invalid := []struct {
		name string
		data any
	}{
		{"map missing field", map[string]any{"note": "x"}},
		{"raw message wrong type", json.RawMessage(`{"order_id":"not-an-int"}`)},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			if err := v.Validate(schema, tt.data); err == nil {
				t.Fatalf("invalid payload as %s accepted", tt.name)
			}
		})
	}
}

func TestValidatorMissingRequired(t *testing.T) {
	v := event.NewValidator()

	schema := json.RawMessage(`{
		"type": "object",
		"properties": {"name": {"type": "string"}},
		"required": ["name"]
	}`)

	if err := v.Validate(schema, map[string]any{"other": "value"}); err == nil {
		t.Fatal("expected validation error for missing required field")
	}
}

func TestValidatorWrongType(t *testing.T) {
	v := event.NewValidator()

	schema := json.RawMessage(`{
		"type": "object",
		"properties": {"count": {"type": "integer"}}
	}`)

	if err := v.Validate(schema, map[string]any{"count": "not-a-number"}); err == nil {
		t.Fatal("expected validation error for wrong type")
	}
}

func TestValidatorCaching(t *testing.T) {
	v := event.NewValidator()

	schema := json.RawMessage(`{"type": "object"}`)

	// Repeated validations against the same schema should hit the cache and
	// keep working.
	for range 3 {
		if err := v.Validate(schema, map[string]any{"a": 1}); err != nil {
			t.Fatal(err)
		}
	}
}

func TestValidatorInvalidSchema(t *testing.T) {
	v := event.NewValidator()

	schema := json.RawMessage(`{"type": 12345}`)

	if err := v.Validate(schema, map[string]any{}); err == nil {
		t.Fatal("expected compilation error for invalid schema")
	}
}
