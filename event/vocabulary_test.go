package event_test

import (
	"strings"
	"testing"

	"github.com/stocklane/dispatch/event"
)

func TestKnown(t *testing.T) {
	known := []string{
		event.ProductCreated,
		event.ProductLowStock,
		event.OrderCreated,
		event.OrderStatusChanged,
		event.StockAdjusted,
		event.PurchaseOrderCancelled,
	}
	for _, name := range known {
		if !event.Known(name) {
			t.Errorf("Known(%q) = false, want true", name)
		}
	}

	unknown := []string{"", "order", "order.shipped", "ORDER.CREATED", "custom.thing"}
	for _, name := range unknown {
		if event.Known(name) {
			t.Errorf("Known(%q) = true, want false", name)
		}
	}
}

func TestLookup(t *testing.T) {
	def, ok := event.Lookup(event.StockAdjusted)
	if !ok {
		t.Fatal("expected stock.adjusted to be defined")
	}
	if def.Name != event.StockAdjusted {
		t.Fatalf("unexpected name %q", def.Name)
	}
	if def.Group != "stock" {
		t.Fatalf("unexpected group %q", def.Group)
	}
	if def.Description == "" {
		t.Fatal("expected a description")
	}

	if _, ok := event.Lookup("no.such.event"); ok {
		t.Fatal("expected lookup miss")
	}
}

func TestNames(t *testing.T) {
	names := event.Names()
	if len(names) != 14 {
		t.Fatalf("expected 14 event names, got %d", len(names))
	}
	for _, name := range names {
		if !strings.Contains(name, ".") {
			t.Errorf("event name %q is not resource.action", name)
		}
		if !event.Known(name) {
			t.Errorf("Names() returned unknown name %q", name)
		}
	}
}
