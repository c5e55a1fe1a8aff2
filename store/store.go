// Package store defines the composite Store interface for all dispatch
// persistence.
//
// Each subsystem defines its own store interface and the aggregate Store
// composes them, so backends implement one type and subsystems depend only
// on the slice they use.
package store

import (
	"context"

	"github.com/stocklane/dispatch/delivery"
	"github.com/stocklane/dispatch/webhook"
)

// Store is the aggregate persistence interface.
type Store interface {
	webhook.Store
	delivery.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks datastore connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
