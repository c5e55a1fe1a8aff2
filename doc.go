// Package dispatch provides the webhook dispatch and delivery pipeline for a
// multi-tenant inventory/order management system.
//
// Dispatch is a library, not a service. The host application calls
// Dispatcher.Dispatch after its own persistence commits, and the background
// delivery engine takes it from there: at-least-once, HMAC-signed HTTP
// delivery with bounded exponential retries and per-delivery history.
//
// Key properties:
//   - Organization-scoped webhook subscriptions over a fixed event vocabulary
//   - HMAC-SHA256 signature over the exact payload bytes on every attempt
//   - Payload snapshot at dispatch time; deliveries are immutable once terminal
//   - Bounded exponential backoff, terminal failure after MaxAttempts
//   - Composable store pattern with Bun (Postgres/SQLite), Redis, and
//     in-memory backends
//   - Per-webhook rate limiting, Prometheus metrics, OpenTelemetry tracing
//
// Quick start:
//
//	dsp, err := dispatch.New(
//	    dispatch.WithStore(memory.New()),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	dsp.Start(ctx)
//
//	dsp.Webhooks().Subscribe(ctx, webhook.Input{
//	    OrgID:  42,
//	    URL:    "https://example.com/hooks",
//	    Events: []string{event.OrderCreated},
//	})
//
//	dsp.Dispatch(ctx, event.OrderCreated, map[string]any{"order_id": 42}, 42)
package dispatch
