package delivery_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stocklane/dispatch/delivery"
	"github.com/stocklane/dispatch/store/memory"
	"github.com/stocklane/dispatch/webhook"
)

func setupEngine(t *testing.T, handler http.Handler) (*memory.Store, *delivery.Engine, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)

	store := memory.New()
	cfg := delivery.EngineConfig{
		Concurrency:    2,
		PollInterval:   50 * time.Millisecond,
		BatchSize:      10,
		RequestTimeout: 5 * time.Second,
		RetrySchedule:  []time.Duration{10 * time.Millisecond, 20 * time.Millisecond},
	}

	engine := delivery.NewEngine(store, cfg, nil)
	return store, engine, srv
}

func createTestData(t *testing.T, store *memory.Store, url string) (*webhook.Webhook, *delivery.Delivery) {
	t.Helper()
	ctx := context.Background()

	wh := newTestWebhook(url)
	if err := store.CreateWebhook(ctx, wh); err != nil {
		t.Fatal(err)
	}

	del := newTestDelivery(wh.ID, `{"event":"order.created","data":{"order_id":1}}`)
	del.MaxAttempts = 3
	del.NextAttemptAt = time.Now().UTC()
	if err := store.Enqueue(ctx, del); err != nil {
		t.Fatal(err)
	}

	return wh, del
}

func waitForState(t *testing.T, store *memory.Store, del *delivery.Delivery, want delivery.State) *delivery.Delivery {
	t.Helper()
	ctx := context.Background()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatalf("timeout waiting for state %q", want)
		default:
		}

		got, err := store.GetDelivery(ctx, del.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.State == want {
			return got
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestEngineDeliversSuccessfully(t *testing.T) {
	var delivered atomic.Int32

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		delivered.Add(1)
		w.WriteHeader(http.StatusOK)
	})

	store, engine, srv := setupEngine(t, handler)
	defer srv.Close()

	_, del := createTestData(t, store, srv.URL)

	ctx := context.Background()
	engine.Start(ctx)
	got := waitForState(t, store, del, delivery.StateSuccess)
	engine.Stop(ctx)

	if delivered.Load() != 1 {
		t.Fatalf("expected 1 delivery, got %d", delivered.Load())
	}
	if got.Attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", got.Attempts)
	}
	if got.CompletedAt == nil {
		t.Fatal("expected completed_at to be set")
	}
	if got.LastStatusCode != 200 {
		t.Fatalf("expected last status 200, got %d", got.LastStatusCode)
	}
}

func TestEngineRetriesAndSucceeds(t *testing.T) {
	var attempts atomic.Int32

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	store, engine, srv := setupEngine(t, handler)
	defer srv.Close()

	_, del := createTestData(t, store, srv.URL)

	ctx := context.Background()
	engine.Start(ctx)
	got := waitForState(t, store, del, delivery.StateSuccess)
	engine.Stop(ctx)

	if attempts.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts.Load())
	}
	if got.Attempts != 3 {
		t.Fatalf("expected attempt count 3, got %d", got.Attempts)
	}
}

func TestEngineExhaustsRetriesAndFails(t *testing.T) {
	var attempts atomic.Int32

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	store, engine, srv := setupEngine(t, handler)
	defer srv.Close()

	_, del := createTestData(t, store, srv.URL)

	ctx := context.Background()
	engine.Start(ctx)
	got := waitForState(t, store, del, delivery.StateFailed)
	engine.Stop(ctx)

	if got.Attempts != del.MaxAttempts {
		t.Fatalf("expected %d attempts, got %d", del.MaxAttempts, got.Attempts)
	}
	if got.CompletedAt == nil {
		t.Fatal("expected completed_at to be set")
	}
	if got.LastStatusCode != 500 {
		t.Fatalf("expected last status 500, got %d", got.LastStatusCode)
	}

	// A failed delivery is terminal: give the poll loop another cycle and
	// verify no further attempts happen.
	before := attempts.Load()
	time.Sleep(200 * time.Millisecond)
	if attempts.Load() != before {
		t.Fatalf("terminal delivery was retried: %d -> %d", before, attempts.Load())
	}
}

func TestEngineDeactivatedWebhookShortCircuits(t *testing.T) {
	var delivered atomic.Int32

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		delivered.Add(1)
		w.WriteHeader(http.StatusOK)
	})

	store, engine, srv := setupEngine(t, handler)
	defer srv.Close()

	wh, del := createTestData(t, store, srv.URL)

	ctx := context.Background()
	if err := store.SetActive(ctx, wh.ID, false); err != nil {
		t.Fatal(err)
	}

	engine.Start(ctx)
	got := waitForState(t, store, del, delivery.StateFailed)
	engine.Stop(ctx)

	if delivered.Load() != 0 {
		t.Fatalf("expected no HTTP attempts, got %d", delivered.Load())
	}
	if got.Attempts != 0 {
		t.Fatalf("expected attempt counter untouched, got %d", got.Attempts)
	}
	if got.LastError != "webhook deactivated" {
		t.Fatalf("unexpected last error: %q", got.LastError)
	}
	if got.CompletedAt == nil {
		t.Fatal("expected completed_at to be set")
	}
}

func TestEngineStopBoundedByShutdownTimeout(t *testing.T) {
	release := make(chan struct{})
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	})

	srv := httptest.NewServer(handler)
	defer srv.Close()
	defer close(release)

	store := memory.New()
	cfg := delivery.EngineConfig{
		Concurrency:     2,
		PollInterval:    50 * time.Millisecond,
		BatchSize:       10,
		RequestTimeout:  30 * time.Second,
		ShutdownTimeout: 100 * time.Millisecond,
		RetrySchedule:   []time.Duration{10 * time.Millisecond},
	}
	engine := delivery.NewEngine(store, cfg, nil)

	ctx := context.Background()
	createTestData(t, store, srv.URL)

	engine.Start(ctx)
	time.Sleep(200 * time.Millisecond) // let the worker pick up the stalled delivery

	start := time.Now()
	engine.Stop(ctx)
	elapsed := time.Since(start)

	if elapsed > 2*time.Second {
		t.Fatalf("Stop blocked for %v despite 100ms shutdown timeout", elapsed)
	}
}

func TestEngineGracefulShutdown(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	store, engine, srv := setupEngine(t, handler)
	defer srv.Close()

	ctx := context.Background()

	for range 5 {
		createTestData(t, store, srv.URL)
	}

	engine.Start(ctx)
	time.Sleep(200 * time.Millisecond)
	engine.Stop(ctx)

	pending, err := store.CountPending(ctx)
	if err != nil {
		t.Fatal(err)
	}
	t.Logf("pending after shutdown: %d", pending)
}
