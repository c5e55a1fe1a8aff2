package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestAllow_Unlimited(t *testing.T) {
	l := New()
	for i := 0; i < 100; i++ {
		if !l.Allow("whk-1", 0) {
			t.Fatal("Allow(0) should always return true")
		}
	}
}

func TestAllow_RateLimited(t *testing.T) {
	l := New()
	whID := "whk-limited"
	perSecond := 2

	// Bucket starts full.
	if !l.Allow(whID, perSecond) {
		t.Fatal("first call should be allowed")
	}
	if !l.Allow(whID, perSecond) {
		t.Fatal("second call should be allowed")
	}

	if l.Allow(whID, perSecond) {
		t.Fatal("third call should be denied")
	}
}

func TestAllow_Refills(t *testing.T) {
	l := New()
	whID := "whk-refill"
	perSecond := 10

	for i := 0; i < 10; i++ {
		l.Allow(whID, perSecond)
	}
	if l.Allow(whID, perSecond) {
		t.Fatal("should be denied after exhausting bucket")
	}

	time.Sleep(200 * time.Millisecond)

	if !l.Allow(whID, perSecond) {
		t.Fatal("should be allowed after refill")
	}
}

func TestAllow_RateChangeReplacesLimiter(t *testing.T) {
	l := New()
	whID := "whk-reconfigured"

	// Exhaust at rate 1.
	l.Allow(whID, 1)
	if l.Allow(whID, 1) {
		t.Fatal("should be denied at rate 1")
	}

	// A changed configured rate gets a fresh bucket.
	if !l.Allow(whID, 5) {
		t.Fatal("should be allowed after rate change")
	}
}

func TestWait_Unlimited(t *testing.T) {
	l := New()
	if err := l.Wait(context.Background(), "whk-1", 0); err != nil {
		t.Fatalf("Wait(0) should return nil, got %v", err)
	}
}

func TestWait_ContextCancelled(t *testing.T) {
	l := New()
	whID := "whk-wait"

	l.Allow(whID, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := l.Wait(ctx, whID, 1); err == nil {
		t.Fatal("Wait should return error when context is cancelled")
	}
}

func TestWait_EventuallyAllowed(t *testing.T) {
	l := New()
	whID := "whk-eventual"
	perSecond := 20

	for i := 0; i < 20; i++ {
		l.Allow(whID, perSecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	start := time.Now()
	if err := l.Wait(ctx, whID, perSecond); err != nil {
		t.Fatalf("Wait should succeed, got %v", err)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Fatal("Wait should have blocked for at least some time")
	}
}

func TestReset(t *testing.T) {
	l := New()
	whID := "whk-reset"

	l.Allow(whID, 1)
	if l.Allow(whID, 1) {
		t.Fatal("should be denied")
	}

	l.Reset(whID)

	if !l.Allow(whID, 1) {
		t.Fatal("should be allowed after reset")
	}
}

func TestConcurrentAccess(t *testing.T) {
	l := New()
	whID := "whk-concurrent"
	perSecond := 100

	var wg sync.WaitGroup
	allowed := make(chan bool, 200)

	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allowed <- l.Allow(whID, perSecond)
		}()
	}

	wg.Wait()
	close(allowed)

	trueCount := 0
	for v := range allowed {
		if v {
			trueCount++
		}
	}

	// The bucket starts with 100 tokens.
	if trueCount > 100 {
		t.Fatalf("expected at most 100 allowed, got %d", trueCount)
	}
	if trueCount < 90 {
		t.Fatalf("expected at least 90 allowed (timing), got %d", trueCount)
	}
}
