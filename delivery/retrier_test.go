package delivery_test

import (
	"testing"
	"time"

	"github.com/stocklane/dispatch/delivery"
)

func TestRetrierDecide(t *testing.T) {
	schedule := []time.Duration{5 * time.Second, 30 * time.Second, 2 * time.Minute}
	retrier := delivery.NewRetrier(schedule)

	tests := []struct {
		name     string
		result   delivery.Result
		delivery *delivery.Delivery
		want     delivery.Decision
	}{
		{
			name:     "200 OK succeeds",
			result:   delivery.Result{StatusCode: 200},
			delivery: &delivery.Delivery{Attempts: 1, MaxAttempts: 5},
			want:     delivery.Succeed,
		},
		{
			name:     "204 No Content succeeds",
			result:   delivery.Result{StatusCode: 204},
			delivery: &delivery.Delivery{Attempts: 1, MaxAttempts: 5},
			want:     delivery.Succeed,
		},
		{
			name:     "299 succeeds",
			result:   delivery.Result{StatusCode: 299},
			delivery: &delivery.Delivery{Attempts: 1, MaxAttempts: 5},
			want:     delivery.Succeed,
		},
		{
			name:     "200 on final attempt still succeeds",
			result:   delivery.Result{StatusCode: 200},
			delivery: &delivery.Delivery{Attempts: 5, MaxAttempts: 5},
			want:     delivery.Succeed,
		},
		{
			name:     "400 Bad Request retries within limits",
			result:   delivery.Result{StatusCode: 400},
			delivery: &delivery.Delivery{Attempts: 1, MaxAttempts: 5},
			want:     delivery.Retry,
		},
		{
			name:     "404 Not Found retries within limits",
			result:   delivery.Result{StatusCode: 404},
			delivery: &delivery.Delivery{Attempts: 2, MaxAttempts: 5},
			want:     delivery.Retry,
		},
		{
			name:     "429 Too Many Requests retries within limits",
			result:   delivery.Result{StatusCode: 429},
			delivery: &delivery.Delivery{Attempts: 1, MaxAttempts: 5},
			want:     delivery.Retry,
		},
		{
			name:     "500 Internal Server Error retries within limits",
			result:   delivery.Result{StatusCode: 500},
			delivery: &delivery.Delivery{Attempts: 3, MaxAttempts: 5},
			want:     delivery.Retry,
		},
		{
			name:     "transport error retries within limits",
			result:   delivery.Result{StatusCode: 0, Error: "connection refused"},
			delivery: &delivery.Delivery{Attempts: 1, MaxAttempts: 5},
			want:     delivery.Retry,
		},
		{
			name:     "500 fails when attempts exhausted",
			result:   delivery.Result{StatusCode: 500},
			delivery: &delivery.Delivery{Attempts: 5, MaxAttempts: 5},
			want:     delivery.Fail,
		},
		{
			name:     "404 fails when attempts exhausted",
			result:   delivery.Result{StatusCode: 404},
			delivery: &delivery.Delivery{Attempts: 5, MaxAttempts: 5},
			want:     delivery.Fail,
		},
		{
			name:     "transport error fails when attempts exhausted",
			result:   delivery.Result{StatusCode: 0, Error: "context deadline exceeded"},
			delivery: &delivery.Delivery{Attempts: 5, MaxAttempts: 5},
			want:     delivery.Fail,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := retrier.Decide(tt.result, tt.delivery)
			if got != tt.want {
				t.Errorf("Decide() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRetrierBackoff(t *testing.T) {
	schedule := []time.Duration{5 * time.Second, 30 * time.Second, 2 * time.Minute}
	retrier := delivery.NewRetrier(schedule)

	tests := []struct {
		name     string
		attempts int
		want     time.Duration
	}{
		{"attempt 1", 1, 5 * time.Second},
		{"attempt 2", 2, 30 * time.Second},
		{"attempt 3", 3, 2 * time.Minute},
		{"attempt 4 capped at last entry", 4, 2 * time.Minute},
		{"attempt 10 capped at last entry", 10, 2 * time.Minute},
		{"attempt 0 clamps to first entry", 0, 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retrier.Backoff(tt.attempts); got != tt.want {
				t.Errorf("Backoff(%d) = %v, want %v", tt.attempts, got, tt.want)
			}
		})
	}
}

func TestRetrierEmptySchedule(t *testing.T) {
	retrier := delivery.NewRetrier(nil)

	for _, attempts := range []int{0, 1, 5} {
		if got := retrier.Backoff(attempts); got != 0 {
			t.Errorf("Backoff(%d) = %v, want 0 for empty schedule", attempts, got)
		}
	}

	before := time.Now().UTC()
	next := retrier.ComputeNextAttempt(1)
	if next.Before(before.Add(-time.Millisecond)) {
		t.Errorf("ComputeNextAttempt(1) = %v, expected no earlier than %v", next, before)
	}
}

func TestRetrierBackoffNonDecreasing(t *testing.T) {
	retrier := delivery.NewRetrier([]time.Duration{
		5 * time.Second, 30 * time.Second, 2 * time.Minute, 15 * time.Minute, 2 * time.Hour,
	})

	prev := time.Duration(0)
	for attempts := 1; attempts <= 12; attempts++ {
		b := retrier.Backoff(attempts)
		if b < prev {
			t.Errorf("Backoff(%d) = %v, decreased from %v", attempts, b, prev)
		}
		prev = b
	}
}

func TestRetrierComputeNextAttempt(t *testing.T) {
	schedule := []time.Duration{5 * time.Second, 30 * time.Second}
	retrier := delivery.NewRetrier(schedule)

	before := time.Now().UTC()
	next := retrier.ComputeNextAttempt(2)
	after := time.Now().UTC()

	expectedMin := before.Add(30 * time.Second)
	expectedMax := after.Add(30 * time.Second)

	if next.Before(expectedMin.Add(-time.Millisecond)) || next.After(expectedMax.Add(time.Millisecond)) {
		t.Errorf("ComputeNextAttempt(2) = %v, expected between %v and %v", next, expectedMin, expectedMax)
	}
}
