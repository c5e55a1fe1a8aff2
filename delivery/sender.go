package delivery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/stocklane/dispatch/signature"
	"github.com/stocklane/dispatch/webhook"
)

const maxResponseBody = 2000 // cap on stored response body excerpt

// Sender performs HTTP webhook delivery.
type Sender struct {
	client *http.Client
}

// NewSender creates a sender with the given HTTP timeout.
func NewSender(timeout time.Duration) *Sender {
	return &Sender{
		client: &http.Client{Timeout: timeout},
	}
}

// Send posts the delivery's stored payload bytes to the webhook URL and
// returns the result. The payload is sent verbatim, never re-derived, so the
// signature stays valid across attempts.
func (s *Sender) Send(ctx context.Context, wh *webhook.Webhook, d *Delivery) Result {
	body := []byte(d.Payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wh.URL, bytes.NewReader(body))
	if err != nil {
		return Result{Error: fmt.Sprintf("create request: %v", err)}
	}

	// Standard headers.
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "stocklane-dispatch/1.0")
	req.Header.Set("X-Webhook-ID", d.MessageID.String())
	req.Header.Set("X-Webhook-Event", d.Event)

	// HMAC-SHA256 over the raw body, hex-encoded.
	req.Header.Set("X-Webhook-Signature", signature.Sign(body, wh.Secret))

	// Custom webhook headers.
	for k, v := range wh.Headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start).Milliseconds()

	if err != nil {
		return Result{
			Error:     err.Error(),
			LatencyMs: int(latency),
		}
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if readErr != nil {
		return Result{
			StatusCode: resp.StatusCode,
			Error:      fmt.Sprintf("read response: %v", readErr),
			LatencyMs:  int(latency),
		}
	}

	return Result{
		StatusCode: resp.StatusCode,
		Response:   string(respBody),
		LatencyMs:  int(latency),
	}
}
