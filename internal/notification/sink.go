package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Sink delivers a single event over one channel.
type Sink interface {
	Name() string
	Send(ctx context.Context, e Event) error
}

// LogSink writes events to the process log. Always configured: it doubles as
// the delivery record when no external channel is set up.
type LogSink struct{}

// Name implements Sink.
func (LogSink) Name() string { return "log" }

// Send implements Sink.
func (LogSink) Send(_ context.Context, e Event) error {
	log.Printf("notify deal=%s kind=%s recipients=%v: %s", e.DealID, e.Kind, e.Recipients, e.Message)
	return nil
}

// WebhookSink POSTs events as JSON to a configured endpoint, retrying
// transient failures with exponential backoff. The retry budget is bounded so
// a dead endpoint cannot stall the dispatcher indefinitely.
type WebhookSink struct {
	url        string
	client     *http.Client
	maxElapsed time.Duration
}

// NewWebhookSink creates a webhook sink for url.
func NewWebhookSink(url string) *WebhookSink {
	return &WebhookSink{
		url:        url,
		client:     &http.Client{Timeout: 10 * time.Second},
		maxElapsed: 30 * time.Second,
	}
}

// Name implements Sink.
func (s *WebhookSink) Name() string { return "webhook" }

// Send implements Sink.
func (s *WebhookSink) Send(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = s.maxElapsed

	return backoff.Retry(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)

		switch {
		case resp.StatusCode < 300:
			return nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return fmt.Errorf("webhook returned %d", resp.StatusCode)
		default:
			// Client errors won't heal on retry.
			return backoff.Permanent(fmt.Errorf("webhook returned %d", resp.StatusCode))
		}
	}, backoff.WithContext(policy, ctx))
}
