// Package notify delivers outbox events to the notification collaborator.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/codenamekii/Sukamaju-run-2025-V2-sub000/internal/core"
	"github.com/codenamekii/Sukamaju-run-2025-V2-sub000/internal/logging"
)

// Delivery headers.
const (
	HeaderSignature = "X-Signature"
	HeaderEventID   = "X-Event-ID"
	HeaderEventType = "X-Event-Type"
)

// envelope is the JSON body posted for each event.
type envelope struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	AggregateCode string          `json:"aggregateCode"`
	CreatedAt     time.Time       `json:"createdAt"`
	Attempt       int             `json:"attempt"`
	Payload       json.RawMessage `json:"payload"`
}

// Webhook posts events as signed JSON to a URL. Any 2xx response counts as
// delivered; receivers deduplicate on X-Event-ID.
type Webhook struct {
	url    string
	secret string
	client *http.Client
}

var _ core.Notifier = (*Webhook)(nil)

// NewWebhook creates a notifier. An empty secret sends unsigned requests.
func NewWebhook(url, secret string, timeout time.Duration) *Webhook {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Webhook{url: url, secret: secret, client: &http.Client{Timeout: timeout}}
}

// Notify delivers ev once.
func (w *Webhook) Notify(ctx context.Context, ev core.OutboxEvent) error {
	body, err := json.Marshal(envelope{
		ID:            ev.ID,
		Type:          ev.Type,
		AggregateCode: ev.AggregateCode,
		CreatedAt:     ev.CreatedAt,
		Attempt:       ev.Attempts + 1,
		Payload:       json.RawMessage(ev.Payload),
	})
	if err != nil {
		return fmt.Errorf("encode event %s: %w", ev.ID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request to %s: %w", w.url, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEventID, ev.ID)
	req.Header.Set(HeaderEventType, ev.Type)
	if w.secret != "" {
		req.Header.Set(HeaderSignature, Sign(w.secret, body))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post event %s: %w", ev.ID, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	logging.FromContext(ctx).Debug("event delivered",
		"event_id", ev.ID,
		"type", ev.Type,
		"status", resp.StatusCode,
	)
	return nil
}
