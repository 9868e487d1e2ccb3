// Package notify delivers escalated error events to a webhook endpoint.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	domain "daybrief/internal/domain/faults"
)

// Webhook POSTs an event summary as JSON. Any transport or HTTP failure is
// reported as false; it never panics into the caller.
type Webhook struct {
	url    string
	token  string
	client *http.Client
}

func NewWebhook(url, token string) *Webhook {
	return &Webhook{
		url:    url,
		token:  token,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (w *Webhook) Notify(ctx context.Context, e domain.Event, recentCount int) bool {
	payload := map[string]any{
		"timestamp":          e.Timestamp,
		"component":          e.Component,
		"kind":               string(e.Kind),
		"severity":           string(e.Severity),
		"message":            e.Message,
		"context":            e.Context,
		"recent_error_count": recentCount,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	if w.token != "" {
		req.Header.Set("Authorization", "Bearer "+w.token)
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
