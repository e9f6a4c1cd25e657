package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// ChangeEvent is the webhook payload sent when a monitored URL changes.
type ChangeEvent struct {
	Event     string    `json:"event"`
	URL       string    `json:"url"`
	Namespace string    `json:"namespace"`
	OldHash   string    `json:"oldHash"`
	NewHash   string    `json:"newHash"`
	Timestamp time.Time `json:"timestamp"`
}

// notify delivers one best-effort POST. Zero retries; any retry/backoff
// belongs to an external delivery component.
func (m *Monitor) notify(ctx context.Context, l *Listener, oldHash, newHash string) {
	payload, err := json.Marshal(ChangeEvent{
		Event:     "url_changed",
		URL:       l.URL,
		Namespace: l.Namespace,
		OldHash:   oldHash,
		NewHash:   newHash,
		Timestamp: m.now().UTC(),
	})
	if err != nil {
		m.log.Warn().Err(err).Str("listener", l.ID).Msg("webhook payload encode failed")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		m.log.Warn().Err(err).Str("listener", l.ID).Msg("webhook request build failed")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		m.log.Warn().Err(err).Str("listener", l.ID).Str("webhook", l.WebhookURL).Msg("webhook delivery failed")
		return
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 300 {
		m.log.Warn().Int("status", resp.StatusCode).Str("listener", l.ID).Str("webhook", l.WebhookURL).Msg("webhook rejected")
	}
}
