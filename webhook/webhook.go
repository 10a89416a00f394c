package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/use-agent/urlhtml/config"
	"github.com/use-agent/urlhtml/models"
)

// Event is the payload delivered after a batch finishes. The summary is
// flattened into the event so receivers can route on the counts without
// unwrapping a nested report; per-URL HTML bodies are never shipped.
type Event struct {
	Type      string         `json:"type"` // "batch.completed"
	BatchID   string         `json:"batch_id"`
	Timestamp int64          `json:"timestamp"`
	Total     int            `json:"total"`
	Success   int            `json:"success"`
	Failed    int            `json:"failed"`
	ByMethod  map[string]int `json:"by_method"`
	TotalTime float64        `json:"total_time"`
}

const (
	maxAttempts    = 4
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
	attemptTimeout = 10 * time.Second
)

// Notifier posts batch lifecycle events to one configured endpoint.
// A nil Notifier is valid and drops every event, so callers never need to
// branch on whether webhooks are configured.
type Notifier struct {
	url     string
	secret  string
	client  *http.Client
	backoff time.Duration
}

// NewNotifier creates a Notifier from config. Returns nil when no URL is
// configured.
func NewNotifier(cfg config.WebhookConfig) *Notifier {
	if cfg.URL == "" {
		return nil
	}
	return &Notifier{
		url:     cfg.URL,
		secret:  cfg.Secret,
		client:  &http.Client{Timeout: attemptTimeout},
		backoff: initialBackoff,
	}
}

// BatchCompleted fires a batch.completed event in the background. The batch
// id doubles as the delivery id, so receivers can drop duplicates produced
// by retried attempts.
func (n *Notifier) BatchCompleted(batchID string, summary models.BatchSummary) {
	if n == nil {
		return
	}
	event := &Event{
		Type:      "batch.completed",
		BatchID:   batchID,
		Timestamp: time.Now().Unix(),
		Total:     summary.Total,
		Success:   summary.Success,
		Failed:    summary.Failed,
		ByMethod:  summary.ByMethod,
		TotalTime: summary.TotalTime,
	}
	go n.deliverWithRetry(event)
}

// deliverWithRetry posts the event, backing off exponentially (x3, capped)
// between failed attempts.
func (n *Notifier) deliverWithRetry(event *Event) {
	body, err := json.Marshal(event)
	if err != nil {
		slog.Error("webhook: marshal event", "batch_id", event.BatchID, "error", err)
		return
	}

	backoff := n.backoff
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := n.post(body, event)
		if err == nil {
			slog.Info("webhook delivered",
				"url", n.url,
				"event", event.Type,
				"batch_id", event.BatchID,
				"attempt", attempt,
			)
			return
		}
		slog.Warn("webhook delivery failed",
			"url", n.url,
			"event", event.Type,
			"batch_id", event.BatchID,
			"attempt", attempt,
			"error", err,
		)

		if attempt == maxAttempts {
			break
		}
		time.Sleep(backoff)
		backoff *= 3
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}

	slog.Error("webhook delivery abandoned",
		"url", n.url,
		"event", event.Type,
		"batch_id", event.BatchID,
		"attempts", maxAttempts,
	)
}

// post performs one delivery attempt. The body is signed with HMAC-SHA256
// when a secret is configured (header: X-Urlhtml-Signature: sha256=<hex>).
func (n *Notifier) post(body []byte, event *Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), attemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Urlhtml-Webhook/1.0")
	req.Header.Set("X-Urlhtml-Event", event.Type)
	req.Header.Set("X-Urlhtml-Delivery", event.BatchID)

	if n.secret != "" {
		mac := hmac.New(sha256.New, []byte(n.secret))
		mac.Write(body)
		req.Header.Set("X-Urlhtml-Signature", "sha256="+hex.EncodeToString(mac.Sum(nil)))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: deliver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
