package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WebhookNotifier posts notifications as JSON to an HTTP endpoint
type WebhookNotifier struct {
	url    string
	client *http.Client
	types  map[NotificationType]bool
}

// NewWebhookNotifier creates a webhook notifier. When types is non-empty only
// those notification types are posted.
func NewWebhookNotifier(url string, timeout time.Duration, types ...NotificationType) *WebhookNotifier {
	filter := make(map[NotificationType]bool, len(types))
	for _, t := range types {
		filter[t] = true
	}
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
		types:  filter,
	}
}

// Notify posts the notification
func (w *WebhookNotifier) Notify(notification Notification) error {
	if len(w.types) > 0 && !w.types[notification.Type] {
		return nil
	}

	body, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Close is a no-op for webhooks
func (w *WebhookNotifier) Close() error {
	return nil
}
