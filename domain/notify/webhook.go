package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Webhook payload formats.
const (
	FormatSlack   = "slack"
	FormatDiscord = "discord"
)

// WebhookSender posts to a Slack- or Discord-style incoming webhook.
type WebhookSender struct {
	url    string
	format string
	client *http.Client
}

func NewWebhookSender(url, format string, client *http.Client) *WebhookSender {
	if client == nil {
		client = http.DefaultClient
	}
	if format != FormatDiscord {
		format = FormatSlack
	}
	return &WebhookSender{url: url, format: format, client: client}
}

func (w *WebhookSender) Name() string { return "webhook:" + w.format }

func (w *WebhookSender) payload(sev Severity, message string) map[string]string {
	text := sev.marker() + " " + message
	if w.format == FormatDiscord {
		return map[string]string{"content": text}
	}
	return map[string]string{"text": text}
}

func (w *WebhookSender) Send(ctx context.Context, sev Severity, message string) error {
	body, err := json.Marshal(w.payload(sev, message))
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
