package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	logx "bikewatch/pkg/logx"
)

// Webhook posts messages as {"content": <text>} to a Discord-compatible
// webhook URL. The URL is a secret and is only ever logged truncated.
type Webhook struct {
	url  string
	http *http.Client
	log  logx.Logger
}

type webhookPayload struct {
	Content string `json:"content"`
}

const webhookUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

func NewWebhook(url string, timeout time.Duration, log logx.Logger) (*Webhook, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("webhook URL is empty")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	log.Info("webhook channel configured", logx.String("url_prefix", MaskURL(url)))
	return &Webhook{
		url:  url,
		http: &http.Client{Timeout: timeout},
		log:  log,
	}, nil
}

func (w *Webhook) Name() string { return "webhook" }

func (w *Webhook) Send(ctx context.Context, text string) error {
	body, err := json.Marshal(webhookPayload{Content: text})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", webhookUserAgent)

	resp, err := w.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.CopyN(io.Discard, resp.Body, 4096)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return nil
}

// MaskURL truncates a secret URL for diagnostics.
func MaskURL(u string) string {
	if len(u) > 30 {
		return u[:30] + "..."
	}
	return "<too short>"
}
