// Package history fetches per-bike rental history from the rental service.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	logx "bikewatch/pkg/logx"
)

type Config struct {
	BaseURL    string
	Timeout    time.Duration // per attempt
	Attempts   int
	RetryDelay time.Duration
}

const (
	defaultTimeout    = 10 * time.Second
	defaultAttempts   = 3
	defaultRetryDelay = time.Second

	// The upstream API rejects requests without a browser-looking UA.
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
)

// Client fetches rental history over HTTP with a bounded retry budget.
//
// Fetch returns (records, nil) on success, where records may legitimately be
// empty, and (nil, err) only after every attempt failed. Callers can therefore
// tell "no history" apart from "bike unavailable this run".
type Client struct {
	cfg  Config
	http *http.Client
	log  logx.Logger
}

func NewClient(cfg Config, log logx.Logger) *Client {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.rideblink.net/api/v1/bike/history"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = defaultAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log,
	}
}

func (c *Client) Fetch(ctx context.Context, bikeID int64) ([]Record, error) {
	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/" + strconv.FormatInt(bikeID, 10)

	var lastErr error
	for attempt := 1; attempt <= c.cfg.Attempts; attempt++ {
		records, err := c.fetchOnce(ctx, url)
		if err == nil {
			return records, nil
		}
		lastErr = err
		c.log.Warn("history fetch attempt failed",
			logx.Int64("bike_id", bikeID),
			logx.Int("attempt", attempt),
			logx.Int("attempts", c.cfg.Attempts),
			logx.Err(err))

		if attempt == c.cfg.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.cfg.RetryDelay):
		}
	}
	return nil, fmt.Errorf("bike %d: all %d attempts failed: %w", bikeID, c.cfg.Attempts, lastErr)
}

func (c *Client) fetchOnce(ctx context.Context, url string) ([]Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little so the connection can be reused.
		_, _ = io.CopyN(io.Discard, resp.Body, 4096)
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	var records []Record
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return records, nil
}
