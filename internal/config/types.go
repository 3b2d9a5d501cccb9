package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Config is the full bikewatch configuration.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
// Secrets (webhook URL, bot token) may be left empty in the file and
// supplied via environment variables instead; see Resolve().
type Config struct {
	// Bikes is the fixed list of tracked bike IDs.
	Bikes []int `json:"bikes"`

	History  HistoryConfig  `json:"history,omitempty"`
	State    StateConfig    `json:"state,omitempty"`
	Webhook  WebhookConfig  `json:"webhook,omitempty"`
	Telegram TelegramConfig `json:"telegram,omitempty"`
	Notify   NotifyConfig   `json:"notify,omitempty"`
	Logging  LoggingConfig  `json:"logging,omitempty"`
	Daemon   DaemonConfig   `json:"daemon,omitempty"`
}

// HistoryConfig controls the rental-history API client.
//
// Defaults (when fields are omitted/zero):
//   - base_url: "https://api.rideblink.net/api/v1/bike/history"
//   - timeout: "10s" (per attempt)
//   - attempts: 3
//   - retry_delay: "1s"
type HistoryConfig struct {
	BaseURL    string `json:"base_url,omitempty"`
	Timeout    string `json:"timeout,omitempty"`
	Attempts   int    `json:"attempts,omitempty"`
	RetryDelay string `json:"retry_delay,omitempty"`
}

// StateConfig selects the seen-identity store backend.
//
// Driver values:
//   - "file" (default): JSON array of identity strings
//   - "sqlite": SQLite database file
type StateConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// WebhookConfig is the Discord-compatible webhook channel.
// URL is secret; if empty it falls back to $DISCORD_WEBHOOK_URL.
type WebhookConfig struct {
	URL     string `json:"url,omitempty"`
	Timeout string `json:"timeout,omitempty"` // default "10s"
}

// TelegramConfig is the optional Telegram channel (outbound only).
// Token is secret; if empty it falls back to $TELEGRAM_BOT_TOKEN.
type TelegramConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Token   string `json:"token,omitempty"`
	ChatID  int64  `json:"chat_id,omitempty"`
}

// NotifyConfig controls notification dispatch.
// Pace is the minimum delay between messages (default "1s").
type NotifyConfig struct {
	Pace string `json:"pace,omitempty"`
}

type LoggingConfig struct {
	Level   string            `json:"level,omitempty"`
	Console bool              `json:"console,omitempty"`
	File    LoggingFileConfig `json:"file,omitempty"`
}

type LoggingFileConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
}

// DaemonConfig enables the in-process loop for deployments that have no
// external scheduler. Interval defaults to "60s".
type DaemonConfig struct {
	Enabled  bool   `json:"enabled,omitempty"`
	Interval string `json:"interval,omitempty"`
	Watchdog bool   `json:"watchdog,omitempty"`
}

const (
	envWebhookURL    = "DISCORD_WEBHOOK_URL"
	envTelegramToken = "TELEGRAM_BOT_TOKEN"
)

// Resolve fills secrets from the environment when the file left them empty.
func (c *Config) Resolve() {
	if strings.TrimSpace(c.Webhook.URL) == "" {
		c.Webhook.URL = strings.TrimSpace(os.Getenv(envWebhookURL))
	}
	if strings.TrimSpace(c.Telegram.Token) == "" {
		c.Telegram.Token = strings.TrimSpace(os.Getenv(envTelegramToken))
	}
}

// Validate checks the parts of the config that cannot be defaulted away.
func (c *Config) Validate() error {
	if len(c.Bikes) == 0 {
		return errors.New("bikes: at least one tracked bike ID is required")
	}
	for i, id := range c.Bikes {
		if id <= 0 {
			return fmt.Errorf("bikes[%d]: invalid bike ID %d", i, id)
		}
	}

	hasWebhook := strings.TrimSpace(c.Webhook.URL) != ""
	hasTelegram := c.Telegram.Enabled
	if !hasWebhook && !hasTelegram {
		return errors.New("no notification channel configured (set webhook.url, $" + envWebhookURL + ", or telegram.enabled)")
	}
	if hasTelegram {
		if strings.TrimSpace(c.Telegram.Token) == "" {
			return errors.New("telegram.enabled but no token (set telegram.token or $" + envTelegramToken + ")")
		}
		if c.Telegram.ChatID == 0 {
			return errors.New("telegram.enabled but telegram.chat_id is not set")
		}
	}

	switch strings.ToLower(strings.TrimSpace(c.State.Driver)) {
	case "", "file", "sqlite", "sqlite3":
	default:
		return fmt.Errorf("state.driver: unknown driver %q", c.State.Driver)
	}

	durations := []struct{ path, raw string }{
		{"history.timeout", c.History.Timeout},
		{"history.retry_delay", c.History.RetryDelay},
		{"state.busy_timeout", c.State.BusyTimeout},
		{"webhook.timeout", c.Webhook.Timeout},
		{"notify.pace", c.Notify.Pace},
		{"daemon.interval", c.Daemon.Interval},
	}
	for _, d := range durations {
		if _, err := ParseDurationField(d.path, d.raw); err != nil {
			return err
		}
	}
	return nil
}
