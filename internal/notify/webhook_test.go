package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	logx "bikewatch/pkg/logx"
)

func TestWebhookSendPayload(t *testing.T) {
	t.Parallel()

	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content-type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	wh, err := NewWebhook(srv.URL, time.Second, logx.Nop())
	if err != nil {
		t.Fatalf("NewWebhook: %v", err)
	}
	if err := wh.Send(context.Background(), "🚲 test message"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got.Content != "🚲 test message" {
		t.Fatalf("content = %q", got.Content)
	}
}

func TestWebhookSendNon2xx(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	wh, err := NewWebhook(srv.URL, time.Second, logx.Nop())
	if err != nil {
		t.Fatalf("NewWebhook: %v", err)
	}
	if err := wh.Send(context.Background(), "x"); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}

func TestNewWebhookEmptyURL(t *testing.T) {
	t.Parallel()

	if _, err := NewWebhook("  ", time.Second, logx.Nop()); err == nil {
		t.Fatal("expected error for empty URL")
	}
}

func TestMaskURL(t *testing.T) {
	t.Parallel()

	long := "https://discord.com/api/webhooks/123456789/secret-token-value"
	masked := MaskURL(long)
	if strings.Contains(masked, "secret-token-value") {
		t.Fatalf("mask leaked the token: %q", masked)
	}
	if !strings.HasPrefix(masked, "https://discord.com/api/webho") {
		t.Fatalf("unexpected mask: %q", masked)
	}
	if got := MaskURL("short"); got != "<too short>" {
		t.Fatalf("MaskURL(short) = %q", got)
	}
}
