package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/watchcoin/backend/internal/auth"
)

func TestKeyRateLimiter(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := NewKeyRateLimiter(2, time.Minute, 2, time.Minute)
	l.WithNowFunc(func() time.Time { return now })

	if !l.Allow("a") || !l.Allow("a") {
		t.Fatal("burst of 2 should be allowed")
	}
	if l.Allow("a") {
		t.Fatal("third request within the window should be refused")
	}
	if !l.Allow("b") {
		t.Fatal("keys are limited independently")
	}

	now = now.Add(30 * time.Second)
	if !l.Allow("a") {
		t.Fatal("one token refills every 30s")
	}
}

func TestKeyRateLimiterForgetsIdleKeys(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := NewKeyRateLimiter(1, time.Hour, 1, time.Minute)
	l.WithNowFunc(func() time.Time { return now })

	l.Allow("a")
	now = now.Add(2 * time.Minute)
	l.Allow("b")
	if _, ok := l.visitors["a"]; ok {
		t.Fatal("idle visitor should be collected")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	l := NewKeyRateLimiter(1, time.Hour, 1, time.Hour)
	h := RateLimit(l, "auth")(okHandler)

	send := func(remote string, p *auth.Principal) int {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.RemoteAddr = remote
		if p != nil {
			req = req.WithContext(WithPrincipal(req.Context(), *p))
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send("10.0.0.1:5000", nil); code != http.StatusOK {
		t.Fatalf("first request: got %d", code)
	}
	if code := send("10.0.0.1:6000", nil); code != http.StatusTooManyRequests {
		t.Fatalf("same ip, new port: expected 429, got %d", code)
	}
	if code := send("10.0.0.2:5000", nil); code != http.StatusOK {
		t.Fatalf("other ip: got %d", code)
	}

	p := &auth.Principal{UserID: uuid.New()}
	if code := send("10.0.0.1:5000", p); code != http.StatusOK {
		t.Fatalf("authenticated callers are keyed by user: got %d", code)
	}
}
