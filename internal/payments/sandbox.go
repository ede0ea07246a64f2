package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/rs/xid"
)

const sandboxSignatureHeader = "X-Sandbox-Signature"

// Sandbox is a development provider: every checkout is reported paid. It is
// registered only when the sandbox toggle is on.
type Sandbox struct {
	secret []byte

	mu     sync.Mutex
	status map[string]Status
}

func NewSandbox(secret string) *Sandbox {
	return &Sandbox{secret: []byte(secret), status: make(map[string]Status)}
}

func (s *Sandbox) Name() string { return "sandbox" }

func (s *Sandbox) Create(_ context.Context, order Order) (Checkout, error) {
	ref := "sb_" + xid.New().String()
	s.mu.Lock()
	s.status[ref] = StatusPaid
	s.mu.Unlock()

	u, err := url.Parse(order.SuccessURL)
	if err != nil {
		return Checkout{}, fmt.Errorf("sandbox: success url: %w", err)
	}
	q := u.Query()
	q.Set("sandbox_ref", ref)
	u.RawQuery = q.Encode()
	return Checkout{ProviderRef: ref, URL: u.String()}, nil
}

// Confirm reports paid for any reference this process created and for
// references it has not seen, so a restarted dev server still settles.
func (s *Sandbox) Confirm(_ context.Context, providerRef string) (Confirmation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.status[providerRef]; ok {
		return Confirmation{Status: st}, nil
	}
	return Confirmation{Status: StatusPaid}, nil
}

// Fail marks a reference as failed.
func (s *Sandbox) Fail(providerRef string) {
	s.mu.Lock()
	s.status[providerRef] = StatusFailed
	s.mu.Unlock()
}

func (s *Sandbox) ParseWebhook(body []byte, header http.Header) (WebhookEvent, error) {
	sig := header.Get(sandboxSignatureHeader)
	if sig == "" || !hmac.Equal([]byte(sig), []byte(SandboxSignature(string(s.secret), body))) {
		return WebhookEvent{}, ErrInvalidSignature
	}
	var payload struct {
		Ref    string `json:"ref"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return WebhookEvent{}, fmt.Errorf("sandbox: decode webhook: %w", err)
	}
	st := StatusPending
	switch payload.Status {
	case "paid":
		st = StatusPaid
	case "failed":
		st = StatusFailed
	}
	return WebhookEvent{ProviderRef: payload.Ref, Status: st}, nil
}

// SandboxSignature is hex(hmac-sha256(secret, body)).
func SandboxSignature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
