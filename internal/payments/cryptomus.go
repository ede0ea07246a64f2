package payments

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
)

const cryptomusBaseURL = "https://api.cryptomus.com"

// Cryptomus opens crypto invoices. Requests and webhooks are signed with
// md5(base64(body) + apiKey).
type Cryptomus struct {
	merchantID  string
	apiKey      string
	callbackURL string
	baseURL     string
	client      *http.Client
}

func NewCryptomus(merchantID, apiKey, callbackURL string) *Cryptomus {
	return &Cryptomus{
		merchantID:  merchantID,
		apiKey:      apiKey,
		callbackURL: callbackURL,
		baseURL:     cryptomusBaseURL,
		client:      &http.Client{Timeout: defaultHTTPTimeout},
	}
}

func (c *Cryptomus) Name() string { return "cryptomus" }

type cryptomusInvoice struct {
	UUID          string `json:"uuid"`
	OrderID       string `json:"order_id"`
	URL           string `json:"url"`
	Amount        string `json:"amount"`
	PaymentStatus string `json:"payment_status"`
	Status        string `json:"status"`
}

func (c *Cryptomus) Create(ctx context.Context, order Order) (Checkout, error) {
	req := map[string]string{
		"amount":      order.AmountUSD.StringFixed(2),
		"currency":    "USD",
		"order_id":    order.OrderRef,
		"url_return":  order.CancelURL,
		"url_success": order.SuccessURL,
	}
	if c.callbackURL != "" {
		req["url_callback"] = c.callbackURL
	}
	var inv cryptomusInvoice
	if err := c.do(ctx, "/v1/payment", req, &inv); err != nil {
		return Checkout{}, err
	}
	if inv.UUID == "" || inv.URL == "" {
		return Checkout{}, fmt.Errorf("cryptomus: invoice missing uuid or url")
	}
	return Checkout{ProviderRef: inv.UUID, URL: inv.URL}, nil
}

func (c *Cryptomus) Confirm(ctx context.Context, providerRef string) (Confirmation, error) {
	var inv cryptomusInvoice
	if err := c.do(ctx, "/v1/payment/info", map[string]string{"uuid": providerRef}, &inv); err != nil {
		return Confirmation{}, err
	}
	status := inv.PaymentStatus
	if status == "" {
		status = inv.Status
	}
	amount, _ := decimal.NewFromString(inv.Amount)
	return Confirmation{Status: cryptomusStatus(status), AmountUSD: amount}, nil
}

func (c *Cryptomus) ParseWebhook(body []byte, _ http.Header) (WebhookEvent, error) {
	var payload struct {
		Type   string `json:"type"`
		UUID   string `json:"uuid"`
		Status string `json:"status"`
		Sign   string `json:"sign"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return WebhookEvent{}, fmt.Errorf("cryptomus: decode webhook: %w", err)
	}
	if payload.Sign == "" {
		return WebhookEvent{}, ErrInvalidSignature
	}
	unsigned, err := stripField(body, "sign")
	if err != nil {
		return WebhookEvent{}, ErrInvalidSignature
	}
	if !strings.EqualFold(CryptomusSign(unsigned, c.apiKey), payload.Sign) {
		return WebhookEvent{}, ErrInvalidSignature
	}
	if payload.Type != "" && payload.Type != "payment" {
		return WebhookEvent{}, ErrIgnoredEvent
	}
	return WebhookEvent{ProviderRef: payload.UUID, Status: cryptomusStatus(payload.Status)}, nil
}

func cryptomusStatus(s string) Status {
	switch s {
	case "paid", "paid_over":
		return StatusPaid
	case "fail", "cancel", "system_fail", "wrong_amount", "refund_paid":
		return StatusFailed
	default:
		return StatusPending
	}
}

// CryptomusSign computes md5(base64(body) + apiKey) as lowercase hex.
func CryptomusSign(body []byte, apiKey string) string {
	sum := md5.Sum([]byte(base64.StdEncoding.EncodeToString(body) + apiKey))
	return hex.EncodeToString(sum[:])
}

// stripField removes one top-level key from a JSON object while keeping the
// remaining keys and raw values in their original order.
func stripField(body []byte, field string) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected JSON object")
	}

	var out bytes.Buffer
	out.WriteByte('{')
	first := true
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key")
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
		if key == field {
			continue
		}
		if !first {
			out.WriteByte(',')
		}
		first = false
		encodedKey, _ := json.Marshal(key)
		out.Write(encodedKey)
		out.WriteByte(':')
		var compact bytes.Buffer
		if err := json.Compact(&compact, raw); err != nil {
			return nil, err
		}
		out.Write(compact.Bytes())
	}
	out.WriteByte('}')
	return out.Bytes(), nil
}

func (c *Cryptomus) do(ctx context.Context, path string, payload any, out *cryptomusInvoice) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("cryptomus: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("cryptomus: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("merchant", c.merchantID)
	req.Header.Set("sign", CryptomusSign(body, c.apiKey))

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("cryptomus: POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("cryptomus: read response: %w", err)
	}
	var envelope struct {
		State   int              `json:"state"`
		Message string           `json:"message"`
		Result  cryptomusInvoice `json:"result"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("cryptomus: decode response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode >= 300 || envelope.State != 0 {
		return fmt.Errorf("cryptomus: POST %s: status %d: %s", path, resp.StatusCode, envelope.Message)
	}
	*out = envelope.Result
	return nil
}
