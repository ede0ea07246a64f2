package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

const (
	stripeSignatureHeader    = "Stripe-Signature"
	stripeSignatureTolerance = 5 * time.Minute
)

// Stripe opens Checkout Sessions through the Stripe API.
type Stripe struct {
	api           *client.API
	webhookSecret string
}

func NewStripe(secretKey, webhookSecret string) *Stripe {
	return newStripe(secretKey, webhookSecret, stripe.APIURL)
}

func newStripe(secretKey, webhookSecret, apiURL string) *Stripe {
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(apiURL),
		HTTPClient:        &http.Client{Timeout: defaultHTTPTimeout},
		MaxNetworkRetries: stripe.Int64(2),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelError},
	})
	return &Stripe{
		api:           client.New(secretKey, &stripe.Backends{API: backend, Connect: backend, Uploads: backend}),
		webhookSecret: webhookSecret,
	}
}

func (s *Stripe) Name() string { return "stripe" }

func (s *Stripe) Create(ctx context.Context, order Order) (Checkout, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(order.SuccessURL),
		CancelURL:         stripe.String(order.CancelURL),
		ClientReferenceID: stripe.String(order.OrderRef),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String("usd"),
				UnitAmount: stripe.Int64(order.AmountUSD.Shift(2).Round(0).IntPart()),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(fmt.Sprintf("%s (%d coins)", order.PackageName, order.Coins)),
				},
			},
		}},
	}
	params.Context = ctx
	params.SetIdempotencyKey(order.OrderRef)
	params.AddMetadata("order_ref", order.OrderRef)
	params.AddMetadata("package_id", order.PackageID)

	sess, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return Checkout{}, fmt.Errorf("stripe: create checkout session: %w", err)
	}
	if sess.ID == "" || sess.URL == "" {
		return Checkout{}, fmt.Errorf("stripe: checkout session missing id or url")
	}
	return Checkout{ProviderRef: sess.ID, URL: sess.URL}, nil
}

func (s *Stripe) Confirm(ctx context.Context, providerRef string) (Confirmation, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	sess, err := s.api.CheckoutSessions.Get(providerRef, params)
	if err != nil {
		return Confirmation{}, fmt.Errorf("stripe: retrieve checkout session: %w", err)
	}
	return Confirmation{
		Status:    stripeSessionStatus(sess, ""),
		AmountUSD: decimal.New(sess.AmountTotal, -2),
	}, nil
}

// ParseWebhook verifies the Stripe-Signature header and extracts the session id
// from checkout.session.* events.
func (s *Stripe) ParseWebhook(body []byte, header http.Header) (WebhookEvent, error) {
	if s.webhookSecret == "" {
		return WebhookEvent{}, ErrInvalidSignature
	}
	event, err := webhook.ConstructEventWithOptions(body, header.Get(stripeSignatureHeader), s.webhookSecret,
		webhook.ConstructEventOptions{
			Tolerance:                stripeSignatureTolerance,
			IgnoreAPIVersionMismatch: true,
		})
	if err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	eventType := string(event.Type)
	if !strings.HasPrefix(eventType, "checkout.session.") || event.Data == nil {
		return WebhookEvent{}, ErrIgnoredEvent
	}
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return WebhookEvent{}, fmt.Errorf("stripe: decode checkout session: %w", err)
	}
	if sess.ID == "" {
		return WebhookEvent{}, ErrIgnoredEvent
	}
	return WebhookEvent{ProviderRef: sess.ID, Status: stripeSessionStatus(&sess, eventType)}, nil
}

func stripeSessionStatus(sess *stripe.CheckoutSession, eventType string) Status {
	switch {
	case sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid:
		return StatusPaid
	case sess.Status == stripe.CheckoutSessionStatusExpired,
		eventType == "checkout.session.expired",
		eventType == "checkout.session.async_payment_failed":
		return StatusFailed
	default:
		return StatusPending
	}
}
