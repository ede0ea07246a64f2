package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/rs/xid"
	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidSignature is returned when a webhook cannot be authenticated.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrUnknownProvider is returned for a provider name that is not registered.
	ErrUnknownProvider = errors.New("unknown payment provider")
	// ErrIgnoredEvent marks an authentic webhook that carries nothing to settle.
	ErrIgnoredEvent = errors.New("webhook event ignored")
)

const defaultHTTPTimeout = 15 * time.Second

type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
	StatusFailed  Status = "failed"
)

// Order is what a provider needs to open a checkout.
type Order struct {
	OrderRef    string
	PackageID   string
	PackageName string
	Coins       int64
	AmountUSD   decimal.Decimal
	SuccessURL  string
	CancelURL   string
}

// Checkout is the provider's answer to Create.
type Checkout struct {
	ProviderRef string
	URL         string
}

// Confirmation is the provider's view of a payment, fetched server-side.
type Confirmation struct {
	Status    Status
	AmountUSD decimal.Decimal
}

// WebhookEvent is an authenticated notification naming a provider payment.
type WebhookEvent struct {
	ProviderRef string
	Status      Status
}

// Provider is one payment backend.
type Provider interface {
	Name() string
	Create(ctx context.Context, order Order) (Checkout, error)
	Confirm(ctx context.Context, providerRef string) (Confirmation, error)
	ParseWebhook(body []byte, header http.Header) (WebhookEvent, error)
}

// Registry holds the providers enabled by configuration.
type Registry struct {
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		if p != nil {
			r.providers[p.Name()] = p
		}
	}
	return r
}

func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return p, nil
}

// Names lists registered providers in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewOrderRef returns a fresh merchant order reference.
func NewOrderRef() string {
	return "wc_" + xid.New().String()
}
