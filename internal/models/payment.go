package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Payment statuses.
const (
	PaymentPending   = "pending"
	PaymentCompleted = "completed"
	PaymentFailed    = "failed"
)

type Payment struct {
	ID          uuid.UUID       `json:"id"`
	UserID      uuid.UUID       `json:"user_id"`
	Provider    string          `json:"provider"`
	OrderRef    string          `json:"order_ref"`
	ProviderRef *string         `json:"provider_ref,omitempty"`
	PackageID   string          `json:"package_id"`
	Coins       int64           `json:"coins"`
	AmountUSD   decimal.Decimal `json:"amount_usd"`
	Status      string          `json:"status"`
	CheckoutURL string          `json:"checkout_url,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}
