package models

import (
	"time"

	"github.com/google/uuid"
)

// Ledger transaction types.
const (
	TxEarnWatch   = "earn_watch"
	TxSpendCoins  = "spend_coins"
	TxBuyCoins    = "buy_coins"
	TxAdminAdjust = "admin_adjust"
	TxRefundCoins = "refund_coins"
)

// Transaction is one append-only ledger row. Amount is signed: credits are
// positive, debits negative.
type Transaction struct {
	ID           uuid.UUID `json:"id"`
	UserID       uuid.UUID `json:"user_id"`
	Type         string    `json:"type"`
	Amount       int64     `json:"amount"`
	BalanceAfter int64     `json:"balance_after"`
	Reason       string    `json:"reason,omitempty"`
	Reference    *string   `json:"reference,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// BalanceDrift is a user whose cached balance disagrees with the ledger sum.
type BalanceDrift struct {
	UserID  uuid.UUID `json:"user_id"`
	Balance int64     `json:"balance"`
	Ledger  int64     `json:"ledger"`
}
