package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/watchcoin/backend/internal/apperror"
	"github.com/watchcoin/backend/internal/models"
)

// ErrDuplicateReference is returned when an entry reuses a settled reference.
var ErrDuplicateReference = errors.New("duplicate ledger reference")

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// Account is the locked balance row of a user.
type Account struct {
	UserID  uuid.UUID
	Balance int64
	Status  string
}

// Entry describes one ledger posting. Amount is a positive magnitude for
// Credit and Debit; Adjust takes a signed amount.
type Entry struct {
	UserID    uuid.UUID
	Type      string
	Amount    int64
	Reason    string
	Reference string
}

// Store is the persistence the ledger needs.
type Store interface {
	LockAccount(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (Account, error)
	ApplyDelta(ctx context.Context, tx pgx.Tx, userID uuid.UUID, delta int64) (int64, error)
	InsertTransaction(ctx context.Context, tx pgx.Tx, t *models.Transaction) error
	ListTransactions(ctx context.Context, userID uuid.UUID, limit int, before *time.Time) ([]models.Transaction, error)
	Drift(ctx context.Context) ([]models.BalanceDrift, error)
}

type Service interface {
	Credit(ctx context.Context, tx pgx.Tx, e Entry) (*models.Transaction, error)
	Debit(ctx context.Context, tx pgx.Tx, e Entry) (*models.Transaction, error)
	Adjust(ctx context.Context, tx pgx.Tx, e Entry) (*models.Transaction, error)
	History(ctx context.Context, userID uuid.UUID, limit int, before *time.Time) ([]models.Transaction, error)
	Reconcile(ctx context.Context) ([]models.BalanceDrift, error)
}

type service struct {
	store Store
}

func NewService(store Store) Service {
	return &service{store: store}
}

var _ Service = (*service)(nil)

// Credit adds e.Amount coins to the user's balance and records the entry.
func (s *service) Credit(ctx context.Context, tx pgx.Tx, e Entry) (*models.Transaction, error) {
	if e.Amount <= 0 {
		return nil, apperror.Validation("amount", "credit amount must be positive")
	}
	return s.post(ctx, tx, e, e.Amount)
}

// Debit removes e.Amount coins. The balance is left unchanged when it is
// lower than the amount.
func (s *service) Debit(ctx context.Context, tx pgx.Tx, e Entry) (*models.Transaction, error) {
	if e.Amount <= 0 {
		return nil, apperror.Validation("amount", "debit amount must be positive")
	}
	return s.post(ctx, tx, e, -e.Amount)
}

// Adjust posts a signed admin correction.
func (s *service) Adjust(ctx context.Context, tx pgx.Tx, e Entry) (*models.Transaction, error) {
	if e.Amount == 0 {
		return nil, apperror.Validation("amount", "adjustment must not be zero")
	}
	e.Type = models.TxAdminAdjust
	return s.post(ctx, tx, e, e.Amount)
}

func (s *service) post(ctx context.Context, tx pgx.Tx, e Entry, delta int64) (*models.Transaction, error) {
	if !validType(e.Type) {
		return nil, apperror.Validation("type", fmt.Sprintf("unknown transaction type %q", e.Type))
	}

	acc, err := s.store.LockAccount(ctx, tx, e.UserID)
	if err != nil {
		return nil, err
	}
	if acc.Status != models.StatusActive && (e.Type == models.TxEarnWatch || e.Type == models.TxSpendCoins) {
		return nil, apperror.State(fmt.Sprintf("account is %s", acc.Status))
	}
	if delta < 0 && acc.Balance < -delta {
		return nil, apperror.InsufficientFunds(acc.Balance, -delta)
	}

	balance, err := s.store.ApplyDelta(ctx, tx, e.UserID, delta)
	if errors.Is(err, errNegativeBalance) {
		return nil, apperror.InsufficientFunds(acc.Balance, -delta)
	}
	if err != nil {
		return nil, err
	}

	t := &models.Transaction{
		ID:           uuid.New(),
		UserID:       e.UserID,
		Type:         e.Type,
		Amount:       delta,
		BalanceAfter: balance,
		Reason:       e.Reason,
	}
	if e.Reference != "" {
		ref := e.Reference
		t.Reference = &ref
	}
	if err := s.store.InsertTransaction(ctx, tx, t); err != nil {
		if errors.Is(err, ErrDuplicateReference) {
			return nil, apperror.Conflict("ledger entry already recorded")
		}
		return nil, err
	}
	return t, nil
}

func (s *service) History(ctx context.Context, userID uuid.UUID, limit int, before *time.Time) ([]models.Transaction, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return s.store.ListTransactions(ctx, userID, limit, before)
}

// Reconcile lists users whose cached balance differs from their ledger sum.
func (s *service) Reconcile(ctx context.Context) ([]models.BalanceDrift, error) {
	return s.store.Drift(ctx)
}

func validType(t string) bool {
	switch t {
	case models.TxEarnWatch, models.TxSpendCoins, models.TxBuyCoins, models.TxAdminAdjust, models.TxRefundCoins:
		return true
	}
	return false
}
