package dbtest

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/watchcoin/backend/internal/apperror"
	"github.com/watchcoin/backend/internal/ledger"
	"github.com/watchcoin/backend/internal/models"
)

// LedgerStore is an in-memory ledger.Store with the same conditional-update
// contract as the SQL repository.
type LedgerStore struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*ledger.Account
	txs      []models.Transaction
	refs     map[string]struct{}
	clock    time.Time
}

func NewLedgerStore() *LedgerStore {
	return &LedgerStore{
		accounts: make(map[uuid.UUID]*ledger.Account),
		refs:     make(map[string]struct{}),
		clock:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

var _ ledger.Store = (*LedgerStore)(nil)

// Seed creates an account. A non-zero opening balance is recorded as an
// admin_adjust entry so the balance always matches the ledger sum.
func (s *LedgerStore) Seed(userID uuid.UUID, status string, balance int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[userID] = &ledger.Account{UserID: userID, Balance: balance, Status: status}
	if balance != 0 {
		s.txs = append(s.txs, models.Transaction{
			ID: uuid.New(), UserID: userID, Type: models.TxAdminAdjust,
			Amount: balance, BalanceAfter: balance, Reason: "opening balance", CreatedAt: s.tick(),
		})
	}
}

func (s *LedgerStore) SetStatus(userID uuid.UUID, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[userID].Status = status
}

// Corrupt changes the cached balance without a ledger entry.
func (s *LedgerStore) Corrupt(userID uuid.UUID, balance int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[userID].Balance = balance
}

func (s *LedgerStore) Balance(userID uuid.UUID) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accounts[userID].Balance
}

// Sum returns the total of the user's ledger entries.
func (s *LedgerStore) Sum(userID uuid.UUID) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for _, t := range s.txs {
		if t.UserID == userID {
			total += t.Amount
		}
	}
	return total
}

// Entries returns the user's entries of the given type, or all types when txType is empty.
func (s *LedgerStore) Entries(userID uuid.UUID, txType string) []models.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Transaction
	for _, t := range s.txs {
		if t.UserID == userID && (txType == "" || t.Type == txType) {
			out = append(out, t)
		}
	}
	return out
}

func (s *LedgerStore) LockAccount(_ context.Context, _ pgx.Tx, userID uuid.UUID) (ledger.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[userID]
	if !ok {
		return ledger.Account{}, apperror.NotFound("user", userID.String())
	}
	return *a, nil
}

func (s *LedgerStore) ApplyDelta(_ context.Context, tx pgx.Tx, userID uuid.UUID, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[userID]
	if !ok {
		return 0, apperror.NotFound("user", userID.String())
	}
	if a.Balance+delta < 0 {
		return 0, errors.New("balance would go negative")
	}
	a.Balance += delta
	OnRollback(tx, func() {
		s.mu.Lock()
		a.Balance -= delta
		s.mu.Unlock()
	})
	return a.Balance, nil
}

func (s *LedgerStore) InsertTransaction(_ context.Context, tx pgx.Tx, t *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.Reference != nil {
		if _, dup := s.refs[*t.Reference]; dup {
			return ledger.ErrDuplicateReference
		}
		s.refs[*t.Reference] = struct{}{}
	}
	t.CreatedAt = s.tick()
	s.txs = append(s.txs, *t)
	id := t.ID
	ref := t.Reference
	OnRollback(tx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i := range s.txs {
			if s.txs[i].ID == id {
				s.txs = append(s.txs[:i], s.txs[i+1:]...)
				break
			}
		}
		if ref != nil {
			delete(s.refs, *ref)
		}
	})
	return nil
}

func (s *LedgerStore) ListTransactions(_ context.Context, userID uuid.UUID, limit int, before *time.Time) ([]models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Transaction
	for _, t := range s.txs {
		if t.UserID != userID {
			continue
		}
		if before != nil && !t.CreatedAt.Before(*before) {
			continue
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *LedgerStore) Drift(context.Context) ([]models.BalanceDrift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sums := make(map[uuid.UUID]int64)
	for _, t := range s.txs {
		sums[t.UserID] += t.Amount
	}
	var out []models.BalanceDrift
	for id, a := range s.accounts {
		if a.Balance != sums[id] {
			out = append(out, models.BalanceDrift{UserID: id, Balance: a.Balance, Ledger: sums[id]})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID.String() < out[j].UserID.String() })
	return out, nil
}

// tick returns a strictly increasing timestamp so history ordering is stable.
func (s *LedgerStore) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}
