package dbtest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/watchcoin/backend/internal/apperror"
	"github.com/watchcoin/backend/internal/auth"
	"github.com/watchcoin/backend/internal/models"
)

// UserStore keeps users in memory. Balance and status are shared with the
// LedgerStore the way the users row is shared in SQL.
type UserStore struct {
	mu      sync.Mutex
	users   map[uuid.UUID]*models.User
	byEmail map[string]uuid.UUID
	ledger  *LedgerStore
}

func NewUserStore(l *LedgerStore) *UserStore {
	return &UserStore{
		users:   make(map[uuid.UUID]*models.User),
		byEmail: make(map[string]uuid.UUID),
		ledger:  l,
	}
}

var _ auth.UserStore = (*UserStore)(nil)

// Add seeds an active user with an opening balance.
func (s *UserStore) Add(email, role string, balance int64) *models.User {
	u := &models.User{
		ID:          uuid.New(),
		Email:       email,
		DisplayName: email,
		Role:        role,
		Status:      models.StatusActive,
		CreatedAt:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	s.mu.Lock()
	s.users[u.ID] = u
	s.byEmail[email] = u.ID
	s.mu.Unlock()
	s.ledger.Seed(u.ID, u.Status, balance)
	return s.withBalance(u)
}

func (s *UserStore) Create(_ context.Context, tx pgx.Tx, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.byEmail[u.Email]; dup {
		return auth.ErrDuplicateEmail
	}
	cp := *u
	s.users[u.ID] = &cp
	s.byEmail[u.Email] = u.ID
	s.ledger.Seed(u.ID, u.Status, 0)
	OnRollback(tx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.users, u.ID)
		delete(s.byEmail, u.Email)
	})
	return nil
}

func (s *UserStore) GetByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	id, ok := s.byEmail[email]
	var u *models.User
	if ok {
		u = s.users[id]
	}
	s.mu.Unlock()
	if u == nil {
		return nil, nil
	}
	return s.withBalance(u), nil
}

func (s *UserStore) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.Lock()
	u, ok := s.users[id]
	s.mu.Unlock()
	if !ok {
		return nil, apperror.NotFound("user", id.String())
	}
	return s.withBalance(u), nil
}

func (s *UserStore) UpdateAccess(_ context.Context, id uuid.UUID, status, role string) (*models.User, error) {
	s.mu.Lock()
	u, ok := s.users[id]
	if ok {
		if status != "" {
			u.Status = status
		}
		if role != "" {
			u.Role = role
		}
	}
	s.mu.Unlock()
	if !ok {
		return nil, apperror.NotFound("user", id.String())
	}
	if status != "" {
		s.ledger.SetStatus(id, status)
	}
	return s.withBalance(u), nil
}

func (s *UserStore) withBalance(u *models.User) *models.User {
	s.mu.Lock()
	cp := *u
	s.mu.Unlock()
	cp.Balance = s.ledger.Balance(u.ID)
	return &cp
}
