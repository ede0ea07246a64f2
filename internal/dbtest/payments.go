package dbtest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/watchcoin/backend/internal/apperror"
	"github.com/watchcoin/backend/internal/models"
	"github.com/watchcoin/backend/internal/repository"
)

// PaymentStore is an in-memory services.PaymentStore.
type PaymentStore struct {
	mu       sync.Mutex
	payments map[uuid.UUID]*models.Payment
	clock    time.Time
}

func NewPaymentStore() *PaymentStore {
	return &PaymentStore{
		payments: make(map[uuid.UUID]*models.Payment),
		clock:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (s *PaymentStore) byRef(provider, ref string) *models.Payment {
	for _, p := range s.payments {
		if p.Provider == provider && p.ProviderRef != nil && *p.ProviderRef == ref {
			return p
		}
	}
	return nil
}

func (s *PaymentStore) Create(_ context.Context, p *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.payments {
		if other.OrderRef == p.OrderRef {
			return repository.ErrDuplicate
		}
	}
	s.clock = s.clock.Add(time.Second)
	p.CreatedAt = s.clock
	cp := *p
	s.payments[p.ID] = &cp
	return nil
}

func (s *PaymentStore) AttachCheckout(_ context.Context, id uuid.UUID, providerRef, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok || p.Status != models.PaymentPending {
		return apperror.NotFound("payment", id.String())
	}
	if s.byRef(p.Provider, providerRef) != nil {
		return repository.ErrDuplicate
	}
	ref := providerRef
	p.ProviderRef = &ref
	p.CheckoutURL = url
	return nil
}

func (s *PaymentStore) GetByID(_ context.Context, id uuid.UUID) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return nil, apperror.NotFound("payment", id.String())
	}
	cp := *p
	return &cp, nil
}

func (s *PaymentStore) GetByProviderRef(_ context.Context, provider, ref string) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.byRef(provider, ref)
	if p == nil {
		return nil, apperror.NotFound("payment", ref)
	}
	cp := *p
	return &cp, nil
}

func (s *PaymentStore) ListByUser(_ context.Context, userID uuid.UUID, limit int) ([]models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Payment
	for _, p := range s.payments {
		if p.UserID == userID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *PaymentStore) MarkCompleted(_ context.Context, tx pgx.Tx, provider, ref string, at time.Time) (*models.Payment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.byRef(provider, ref)
	if p == nil || p.Status != models.PaymentPending {
		return nil, false, nil
	}
	p.Status = models.PaymentCompleted
	p.CompletedAt = &at
	OnRollback(tx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		p.Status = models.PaymentPending
		p.CompletedAt = nil
	})
	cp := *p
	return &cp, true, nil
}

func (s *PaymentStore) MarkFailed(_ context.Context, provider, ref string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.byRef(provider, ref)
	if p == nil || p.Status != models.PaymentPending {
		return false, nil
	}
	p.Status = models.PaymentFailed
	return true, nil
}

func (s *PaymentStore) MarkFailedByID(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.payments[id]; ok && p.Status == models.PaymentPending {
		p.Status = models.PaymentFailed
	}
	return nil
}
