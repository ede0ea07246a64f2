package dbtest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/watchcoin/backend/internal/apperror"
	"github.com/watchcoin/backend/internal/models"
)

// NotificationStore is an in-memory services.NotificationStore.
type NotificationStore struct {
	mu    sync.Mutex
	items []models.Notification
	reads map[uuid.UUID]map[uuid.UUID]bool
	clock time.Time
}

func NewNotificationStore() *NotificationStore {
	return &NotificationStore{
		reads: make(map[uuid.UUID]map[uuid.UUID]bool),
		clock: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func visibleTo(n models.Notification, userID uuid.UUID) bool {
	return n.UserID == nil || *n.UserID == userID
}

func (s *NotificationStore) Create(_ context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = s.clock.Add(time.Second)
	n.CreatedAt = s.clock
	s.items = append(s.items, *n)
	return nil
}

// All returns every stored notification.
func (s *NotificationStore) All() []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Notification(nil), s.items...)
}

func (s *NotificationStore) ListForUser(_ context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Notification
	for _, n := range s.items {
		if !visibleTo(n, userID) {
			continue
		}
		n.Read = s.reads[userID][n.ID]
		if unreadOnly && n.Read {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *NotificationStore) markLocked(userID, id uuid.UUID) {
	if s.reads[userID] == nil {
		s.reads[userID] = make(map[uuid.UUID]bool)
	}
	s.reads[userID][id] = true
}

func (s *NotificationStore) MarkRead(_ context.Context, userID, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.items {
		if n.ID == id && visibleTo(n, userID) {
			s.markLocked(userID, id)
			return nil
		}
	}
	return apperror.NotFound("notification", id.String())
}

func (s *NotificationStore) MarkAllRead(_ context.Context, userID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, item := range s.items {
		if visibleTo(item, userID) && !s.reads[userID][item.ID] {
			s.markLocked(userID, item.ID)
			n++
		}
	}
	return n, nil
}

func (s *NotificationStore) UnreadCount(_ context.Context, userID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, item := range s.items {
		if visibleTo(item, userID) && !s.reads[userID][item.ID] {
			n++
		}
	}
	return n, nil
}
