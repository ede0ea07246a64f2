package services

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/watchcoin/backend/internal/apperror"
	"github.com/watchcoin/backend/internal/events"
	"github.com/watchcoin/backend/internal/models"
)

const (
	defaultNotificationLimit = 50
	maxNotificationLimit     = 200
	maxTitleLength           = 120
	maxMessageLength         = 1000
)

// Sounds a client may play with a notification.
var notificationSounds = map[string]bool{"": true, "coin": true, "chime": true, "alert": true}

// NotificationService stores notifications and pushes them to connected clients.
type NotificationService struct {
	store  NotificationStore
	events events.Publisher
	log    *slog.Logger
}

func NewNotificationService(store NotificationStore, pub events.Publisher, log *slog.Logger) *NotificationService {
	if log == nil {
		log = slog.Default()
	}
	return &NotificationService{store: store, events: pub, log: log}
}

// NotificationList is a page of notifications plus the unread total.
type NotificationList struct {
	Notifications []models.Notification `json:"notifications"`
	Unread        int                   `json:"unread"`
}

// Notify stores a notification for userID and pushes it. A nil userID
// broadcasts to everyone.
func (s *NotificationService) Notify(ctx context.Context, userID *uuid.UUID, kind, title, message, sound string) (*models.Notification, error) {
	title, message = strings.TrimSpace(title), strings.TrimSpace(message)
	if title == "" || len(title) > maxTitleLength {
		return nil, apperror.Validation("title", "title must be 1 to 120 characters")
	}
	if len(message) > maxMessageLength {
		return nil, apperror.Validation("message", "message must be at most 1000 characters")
	}
	if !notificationSounds[sound] {
		return nil, apperror.Validation("sound", "unknown sound")
	}

	n := &models.Notification{
		ID:      uuid.New(),
		UserID:  userID,
		Type:    kind,
		Title:   title,
		Message: message,
		Sound:   sound,
	}
	if err := s.store.Create(ctx, n); err != nil {
		return nil, err
	}

	ev := events.Event{Name: events.NotificationCreated, Payload: n}
	if userID != nil {
		ev.UserID = *userID
	}
	s.events.Publish(ev)
	return n, nil
}

// notifyUser is Notify for follow-ups after a commit, where a failure must
// not undo the committed work.
func (s *NotificationService) notifyUser(ctx context.Context, userID uuid.UUID, kind, title, message, sound string) {
	if _, err := s.Notify(ctx, &userID, kind, title, message, sound); err != nil {
		s.log.Error("notification failed", "error", err, "user_id", userID, "kind", kind)
	}
}

func (s *NotificationService) List(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) (*NotificationList, error) {
	if limit <= 0 {
		limit = defaultNotificationLimit
	}
	if limit > maxNotificationLimit {
		limit = maxNotificationLimit
	}
	list, err := s.store.ListForUser(ctx, userID, unreadOnly, limit)
	if err != nil {
		return nil, err
	}
	unread, err := s.store.UnreadCount(ctx, userID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.Notification{}
	}
	return &NotificationList{Notifications: list, Unread: unread}, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	return s.store.MarkRead(ctx, userID, id)
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.store.MarkAllRead(ctx, userID)
}
