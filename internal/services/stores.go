package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/watchcoin/backend/internal/models"
)

// VideoStore is the video persistence the services need.
type VideoStore interface {
	Create(ctx context.Context, tx pgx.Tx, v *models.Video) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Video, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Video, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Video, error)
	SetStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string) error
	Remove(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
	ClaimSlot(ctx context.Context, tx pgx.Tx, id uuid.UUID, reward int64) (*models.Video, error)
	Candidates(ctx context.Context, userID uuid.UUID, staleBefore time.Time, limit int) ([]models.Video, error)
}

// AssignmentStore is the watch assignment persistence.
type AssignmentStore interface {
	Create(ctx context.Context, tx pgx.Tx, a *models.WatchAssignment) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.WatchAssignment, error)
	GetLive(ctx context.Context, userID uuid.UUID) (*models.WatchAssignment, error)
	CountLive(ctx context.Context, tx pgx.Tx, videoID uuid.UUID, staleBefore time.Time) (int, error)
	SaveSession(ctx context.Context, a *models.WatchAssignment) error
	Complete(ctx context.Context, tx pgx.Tx, id, userID uuid.UUID, at time.Time) (bool, error)
	Delete(ctx context.Context, id, userID uuid.UUID) (bool, error)
	DeleteStale(ctx context.Context, before time.Time) (int64, error)
}

// PaymentStore is the payment persistence.
type PaymentStore interface {
	Create(ctx context.Context, p *models.Payment) error
	AttachCheckout(ctx context.Context, id uuid.UUID, providerRef, url string) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	GetByProviderRef(ctx context.Context, provider, ref string) (*models.Payment, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Payment, error)
	MarkCompleted(ctx context.Context, tx pgx.Tx, provider, ref string, at time.Time) (*models.Payment, bool, error)
	MarkFailed(ctx context.Context, provider, ref string) (bool, error)
	MarkFailedByID(ctx context.Context, id uuid.UUID) error
}

// NotificationStore is the notification persistence.
type NotificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
	ListForUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]models.Notification, error)
	MarkRead(ctx context.Context, userID, id uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
	UnreadCount(ctx context.Context, userID uuid.UUID) (int, error)
}
