package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/watchcoin/backend/internal/apperror"
	"github.com/watchcoin/backend/internal/auth"
	"github.com/watchcoin/backend/internal/db"
	"github.com/watchcoin/backend/internal/events"
	"github.com/watchcoin/backend/internal/execution"
	"github.com/watchcoin/backend/internal/ledger"
	"github.com/watchcoin/backend/internal/models"
)

// InsertBroadcastFunc enqueues a BroadcastNotification job.
type InsertBroadcastFunc func(ctx context.Context, args execution.BroadcastNotificationArgs) error

// AdminService covers balance corrections, account moderation and announcements.
type AdminService struct {
	db            db.TxBeginner
	users         auth.UserStore
	ledger        ledger.Service
	videos        *VideoService
	notifications *NotificationService
	events        events.Publisher
	broadcast     InsertBroadcastFunc
	log           *slog.Logger
}

func NewAdminService(txb db.TxBeginner, users auth.UserStore, ledgerSvc ledger.Service, videos *VideoService,
	notifications *NotificationService, pub events.Publisher, broadcast InsertBroadcastFunc, log *slog.Logger) *AdminService {
	if log == nil {
		log = slog.Default()
	}
	return &AdminService{
		db:            txb,
		users:         users,
		ledger:        ledgerSvc,
		videos:        videos,
		notifications: notifications,
		events:        pub,
		broadcast:     broadcast,
		log:           log,
	}
}

// Adjust posts a signed admin_adjust entry. A negative amount larger than
// the balance is refused like any other overdraft.
func (s *AdminService) Adjust(ctx context.Context, admin auth.Principal, userID uuid.UUID, amount int64, reason string) (*models.Transaction, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperror.Validation("reason", "a reason is required")
	}

	var t *models.Transaction
	err := db.InTx(ctx, s.db, func(tx pgx.Tx) error {
		var err error
		t, err = s.ledger.Adjust(ctx, tx, ledger.Entry{UserID: userID, Amount: amount, Reason: reason})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("balance adjusted", "user_id", userID, "amount", amount, "by", admin.UserID)
	s.events.PublishBalance(userID, t.BalanceAfter)
	s.notifications.notifyUser(ctx, userID, models.NotifyAdminAdjustment, "Balance adjusted",
		fmt.Sprintf("Your balance changed by %+d coins: %s", amount, reason), "")
	return t, nil
}

// UpdateUser changes a user's status or role. Admins cannot change their own.
func (s *AdminService) UpdateUser(ctx context.Context, admin auth.Principal, userID uuid.UUID, status, role string) (*models.User, error) {
	if status == "" && role == "" {
		return nil, apperror.Validation("status", "status or role is required")
	}
	if status != "" && !models.ValidStatus(status) {
		return nil, apperror.Validation("status", fmt.Sprintf("unknown status %q", status))
	}
	if role != "" && !models.ValidRole(role) {
		return nil, apperror.Validation("role", fmt.Sprintf("unknown role %q", role))
	}
	if userID == admin.UserID {
		return nil, apperror.State("admins cannot change their own account")
	}
	u, err := s.users.UpdateAccess(ctx, userID, status, role)
	if err != nil {
		return nil, err
	}
	s.log.Info("user updated", "user_id", userID, "status", u.Status, "role", u.Role, "by", admin.UserID)
	return u, nil
}

func (s *AdminService) ModerateVideo(ctx context.Context, p auth.Principal, videoID uuid.UUID, status string) (*models.Video, error) {
	return s.videos.Moderate(ctx, p, videoID, status)
}

// Reconcile lists users whose cached balance disagrees with their ledger.
func (s *AdminService) Reconcile(ctx context.Context) ([]models.BalanceDrift, error) {
	drift, err := s.ledger.Reconcile(ctx)
	if err != nil {
		return nil, err
	}
	if len(drift) > 0 {
		s.log.Warn("ledger drift detected", "users", len(drift))
	}
	if drift == nil {
		drift = []models.BalanceDrift{}
	}
	return drift, nil
}

// Broadcast queues an announcement to every user.
func (s *AdminService) Broadcast(ctx context.Context, admin auth.Principal, title, message, sound string) error {
	title, message = strings.TrimSpace(title), strings.TrimSpace(message)
	if title == "" || len(title) > maxTitleLength {
		return apperror.Validation("title", "title must be 1 to 120 characters")
	}
	if len(message) > maxMessageLength {
		return apperror.Validation("message", "message must be at most 1000 characters")
	}
	if !notificationSounds[sound] {
		return apperror.Validation("sound", "unknown sound")
	}
	return s.broadcast(ctx, execution.BroadcastNotificationArgs{
		RequestedBy: admin.UserID,
		Title:       title,
		Message:     message,
		Sound:       sound,
	})
}
