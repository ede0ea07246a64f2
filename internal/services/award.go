package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/watchcoin/backend/internal/apperror"
	"github.com/watchcoin/backend/internal/db"
	"github.com/watchcoin/backend/internal/events"
	"github.com/watchcoin/backend/internal/ledger"
	"github.com/watchcoin/backend/internal/models"
	"github.com/watchcoin/backend/internal/repository"
)

var errJobExhausted = apperror.Conflict("job exhausted")

// AwardResult is what a successful completion paid out.
type AwardResult struct {
	Transaction *models.Transaction `json:"transaction"`
	Balance     int64               `json:"balance"`
	Reward      int64               `json:"reward"`
	Video       *models.Video       `json:"-"`
}

// AwardService pays viewers for completed watches.
type AwardService struct {
	db            db.TxBeginner
	videos        VideoStore
	assignments   AssignmentStore
	ledger        ledger.Service
	events        events.Publisher
	notifications *NotificationService
	log           *slog.Logger
	now           func() time.Time
}

func NewAwardService(txb db.TxBeginner, videos VideoStore, assignments AssignmentStore, ledgerSvc ledger.Service,
	pub events.Publisher, notifications *NotificationService, log *slog.Logger) *AwardService {
	if log == nil {
		log = slog.Default()
	}
	return &AwardService{
		db:            txb,
		videos:        videos,
		assignments:   assignments,
		ledger:        ledgerSvc,
		events:        pub,
		notifications: notifications,
		log:           log,
		now:           time.Now,
	}
}

// Complete settles one watch. The assignment flip, the slot claim on the
// video and the ledger credit commit together or not at all, so a slot is
// paid at most once and a video never pays beyond its requested watches.
func (s *AwardService) Complete(ctx context.Context, userID, assignmentID uuid.UUID, claimedSeconds int) (*AwardResult, error) {
	a, err := s.assignments.GetByID(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if a.UserID != userID {
		return nil, apperror.NotFound("assignment", assignmentID.String())
	}
	if a.Status == models.AssignmentCompleted {
		return nil, apperror.Conflict("already completed")
	}
	if claimedSeconds < a.WatchSecondsRequired {
		return nil, apperror.Validation("watch_seconds",
			fmt.Sprintf("watched %d of %d required seconds", claimedSeconds, a.WatchSecondsRequired))
	}
	if a.WatchedMillis < int64(a.WatchSecondsRequired)*1000 {
		return nil, apperror.Validation("watch_seconds", "watch time has not been verified")
	}

	res := &AwardResult{Reward: a.Reward}
	err = db.InTx(ctx, s.db, func(tx pgx.Tx) error {
		ok, err := s.assignments.Complete(ctx, tx, a.ID, userID, s.now())
		if err != nil {
			return err
		}
		if !ok {
			return apperror.Conflict("already completed")
		}
		v, err := s.videos.ClaimSlot(ctx, tx, a.VideoID, a.Reward)
		if errors.Is(err, repository.ErrSlotUnavailable) {
			return errJobExhausted
		}
		if err != nil {
			return err
		}
		t, err := s.ledger.Credit(ctx, tx, ledger.Entry{
			UserID:    userID,
			Type:      models.TxEarnWatch,
			Amount:    a.Reward,
			Reason:    "watched " + a.YouTubeID,
			Reference: "watch:" + a.ID.String(),
		})
		if err != nil {
			return err
		}
		res.Transaction, res.Balance, res.Video = t, t.BalanceAfter, v
		return nil
	})
	if err != nil {
		if errors.Is(err, errJobExhausted) {
			// The slot is gone for good; free the user for their next job.
			if _, derr := s.assignments.Delete(ctx, a.ID, userID); derr != nil {
				s.log.Error("drop exhausted assignment", "error", derr, "assignment_id", a.ID)
			}
		}
		return nil, err
	}

	s.log.Info("watch rewarded", "user_id", userID, "video_id", a.VideoID, "reward", a.Reward)
	s.events.PublishBalance(userID, res.Balance)
	s.events.Publish(events.Event{Name: events.QueueChanged})
	s.events.Publish(events.Event{UserID: res.Video.OwnerID, Name: events.VideoUpdated, Payload: res.Video})
	if res.Video.Status == models.VideoCompleted && s.notifications != nil {
		s.notifications.notifyUser(ctx, res.Video.OwnerID, models.NotifyVideoCompleted,
			"Your video reached its goal",
			fmt.Sprintf("%q received all %d requested watches.", res.Video.Title, res.Video.RequestedWatches),
			"chime")
	}
	return res, nil
}
