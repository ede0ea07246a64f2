package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/watchcoin/backend/internal/apperror"
	"github.com/watchcoin/backend/internal/config"
	"github.com/watchcoin/backend/internal/db"
	"github.com/watchcoin/backend/internal/events"
	"github.com/watchcoin/backend/internal/models"
	"github.com/watchcoin/backend/internal/repository"
	"github.com/watchcoin/backend/internal/watch"
)

// Progress is the tracker view returned to the player after each heartbeat.
type Progress struct {
	AssignmentID         uuid.UUID `json:"assignment_id"`
	State                string    `json:"state"`
	WatchedSeconds       int       `json:"watched_seconds"`
	WatchSecondsRequired int       `json:"watch_seconds_required"`
	Progress             int       `json:"progress"`
	Completed            bool      `json:"completed"`
}

// QueueService hands out watch assignments and keeps their server-side
// session trackers.
type QueueService struct {
	db          db.TxBeginner
	videos      VideoStore
	assignments AssignmentStore
	matcher     *Matcher
	events      events.Publisher
	cfg         config.WatchConfig
	log         *slog.Logger
	now         func() time.Time
}

func NewQueueService(txb db.TxBeginner, videos VideoStore, assignments AssignmentStore, matcher *Matcher,
	pub events.Publisher, cfg config.WatchConfig, log *slog.Logger) *QueueService {
	if log == nil {
		log = slog.Default()
	}
	return &QueueService{
		db:          txb,
		videos:      videos,
		assignments: assignments,
		matcher:     matcher,
		events:      pub,
		cfg:         cfg,
		log:         log,
		now:         time.Now,
	}
}

// Next returns the user's live assignment, or assigns a new video. It returns
// nil without error when nothing is available.
func (s *QueueService) Next(ctx context.Context, userID uuid.UUID) (*models.WatchAssignment, error) {
	now := s.now()
	staleBefore := now.Add(-s.cfg.StaleAfter)

	live, err := s.assignments.GetLive(ctx, userID)
	if err != nil {
		return nil, err
	}
	if live != nil {
		if !live.LastHeartbeatAt.Before(staleBefore) {
			return live, nil
		}
		if _, err := s.assignments.Delete(ctx, live.ID, userID); err != nil {
			return nil, err
		}
	}

	candidates, err := s.videos.Candidates(ctx, userID, staleBefore, s.cfg.CandidatePoolSize)
	if err != nil {
		return nil, err
	}
	for len(candidates) > 0 {
		i := s.matcher.Pick(candidates)
		a, err := s.assign(ctx, userID, candidates[i].ID, now, staleBefore)
		if errors.Is(err, repository.ErrLiveAssignment) {
			// A concurrent Next for the same user won.
			return s.assignments.GetLive(ctx, userID)
		}
		if err != nil {
			return nil, err
		}
		if a != nil {
			s.log.Info("watch assigned", "user_id", userID, "video_id", a.VideoID, "assignment_id", a.ID)
			return a, nil
		}
		candidates = append(candidates[:i], candidates[i+1:]...)
	}
	return nil, nil
}

// assign reserves a slot on videoID under the video row lock. It returns nil
// when the video filled up since the candidate query.
func (s *QueueService) assign(ctx context.Context, userID, videoID uuid.UUID, now, staleBefore time.Time) (*models.WatchAssignment, error) {
	var a *models.WatchAssignment
	err := db.InTx(ctx, s.db, func(tx pgx.Tx) error {
		v, err := s.videos.GetForUpdate(ctx, tx, videoID)
		if err != nil {
			return err
		}
		if v.Status != models.VideoActive || v.OwnerID == userID {
			return nil
		}
		live, err := s.assignments.CountLive(ctx, tx, videoID, staleBefore)
		if err != nil {
			return err
		}
		if live >= v.SlotsLeft() {
			return nil
		}
		a = &models.WatchAssignment{
			ID:                   uuid.New(),
			UserID:               userID,
			VideoID:              v.ID,
			YouTubeID:            v.YouTubeID,
			Title:                v.Title,
			WatchSecondsRequired: v.WatchSecondsRequired,
			Reward:               v.Reward,
			Status:               models.AssignmentActive,
			SessionState:         string(watch.StateIdle),
			LastHeartbeatAt:      now,
		}
		return s.assignments.Create(ctx, tx, a)
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Heartbeat feeds one player event into the assignment's tracker and
// persists the result. The server clock times every event.
func (s *QueueService) Heartbeat(ctx context.Context, userID, assignmentID uuid.UUID, ev watch.Event) (*Progress, error) {
	a, err := s.ownedAssignment(ctx, userID, assignmentID)
	if err != nil {
		return nil, err
	}
	if a.Status != models.AssignmentActive {
		return nil, apperror.Conflict("already completed")
	}

	now := s.now()
	sess := restoreSession(a, s.cfg.MaxHeartbeatGap)
	if _, err := sess.Apply(ev, now); err != nil {
		return nil, apperror.Validation("event", err.Error())
	}
	snap := sess.Snapshot()
	a.SessionState = string(snap.State)
	a.SessionPlaying = snap.Playing
	a.SessionHidden = snap.Hidden
	a.WatchedMillis = snap.WatchedMillis
	a.LastEventAt = snap.LastEventAt
	a.LastHeartbeatAt = now
	if err := s.assignments.SaveSession(ctx, a); err != nil {
		return nil, err
	}

	return &Progress{
		AssignmentID:         a.ID,
		State:                a.SessionState,
		WatchedSeconds:       sess.WatchedSeconds(),
		WatchSecondsRequired: a.WatchSecondsRequired,
		Progress:             sess.Progress(),
		Completed:            sess.Completed(),
	}, nil
}

// Skip drops the user's live assignment so the slot frees up immediately.
func (s *QueueService) Skip(ctx context.Context, userID, assignmentID uuid.UUID) error {
	ok, err := s.assignments.Delete(ctx, assignmentID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return apperror.NotFound("assignment", assignmentID.String())
	}
	s.events.Publish(events.Event{Name: events.QueueChanged})
	return nil
}

// SweepStale deletes assignments with no heartbeat inside the stale window.
func (s *QueueService) SweepStale(ctx context.Context) (int64, error) {
	n, err := s.assignments.DeleteStale(ctx, s.now().Add(-s.cfg.StaleAfter))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info("stale assignments swept", "count", n)
		s.events.Publish(events.Event{Name: events.QueueChanged})
	}
	return n, nil
}

func (s *QueueService) ownedAssignment(ctx context.Context, userID, assignmentID uuid.UUID) (*models.WatchAssignment, error) {
	a, err := s.assignments.GetByID(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if a.UserID != userID {
		return nil, apperror.NotFound("assignment", assignmentID.String())
	}
	return a, nil
}

func restoreSession(a *models.WatchAssignment, maxGap time.Duration) *watch.Session {
	required := time.Duration(a.WatchSecondsRequired) * time.Second
	return watch.Restore(watch.Snapshot{
		State:         watch.State(a.SessionState),
		Playing:       a.SessionPlaying,
		Hidden:        a.SessionHidden,
		WatchedMillis: a.WatchedMillis,
		LastEventAt:   a.LastEventAt,
	}, required, maxGap)
}
