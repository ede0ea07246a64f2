package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/watchcoin/backend/internal/apperror"
	"github.com/watchcoin/backend/internal/auth"
	"github.com/watchcoin/backend/internal/config"
	"github.com/watchcoin/backend/internal/db"
	"github.com/watchcoin/backend/internal/events"
	"github.com/watchcoin/backend/internal/models"
	"github.com/watchcoin/backend/internal/videos"
)

// SubmitRequest is a new watch job from a submitter.
type SubmitRequest struct {
	Source           string `json:"source"`
	WatchSeconds     int    `json:"watch_seconds"`
	RequestedWatches int    `json:"requested_watches"`
	Boost            int    `json:"boost"`
}

// Submission is a created video plus the submitter's balance after paying.
type Submission struct {
	Video   *models.Video `json:"video"`
	Quote   Quote         `json:"quote"`
	Balance int64         `json:"balance"`
}

// VideoService handles the spend side: submitting, pausing and removing videos.
type VideoService struct {
	db       db.TxBeginner
	videos   VideoStore
	escrow   *EscrowService
	metadata videos.Provider
	events   events.Publisher
	cfg      config.WatchConfig
	log      *slog.Logger
}

func NewVideoService(txb db.TxBeginner, store VideoStore, escrow *EscrowService, metadata videos.Provider,
	pub events.Publisher, cfg config.WatchConfig, log *slog.Logger) *VideoService {
	if log == nil {
		log = slog.Default()
	}
	return &VideoService{
		db:       txb,
		videos:   store,
		escrow:   escrow,
		metadata: metadata,
		events:   pub,
		cfg:      cfg,
		log:      log,
	}
}

func (s *VideoService) validate(req SubmitRequest) error {
	if req.WatchSeconds < s.cfg.MinWatchSeconds || req.WatchSeconds > s.cfg.MaxWatchSeconds {
		return apperror.Validation("watch_seconds",
			fmt.Sprintf("watch_seconds must be between %d and %d", s.cfg.MinWatchSeconds, s.cfg.MaxWatchSeconds))
	}
	if req.RequestedWatches < 1 || req.RequestedWatches > s.cfg.MaxRequestedWatches {
		return apperror.Validation("requested_watches",
			fmt.Sprintf("requested_watches must be between 1 and %d", s.cfg.MaxRequestedWatches))
	}
	if req.Boost < 0 || req.Boost > s.cfg.MaxBoost {
		return apperror.Validation("boost", fmt.Sprintf("boost must be between 0 and %d", s.cfg.MaxBoost))
	}
	return nil
}

// Submit creates a video and debits its escrow and boost fee from the owner.
func (s *VideoService) Submit(ctx context.Context, ownerID uuid.UUID, req SubmitRequest) (*Submission, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	youtubeID, err := videos.ParseSource(req.Source)
	if err != nil {
		return nil, apperror.Validation("source", err.Error())
	}

	meta := videos.Fallback(youtubeID)
	if s.metadata != nil {
		m, err := s.metadata.Lookup(ctx, videos.WatchURL(youtubeID))
		if err != nil {
			s.log.Warn("video metadata lookup failed", "error", err, "youtube_id", youtubeID)
		} else {
			meta = mergeMetadata(m, meta)
		}
	}
	if meta.DurationSeconds > 0 && req.WatchSeconds > meta.DurationSeconds {
		return nil, apperror.Validation("watch_seconds", "watch_seconds exceeds the video length")
	}

	quote := s.escrow.Quote(req.WatchSeconds, req.RequestedWatches, req.Boost)
	v := &models.Video{
		ID:                   uuid.New(),
		OwnerID:              ownerID,
		YouTubeID:            youtubeID,
		Title:                meta.Title,
		Channel:              meta.Channel,
		Thumbnail:            meta.Thumbnail,
		DurationSeconds:      meta.DurationSeconds,
		WatchSecondsRequired: req.WatchSeconds,
		RequestedWatches:     req.RequestedWatches,
		Reward:               quote.Reward,
		Boost:                req.Boost,
		BoostFee:             quote.BoostFee,
		EscrowRemaining:      quote.Escrow,
		Status:               models.VideoActive,
	}

	var balance int64
	err = db.InTx(ctx, s.db, func(tx pgx.Tx) error {
		if err := s.videos.Create(ctx, tx, v); err != nil {
			return err
		}
		t, err := s.escrow.Fund(ctx, tx, v)
		if err != nil {
			return err
		}
		balance = t.BalanceAfter
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("video submitted", "user_id", ownerID, "video_id", v.ID, "cost", quote.Total)
	s.events.PublishBalance(ownerID, balance)
	s.events.Publish(events.Event{Name: events.QueueChanged})
	return &Submission{Video: v, Quote: quote, Balance: balance}, nil
}

func mergeMetadata(m, fallback videos.Metadata) videos.Metadata {
	if m.Title == "" {
		m.Title = fallback.Title
	}
	if m.Thumbnail == "" {
		m.Thumbnail = fallback.Thumbnail
	}
	return m
}

func (s *VideoService) ListMine(ctx context.Context, ownerID uuid.UUID) ([]models.Video, error) {
	list, err := s.videos.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.Video{}
	}
	return list, nil
}

// SetPaused pauses or resumes the owner's video.
func (s *VideoService) SetPaused(ctx context.Context, ownerID, videoID uuid.UUID, paused bool) (*models.Video, error) {
	var v *models.Video
	err := db.InTx(ctx, s.db, func(tx pgx.Tx) error {
		var err error
		v, err = s.videos.GetForUpdate(ctx, tx, videoID)
		if err != nil {
			return err
		}
		if v.OwnerID != ownerID {
			return apperror.Forbidden("only the owner can change this video")
		}
		from, to := models.VideoActive, models.VideoPaused
		if !paused {
			from, to = models.VideoPaused, models.VideoActive
		}
		if v.Status == to {
			return nil
		}
		if v.Status != from {
			return apperror.State(fmt.Sprintf("video is %s", v.Status))
		}
		if err := s.videos.SetStatus(ctx, tx, v.ID, to); err != nil {
			return err
		}
		v.Status = to
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.events.Publish(events.Event{Name: events.QueueChanged})
	return v, nil
}

// Remove takes the owner's video down and refunds its remaining escrow.
func (s *VideoService) Remove(ctx context.Context, p auth.Principal, videoID uuid.UUID) (*models.Video, error) {
	return s.remove(ctx, videoID, func(v *models.Video) error {
		if v.OwnerID != p.UserID && p.Role != models.RoleAdmin {
			return apperror.Forbidden("only the owner can remove this video")
		}
		return nil
	})
}

func (s *VideoService) remove(ctx context.Context, videoID uuid.UUID, allow func(*models.Video) error) (*models.Video, error) {
	var (
		v      *models.Video
		refund *models.Transaction
	)
	err := db.InTx(ctx, s.db, func(tx pgx.Tx) error {
		var err error
		v, err = s.videos.GetForUpdate(ctx, tx, videoID)
		if err != nil {
			return err
		}
		if err := allow(v); err != nil {
			return err
		}
		if v.Status == models.VideoRemoved {
			return apperror.State("video is already removed")
		}
		refund, err = s.escrow.Refund(ctx, tx, v)
		if err != nil {
			return err
		}
		if err := s.videos.Remove(ctx, tx, v.ID); err != nil {
			return err
		}
		v.Status, v.EscrowRemaining = models.VideoRemoved, 0
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("video removed", "video_id", v.ID, "owner_id", v.OwnerID)
	if refund != nil {
		s.events.PublishBalance(v.OwnerID, refund.BalanceAfter)
	}
	s.events.Publish(events.Event{Name: events.QueueChanged})
	s.events.Publish(events.Event{UserID: v.OwnerID, Name: events.VideoUpdated, Payload: v})
	return v, nil
}

// Moderate sets a video's status on behalf of staff. Removal refunds the
// owner like an owner removal. Moderators may only flag or pause.
func (s *VideoService) Moderate(ctx context.Context, p auth.Principal, videoID uuid.UUID, status string) (*models.Video, error) {
	switch status {
	case models.VideoFlagged, models.VideoPaused:
	case models.VideoActive, models.VideoRemoved:
		if p.Role != models.RoleAdmin {
			return nil, apperror.Forbidden("only admins can set this status")
		}
	default:
		return nil, apperror.Validation("status", fmt.Sprintf("unsupported status %q", status))
	}

	if status == models.VideoRemoved {
		return s.remove(ctx, videoID, func(*models.Video) error { return nil })
	}

	var v *models.Video
	err := db.InTx(ctx, s.db, func(tx pgx.Tx) error {
		var err error
		v, err = s.videos.GetForUpdate(ctx, tx, videoID)
		if err != nil {
			return err
		}
		if v.Status == models.VideoRemoved || v.Status == models.VideoCompleted {
			return apperror.State(fmt.Sprintf("video is %s", v.Status))
		}
		if err := s.videos.SetStatus(ctx, tx, v.ID, status); err != nil {
			return err
		}
		v.Status = status
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("video moderated", "video_id", v.ID, "status", status, "by", p.UserID)
	s.events.Publish(events.Event{Name: events.QueueChanged})
	s.events.Publish(events.Event{UserID: v.OwnerID, Name: events.VideoUpdated, Payload: v})
	return v, nil
}
