package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/watchcoin/backend/internal/apperror"
	"github.com/watchcoin/backend/internal/models"
)

const videoColumns = `id, owner_id, youtube_id, title, channel, thumbnail, duration_seconds,
	watch_seconds_required, requested_watches, completed_watches, reward, boost, boost_fee,
	escrow_remaining, status, created_at, updated_at`

type VideoRepo struct {
	pool *pgxpool.Pool
}

func NewVideoRepo(pool *pgxpool.Pool) *VideoRepo {
	return &VideoRepo{pool: pool}
}

func scanVideo(row pgx.Row) (*models.Video, error) {
	var v models.Video
	err := row.Scan(&v.ID, &v.OwnerID, &v.YouTubeID, &v.Title, &v.Channel, &v.Thumbnail, &v.DurationSeconds,
		&v.WatchSecondsRequired, &v.RequestedWatches, &v.CompletedWatches, &v.Reward, &v.Boost, &v.BoostFee,
		&v.EscrowRemaining, &v.Status, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *VideoRepo) Create(ctx context.Context, tx pgx.Tx, v *models.Video) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO videos (id, owner_id, youtube_id, title, channel, thumbnail, duration_seconds,
			watch_seconds_required, requested_watches, reward, boost, boost_fee, escrow_remaining, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at, updated_at
	`, v.ID, v.OwnerID, v.YouTubeID, v.Title, v.Channel, v.Thumbnail, v.DurationSeconds,
		v.WatchSecondsRequired, v.RequestedWatches, v.Reward, v.Boost, v.BoostFee, v.EscrowRemaining, v.Status,
	).Scan(&v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert video: %w", err)
	}
	return nil
}

func (r *VideoRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Video, error) {
	v, err := scanVideo(r.pool.QueryRow(ctx, `SELECT `+videoColumns+` FROM videos WHERE id = $1`, id))
	if isNoRows(err) {
		return nil, apperror.NotFound("video", id.String())
	}
	if err != nil {
		return nil, fmt.Errorf("get video: %w", err)
	}
	return v, nil
}

// GetForUpdate locks the video row. Call within a transaction.
func (r *VideoRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Video, error) {
	v, err := scanVideo(tx.QueryRow(ctx, `SELECT `+videoColumns+` FROM videos WHERE id = $1 FOR UPDATE`, id))
	if isNoRows(err) {
		return nil, apperror.NotFound("video", id.String())
	}
	if err != nil {
		return nil, fmt.Errorf("lock video: %w", err)
	}
	return v, nil
}

func (r *VideoRepo) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Video, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+videoColumns+` FROM videos
		WHERE owner_id = $1 AND status <> 'removed'
		ORDER BY created_at DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	defer rows.Close()

	var out []models.Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

func (r *VideoRepo) SetStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string) error {
	tag, err := tx.Exec(ctx, `UPDATE videos SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("set video status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("video", id.String())
	}
	return nil
}

// Remove marks the video removed and zeroes its escrow.
func (r *VideoRepo) Remove(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	tag, err := tx.Exec(ctx, `
		UPDATE videos SET status = 'removed', escrow_remaining = 0, updated_at = now()
		WHERE id = $1 AND status <> 'removed'
	`, id)
	if err != nil {
		return fmt.Errorf("remove video: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("video", id.String())
	}
	return nil
}

// ClaimSlot pays one watch out of the video's escrow. The update only matches
// while a slot is free, so concurrent claims can never exceed the requested
// watches. The video flips to completed on the last slot.
func (r *VideoRepo) ClaimSlot(ctx context.Context, tx pgx.Tx, id uuid.UUID, reward int64) (*models.Video, error) {
	v, err := scanVideo(tx.QueryRow(ctx, `
		UPDATE videos
		SET completed_watches = completed_watches + 1,
			escrow_remaining = escrow_remaining - $2,
			status = CASE WHEN completed_watches + 1 >= requested_watches THEN 'completed' ELSE status END,
			updated_at = now()
		WHERE id = $1
			AND status = 'active'
			AND completed_watches < requested_watches
			AND escrow_remaining >= $2
		RETURNING `+videoColumns, id, reward))
	if isNoRows(err) {
		return nil, ErrSlotUnavailable
	}
	if err != nil {
		return nil, fmt.Errorf("claim slot: %w", err)
	}
	return v, nil
}

// Candidates returns the oldest videos userID may be assigned: active, not
// their own, never assigned to them, with a free slot after counting live
// assignments.
func (r *VideoRepo) Candidates(ctx context.Context, userID uuid.UUID, staleBefore time.Time, limit int) ([]models.Video, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+videoColumns+` FROM videos v
		WHERE v.status = 'active'
			AND v.owner_id <> $1
			AND v.completed_watches < v.requested_watches
			AND NOT EXISTS (
				SELECT 1 FROM watch_assignments a WHERE a.video_id = v.id AND a.user_id = $1
			)
			AND v.requested_watches - v.completed_watches > (
				SELECT count(*) FROM watch_assignments a
				WHERE a.video_id = v.id AND a.status = 'active' AND a.last_heartbeat_at >= $2
			)
		ORDER BY v.created_at ASC
		LIMIT $3
	`, userID, staleBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	defer rows.Close()

	var out []models.Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}
