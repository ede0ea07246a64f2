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

const assignmentSelect = `
	SELECT a.id, a.user_id, a.video_id, v.youtube_id, v.title, a.watch_seconds_required, a.reward,
		a.status, a.session_state, a.session_playing, a.session_hidden, a.watched_ms, a.last_event_at,
		a.last_heartbeat_at, a.created_at, a.completed_at
	FROM watch_assignments a
	JOIN videos v ON v.id = a.video_id`

type AssignmentRepo struct {
	pool *pgxpool.Pool
}

func NewAssignmentRepo(pool *pgxpool.Pool) *AssignmentRepo {
	return &AssignmentRepo{pool: pool}
}

func scanAssignment(row pgx.Row) (*models.WatchAssignment, error) {
	var a models.WatchAssignment
	err := row.Scan(&a.ID, &a.UserID, &a.VideoID, &a.YouTubeID, &a.Title, &a.WatchSecondsRequired, &a.Reward,
		&a.Status, &a.SessionState, &a.SessionPlaying, &a.SessionHidden, &a.WatchedMillis, &a.LastEventAt,
		&a.LastHeartbeatAt, &a.CreatedAt, &a.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Create inserts a live assignment. A second live assignment for the same
// user violates the partial unique index and yields ErrLiveAssignment.
func (r *AssignmentRepo) Create(ctx context.Context, tx pgx.Tx, a *models.WatchAssignment) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO watch_assignments (id, user_id, video_id, watch_seconds_required, reward, status,
			session_state, last_heartbeat_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`, a.ID, a.UserID, a.VideoID, a.WatchSecondsRequired, a.Reward, a.Status, a.SessionState, a.LastHeartbeatAt,
	).Scan(&a.CreatedAt)
	if isUniqueViolation(err) {
		return ErrLiveAssignment
	}
	if err != nil {
		return fmt.Errorf("insert assignment: %w", err)
	}
	return nil
}

func (r *AssignmentRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.WatchAssignment, error) {
	a, err := scanAssignment(r.pool.QueryRow(ctx, assignmentSelect+` WHERE a.id = $1`, id))
	if isNoRows(err) {
		return nil, apperror.NotFound("assignment", id.String())
	}
	if err != nil {
		return nil, fmt.Errorf("get assignment: %w", err)
	}
	return a, nil
}

// GetLive returns the user's active assignment, or nil when there is none.
func (r *AssignmentRepo) GetLive(ctx context.Context, userID uuid.UUID) (*models.WatchAssignment, error) {
	a, err := scanAssignment(r.pool.QueryRow(ctx, assignmentSelect+` WHERE a.user_id = $1 AND a.status = 'active'`, userID))
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get live assignment: %w", err)
	}
	return a, nil
}

// CountLive counts fresh active assignments on a video.
func (r *AssignmentRepo) CountLive(ctx context.Context, tx pgx.Tx, videoID uuid.UUID, staleBefore time.Time) (int, error) {
	var n int
	err := tx.QueryRow(ctx, `
		SELECT count(*) FROM watch_assignments
		WHERE video_id = $1 AND status = 'active' AND last_heartbeat_at >= $2
	`, videoID, staleBefore).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count live assignments: %w", err)
	}
	return n, nil
}

// SaveSession persists the tracker snapshot of an active assignment.
func (r *AssignmentRepo) SaveSession(ctx context.Context, a *models.WatchAssignment) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE watch_assignments
		SET session_state = $2, session_playing = $3, session_hidden = $4, watched_ms = $5, last_event_at = $6,
			last_heartbeat_at = $7
		WHERE id = $1 AND status = 'active'
	`, a.ID, a.SessionState, a.SessionPlaying, a.SessionHidden, a.WatchedMillis, a.LastEventAt, a.LastHeartbeatAt)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("assignment", a.ID.String())
	}
	return nil
}

// Complete flips an active assignment to completed. It reports false when the
// assignment was not active, which is how a double completion is detected.
func (r *AssignmentRepo) Complete(ctx context.Context, tx pgx.Tx, id, userID uuid.UUID, at time.Time) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE watch_assignments SET status = 'completed', completed_at = $3
		WHERE id = $1 AND user_id = $2 AND status = 'active'
	`, id, userID, at)
	if err != nil {
		return false, fmt.Errorf("complete assignment: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Delete drops an active assignment owned by userID.
func (r *AssignmentRepo) Delete(ctx context.Context, id, userID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM watch_assignments WHERE id = $1 AND user_id = $2 AND status = 'active'
	`, id, userID)
	if err != nil {
		return false, fmt.Errorf("delete assignment: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// DeleteStale drops active assignments with no heartbeat since before.
func (r *AssignmentRepo) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM watch_assignments WHERE status = 'active' AND last_heartbeat_at < $1
	`, before)
	if err != nil {
		return 0, fmt.Errorf("delete stale assignments: %w", err)
	}
	return tag.RowsAffected(), nil
}
