package models

import (
	"time"

	"github.com/google/uuid"
)

// Assignment statuses. Skipped and stale assignments are deleted rather than
// kept with a terminal status.
const (
	AssignmentActive    = "active"
	AssignmentCompleted = "completed"
)

// WatchAssignment is a watch job handed to one user for one video. The
// Session* fields persist the server-side tracker between heartbeats.
type WatchAssignment struct {
	ID                   uuid.UUID  `json:"id"`
	UserID               uuid.UUID  `json:"user_id"`
	VideoID              uuid.UUID  `json:"video_id"`
	YouTubeID            string     `json:"youtube_id"`
	Title                string     `json:"title"`
	WatchSecondsRequired int        `json:"watch_seconds_required"`
	Reward               int64      `json:"reward"`
	Status               string     `json:"status"`
	SessionState         string     `json:"session_state"`
	SessionPlaying       bool       `json:"-"`
	SessionHidden        bool       `json:"-"`
	WatchedMillis        int64      `json:"watched_ms"`
	LastEventAt          *time.Time `json:"-"`
	LastHeartbeatAt      time.Time  `json:"last_heartbeat_at"`
	CreatedAt            time.Time  `json:"created_at"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`
}
