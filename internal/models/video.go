package models

import (
	"time"

	"github.com/google/uuid"
)

// Video statuses.
const (
	VideoActive    = "active"
	VideoPaused    = "paused"
	VideoCompleted = "completed"
	VideoFlagged   = "flagged"
	VideoRemoved   = "removed"
)

// Video is a submitted watch job. Reward is paid per completed watch and
// EscrowRemaining is what is still held for unfilled slots.
type Video struct {
	ID                   uuid.UUID `json:"id"`
	OwnerID              uuid.UUID `json:"owner_id"`
	YouTubeID            string    `json:"youtube_id"`
	Title                string    `json:"title"`
	Channel              string    `json:"channel"`
	Thumbnail            string    `json:"thumbnail"`
	DurationSeconds      int       `json:"duration_seconds"`
	WatchSecondsRequired int       `json:"watch_seconds_required"`
	RequestedWatches     int       `json:"requested_watches"`
	CompletedWatches     int       `json:"completed_watches"`
	Reward               int64     `json:"reward"`
	Boost                int       `json:"boost"`
	BoostFee             int64     `json:"boost_fee"`
	EscrowRemaining      int64     `json:"escrow_remaining"`
	Status               string    `json:"status"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// SlotsLeft is the number of watches still payable.
func (v *Video) SlotsLeft() int {
	if n := v.RequestedWatches - v.CompletedWatches; n > 0 {
		return n
	}
	return 0
}
