package models

import (
	"time"

	"github.com/google/uuid"
)

// Notification types.
const (
	NotifyVideoCompleted   = "video_completed"
	NotifyPaymentCompleted = "payment_completed"
	NotifyAdminAdjustment  = "admin_adjustment"
	NotifyAnnouncement     = "announcement"
)

// Notification is addressed to one user, or to everyone when UserID is nil.
type Notification struct {
	ID        uuid.UUID  `json:"id"`
	UserID    *uuid.UUID `json:"user_id,omitempty"`
	Type      string     `json:"type"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Sound     string     `json:"sound,omitempty"`
	Read      bool       `json:"read"`
	CreatedAt time.Time  `json:"created_at"`
}
