package execution

import (
	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

// uniqueWhileLive dedupes jobs with equal args until one finishes, so a
// provider that retries its webhook does not stack confirmations, while a
// later webhook for the same payment can still queue a fresh check.
var uniqueWhileLive = river.UniqueOpts{
	ByArgs: true,
	ByState: []rivertype.JobState{
		rivertype.JobStateAvailable,
		rivertype.JobStatePending,
		rivertype.JobStateRetryable,
		rivertype.JobStateRunning,
		rivertype.JobStateScheduled,
	},
}

// ConfirmPaymentArgs asks the worker to confirm one provider payment and
// settle it when paid.
type ConfirmPaymentArgs struct {
	Provider    string `json:"provider"`
	ProviderRef string `json:"provider_ref"`
}

func (ConfirmPaymentArgs) Kind() string { return "confirm_payment" }

func (ConfirmPaymentArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{MaxAttempts: 12, UniqueOpts: uniqueWhileLive}
}

// SweepStaleArgs triggers the periodic stale assignment sweep.
type SweepStaleArgs struct{}

func (SweepStaleArgs) Kind() string { return "sweep_stale_assignments" }

func (SweepStaleArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{MaxAttempts: 1, UniqueOpts: uniqueWhileLive}
}

// BroadcastNotificationArgs fans an announcement out to every user.
type BroadcastNotificationArgs struct {
	RequestedBy uuid.UUID `json:"requested_by"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	Sound       string    `json:"sound,omitempty"`
}

func (BroadcastNotificationArgs) Kind() string { return "broadcast_notification" }
