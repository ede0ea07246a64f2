package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/watchcoin/backend/internal/apperror"
	"github.com/watchcoin/backend/internal/models"
)

// ErrPaymentPending is returned by a PaymentConfirmer while the provider has
// not decided the payment yet.
var ErrPaymentPending = errors.New("payment still pending at provider")

// pendingRecheck is how long a pending confirmation waits before asking the
// provider again.
const pendingRecheck = 30 * time.Second

// PaymentConfirmer defines the contract the confirm worker needs.
type PaymentConfirmer interface {
	ConfirmByRef(ctx context.Context, provider, providerRef string) (*models.Payment, error)
}

type ConfirmPaymentWorker struct {
	river.WorkerDefaults[ConfirmPaymentArgs]
	payments PaymentConfirmer
	log      *slog.Logger
}

func NewConfirmPaymentWorker(pc PaymentConfirmer, log *slog.Logger) *ConfirmPaymentWorker {
	if log == nil {
		log = slog.Default()
	}
	return &ConfirmPaymentWorker{payments: pc, log: log}
}

func (w *ConfirmPaymentWorker) Work(ctx context.Context, job *river.Job[ConfirmPaymentArgs]) error {
	args := job.Args
	p, err := w.payments.ConfirmByRef(ctx, args.Provider, args.ProviderRef)
	switch {
	case errors.Is(err, ErrPaymentPending):
		return river.JobSnooze(pendingRecheck)
	case errors.Is(err, apperror.ErrNotFound), errors.Is(err, apperror.ErrValidation):
		// Nothing we know about; retrying will not change that.
		w.log.Warn("payment confirmation cancelled", "error", err, "provider", args.Provider, "provider_ref", args.ProviderRef)
		return river.JobCancel(err)
	case err != nil:
		return fmt.Errorf("confirm payment %s/%s: %w", args.Provider, args.ProviderRef, err)
	}
	w.log.Info("payment confirmed", "payment_id", p.ID, "status", p.Status, "attempt", job.Attempt)
	return nil
}

// StaleSweeper defines the contract the sweep worker needs.
type StaleSweeper interface {
	SweepStale(ctx context.Context) (int64, error)
}

type SweepStaleWorker struct {
	river.WorkerDefaults[SweepStaleArgs]
	sweeper StaleSweeper
}

func NewSweepStaleWorker(s StaleSweeper) *SweepStaleWorker {
	return &SweepStaleWorker{sweeper: s}
}

func (w *SweepStaleWorker) Work(ctx context.Context, _ *river.Job[SweepStaleArgs]) error {
	if _, err := w.sweeper.SweepStale(ctx); err != nil {
		return fmt.Errorf("sweep stale assignments: %w", err)
	}
	return nil
}

// Notifier defines the contract the broadcast worker needs.
type Notifier interface {
	Notify(ctx context.Context, userID *uuid.UUID, kind, title, message, sound string) (*models.Notification, error)
}

type BroadcastNotificationWorker struct {
	river.WorkerDefaults[BroadcastNotificationArgs]
	notifier Notifier
}

func NewBroadcastNotificationWorker(n Notifier) *BroadcastNotificationWorker {
	return &BroadcastNotificationWorker{notifier: n}
}

func (w *BroadcastNotificationWorker) Work(ctx context.Context, job *river.Job[BroadcastNotificationArgs]) error {
	args := job.Args
	_, err := w.notifier.Notify(ctx, nil, models.NotifyAnnouncement, args.Title, args.Message, args.Sound)
	if errors.Is(err, apperror.ErrValidation) {
		return river.JobCancel(err)
	}
	return err
}
