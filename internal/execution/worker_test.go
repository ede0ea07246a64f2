package execution

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchcoin/backend/internal/apperror"
	"github.com/watchcoin/backend/internal/models"
)

type confirmerFunc func(ctx context.Context, provider, ref string) (*models.Payment, error)

func (f confirmerFunc) ConfirmByRef(ctx context.Context, provider, ref string) (*models.Payment, error) {
	return f(ctx, provider, ref)
}

func confirmJob(provider, ref string) *river.Job[ConfirmPaymentArgs] {
	return &river.Job[ConfirmPaymentArgs]{
		JobRow: &rivertype.JobRow{ID: 1, Attempt: 1},
		Args:   ConfirmPaymentArgs{Provider: provider, ProviderRef: ref},
	}
}

func TestConfirmPaymentWorker(t *testing.T) {
	var gotProvider, gotRef string
	w := NewConfirmPaymentWorker(confirmerFunc(func(_ context.Context, provider, ref string) (*models.Payment, error) {
		gotProvider, gotRef = provider, ref
		return &models.Payment{ID: uuid.New(), Status: models.PaymentCompleted}, nil
	}), nil)

	require.NoError(t, w.Work(context.Background(), confirmJob("stripe", "cs_1")))
	assert.Equal(t, "stripe", gotProvider)
	assert.Equal(t, "cs_1", gotRef)
}

func TestConfirmPaymentWorkerErrors(t *testing.T) {
	upstream := apperror.Upstream("provider down", errors.New("503"))
	tests := []struct {
		name   string
		err    error
		wantIs error
	}{
		{"pending snoozes", ErrPaymentPending, nil},
		{"unknown payment cancels", apperror.NotFound("payment", "cs_x"), apperror.ErrNotFound},
		{"upstream retries", upstream, apperror.ErrUpstream},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewConfirmPaymentWorker(confirmerFunc(func(context.Context, string, string) (*models.Payment, error) {
				return nil, tt.err
			}), nil)
			err := w.Work(context.Background(), confirmJob("stripe", "cs_x"))
			require.Error(t, err)
			if tt.wantIs != nil {
				assert.ErrorIs(t, err, tt.wantIs)
			}
		})
	}
}

type sweeperFunc func(ctx context.Context) (int64, error)

func (f sweeperFunc) SweepStale(ctx context.Context) (int64, error) { return f(ctx) }

func TestSweepStaleWorker(t *testing.T) {
	calls := 0
	w := NewSweepStaleWorker(sweeperFunc(func(context.Context) (int64, error) {
		calls++
		return 3, nil
	}))
	job := &river.Job[SweepStaleArgs]{JobRow: &rivertype.JobRow{ID: 2}}

	require.NoError(t, w.Work(context.Background(), job))
	assert.Equal(t, 1, calls)
}

type notifierFunc func(ctx context.Context, userID *uuid.UUID, kind, title, message, sound string) (*models.Notification, error)

func (f notifierFunc) Notify(ctx context.Context, userID *uuid.UUID, kind, title, message, sound string) (*models.Notification, error) {
	return f(ctx, userID, kind, title, message, sound)
}

func TestBroadcastNotificationWorker(t *testing.T) {
	var got struct {
		userID *uuid.UUID
		kind   string
		title  string
	}
	w := NewBroadcastNotificationWorker(notifierFunc(func(_ context.Context, userID *uuid.UUID, kind, title, _, _ string) (*models.Notification, error) {
		got.userID, got.kind, got.title = userID, kind, title
		return &models.Notification{}, nil
	}))
	job := &river.Job[BroadcastNotificationArgs]{
		JobRow: &rivertype.JobRow{ID: 3},
		Args:   BroadcastNotificationArgs{RequestedBy: uuid.New(), Title: "Maintenance", Message: "Back soon"},
	}

	require.NoError(t, w.Work(context.Background(), job))
	assert.Nil(t, got.userID)
	assert.Equal(t, models.NotifyAnnouncement, got.kind)
	assert.Equal(t, "Maintenance", got.title)
}

func TestArgsKindsAndUniqueness(t *testing.T) {
	assert.Equal(t, "confirm_payment", ConfirmPaymentArgs{}.Kind())
	assert.Equal(t, "sweep_stale_assignments", SweepStaleArgs{}.Kind())
	assert.Equal(t, "broadcast_notification", BroadcastNotificationArgs{}.Kind())

	opts := ConfirmPaymentArgs{}.InsertOpts()
	assert.True(t, opts.UniqueOpts.ByArgs)
	assert.NotContains(t, opts.UniqueOpts.ByState, rivertype.JobStateCompleted)
}
