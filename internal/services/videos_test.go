package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchcoin/backend/internal/apperror"
	"github.com/watchcoin/backend/internal/auth"
	"github.com/watchcoin/backend/internal/models"
	"github.com/watchcoin/backend/internal/videos"
)

func TestQuote(t *testing.T) {
	s := NewEscrowService(nil, 10)
	q := s.Quote(30, 10, 2)
	assert.Equal(t, Quote{Reward: 30, Escrow: 300, BoostFee: 200, Total: 500}, q)

	assert.Equal(t, int64(0), s.Quote(30, 10, 0).BoostFee)
}

func TestSubmitDebitsEscrowAndFee(t *testing.T) {
	e := newEnv(t)
	owner := e.user(1000)

	sub, err := e.videos.Submit(e.ctx, owner, SubmitRequest{
		Source:           "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		WatchSeconds:     30,
		RequestedWatches: 10,
		Boost:            2,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(500), sub.Balance)
	assert.Equal(t, "dQw4w9WgXcQ", sub.Video.YouTubeID)
	assert.Equal(t, "Launch trailer", sub.Video.Title)
	assert.Equal(t, int64(300), sub.Video.EscrowRemaining)
	assert.Equal(t, int64(200), sub.Video.BoostFee)
	assert.Equal(t, int64(30), sub.Video.Reward)

	spends := e.ledgerStore.Entries(owner, models.TxSpendCoins)
	require.Len(t, spends, 1)
	assert.Equal(t, int64(-500), spends[0].Amount)
	e.requireLedgerConsistent(owner)
}

func TestSubmitRejectsOverdraftWithoutSideEffects(t *testing.T) {
	e := newEnv(t)
	owner := e.user(100)

	_, err := e.videos.Submit(e.ctx, owner, SubmitRequest{Source: "dQw4w9WgXcQ", WatchSeconds: 15, RequestedWatches: 10})
	require.ErrorIs(t, err, apperror.ErrInsufficientFunds)

	assert.Equal(t, int64(100), e.ledgerStore.Balance(owner))
	list, err := e.videos.ListMine(e.ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, list, "the video insert rolled back with the debit")
}

func TestSubmitValidation(t *testing.T) {
	e := newEnv(t)
	owner := e.user(100000)

	tests := []struct {
		name  string
		req   SubmitRequest
		field string
	}{
		{"too short", SubmitRequest{Source: "dQw4w9WgXcQ", WatchSeconds: 9, RequestedWatches: 1}, "watch_seconds"},
		{"too long", SubmitRequest{Source: "dQw4w9WgXcQ", WatchSeconds: 3601, RequestedWatches: 1}, "watch_seconds"},
		{"no watches", SubmitRequest{Source: "dQw4w9WgXcQ", WatchSeconds: 10, RequestedWatches: 0}, "requested_watches"},
		{"too many watches", SubmitRequest{Source: "dQw4w9WgXcQ", WatchSeconds: 10, RequestedWatches: 10001}, "requested_watches"},
		{"boost", SubmitRequest{Source: "dQw4w9WgXcQ", WatchSeconds: 10, RequestedWatches: 1, Boost: 11}, "boost"},
		{"bad source", SubmitRequest{Source: "https://example.com/video", WatchSeconds: 10, RequestedWatches: 1}, "source"},
		{"longer than video", SubmitRequest{Source: "dQw4w9WgXcQ", WatchSeconds: 601, RequestedWatches: 1}, "watch_seconds"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.videos.Submit(e.ctx, owner, tt.req)
			require.ErrorIs(t, err, apperror.ErrValidation)
			var appErr *apperror.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tt.field, appErr.Field)
		})
	}
	assert.Equal(t, int64(100000), e.ledgerStore.Balance(owner))
}

func TestSubmitDegradesWhenMetadataFails(t *testing.T) {
	e := newEnv(t)
	e.videos.metadata = videos.ProviderFunc(func(context.Context, string) (videos.Metadata, error) {
		return videos.Metadata{}, errors.New("yt-dlp: exit status 1")
	})
	owner := e.user(100)

	sub, err := e.videos.Submit(e.ctx, owner, SubmitRequest{Source: "dQw4w9WgXcQ", WatchSeconds: 10, RequestedWatches: 1})
	require.NoError(t, err)
	assert.Equal(t, videos.Fallback("dQw4w9WgXcQ").Title, sub.Video.Title)
	assert.NotEmpty(t, sub.Video.Thumbnail)
}

func TestPauseAndResume(t *testing.T) {
	e := newEnv(t)
	owner, stranger := e.user(0), e.user(0)
	v := e.video(owner, 10, 2, 0)

	_, err := e.videos.SetPaused(e.ctx, stranger, v.ID, true)
	require.ErrorIs(t, err, apperror.ErrForbidden)

	got, err := e.videos.SetPaused(e.ctx, owner, v.ID, true)
	require.NoError(t, err)
	assert.Equal(t, models.VideoPaused, got.Status)

	a, err := e.queue.Next(e.ctx, stranger)
	require.NoError(t, err)
	assert.Nil(t, a, "paused videos are not served")

	got, err = e.videos.SetPaused(e.ctx, owner, v.ID, false)
	require.NoError(t, err)
	assert.Equal(t, models.VideoActive, got.Status)
}

func TestRemoveRefundsExactlyRemainingEscrow(t *testing.T) {
	e := newEnv(t)
	owner, viewer := e.user(1000), e.user(0)

	sub, err := e.videos.Submit(e.ctx, owner, SubmitRequest{Source: "dQw4w9WgXcQ", WatchSeconds: 20, RequestedWatches: 5, Boost: 1})
	require.NoError(t, err)
	// 100 escrow + 50 boost fee
	assert.Equal(t, int64(850), sub.Balance)

	a := e.watched(viewer, *sub.Video, 20)
	_, err = e.award.Complete(e.ctx, viewer, a.ID, 20)
	require.NoError(t, err)

	removed, err := e.videos.Remove(e.ctx, auth.Principal{UserID: owner, Role: models.RoleUser}, sub.Video.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VideoRemoved, removed.Status)

	refunds := e.ledgerStore.Entries(owner, models.TxRefundCoins)
	require.Len(t, refunds, 1)
	assert.Equal(t, int64(80), refunds[0].Amount)
	assert.Equal(t, int64(930), e.ledgerStore.Balance(owner))
	assert.Equal(t, int64(0), e.videoStore.Get(sub.Video.ID).EscrowRemaining)
	e.requireLedgerConsistent(owner, viewer)

	_, err = e.videos.Remove(e.ctx, auth.Principal{UserID: owner, Role: models.RoleUser}, sub.Video.ID)
	assert.ErrorIs(t, err, apperror.ErrState)
}

func TestRemoveByStrangerIsForbidden(t *testing.T) {
	e := newEnv(t)
	owner := e.user(0)
	v := e.video(owner, 10, 1, 0)

	_, err := e.videos.Remove(e.ctx, auth.Principal{UserID: uuid.New(), Role: models.RoleUser}, v.ID)
	assert.ErrorIs(t, err, apperror.ErrForbidden)
	assert.Equal(t, models.VideoActive, e.videoStore.Get(v.ID).Status)
}

func TestModerate(t *testing.T) {
	e := newEnv(t)
	owner := e.user(0)
	v := e.video(owner, 10, 4, 0)
	moderator := auth.Principal{UserID: uuid.New(), Role: models.RoleModerator}
	admin := auth.Principal{UserID: uuid.New(), Role: models.RoleAdmin}

	got, err := e.videos.Moderate(e.ctx, moderator, v.ID, models.VideoFlagged)
	require.NoError(t, err)
	assert.Equal(t, models.VideoFlagged, got.Status)

	_, err = e.videos.Moderate(e.ctx, moderator, v.ID, models.VideoRemoved)
	require.ErrorIs(t, err, apperror.ErrForbidden)

	_, err = e.videos.Moderate(e.ctx, admin, v.ID, "deleted")
	require.ErrorIs(t, err, apperror.ErrValidation)

	got, err = e.videos.Moderate(e.ctx, admin, v.ID, models.VideoRemoved)
	require.NoError(t, err)
	assert.Equal(t, models.VideoRemoved, got.Status)
	assert.Equal(t, int64(40), e.ledgerStore.Balance(owner), "admin removal refunds the owner")
}
