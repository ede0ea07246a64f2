package services

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchcoin/backend/internal/apperror"
	"github.com/watchcoin/backend/internal/auth"
	"github.com/watchcoin/backend/internal/models"
)

func adminPrincipal() auth.Principal {
	return auth.Principal{UserID: uuid.New(), Role: models.RoleAdmin, Status: models.StatusActive}
}

func TestAdjust(t *testing.T) {
	e := newEnv(t)
	u := e.user(100)
	admin := adminPrincipal()

	tx, err := e.admin.Adjust(e.ctx, admin, u, 50, "support credit")
	require.NoError(t, err)
	assert.Equal(t, int64(150), tx.BalanceAfter)
	assert.Equal(t, models.TxAdminAdjust, tx.Type)

	tx, err = e.admin.Adjust(e.ctx, admin, u, -30, "chargeback")
	require.NoError(t, err)
	assert.Equal(t, int64(120), tx.BalanceAfter)

	_, err = e.admin.Adjust(e.ctx, admin, u, -500, "chargeback")
	require.ErrorIs(t, err, apperror.ErrInsufficientFunds)

	_, err = e.admin.Adjust(e.ctx, admin, u, 10, " ")
	require.ErrorIs(t, err, apperror.ErrValidation)

	assert.Equal(t, int64(120), e.ledgerStore.Balance(u))
	assert.Len(t, e.notes.All(), 2, "each successful adjustment notifies the user")
	e.requireLedgerConsistent(u)
}

func TestUpdateUser(t *testing.T) {
	e := newEnv(t)
	u := e.user(0)
	admin := adminPrincipal()

	got, err := e.admin.UpdateUser(e.ctx, admin, u, models.StatusSuspended, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuspended, got.Status)
	assert.Equal(t, models.RoleUser, got.Role)

	got, err = e.admin.UpdateUser(e.ctx, admin, u, "", models.RoleModerator)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuspended, got.Status)
	assert.Equal(t, models.RoleModerator, got.Role)

	_, err = e.admin.UpdateUser(e.ctx, admin, u, "deleted", "")
	assert.ErrorIs(t, err, apperror.ErrValidation)
	_, err = e.admin.UpdateUser(e.ctx, admin, u, "", "")
	assert.ErrorIs(t, err, apperror.ErrValidation)
	_, err = e.admin.UpdateUser(e.ctx, admin, admin.UserID, models.StatusBanned, "")
	assert.ErrorIs(t, err, apperror.ErrState)
	_, err = e.admin.UpdateUser(e.ctx, admin, uuid.New(), models.StatusBanned, "")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestSuspendedUserCannotSpend(t *testing.T) {
	e := newEnv(t)
	u := e.user(1000)
	_, err := e.admin.UpdateUser(e.ctx, adminPrincipal(), u, models.StatusSuspended, "")
	require.NoError(t, err)

	_, err = e.videos.Submit(e.ctx, u, SubmitRequest{Source: "dQw4w9WgXcQ", WatchSeconds: 10, RequestedWatches: 1})
	require.ErrorIs(t, err, apperror.ErrState)
	assert.Equal(t, int64(1000), e.ledgerStore.Balance(u))
}

func TestReconcile(t *testing.T) {
	e := newEnv(t)
	good, bad := e.user(100), e.user(100)

	drift, err := e.admin.Reconcile(e.ctx)
	require.NoError(t, err)
	assert.NotNil(t, drift)
	assert.Empty(t, drift)

	e.ledgerStore.Corrupt(bad, 999)
	drift, err = e.admin.Reconcile(e.ctx)
	require.NoError(t, err)
	require.Len(t, drift, 1)
	assert.Equal(t, bad, drift[0].UserID)
	assert.NotEqual(t, good, drift[0].UserID)
}

func TestBroadcastQueuesJob(t *testing.T) {
	e := newEnv(t)
	admin := adminPrincipal()

	require.NoError(t, e.admin.Broadcast(e.ctx, admin, " Maintenance ", "Tonight", "alert"))
	require.Len(t, e.broadcasts, 1)
	assert.Equal(t, "Maintenance", e.broadcasts[0].Title)
	assert.Equal(t, admin.UserID, e.broadcasts[0].RequestedBy)
	assert.Empty(t, e.notes.All(), "delivery happens in the worker")

	err := e.admin.Broadcast(e.ctx, admin, "", "Tonight", "")
	assert.ErrorIs(t, err, apperror.ErrValidation)
	assert.Len(t, e.broadcasts, 1)
}

func TestBroadcastRejectsWhatDeliveryWouldRefuse(t *testing.T) {
	e := newEnv(t)
	admin := adminPrincipal()

	err := e.admin.Broadcast(e.ctx, admin, "Maintenance", strings.Repeat("x", maxMessageLength+1), "")
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "message", appErr.Field)
	assert.Empty(t, e.broadcasts, "nothing queued for a message the worker would drop")

	// Surrounding whitespace does not count against the limit.
	padded := "  " + strings.Repeat("x", maxMessageLength) + "  "
	require.NoError(t, e.admin.Broadcast(e.ctx, admin, "Maintenance", padded, ""))
	require.Len(t, e.broadcasts, 1)
	assert.Len(t, e.broadcasts[0].Message, maxMessageLength)

	// What Broadcast accepts, delivery accepts too.
	_, err = e.notifications.Notify(e.ctx, nil, models.NotifyAnnouncement, e.broadcasts[0].Title, e.broadcasts[0].Message, e.broadcasts[0].Sound)
	require.NoError(t, err)
}
