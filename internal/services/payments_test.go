package services

import (
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchcoin/backend/internal/apperror"
	"github.com/watchcoin/backend/internal/events"
	"github.com/watchcoin/backend/internal/execution"
	"github.com/watchcoin/backend/internal/models"
	"github.com/watchcoin/backend/internal/payments"
)

func sandboxWebhook(ref, status string) ([]byte, http.Header) {
	body := []byte(fmt.Sprintf(`{"ref":%q,"status":%q}`, ref, status))
	h := http.Header{}
	h.Set("X-Sandbox-Signature", payments.SandboxSignature(sandboxSecret, body))
	return body, h
}

func TestCreatePaymentIsPending(t *testing.T) {
	e := newEnv(t)
	buyer := e.user(0)

	p, err := e.payments.Create(e.ctx, buyer, "starter", "sandbox")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, p.Status)
	assert.Equal(t, int64(500), p.Coins)
	require.NotNil(t, p.ProviderRef)
	assert.Contains(t, p.CheckoutURL, "sandbox_ref="+*p.ProviderRef)
	assert.Equal(t, int64(0), e.ledgerStore.Balance(buyer), "nothing is credited before confirmation")

	list, err := e.payments.List(e.ctx, buyer)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, p.ID, list[0].ID)
}

func TestCreatePaymentValidation(t *testing.T) {
	e := newEnv(t)
	buyer := e.user(0)

	_, err := e.payments.Create(e.ctx, buyer, "mega", "sandbox")
	require.ErrorIs(t, err, apperror.ErrValidation)

	_, err = e.payments.Create(e.ctx, buyer, "starter", "stripe")
	require.ErrorIs(t, err, apperror.ErrValidation)

	list, err := e.payments.List(e.ctx, buyer)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestConfirmCreditsOnce(t *testing.T) {
	e := newEnv(t)
	buyer := e.user(0)
	p, err := e.payments.Create(e.ctx, buyer, "starter", "sandbox")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		got, err := e.payments.ConfirmForUser(e.ctx, buyer, p.ID)
		require.NoError(t, err)
		assert.Equal(t, models.PaymentCompleted, got.Status)
	}
	_, err = e.payments.Settle(e.ctx, "sandbox", *p.ProviderRef)
	require.NoError(t, err)

	assert.Equal(t, int64(500), e.ledgerStore.Balance(buyer))
	assert.Len(t, e.ledgerStore.Entries(buyer, models.TxBuyCoins), 1)
	assert.Len(t, e.pub.Named(events.PaymentCompleted), 1)
	assert.Len(t, e.notes.All(), 1)
	e.requireLedgerConsistent(buyer)
}

func TestConcurrentSettleCreditsOnce(t *testing.T) {
	e := newEnv(t)
	buyer := e.user(0)
	p, err := e.payments.Create(e.ctx, buyer, "popular", "sandbox")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.payments.ConfirmByRef(e.ctx, "sandbox", *p.ProviderRef)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1200), e.ledgerStore.Balance(buyer))
	assert.Len(t, e.ledgerStore.Entries(buyer, models.TxBuyCoins), 1)
}

func TestConfirmOtherUsersPaymentIsNotFound(t *testing.T) {
	e := newEnv(t)
	buyer, other := e.user(0), e.user(0)
	p, err := e.payments.Create(e.ctx, buyer, "starter", "sandbox")
	require.NoError(t, err)

	_, err = e.payments.ConfirmForUser(e.ctx, other, p.ID)
	require.ErrorIs(t, err, apperror.ErrNotFound)
	assert.Equal(t, int64(0), e.ledgerStore.Balance(buyer))
	assert.Equal(t, int64(0), e.ledgerStore.Balance(other))
}

func TestFailedCheckoutIsMarkedFailed(t *testing.T) {
	e := newEnv(t)
	buyer := e.user(0)
	p, err := e.payments.Create(e.ctx, buyer, "starter", "sandbox")
	require.NoError(t, err)
	e.sandbox.Fail(*p.ProviderRef)

	got, err := e.payments.ConfirmForUser(e.ctx, buyer, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailed, got.Status)
	assert.Equal(t, int64(0), e.ledgerStore.Balance(buyer))

	// A late settle attempt cannot resurrect a failed payment.
	_, err = e.payments.Settle(e.ctx, "sandbox", *p.ProviderRef)
	require.NoError(t, err)
	assert.Equal(t, int64(0), e.ledgerStore.Balance(buyer))
}

func TestWebhookWithBadSignatureQueuesNothing(t *testing.T) {
	e := newEnv(t)
	buyer := e.user(0)
	p, err := e.payments.Create(e.ctx, buyer, "starter", "sandbox")
	require.NoError(t, err)

	body, _ := sandboxWebhook(*p.ProviderRef, "paid")
	h := http.Header{}
	h.Set("X-Sandbox-Signature", payments.SandboxSignature("wrong-secret", body))

	err = e.payments.HandleWebhook(e.ctx, "sandbox", body, h)
	require.ErrorIs(t, err, apperror.ErrUnauthorized)
	assert.Empty(t, e.confirms)
	assert.Equal(t, int64(0), e.ledgerStore.Balance(buyer))
}

func TestWebhookQueuesConfirmation(t *testing.T) {
	e := newEnv(t)
	buyer := e.user(0)
	p, err := e.payments.Create(e.ctx, buyer, "starter", "sandbox")
	require.NoError(t, err)

	body, h := sandboxWebhook(*p.ProviderRef, "paid")
	require.NoError(t, e.payments.HandleWebhook(e.ctx, "sandbox", body, h))
	require.Equal(t, []execution.ConfirmPaymentArgs{{Provider: "sandbox", ProviderRef: *p.ProviderRef}}, e.confirms)
	assert.Equal(t, int64(0), e.ledgerStore.Balance(buyer), "the webhook itself credits nothing")

	// The job worker settles.
	_, err = e.payments.ConfirmByRef(e.ctx, e.confirms[0].Provider, e.confirms[0].ProviderRef)
	require.NoError(t, err)
	assert.Equal(t, int64(500), e.ledgerStore.Balance(buyer))
}

func TestWebhookEdgeCases(t *testing.T) {
	e := newEnv(t)

	pending, h := sandboxWebhook("sb_pending", "pending")
	require.NoError(t, e.payments.HandleWebhook(e.ctx, "sandbox", pending, h))
	assert.Empty(t, e.confirms, "pending callbacks are not queued")

	err := e.payments.HandleWebhook(e.ctx, "paypal", pending, h)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	malformed := []byte(`{"ref":"sb_1","status":"paid","extra":true}`)
	h = http.Header{}
	h.Set("X-Sandbox-Signature", payments.SandboxSignature(sandboxSecret, malformed))
	err = e.payments.HandleWebhook(e.ctx, "sandbox", malformed, h)
	assert.ErrorIs(t, err, apperror.ErrValidation)
	assert.Empty(t, e.confirms)
}

func TestConfirmUnknownPaymentIsNotFound(t *testing.T) {
	e := newEnv(t)
	_, err := e.payments.ConfirmForUser(e.ctx, e.user(0), uuid.New())
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}
