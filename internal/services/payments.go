package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/watchcoin/backend/internal/apperror"
	"github.com/watchcoin/backend/internal/config"
	"github.com/watchcoin/backend/internal/db"
	"github.com/watchcoin/backend/internal/events"
	"github.com/watchcoin/backend/internal/execution"
	"github.com/watchcoin/backend/internal/ledger"
	"github.com/watchcoin/backend/internal/models"
	"github.com/watchcoin/backend/internal/payments"
	"github.com/watchcoin/backend/internal/storage"
)

const paymentHistoryLimit = 50

// InsertConfirmPaymentFunc enqueues a ConfirmPayment job. Provided by main
// using river.Client.Insert.
type InsertConfirmPaymentFunc func(ctx context.Context, args execution.ConfirmPaymentArgs) error

// PaymentService sells coin packages through the registered providers.
type PaymentService struct {
	db            db.TxBeginner
	store         PaymentStore
	ledger        ledger.Service
	catalog       *payments.Catalog
	providers     *payments.Registry
	validator     *Validator
	archive       storage.Archiver
	enqueue       InsertConfirmPaymentFunc
	events        events.Publisher
	notifications *NotificationService
	cfg           config.PaymentsConfig
	log           *slog.Logger
	now           func() time.Time
}

// PaymentDeps groups the collaborators of a PaymentService.
type PaymentDeps struct {
	DB            db.TxBeginner
	Store         PaymentStore
	Ledger        ledger.Service
	Catalog       *payments.Catalog
	Providers     *payments.Registry
	Validator     *Validator
	Archive       storage.Archiver
	Enqueue       InsertConfirmPaymentFunc
	Events        events.Publisher
	Notifications *NotificationService
	Config        config.PaymentsConfig
	Log           *slog.Logger
}

func NewPaymentService(d PaymentDeps) *PaymentService {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if d.Archive == nil {
		d.Archive = storage.Nop{}
	}
	return &PaymentService{
		db:            d.DB,
		store:         d.Store,
		ledger:        d.Ledger,
		catalog:       d.Catalog,
		providers:     d.Providers,
		validator:     d.Validator,
		archive:       d.Archive,
		enqueue:       d.Enqueue,
		events:        d.Events,
		notifications: d.Notifications,
		cfg:           d.Config,
		log:           d.Log,
		now:           time.Now,
	}
}

// PackageView is a catalog entry as shown to buyers.
type PackageView struct {
	config.Package
	Providers []string `json:"providers"`
}

func (s *PaymentService) Packages() []PackageView {
	names := s.providers.Names()
	list := s.catalog.List()
	out := make([]PackageView, 0, len(list))
	for _, p := range list {
		out = append(out, PackageView{Package: p, Providers: names})
	}
	return out
}

// Create opens a checkout for a coin package and records it as pending.
func (s *PaymentService) Create(ctx context.Context, userID uuid.UUID, packageID, providerName string) (*models.Payment, error) {
	pkg, ok := s.catalog.Get(packageID)
	if !ok {
		return nil, apperror.Validation("package_id", fmt.Sprintf("unknown coin package %q", packageID))
	}
	provider, err := s.providers.Get(providerName)
	if err != nil {
		return nil, apperror.Validation("provider", fmt.Sprintf("payment provider %q is not available", providerName))
	}

	p := &models.Payment{
		ID:        uuid.New(),
		UserID:    userID,
		Provider:  provider.Name(),
		OrderRef:  payments.NewOrderRef(),
		PackageID: pkg.ID,
		Coins:     pkg.Coins,
		AmountUSD: pkg.PriceUSD,
		Status:    models.PaymentPending,
	}
	if err := s.store.Create(ctx, p); err != nil {
		return nil, err
	}

	checkout, err := provider.Create(ctx, payments.Order{
		OrderRef:    p.OrderRef,
		PackageID:   pkg.ID,
		PackageName: pkg.Name,
		Coins:       pkg.Coins,
		AmountUSD:   pkg.PriceUSD,
		SuccessURL:  s.cfg.SuccessURL,
		CancelURL:   s.cfg.CancelURL,
	})
	if err != nil {
		if ferr := s.store.MarkFailedByID(ctx, p.ID); ferr != nil {
			s.log.Error("mark payment failed", "error", ferr, "payment_id", p.ID)
		}
		return nil, apperror.Upstream("payment provider unavailable", err)
	}
	if err := s.store.AttachCheckout(ctx, p.ID, checkout.ProviderRef, checkout.URL); err != nil {
		return nil, err
	}
	p.ProviderRef = &checkout.ProviderRef
	p.CheckoutURL = checkout.URL

	s.log.Info("payment created", "payment_id", p.ID, "user_id", userID, "provider", p.Provider, "package", pkg.ID)
	return p, nil
}

func (s *PaymentService) List(ctx context.Context, userID uuid.UUID) ([]models.Payment, error) {
	list, err := s.store.ListByUser(ctx, userID, paymentHistoryLimit)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.Payment{}
	}
	return list, nil
}

// ConfirmForUser is the client-triggered confirmation. The provider is still
// asked server-side; a payment the provider has not decided stays pending.
func (s *PaymentService) ConfirmForUser(ctx context.Context, userID, paymentID uuid.UUID) (*models.Payment, error) {
	p, err := s.store.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, apperror.NotFound("payment", paymentID.String())
	}
	if p.Status != models.PaymentPending {
		return p, nil
	}
	if p.ProviderRef == nil {
		return nil, apperror.State("payment checkout was never opened")
	}
	confirmed, err := s.ConfirmByRef(ctx, p.Provider, *p.ProviderRef)
	if errors.Is(err, execution.ErrPaymentPending) {
		return p, nil
	}
	return confirmed, err
}

// ConfirmByRef asks the provider about a payment and settles or fails it.
// It returns execution.ErrPaymentPending while the provider is undecided.
func (s *PaymentService) ConfirmByRef(ctx context.Context, providerName, ref string) (*models.Payment, error) {
	provider, err := s.providers.Get(providerName)
	if err != nil {
		return nil, apperror.Validation("provider", err.Error())
	}
	p, err := s.store.GetByProviderRef(ctx, providerName, ref)
	if err != nil {
		return nil, err
	}
	if p.Status != models.PaymentPending {
		return p, nil
	}

	conf, err := provider.Confirm(ctx, ref)
	if err != nil {
		return nil, apperror.Upstream("payment provider unavailable", err)
	}
	switch conf.Status {
	case payments.StatusPaid:
		if !conf.AmountUSD.IsZero() && conf.AmountUSD.LessThan(p.AmountUSD) {
			s.log.Warn("payment underpaid", "payment_id", p.ID, "paid", conf.AmountUSD.String(), "price", p.AmountUSD.String())
			return s.fail(ctx, p, ref)
		}
		return s.Settle(ctx, providerName, ref)
	case payments.StatusFailed:
		return s.fail(ctx, p, ref)
	default:
		return nil, execution.ErrPaymentPending
	}
}

func (s *PaymentService) fail(ctx context.Context, p *models.Payment, ref string) (*models.Payment, error) {
	if _, err := s.store.MarkFailed(ctx, p.Provider, ref); err != nil {
		return nil, err
	}
	s.log.Info("payment failed", "payment_id", p.ID, "provider", p.Provider)
	return s.store.GetByProviderRef(ctx, p.Provider, ref)
}

// Settle completes a pending payment and credits its coins in one
// transaction. Only the caller that moves the row out of pending credits
// anything, so repeated confirmations are harmless.
func (s *PaymentService) Settle(ctx context.Context, providerName, ref string) (*models.Payment, error) {
	var (
		settled *models.Payment
		credit  *models.Transaction
	)
	err := db.InTx(ctx, s.db, func(tx pgx.Tx) error {
		p, ok, err := s.store.MarkCompleted(ctx, tx, providerName, ref, s.now())
		if err != nil || !ok {
			return err
		}
		credit, err = s.ledger.Credit(ctx, tx, ledger.Entry{
			UserID:    p.UserID,
			Type:      models.TxBuyCoins,
			Amount:    p.Coins,
			Reason:    "coin package " + p.PackageID,
			Reference: "payment:" + p.ID.String(),
		})
		if err != nil {
			return err
		}
		settled = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	if settled == nil {
		s.log.Info("payment already settled", "provider", providerName, "provider_ref", ref)
		return s.store.GetByProviderRef(ctx, providerName, ref)
	}

	s.log.Info("payment settled", "payment_id", settled.ID, "user_id", settled.UserID, "coins", settled.Coins)
	s.events.PublishBalance(settled.UserID, credit.BalanceAfter)
	s.events.Publish(events.Event{UserID: settled.UserID, Name: events.PaymentCompleted, Payload: settled})
	if s.notifications != nil {
		s.notifications.notifyUser(ctx, settled.UserID, models.NotifyPaymentCompleted, "Coins added",
			fmt.Sprintf("%d coins were added to your balance.", settled.Coins), "coin")
	}
	return settled, nil
}

// HandleWebhook authenticates a provider callback and queues its
// confirmation. Nothing is queued unless the signature checks out.
func (s *PaymentService) HandleWebhook(ctx context.Context, providerName string, body []byte, header http.Header) error {
	provider, err := s.providers.Get(providerName)
	if err != nil {
		return apperror.NotFound("payment provider", providerName)
	}
	if s.validator != nil {
		if err := s.validator.ValidateWebhook(providerName, body); err != nil {
			return err
		}
	}

	ev, err := provider.ParseWebhook(body, header)
	switch {
	case errors.Is(err, payments.ErrInvalidSignature):
		s.log.Warn("webhook signature rejected", "provider", providerName)
		return apperror.Unauthorized("invalid webhook signature")
	case errors.Is(err, payments.ErrIgnoredEvent):
		return nil
	case err != nil:
		return apperror.Validation("body", "webhook could not be parsed")
	}

	key := fmt.Sprintf("webhooks/%s/%s/%s-%s.json", providerName, s.now().UTC().Format("2006/01/02"), ev.ProviderRef, uuid.NewString())
	if _, err := s.archive.Archive(ctx, key, "application/json", body); err != nil {
		s.log.Error("archive webhook", "error", err, "provider", providerName, "key", key)
	}

	if ev.Status == payments.StatusPending {
		return nil
	}
	if err := s.enqueue(ctx, execution.ConfirmPaymentArgs{Provider: providerName, ProviderRef: ev.ProviderRef}); err != nil {
		return fmt.Errorf("enqueue payment confirmation: %w", err)
	}
	s.log.Info("webhook accepted", "provider", providerName, "provider_ref", ev.ProviderRef, "status", ev.Status)
	return nil
}
