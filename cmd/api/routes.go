package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"

	"github.com/watchcoin/backend/internal/auth"
	"github.com/watchcoin/backend/internal/config"
	"github.com/watchcoin/backend/internal/events"
	"github.com/watchcoin/backend/internal/execution"
	"github.com/watchcoin/backend/internal/handlers"
	"github.com/watchcoin/backend/internal/ledger"
	"github.com/watchcoin/backend/internal/middleware"
	"github.com/watchcoin/backend/internal/payments"
	"github.com/watchcoin/backend/internal/repository"
	"github.com/watchcoin/backend/internal/router"
	"github.com/watchcoin/backend/internal/services"
	"github.com/watchcoin/backend/internal/storage"
	"github.com/watchcoin/backend/internal/videos"
)

type application struct {
	handler       http.Handler
	queue         *services.QueueService
	payments      *services.PaymentService
	notifications *services.NotificationService
}

// build wires repositories, services and the HTTP surface.
func build(ctx context.Context, cfg config.Config, pool *pgxpool.Pool, logger *slog.Logger,
	insert func(context.Context, river.JobArgs) error) (*application, error) {
	hub := events.NewHub(0, logger)

	ledgerSvc := ledger.NewService(ledger.NewRepository(pool))
	userRepo := auth.NewRepository(pool)
	authSvc := auth.NewService(userRepo, pool, ledgerSvc, cfg.JWTSecret, cfg.SignupBonus)

	videoRepo := repository.NewVideoRepo(pool)
	assignmentRepo := repository.NewAssignmentRepo(pool)
	paymentRepo := repository.NewPaymentRepo(pool)
	notificationRepo := repository.NewNotificationRepo(pool)

	notificationSvc := services.NewNotificationService(notificationRepo, hub, logger)
	escrow := services.NewEscrowService(ledgerSvc, cfg.Watch.BoostCostPerWatch)
	matcher := services.NewMatcher(rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)))
	queueSvc := services.NewQueueService(pool, videoRepo, assignmentRepo, matcher, hub, cfg.Watch, logger)
	awardSvc := services.NewAwardService(pool, videoRepo, assignmentRepo, ledgerSvc, hub, notificationSvc, logger)

	metadata := videos.NewCache(videos.NewYTDLP(cfg.Metadata.YTDLPPath, cfg.Metadata.Timeout), cfg.Metadata.CacheTTL)
	videoSvc := services.NewVideoService(pool, videoRepo, escrow, metadata, hub, cfg.Watch, logger)

	validator, err := services.NewValidator()
	if err != nil {
		return nil, fmt.Errorf("compile webhook schemas: %w", err)
	}
	archive, err := newArchive(ctx, cfg.Archive)
	if err != nil {
		return nil, err
	}
	paymentSvc := services.NewPaymentService(services.PaymentDeps{
		DB:        pool,
		Store:     paymentRepo,
		Ledger:    ledgerSvc,
		Catalog:   payments.NewCatalog(cfg.Packages),
		Providers: newProviderRegistry(cfg.Payments, logger),
		Validator: validator,
		Archive:   archive,
		Enqueue: func(ctx context.Context, args execution.ConfirmPaymentArgs) error {
			return insert(ctx, args)
		},
		Events:        hub,
		Notifications: notificationSvc,
		Config:        cfg.Payments,
		Log:           logger,
	})

	adminSvc := services.NewAdminService(pool, userRepo, ledgerSvc, videoSvc, notificationSvc, hub,
		func(ctx context.Context, args execution.BroadcastNotificationArgs) error {
			return insert(ctx, args)
		}, logger)

	handler := router.New(router.Deps{
		Auth:          auth.NewHandler(authSvc, logger),
		Tokens:        authSvc,
		Account:       &handlers.AccountHandler{Users: userRepo, Ledger: ledgerSvc},
		Videos:        &handlers.VideoHandler{Videos: videoSvc},
		Watch:         &handlers.WatchHandler{Queue: queueSvc, Award: awardSvc},
		Payments:      &handlers.PaymentHandler{Payments: paymentSvc},
		Notifications: &handlers.NotificationHandler{Notifications: notificationSvc},
		Admin:         &handlers.AdminHandler{Admin: adminSvc},
		Hub:           hub,
		AuthLimiter:   middleware.NewKeyRateLimiter(cfg.Limits.AuthPerMinute, time.Minute, cfg.Limits.AuthPerMinute, 10*time.Minute),
		WatchLimiter:  middleware.NewKeyRateLimiter(cfg.Limits.WatchPerMinute, time.Minute, cfg.Limits.WatchPerMinute/4, 10*time.Minute),
		CORSOrigins:   cfg.CORSOrigins,
		Logger:        logger,
	})

	return &application{
		handler:       handler,
		queue:         queueSvc,
		payments:      paymentSvc,
		notifications: notificationSvc,
	}, nil
}

// newProviderRegistry registers every provider that has credentials.
func newProviderRegistry(cfg config.PaymentsConfig, logger *slog.Logger) *payments.Registry {
	var providers []payments.Provider
	if cfg.StripeSecretKey != "" {
		providers = append(providers, payments.NewStripe(cfg.StripeSecretKey, cfg.StripeWebhookSecret))
	}
	if cfg.CryptomusMerchantID != "" && cfg.CryptomusAPIKey != "" {
		callback := cfg.WebhookBaseURL + "/api/v1/payments/webhooks/cryptomus"
		providers = append(providers, payments.NewCryptomus(cfg.CryptomusMerchantID, cfg.CryptomusAPIKey, callback))
	}
	if cfg.SandboxEnabled {
		logger.Warn("Sandbox payment provider enabled: every checkout settles without payment")
		providers = append(providers, payments.NewSandbox(cfg.SandboxSecret))
	}
	if len(providers) == 0 {
		logger.Warn("No payment provider configured; coin purchases are disabled")
	}
	return payments.NewRegistry(providers...)
}

func newArchive(ctx context.Context, cfg config.ObjectStoreConfig) (storage.Archiver, error) {
	if cfg.Bucket == "" {
		return storage.Nop{}, nil
	}
	a, err := storage.NewS3Archive(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("webhook archive: %w", err)
	}
	return a, nil
}
