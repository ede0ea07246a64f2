package router

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/cors"

	"github.com/watchcoin/backend/internal/auth"
	"github.com/watchcoin/backend/internal/events"
	"github.com/watchcoin/backend/internal/handlers"
	"github.com/watchcoin/backend/internal/middleware"
	"github.com/watchcoin/backend/internal/models"
	"github.com/watchcoin/backend/internal/respond"
)

// Deps is everything the HTTP surface needs.
type Deps struct {
	Auth          *auth.Handler
	Tokens        middleware.TokenValidator
	Account       *handlers.AccountHandler
	Videos        *handlers.VideoHandler
	Watch         *handlers.WatchHandler
	Payments      *handlers.PaymentHandler
	Notifications *handlers.NotificationHandler
	Admin         *handlers.AdminHandler
	Hub           *events.Hub

	AuthLimiter  middleware.RateLimiter
	WatchLimiter middleware.RateLimiter
	CORSOrigins  []string
	Logger       *slog.Logger
}

// New returns the API handler with every route under /api/v1.
func New(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	if d.Logger != nil {
		r.Use(middleware.RequestLogger(d.Logger))
	}
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respond.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	requireAuth := middleware.RequireAuth(d.Tokens)

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(d.AuthLimiter, "auth"))
			r.Post("/auth/register", d.Auth.Register)
			r.Post("/auth/login", d.Auth.Login)
		})

		r.Get("/packages", d.Payments.Packages)
		// Providers call this without a session; the signature is the credential.
		r.Post("/payments/webhooks/{provider}", d.Payments.Webhook)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)

			r.Get("/events", events.StreamHandler(d.Hub, principalUser, 25*time.Second))

			r.Get("/account/me", d.Account.Me)
			r.Get("/account/transactions", d.Account.Transactions)

			r.Post("/payments", d.Payments.Create)
			r.Get("/payments", d.Payments.List)
			r.Post("/payments/{id}/confirm", d.Payments.Confirm)

			r.Get("/notifications", d.Notifications.List)
			r.Post("/notifications/read-all", d.Notifications.MarkAllRead)
			r.Post("/notifications/{id}/read", d.Notifications.MarkRead)

			r.Get("/videos/mine", d.Videos.ListMine)
			r.Delete("/videos/{id}", d.Videos.Delete)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireActive)
				r.Post("/videos", d.Videos.Submit)
				r.Patch("/videos/{id}", d.Videos.Update)

				r.Route("/watch", func(r chi.Router) {
					r.Use(middleware.RateLimit(d.WatchLimiter, "watch"))
					r.Post("/next", d.Watch.Next)
					r.Post("/{id}/heartbeat", d.Watch.Heartbeat)
					r.Post("/{id}/complete", d.Watch.Complete)
					r.Post("/{id}/skip", d.Watch.Skip)
				})
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireRole(models.RoleAdmin, models.RoleModerator))
				r.Patch("/videos/{id}", d.Admin.ModerateVideo)

				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireRole(models.RoleAdmin))
					r.Post("/users/{id}/adjust", d.Admin.Adjust)
					r.Patch("/users/{id}", d.Admin.UpdateUser)
					r.Get("/ledger/reconcile", d.Admin.Reconcile)
					r.Post("/notifications", d.Admin.Broadcast)
				})
			})
		})
	})

	return cors.New(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		AllowCredentials: true,
	}).Handler(r)
}

func principalUser(ctx context.Context) (uuid.UUID, bool) {
	p, ok := middleware.PrincipalFrom(ctx)
	return p.UserID, ok
}
