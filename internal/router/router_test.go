package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/watchcoin/backend/internal/apperror"
	"github.com/watchcoin/backend/internal/auth"
	"github.com/watchcoin/backend/internal/events"
	"github.com/watchcoin/backend/internal/handlers"
	"github.com/watchcoin/backend/internal/models"
	"github.com/watchcoin/backend/internal/services"
	"github.com/watchcoin/backend/internal/watch"
)

type tokenTable map[string]auth.Principal

func (t tokenTable) ValidateToken(_ context.Context, token string) (auth.Principal, error) {
	p, ok := t[token]
	if !ok {
		return auth.Principal{}, apperror.Unauthorized("invalid token")
	}
	return p, nil
}

type limiter bool

func (l limiter) Allow(string) bool { return bool(l) }

type emptyQueue struct{}

func (emptyQueue) Next(context.Context, uuid.UUID) (*models.WatchAssignment, error) { return nil, nil }
func (emptyQueue) Heartbeat(context.Context, uuid.UUID, uuid.UUID, watch.Event) (*services.Progress, error) {
	return nil, nil
}
func (emptyQueue) Skip(context.Context, uuid.UUID, uuid.UUID) error { return nil }

type nopAdmin struct{}

func (nopAdmin) Adjust(context.Context, auth.Principal, uuid.UUID, int64, string) (*models.Transaction, error) {
	return &models.Transaction{}, nil
}
func (nopAdmin) UpdateUser(context.Context, auth.Principal, uuid.UUID, string, string) (*models.User, error) {
	return &models.User{}, nil
}
func (nopAdmin) ModerateVideo(context.Context, auth.Principal, uuid.UUID, string) (*models.Video, error) {
	return &models.Video{}, nil
}
func (nopAdmin) Reconcile(context.Context) ([]models.BalanceDrift, error) {
	return []models.BalanceDrift{}, nil
}
func (nopAdmin) Broadcast(context.Context, auth.Principal, string, string, string) error { return nil }

func newTestRouter(authLimit bool) http.Handler {
	tokens := tokenTable{
		"user":      {UserID: uuid.New(), Role: models.RoleUser, Status: models.StatusActive},
		"moderator": {UserID: uuid.New(), Role: models.RoleModerator, Status: models.StatusActive},
		"admin":     {UserID: uuid.New(), Role: models.RoleAdmin, Status: models.StatusActive},
		"suspended": {UserID: uuid.New(), Role: models.RoleUser, Status: models.StatusSuspended},
	}
	return New(Deps{
		Auth:          auth.NewHandler(nil, nil),
		Tokens:        tokens,
		Account:       &handlers.AccountHandler{},
		Videos:        &handlers.VideoHandler{},
		Watch:         &handlers.WatchHandler{Queue: emptyQueue{}},
		Payments:      &handlers.PaymentHandler{},
		Notifications: &handlers.NotificationHandler{},
		Admin:         &handlers.AdminHandler{Admin: nopAdmin{}},
		Hub:           events.NewHub(4, nil),
		AuthLimiter:   limiter(authLimit),
		WatchLimiter:  limiter(true),
		CORSOrigins:   []string{"http://localhost:5173"},
	})
}

func do(h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	rec := do(newTestRouter(true), http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestRouteProtection(t *testing.T) {
	h := newTestRouter(true)
	videoPath := "/api/v1/admin/videos/" + uuid.NewString()

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   string
		want   int
	}{
		{"anonymous account", http.MethodGet, "/api/v1/account/me", "", "", http.StatusUnauthorized},
		{"bad token", http.MethodPost, "/api/v1/watch/next", "forged", "", http.StatusUnauthorized},
		{"user watches", http.MethodPost, "/api/v1/watch/next", "user", "", http.StatusOK},
		{"suspended cannot watch", http.MethodPost, "/api/v1/watch/next", "suspended", "", http.StatusForbidden},
		{"user cannot reconcile", http.MethodGet, "/api/v1/admin/ledger/reconcile", "user", "", http.StatusForbidden},
		{"moderator cannot reconcile", http.MethodGet, "/api/v1/admin/ledger/reconcile", "moderator", "", http.StatusForbidden},
		{"admin reconciles", http.MethodGet, "/api/v1/admin/ledger/reconcile", "admin", "", http.StatusOK},
		{"moderator moderates", http.MethodPatch, videoPath, "moderator", `{"status":"flagged"}`, http.StatusOK},
		{"user cannot moderate", http.MethodPatch, videoPath, "user", `{"status":"flagged"}`, http.StatusForbidden},
		{"unknown route", http.MethodGet, "/api/v1/nope", "user", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(h, tt.method, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestAuthRoutesAreRateLimited(t *testing.T) {
	rec := do(newTestRouter(false), http.MethodPost, "/api/v1/auth/login", "", `{"email":"a@b.c","password":"x"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/watch/next", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	newTestRouter(true).ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}
