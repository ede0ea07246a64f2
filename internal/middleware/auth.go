package middleware

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/watchcoin/backend/internal/apperror"
	"github.com/watchcoin/backend/internal/auth"
	"github.com/watchcoin/backend/internal/logging"
	"github.com/watchcoin/backend/internal/models"
	"github.com/watchcoin/backend/internal/respond"
)

type contextKey string

const ctxPrincipalKey contextKey = "principal"

// TokenValidator is the subset of auth.Service used by RequireAuth.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (auth.Principal, error)
}

// RequireAuth validates the Bearer token and stores the caller's Principal
// in the request context. Browsers cannot set headers on an EventSource, so
// an access_token query parameter is accepted as well.
func RequireAuth(v TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extractBearer(r)
			if raw == "" {
				raw = r.URL.Query().Get("access_token")
			}
			if raw == "" {
				respond.Error(w, r, apperror.Unauthorized("missing or malformed Authorization header"))
				return
			}

			p, err := v.ValidateToken(r.Context(), raw)
			if err != nil {
				respond.Error(w, r, err)
				return
			}

			ctx := WithPrincipal(r.Context(), p)
			ctx = logging.WithLogger(ctx, logging.FromContext(ctx).With("user_id", p.UserID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PrincipalFrom returns the authenticated caller.
func PrincipalFrom(ctx context.Context) (auth.Principal, bool) {
	p, ok := ctx.Value(ctxPrincipalKey).(auth.Principal)
	return p, ok
}

// WithPrincipal returns a context carrying the given principal.
func WithPrincipal(ctx context.Context, p auth.Principal) context.Context {
	return context.WithValue(ctx, ctxPrincipalKey, p)
}

// RequireRole lets only callers with one of roles through. Use after RequireAuth.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFrom(r.Context())
			if !ok {
				respond.Error(w, r, apperror.Unauthorized("unauthorized"))
				return
			}
			if !slices.Contains(roles, p.Role) {
				respond.Error(w, r, apperror.Forbidden("insufficient role"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireActive rejects callers whose token says they are suspended or
// banned. The ledger re-checks status under its row lock, so a token issued
// before a suspension still cannot earn or spend.
func RequireActive(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFrom(r.Context())
		if !ok {
			respond.Error(w, r, apperror.Unauthorized("unauthorized"))
			return
		}
		if p.Status != models.StatusActive {
			respond.Error(w, r, apperror.State("account is "+p.Status))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func extractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
