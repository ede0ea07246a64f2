package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/watchcoin/backend/internal/apperror"
	"github.com/watchcoin/backend/internal/auth"
	"github.com/watchcoin/backend/internal/middleware"
)

func principal(r *http.Request) (auth.Principal, error) {
	p, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		return auth.Principal{}, apperror.Unauthorized("unauthorized")
	}
	return p, nil
}

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, apperror.Validation(name, "invalid "+name)
	}
	return id, nil
}

func intQuery(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperror.Validation(name, name+" must be a non-negative integer")
	}
	return n, nil
}

func timeQuery(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, apperror.Validation(name, name+" must be an RFC 3339 timestamp")
	}
	return &t, nil
}
