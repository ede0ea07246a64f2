package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/watchcoin/backend/internal/models"
	"github.com/watchcoin/backend/internal/respond"
)

// UserReader loads the caller's account with its balance.
type UserReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// HistoryReader pages through ledger entries.
type HistoryReader interface {
	History(ctx context.Context, userID uuid.UUID, limit int, before *time.Time) ([]models.Transaction, error)
}

// AccountHandler serves /account endpoints.
type AccountHandler struct {
	Users  UserReader
	Ledger HistoryReader
}

// Me handles GET /account/me.
func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	u, err := h.Users.GetByID(r.Context(), p.UserID)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, u)
}

// Transactions handles GET /account/transactions?limit=&before=.
func (h *AccountHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	limit, err := intQuery(r, "limit")
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	before, err := timeQuery(r, "before")
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	list, err := h.Ledger.History(r.Context(), p.UserID, limit, before)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	if list == nil {
		list = []models.Transaction{}
	}
	respond.JSON(w, http.StatusOK, map[string]any{"transactions": list})
}
