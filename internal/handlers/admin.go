package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/watchcoin/backend/internal/apperror"
	"github.com/watchcoin/backend/internal/auth"
	"github.com/watchcoin/backend/internal/models"
	"github.com/watchcoin/backend/internal/respond"
)

// Administration is the staff surface.
type Administration interface {
	Adjust(ctx context.Context, admin auth.Principal, userID uuid.UUID, amount int64, reason string) (*models.Transaction, error)
	UpdateUser(ctx context.Context, admin auth.Principal, userID uuid.UUID, status, role string) (*models.User, error)
	ModerateVideo(ctx context.Context, p auth.Principal, videoID uuid.UUID, status string) (*models.Video, error)
	Reconcile(ctx context.Context) ([]models.BalanceDrift, error)
	Broadcast(ctx context.Context, admin auth.Principal, title, message, sound string) error
}

// AdminHandler serves /admin endpoints. Role checks happen in the router.
type AdminHandler struct {
	Admin Administration
}

type adjustRequest struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

// Adjust handles POST /admin/users/{id}/adjust.
func (h *AdminHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	id, err := uuidParam(r, "id")
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	var req adjustRequest
	if err := respond.Decode(w, r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}
	t, err := h.Admin.Adjust(r.Context(), p, id, req.Amount, req.Reason)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, t)
}

type updateUserRequest struct {
	Status string `json:"status"`
	Role   string `json:"role"`
}

// UpdateUser handles PATCH /admin/users/{id}.
func (h *AdminHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	id, err := uuidParam(r, "id")
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	var req updateUserRequest
	if err := respond.Decode(w, r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}
	u, err := h.Admin.UpdateUser(r.Context(), p, id, req.Status, req.Role)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, u)
}

type moderateRequest struct {
	Status string `json:"status"`
}

// ModerateVideo handles PATCH /admin/videos/{id}.
func (h *AdminHandler) ModerateVideo(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	id, err := uuidParam(r, "id")
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	var req moderateRequest
	if err := respond.Decode(w, r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}
	v, err := h.Admin.ModerateVideo(r.Context(), p, id, req.Status)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, v)
}

// Reconcile handles GET /admin/ledger/reconcile.
func (h *AdminHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	drift, err := h.Admin.Reconcile(r.Context())
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]any{"drift": drift})
}

type broadcastRequest struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Sound   string `json:"sound"`
}

// Broadcast handles POST /admin/notifications.
func (h *AdminHandler) Broadcast(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	var req broadcastRequest
	if err := respond.Decode(w, r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}
	if req.Title == "" {
		respond.Error(w, r, apperror.Validation("title", "title is required"))
		return
	}
	if err := h.Admin.Broadcast(r.Context(), p, req.Title, req.Message, req.Sound); err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusAccepted, map[string]bool{"queued": true})
}
