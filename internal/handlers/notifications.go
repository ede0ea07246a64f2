package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/watchcoin/backend/internal/respond"
	"github.com/watchcoin/backend/internal/services"
)

type NotificationReader interface {
	List(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) (*services.NotificationList, error)
	MarkRead(ctx context.Context, userID, id uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
}

// NotificationHandler serves /notifications endpoints.
type NotificationHandler struct {
	Notifications NotificationReader
}

// List handles GET /notifications?unread=true&limit=.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
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
	unread := r.URL.Query().Get("unread") == "true"
	list, err := h.Notifications.List(r.Context(), p.UserID, unread, limit)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, list)
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
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
	if err := h.Notifications.MarkRead(r.Context(), p.UserID, id); err != nil {
		respond.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	n, err := h.Notifications.MarkAllRead(r.Context(), p.UserID)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]int64{"marked": n})
}
