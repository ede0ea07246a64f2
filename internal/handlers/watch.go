package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/watchcoin/backend/internal/apperror"
	"github.com/watchcoin/backend/internal/models"
	"github.com/watchcoin/backend/internal/respond"
	"github.com/watchcoin/backend/internal/services"
	"github.com/watchcoin/backend/internal/watch"
)

// WatchQueue hands out and tracks watch jobs.
type WatchQueue interface {
	Next(ctx context.Context, userID uuid.UUID) (*models.WatchAssignment, error)
	Heartbeat(ctx context.Context, userID, assignmentID uuid.UUID, ev watch.Event) (*services.Progress, error)
	Skip(ctx context.Context, userID, assignmentID uuid.UUID) error
}

// Awarder pays out completed watches.
type Awarder interface {
	Complete(ctx context.Context, userID, assignmentID uuid.UUID, claimedSeconds int) (*services.AwardResult, error)
}

// WatchHandler serves /watch endpoints.
type WatchHandler struct {
	Queue WatchQueue
	Award Awarder
}

// Next handles POST /watch/next. An empty queue is {"assignment": null}.
func (h *WatchHandler) Next(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	a, err := h.Queue.Next(r.Context(), p.UserID)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]any{"assignment": a})
}

type heartbeatRequest struct {
	Event    string  `json:"event"`
	Position float64 `json:"position"`
}

// Heartbeat handles POST /watch/{id}/heartbeat.
func (h *WatchHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
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
	var req heartbeatRequest
	if err := respond.Decode(w, r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}
	kind, err := watch.ParseEventKind(req.Event)
	if err != nil {
		respond.Error(w, r, apperror.Validation("event", err.Error()))
		return
	}
	progress, err := h.Queue.Heartbeat(r.Context(), p.UserID, id, watch.Event{Kind: kind, Position: req.Position})
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, progress)
}

type completeRequest struct {
	WatchedSeconds int `json:"watched_seconds"`
}

// Complete handles POST /watch/{id}/complete.
func (h *WatchHandler) Complete(w http.ResponseWriter, r *http.Request) {
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
	var req completeRequest
	if err := respond.Decode(w, r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}
	res, err := h.Award.Complete(r.Context(), p.UserID, id, req.WatchedSeconds)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, res)
}

// Skip handles POST /watch/{id}/skip.
func (h *WatchHandler) Skip(w http.ResponseWriter, r *http.Request) {
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
	if err := h.Queue.Skip(r.Context(), p.UserID, id); err != nil {
		respond.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
