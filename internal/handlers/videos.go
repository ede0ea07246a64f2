package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/watchcoin/backend/internal/apperror"
	"github.com/watchcoin/backend/internal/auth"
	"github.com/watchcoin/backend/internal/models"
	"github.com/watchcoin/backend/internal/respond"
	"github.com/watchcoin/backend/internal/services"
)

// VideoManager is the spend side used by VideoHandler.
type VideoManager interface {
	Submit(ctx context.Context, ownerID uuid.UUID, req services.SubmitRequest) (*services.Submission, error)
	ListMine(ctx context.Context, ownerID uuid.UUID) ([]models.Video, error)
	SetPaused(ctx context.Context, ownerID, videoID uuid.UUID, paused bool) (*models.Video, error)
	Remove(ctx context.Context, p auth.Principal, videoID uuid.UUID) (*models.Video, error)
}

// VideoHandler serves /videos endpoints.
type VideoHandler struct {
	Videos VideoManager
}

// Submit handles POST /videos.
func (h *VideoHandler) Submit(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	var req services.SubmitRequest
	if err := respond.Decode(w, r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}
	sub, err := h.Videos.Submit(r.Context(), p.UserID, req)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusCreated, sub)
}

// ListMine handles GET /videos/mine.
func (h *VideoHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	list, err := h.Videos.ListMine(r.Context(), p.UserID)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]any{"videos": list})
}

type updateVideoRequest struct {
	Paused *bool `json:"paused"`
}

// Update handles PATCH /videos/{id}: pause or resume.
func (h *VideoHandler) Update(w http.ResponseWriter, r *http.Request) {
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
	var req updateVideoRequest
	if err := respond.Decode(w, r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}
	if req.Paused == nil {
		respond.Error(w, r, apperror.Validation("paused", "paused is required"))
		return
	}
	v, err := h.Videos.SetPaused(r.Context(), p.UserID, id, *req.Paused)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, v)
}

// Delete handles DELETE /videos/{id}.
func (h *VideoHandler) Delete(w http.ResponseWriter, r *http.Request) {
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
	v, err := h.Videos.Remove(r.Context(), p, id)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, v)
}
