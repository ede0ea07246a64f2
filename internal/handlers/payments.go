package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/watchcoin/backend/internal/apperror"
	"github.com/watchcoin/backend/internal/models"
	"github.com/watchcoin/backend/internal/respond"
	"github.com/watchcoin/backend/internal/services"
)

const maxWebhookBytes = 1 << 20

// PaymentIntake sells coin packages.
type PaymentIntake interface {
	Packages() []services.PackageView
	Create(ctx context.Context, userID uuid.UUID, packageID, provider string) (*models.Payment, error)
	List(ctx context.Context, userID uuid.UUID) ([]models.Payment, error)
	ConfirmForUser(ctx context.Context, userID, paymentID uuid.UUID) (*models.Payment, error)
	HandleWebhook(ctx context.Context, provider string, body []byte, header http.Header) error
}

// PaymentHandler serves /packages and /payments endpoints.
type PaymentHandler struct {
	Payments PaymentIntake
}

// Packages handles GET /packages.
func (h *PaymentHandler) Packages(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, map[string]any{"packages": h.Payments.Packages()})
}

type createPaymentRequest struct {
	PackageID string `json:"package_id"`
	Provider  string `json:"provider"`
}

// Create handles POST /payments.
func (h *PaymentHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	var req createPaymentRequest
	if err := respond.Decode(w, r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}
	payment, err := h.Payments.Create(r.Context(), p.UserID, req.PackageID, req.Provider)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusCreated, payment)
}

// List handles GET /payments.
func (h *PaymentHandler) List(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	list, err := h.Payments.List(r.Context(), p.UserID)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]any{"payments": list})
}

// Confirm handles POST /payments/{id}/confirm.
func (h *PaymentHandler) Confirm(w http.ResponseWriter, r *http.Request) {
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
	payment, err := h.Payments.ConfirmForUser(r.Context(), p.UserID, id)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, payment)
}

// Webhook handles POST /payments/webhooks/{provider}. The raw body is passed
// through untouched because signatures are computed over its exact bytes.
func (h *PaymentHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		respond.Error(w, r, apperror.Validation("body", "failed to read body"))
		return
	}
	if err := h.Payments.HandleWebhook(r.Context(), chi.URLParam(r, "provider"), body, r.Header); err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]bool{"received": true})
}
