// Package respond writes JSON bodies and maps application errors to HTTP.
package respond

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/watchcoin/backend/internal/apperror"
	"github.com/watchcoin/backend/internal/logging"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// Error writes err as {"error": kind, "message": text}. Internal and upstream
// errors are logged with their cause; the client only sees the safe message.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	kind, status := apperror.Kind(err)
	if status >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).Error("request failed", "error", err, "kind", kind)
	}
	body := errorBody{Error: kind, Message: apperror.Message(err)}
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		body.Field = appErr.Field
	}
	JSON(w, status, body)
}

// Decode reads a JSON body into v, rejecting unknown fields and oversized
// bodies with a validation error.
func Decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperror.Validation("body", "request body is required")
		}
		return apperror.Validation("body", "invalid JSON body")
	}
	return nil
}
