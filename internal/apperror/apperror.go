package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrValidation        = errors.New("validation")
	ErrConflict          = errors.New("conflict")
	ErrState             = errors.New("state")
	ErrUpstream          = errors.New("upstream")
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

type AppError struct {
	Err     error  // kind sentinel
	Message string // human-readable error message
	Field   string // optional: field causing the error
	Cause   error  // optional: underlying error, logged but never shown
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Err, e.Cause}
	}
	return []error{e.Err}
}

func Validation(field, message string) *AppError {
	return &AppError{Err: ErrValidation, Message: message, Field: field}
}

func Conflict(message string) *AppError {
	return &AppError{Err: ErrConflict, Message: message}
}

// State reports an operation that is not allowed in the current state of the
// account or resource, such as a suspended user trying to earn.
func State(message string) *AppError {
	return &AppError{Err: ErrState, Message: message}
}

// Upstream wraps a failure of an external collaborator (payment provider,
// metadata lookup). The cause is kept for logs.
func Upstream(message string, cause error) *AppError {
	return &AppError{Err: ErrUpstream, Message: message, Cause: cause}
}

func NotFound(resource, id string) *AppError {
	return &AppError{Err: ErrNotFound, Message: fmt.Sprintf("%s not found with id %s", resource, id)}
}

// Forbidden returns an AppError indicating the caller lacks permission.
func Forbidden(message string) *AppError {
	return &AppError{Err: ErrForbidden, Message: message}
}

func Unauthorized(message string) *AppError {
	return &AppError{Err: ErrUnauthorized, Message: message}
}

func InsufficientFunds(balance, amount int64) *AppError {
	return &AppError{
		Err:     ErrInsufficientFunds,
		Message: fmt.Sprintf("balance %d is below the required %d coins", balance, amount),
	}
}

// Kind returns the short machine-readable name of err's category and the
// HTTP status it maps to. Unknown errors are internal.
func Kind(err error) (string, int) {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation", http.StatusBadRequest
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds", http.StatusPaymentRequired
	case errors.Is(err, ErrConflict):
		return "conflict", http.StatusConflict
	case errors.Is(err, ErrState):
		return "state", http.StatusForbidden
	case errors.Is(err, ErrForbidden):
		return "forbidden", http.StatusForbidden
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized", http.StatusUnauthorized
	case errors.Is(err, ErrNotFound):
		return "not_found", http.StatusNotFound
	case errors.Is(err, ErrUpstream):
		return "upstream", http.StatusBadGateway
	default:
		return "internal", http.StatusInternalServerError
	}
}

// Message returns the client-safe message for err.
func Message(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "internal server error"
}
