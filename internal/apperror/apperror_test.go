package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKind(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		kind   string
		status int
	}{
		{"validation", Validation("watch_seconds", "too short"), "validation", http.StatusBadRequest},
		{"conflict", Conflict("already completed"), "conflict", http.StatusConflict},
		{"state", State("account suspended"), "state", http.StatusForbidden},
		{"upstream", Upstream("provider down", errors.New("dial tcp")), "upstream", http.StatusBadGateway},
		{"not found", NotFound("video", "abc"), "not_found", http.StatusNotFound},
		{"funds", InsufficientFunds(100, 150), "insufficient_funds", http.StatusPaymentRequired},
		{"wrapped", fmt.Errorf("submit: %w", Conflict("job exhausted")), "conflict", http.StatusConflict},
		{"plain", errors.New("boom"), "internal", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, status := Kind(tt.err)
			assert.Equal(t, tt.kind, kind)
			assert.Equal(t, tt.status, status)
		})
	}
}

func TestUpstreamKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Upstream("payment provider unavailable", cause)

	assert.ErrorIs(t, err, ErrUpstream)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "payment provider unavailable", Message(err))
	assert.Contains(t, err.Error(), "connection reset")
}

func TestMessageHidesInternalErrors(t *testing.T) {
	assert.Equal(t, "internal server error", Message(errors.New("pq: relation missing")))
	assert.Equal(t, "too short", Message(Validation("watch_seconds", "too short")))
}
