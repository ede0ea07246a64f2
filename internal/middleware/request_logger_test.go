package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/watchcoin/backend/internal/logging"
)

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	var sawFlusher bool
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, sawFlusher = w.(http.Flusher)
		logging.FromContext(r.Context()).Info("inside")
		w.WriteHeader(http.StatusTeapot)
	})
	h := chimiddleware.RequestID(RequestLogger(logger)(inner))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(chimiddleware.RequestIDHeader, "req-42")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if !sawFlusher {
		t.Error("wrapped writer should still flush")
	}

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d: %s", len(lines), buf.String())
	}
	for _, line := range lines {
		var entry map[string]any
		if err := json.Unmarshal(line, &entry); err != nil {
			t.Fatal(err)
		}
		if entry["request_id"] != "req-42" {
			t.Errorf("expected request_id on every line, got %v", entry["request_id"])
		}
	}
	var done map[string]any
	_ = json.Unmarshal(lines[1], &done)
	if done["msg"] != "request completed" || done["status"] != float64(http.StatusTeapot) {
		t.Errorf("unexpected completion line: %s", lines[1])
	}
}
