package events

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// UserResolver extracts the authenticated user from a request context.
type UserResolver func(ctx context.Context) (uuid.UUID, bool)

// StreamHandler serves the hub as Server-Sent Events. A comment line is sent
// every keepAlive so proxies keep the connection open.
func StreamHandler(hub *Hub, resolve UserResolver, keepAlive time.Duration) http.HandlerFunc {
	if keepAlive <= 0 {
		keepAlive = 25 * time.Second
	}
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := resolve(r.Context())
		if !ok {
			http.Error(w, `{"error":"unauthorized","message":"missing credentials"}`, http.StatusUnauthorized)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)

		sub := hub.Subscribe(userID)
		defer hub.Unsubscribe(sub)

		if _, err := fmt.Fprint(w, ": connected\n\n"); err != nil {
			return
		}
		flusher.Flush()

		ticker := time.NewTicker(keepAlive)
		defer ticker.Stop()

		ctx := r.Context()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
					return
				}
				flusher.Flush()
			case ev, open := <-sub.Events():
				if !open {
					return
				}
				if err := writeEvent(w, ev); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, ev Event) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", ev.Seq, ev.Name, payload)
	return err
}
