package dbtest

import (
	"sync"

	"github.com/google/uuid"

	"github.com/watchcoin/backend/internal/events"
)

// Recorder is an events.Publisher that keeps everything it is given.
type Recorder struct {
	mu       sync.Mutex
	events   []events.Event
	balances map[uuid.UUID]int64
}

func NewRecorder() *Recorder {
	return &Recorder{balances: make(map[uuid.UUID]int64)}
}

var _ events.Publisher = (*Recorder)(nil)

func (r *Recorder) Publish(ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *Recorder) PublishBalance(userID uuid.UUID, balance int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.balances[userID] = balance
	r.events = append(r.events, events.Event{UserID: userID, Name: events.BalanceUpdated,
		Payload: events.BalancePayload{Balance: balance}})
}

// Named returns the recorded events with the given name.
func (r *Recorder) Named(name string) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, ev := range r.events {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

// LastBalance returns the last balance published for userID.
func (r *Recorder) LastBalance(userID uuid.UUID) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.balances[userID]
	return b, ok
}
