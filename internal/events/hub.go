package events

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Event names delivered to clients.
const (
	BalanceUpdated      = "balance.updated"
	QueueChanged        = "queue.changed"
	NotificationCreated = "notification.created"
	PaymentCompleted    = "payment.completed"
	VideoUpdated        = "video.updated"
)

const defaultBuffer = 16

// Event is addressed to one user, or to every subscriber when UserID is uuid.Nil.
type Event struct {
	UserID  uuid.UUID `json:"-"`
	Name    string    `json:"name"`
	Seq     uint64    `json:"seq"`
	Payload any       `json:"payload,omitempty"`
}

// BalancePayload carries the balance after a change. Clients keep the value
// with the highest Seq.
type BalancePayload struct {
	Balance int64  `json:"balance"`
	Seq     uint64 `json:"seq"`
}

// Publisher is what services depend on to emit events.
type Publisher interface {
	Publish(ev Event)
	PublishBalance(userID uuid.UUID, balance int64)
}

// Subscription receives events for one user plus broadcasts.
type Subscription struct {
	userID uuid.UUID
	ch     chan Event
	once   sync.Once
}

func (s *Subscription) Events() <-chan Event { return s.ch }

// Hub fans events out to in-process subscribers. Delivery is best effort: a
// subscriber whose buffer is full misses the event.
type Hub struct {
	mu      sync.RWMutex
	subs    map[*Subscription]struct{}
	buffer  int
	seq     atomic.Uint64
	dropped atomic.Uint64
	log     *slog.Logger
}

func NewHub(buffer int, log *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	if log == nil {
		log = slog.Default()
	}
	return &Hub{subs: make(map[*Subscription]struct{}), buffer: buffer, log: log}
}

var _ Publisher = (*Hub)(nil)

func (h *Hub) Subscribe(userID uuid.UUID) *Subscription {
	sub := &Subscription{userID: userID, ch: make(chan Event, h.buffer)}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	delete(h.subs, sub)
	h.mu.Unlock()
	sub.once.Do(func() { close(sub.ch) })
}

// Publish stamps ev with the next sequence number and delivers it without blocking.
func (h *Hub) Publish(ev Event) {
	ev.Seq = h.seq.Add(1)
	h.deliver(ev)
}

// PublishBalance sends balance.updated to the user.
func (h *Hub) PublishBalance(userID uuid.UUID, balance int64) {
	seq := h.seq.Add(1)
	h.deliver(Event{
		UserID:  userID,
		Name:    BalanceUpdated,
		Seq:     seq,
		Payload: BalancePayload{Balance: balance, Seq: seq},
	})
}

func (h *Hub) deliver(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		if ev.UserID != uuid.Nil && sub.userID != ev.UserID {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			h.dropped.Add(1)
			h.log.Debug("event dropped for slow subscriber", "event", ev.Name, "user_id", sub.userID)
		}
	}
}

// Subscribers returns the number of open subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns how many deliveries were skipped because a buffer was full.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }
