// Package watch tracks how long a viewer has actually watched a video.
//
// A Session is a pure state machine: it is fed playback and visibility
// events with the time they happened and never reads the clock itself.
// Time accrues only while the player is playing and the page is visible,
// and no single step credits more than MaxGap, so a client that goes
// silent for minutes is not paid for them.
package watch

import (
	"fmt"
	"time"
)

// DefaultMaxGap is the largest interval credited between two events.
const DefaultMaxGap = 5 * time.Second

type State string

const (
	StateIdle      State = "idle"
	StatePlaying   State = "playing"
	StatePaused    State = "paused"
	StateHidden    State = "hidden"
	StateCompleted State = "completed"
)

type EventKind string

const (
	EventPlay    EventKind = "play"
	EventPause   EventKind = "pause"
	EventHidden  EventKind = "hidden"
	EventVisible EventKind = "visible"
	EventTick    EventKind = "tick"
	EventSeek    EventKind = "seek"
)

// Event is one player or page signal. Position is only meaningful for seeks.
type Event struct {
	Kind     EventKind
	Position float64
}

// ParseEventKind validates a client-supplied event name.
func ParseEventKind(s string) (EventKind, error) {
	switch k := EventKind(s); k {
	case EventPlay, EventPause, EventHidden, EventVisible, EventTick, EventSeek:
		return k, nil
	}
	return "", fmt.Errorf("unknown watch event %q", s)
}

// Snapshot is the persisted form of a Session. Playing and Hidden are kept
// apart from State because State reports only the dominant condition: a page
// hidden before the first play is still idle.
type Snapshot struct {
	State         State
	Playing       bool
	Hidden        bool
	WatchedMillis int64
	LastEventAt   *time.Time
}

type Session struct {
	required time.Duration
	maxGap   time.Duration

	started  bool
	playing  bool
	hidden   bool
	watched  time.Duration
	last     time.Time
	position float64
	fired    bool
}

// NewSession starts a tracker that completes after required of watch time.
// A non-positive requirement is complete from the start.
func NewSession(required, maxGap time.Duration) *Session {
	if maxGap <= 0 {
		maxGap = DefaultMaxGap
	}
	return &Session{required: required, maxGap: maxGap}
}

// Restore rebuilds a Session from a snapshot. A completed snapshot is inert.
func Restore(snap Snapshot, required, maxGap time.Duration) *Session {
	s := NewSession(required, maxGap)
	s.watched = time.Duration(snap.WatchedMillis) * time.Millisecond
	switch snap.State {
	case StateIdle, "":
		s.hidden = snap.Hidden
	case StateCompleted:
		s.started, s.fired = true, true
	default:
		s.started = true
		s.playing = snap.Playing || snap.State == StatePlaying
		s.hidden = snap.Hidden || snap.State == StateHidden
	}
	if snap.LastEventAt != nil && s.accruing() {
		s.last = *snap.LastEventAt
	}
	return s
}

// Apply feeds one event observed at now. It reports true exactly once, on the
// event that brings watched time up to the requirement. Events after
// completion are ignored.
func (s *Session) Apply(ev Event, now time.Time) (bool, error) {
	if s.fired {
		return false, nil
	}
	if s.accruing() {
		s.accrue(now)
	}

	switch ev.Kind {
	case EventPlay:
		s.started = true
		s.playing = true
	case EventPause:
		s.playing = false
	case EventHidden:
		s.hidden = true
	case EventVisible:
		s.hidden = false
	case EventTick:
	case EventSeek:
		// Jumping ahead never counts as watching.
		s.position = ev.Position
	default:
		return false, fmt.Errorf("unknown watch event %q", ev.Kind)
	}

	if s.accruing() {
		s.last = now
	} else {
		s.last = time.Time{}
	}

	if s.watched >= s.required {
		s.fired = true
		s.playing = false
		s.last = time.Time{}
		return true, nil
	}
	return false, nil
}

func (s *Session) accruing() bool {
	return s.playing && !s.hidden
}

func (s *Session) accrue(now time.Time) {
	if s.last.IsZero() {
		return
	}
	gap := now.Sub(s.last)
	if gap <= 0 {
		return
	}
	if gap > s.maxGap {
		gap = s.maxGap
	}
	s.watched += gap
}

// Completed reports whether the requirement has been met.
func (s *Session) Completed() bool {
	return s.fired || s.watched >= s.required
}

// Watched returns the credited watch time.
func (s *Session) Watched() time.Duration { return s.watched }

// WatchedSeconds returns whole credited seconds.
func (s *Session) WatchedSeconds() int { return int(s.watched / time.Second) }

// Position is the last reported player position.
func (s *Session) Position() float64 { return s.position }

// Progress returns completion as a percentage in [0, 100].
func (s *Session) Progress() int {
	if s.required <= 0 || s.Completed() {
		return 100
	}
	p := int(s.watched * 100 / s.required)
	if p > 100 {
		return 100
	}
	return p
}

func (s *Session) State() State {
	switch {
	case s.Completed():
		return StateCompleted
	case !s.started:
		return StateIdle
	case s.hidden:
		return StateHidden
	case s.playing:
		return StatePlaying
	default:
		return StatePaused
	}
}

func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		State:         s.State(),
		Playing:       s.playing,
		Hidden:        s.hidden,
		WatchedMillis: s.watched.Milliseconds(),
	}
	if !s.last.IsZero() {
		last := s.last
		snap.LastEventAt = &last
	}
	return snap
}
