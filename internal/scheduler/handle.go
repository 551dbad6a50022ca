package scheduler

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/TaomasSpace/clubhall-guard/internal/clock"
)

// State is the lifecycle position of a TimerHandle.
type State int

const (
	Scheduled State = iota
	// Firing means onFire has started; cancellation is no longer possible.
	Firing
	Fired
	Cancelled
)

func (s State) String() string {
	switch s {
	case Scheduled:
		return "scheduled"
	case Firing:
		return "firing"
	case Fired:
		return "fired"
	case Cancelled:
		return "cancelled"
	}
	return "unknown"
}

// TimerHandle is the in-memory side of one scheduled TimerEntry. A replaced
// schedule gets a new handle with a new ID.
type TimerHandle struct {
	id     string
	entry  TimerEntry
	onFire FireFunc

	mu    sync.Mutex
	state State
	timer clock.Timer
	done  chan struct{}
}

func newHandle(entry TimerEntry, onFire FireFunc) *TimerHandle {
	return &TimerHandle{
		id:     uuid.NewString(),
		entry:  entry,
		onFire: onFire,
		done:   make(chan struct{}),
	}
}

// ID is unique per schedule call.
func (h *TimerHandle) ID() string { return h.id }

func (h *TimerHandle) Key() Key { return h.entry.Key() }

func (h *TimerHandle) Deadline() time.Time { return h.entry.Deadline }

// Entry returns a copy of the scheduled entry.
func (h *TimerHandle) Entry() TimerEntry { return h.entry }

func (h *TimerHandle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Done is closed once the handle reaches Fired or Cancelled.
func (h *TimerHandle) Done() <-chan struct{} { return h.done }

func (h *TimerHandle) setTimer(t clock.Timer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.timer = t
}

// claim moves Scheduled to Firing. Only the winner may run onFire.
func (h *TimerHandle) claim() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != Scheduled {
		return false
	}
	h.state = Firing
	return true
}

// cancel moves Scheduled to Cancelled and stops the armed timer. It fails
// once firing has begun.
func (h *TimerHandle) cancel() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != Scheduled {
		return false
	}
	h.state = Cancelled
	if h.timer != nil {
		h.timer.Stop()
	}
	close(h.done)
	return true
}

func (h *TimerHandle) finish() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = Fired
	close(h.done)
}
