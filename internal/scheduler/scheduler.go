// Package scheduler runs delayed actions whose deadlines survive restarts.
//
// Every timer is written to a PersistencePort before it is armed in memory.
// On start, RecoverAll re-arms persisted timers and fires the overdue ones.
// A fire runs at most once and is never retried; its row is deleted
// afterwards even when the action failed.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/TaomasSpace/clubhall-guard/internal/clock"
	"github.com/TaomasSpace/clubhall-guard/pkg/util"
)

// Metrics receives scheduler activity. Implemented by internal/metrics.
type Metrics interface {
	TimerScheduled(kind string)
	TimerFired(kind, result string)
	TimerCancelled(kind string)
	TimerPending(kind string, delta int)
}

type nopMetrics struct{}

func (nopMetrics) TimerScheduled(string)     {}
func (nopMetrics) TimerFired(string, string) {}
func (nopMetrics) TimerCancelled(string)     {}
func (nopMetrics) TimerPending(string, int)  {}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// Scheduler owns the in-memory timers. Safe for concurrent use.
type Scheduler struct {
	port    PersistencePort
	clock   clock.Clock
	log     zerolog.Logger
	metrics Metrics
	workers int

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	timers map[Key]*TimerHandle
	locks  map[Key]*keyLock
	closed bool

	inflight  sync.WaitGroup
	recovered atomic.Bool
	ready     chan struct{}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

func WithClock(c clock.Clock) Option { return func(s *Scheduler) { s.clock = c } }

func WithLogger(l zerolog.Logger) Option { return func(s *Scheduler) { s.log = l } }

func WithMetrics(m Metrics) Option { return func(s *Scheduler) { s.metrics = m } }

// WithRecoveryWorkers bounds how many overdue timers fire concurrently
// during recovery.
func WithRecoveryWorkers(n int) Option { return func(s *Scheduler) { s.workers = n } }

// New creates a Scheduler. Schedule and Cancel block until RecoverAll has
// run once.
func New(port PersistencePort, opts ...Option) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		port:    port,
		clock:   clock.Real{},
		log:     zerolog.Nop(),
		metrics: nopMetrics{},
		workers: 4,
		ctx:     ctx,
		cancel:  cancel,
		timers:  make(map[Key]*TimerHandle),
		locks:   make(map[Key]*keyLock),
		ready:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.workers < 1 {
		s.workers = 1
	}
	return s
}

// Schedule persists entry and arms it. A live timer with the same key is
// cancelled first; its onFire never runs. If persisting fails nothing is
// armed and the previous timer, if any, stays in place.
func (s *Scheduler) Schedule(ctx context.Context, entry TimerEntry, onFire FireFunc) (*TimerHandle, error) {
	if onFire == nil {
		return nil, ErrNoHandler
	}
	if err := entry.Validate(); err != nil {
		return nil, err
	}
	if err := s.waitReady(ctx); err != nil {
		return nil, err
	}

	k := entry.Key()
	unlock := s.lockKey(k)
	defer unlock()

	if s.isClosed() {
		return nil, ErrClosed
	}

	if err := s.port.PutTimer(ctx, entry); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrPersistence, k, err)
	}

	h := newHandle(entry, onFire)
	if old := s.swap(k, h); old != nil {
		if old.cancel() {
			s.metrics.TimerCancelled(string(k.Kind))
			s.log.Debug().Str("timer", k.String()).Str("handle", old.ID()).Msg("replaced pending timer")
		}
	}
	s.arm(h)
	s.metrics.TimerScheduled(string(k.Kind))
	s.log.Info().
		Str("timer", k.String()).
		Time("deadline", entry.Deadline).
		Str("handle", h.ID()).
		Msg("timer scheduled")
	return h, nil
}

// Cancel stops a pending timer and deletes its row. It reports whether a
// live timer was stopped. Cancelling an unknown key is not an error, and a
// timer whose onFire already started is left to complete.
func (s *Scheduler) Cancel(ctx context.Context, tenantID, timerID string, kind Kind) (bool, error) {
	if err := s.waitReady(ctx); err != nil {
		return false, err
	}

	k := Key{TenantID: tenantID, TimerID: timerID, Kind: kind}
	unlock := s.lockKey(k)
	defer unlock()

	existed := false
	if h := s.current(k); h != nil {
		if !h.cancel() {
			return false, nil
		}
		s.remove(k, h)
		existed = true
		s.metrics.TimerCancelled(string(kind))
	}

	if err := s.port.DeleteTimer(ctx, tenantID, timerID, kind); err != nil {
		return existed, fmt.Errorf("delete timer %s: %w", k, err)
	}
	if existed {
		s.log.Info().Str("timer", k.String()).Msg("timer cancelled")
	}
	return existed, nil
}

// RecoverAll loads every persisted timer once at start. Future deadlines are
// re-armed; overdue ones are fired in the background. Rows of kinds without a
// handler are logged and left in place. Schedule calls are held back until
// every recovered timer is enqueued.
func (s *Scheduler) RecoverAll(ctx context.Context, handlers map[Kind]FireFunc) error {
	if !s.recovered.CompareAndSwap(false, true) {
		return errors.New("timers already recovered")
	}
	defer close(s.ready)

	entries, err := s.port.ListAllTimers(ctx)
	if err != nil {
		return fmt.Errorf("list timers: %w", err)
	}

	now := s.clock.Now()
	var overdue []*TimerHandle
	armed := 0

	for _, e := range entries {
		if err := e.Validate(); err != nil {
			s.log.Warn().Err(err).Str("timer", e.Key().String()).Msg("skipping invalid persisted timer")
			continue
		}
		onFire := handlers[e.Kind]
		if onFire == nil {
			s.log.Warn().Str("timer", e.Key().String()).Msg("no handler for persisted timer kind")
			continue
		}

		k := e.Key()
		h := newHandle(e, onFire)
		unlock := s.lockKey(k)
		if old := s.swap(k, h); old != nil {
			old.cancel()
		}
		if e.Deadline.After(now) {
			s.arm(h)
			armed++
		} else {
			overdue = append(overdue, h)
		}
		unlock()
	}

	s.log.Info().
		Int("persisted", len(entries)).
		Int("armed", armed).
		Int("overdue", len(overdue)).
		Msg("timers recovered")

	if len(overdue) > 0 {
		go func() {
			_ = util.Parallel(s.ctx, overdue, s.workers, func(_ context.Context, h *TimerHandle) error {
				s.log.Info().
					Str("timer", h.Key().String()).
					Dur("late_by", s.clock.Now().Sub(h.Deadline())).
					Msg("firing overdue timer")
				s.fire(h)
				return nil
			})
		}()
	}
	return nil
}

// Get returns the live handle for a key.
func (s *Scheduler) Get(tenantID, timerID string, kind Kind) (*TimerHandle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.timers[Key{TenantID: tenantID, TimerID: timerID, Kind: kind}]
	return h, ok
}

// Pending returns the live timers, soonest first. An empty tenantID lists
// every tenant.
func (s *Scheduler) Pending(tenantID string) []TimerEntry {
	s.mu.Lock()
	out := make([]TimerEntry, 0, len(s.timers))
	for k, h := range s.timers {
		if tenantID != "" && k.TenantID != tenantID {
			continue
		}
		out = append(out, h.Entry())
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Deadline.Before(out[j].Deadline) })
	return out
}

// Close stops all armed timers without deleting their rows, so the next
// start recovers them, and waits for fires already in progress.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	handles := make([]*TimerHandle, 0, len(s.timers))
	for _, h := range s.timers {
		handles = append(handles, h)
	}
	s.mu.Unlock()

	// Handles stay in the map so a fire already in progress still finds
	// itself current and deletes its own row.
	for _, h := range handles {
		h.cancel()
	}
	s.inflight.Wait()
	s.cancel()
}

func (s *Scheduler) arm(h *TimerHandle) {
	delay := h.Deadline().Sub(s.clock.Now())
	if delay < 0 {
		delay = 0
	}
	h.setTimer(s.clock.AfterFunc(delay, func() { s.fire(h) }))
}

func (s *Scheduler) fire(h *TimerHandle) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.inflight.Add(1)
	s.mu.Unlock()
	defer s.inflight.Done()

	if !h.claim() {
		return
	}

	k := h.Key()
	result := "ok"
	if err := s.invoke(h); err != nil {
		result = "error"
		s.log.Error().Err(err).Str("timer", k.String()).Msg("timer action failed")
	}

	unlock := s.lockKey(k)
	if s.current(k) == h {
		s.remove(k, h)
		if err := s.port.DeleteTimer(s.ctx, k.TenantID, k.TimerID, k.Kind); err != nil {
			s.log.Error().Err(err).Str("timer", k.String()).Msg("failed to delete fired timer")
		}
	}
	unlock()

	h.finish()
	s.metrics.TimerFired(string(k.Kind), result)
	s.log.Info().Str("timer", k.String()).Str("result", result).Msg("timer fired")
}

func (s *Scheduler) invoke(h *TimerHandle) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("timer action panicked: %v", r)
		}
	}()
	return h.onFire(s.ctx, h.Entry())
}

func (s *Scheduler) waitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for timer recovery: %w", ctx.Err())
	}
}

func (s *Scheduler) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Scheduler) current(k Key) *TimerHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timers[k]
}

// swap installs h for k and returns the previous handle.
func (s *Scheduler) swap(k Key, h *TimerHandle) *TimerHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.timers[k]
	s.timers[k] = h
	if old == nil {
		s.metrics.TimerPending(string(k.Kind), 1)
	}
	return old
}

func (s *Scheduler) remove(k Key, h *TimerHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timers[k] == h {
		delete(s.timers, k)
		s.metrics.TimerPending(string(k.Kind), -1)
	}
}

// lockKey serialises schedule, cancel and fire cleanup per key. The lock is
// held across the persistence call so write-ahead ordering holds.
func (s *Scheduler) lockKey(k Key) func() {
	s.mu.Lock()
	l, ok := s.locks[k]
	if !ok {
		l = &keyLock{}
		s.locks[k] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, k)
		}
		s.mu.Unlock()
	}
}

// Until is a convenience for callers computing a deadline from now.
func (s *Scheduler) Until(d time.Duration) time.Time {
	return s.clock.Now().Add(d)
}
