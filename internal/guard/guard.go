// Package guard counts destructive actions per actor in a short sliding
// window and reports when a configured threshold is crossed.
package guard

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/TaomasSpace/clubhall-guard/internal/clock"
)

// Window is the burst interval over which events are counted.
const Window = 15 * time.Second

// Metrics receives guard activity. Implemented by internal/metrics.
type Metrics interface {
	GuardEvent(category string)
	GuardTrigger(category, punishment string)
}

type nopMetrics struct{}

func (nopMetrics) GuardEvent(string)           {}
func (nopMetrics) GuardTrigger(string, string) {}

type logKey struct {
	tenant   string
	category Category
	actor    string
}

// actorLog is the timestamp log of one (tenant, category, actor) key. Its
// mutex serialises read-prune-append-compare-reset.
type actorLog struct {
	mu    sync.Mutex
	times []time.Time
	dead  bool
}

// Guard is the windowed event counter. Safe for concurrent use.
type Guard struct {
	store   PolicyStore
	window  time.Duration
	clock   clock.Clock
	log     zerolog.Logger
	metrics Metrics

	mu   sync.Mutex
	logs map[logKey]*actorLog
}

// Option configures a Guard.
type Option func(*Guard)

// WithClock sets the clock used by the background sweeper.
func WithClock(c clock.Clock) Option { return func(g *Guard) { g.clock = c } }

// WithWindow overrides the window length. Intended for tests.
func WithWindow(d time.Duration) Option { return func(g *Guard) { g.window = d } }

func WithLogger(l zerolog.Logger) Option { return func(g *Guard) { g.log = l } }

func WithMetrics(m Metrics) Option { return func(g *Guard) { g.metrics = m } }

// New creates a Guard reading policies from store.
func New(store PolicyStore, opts ...Option) *Guard {
	g := &Guard{
		store:   store,
		window:  Window,
		clock:   clock.Real{},
		log:     zerolog.Nop(),
		metrics: nopMetrics{},
		logs:    make(map[logKey]*actorLog),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// RecordEvent accounts one event and reports whether the actor crossed the
// category threshold. Disabled or unconfigured categories and exempt actors
// are not accounted at all.
func (g *Guard) RecordEvent(tenantID string, category Category, actorID string, roleIDs []string, now time.Time) Result {
	policy, ok := g.activePolicy(tenantID, category)
	if !ok {
		return NoTrigger
	}
	if g.exempt(tenantID, actorID, roleIDs) {
		return NoTrigger
	}

	g.metrics.GuardEvent(string(category))
	k := logKey{tenant: tenantID, category: category, actor: actorID}

	for {
		l := g.logFor(k)
		l.mu.Lock()
		if l.dead {
			// swept between lookup and lock
			l.mu.Unlock()
			continue
		}

		l.times = append(l.times, now)
		l.times = prune(l.times, now, g.window)
		count := len(l.times)
		triggered := count >= policy.ThresholdCount
		if triggered {
			l.times = l.times[:0]
		}
		l.mu.Unlock()

		if !triggered {
			return Result{Category: category, Count: count}
		}
		g.metrics.GuardTrigger(string(category), string(policy.Punishment))
		g.log.Warn().
			Str("guild", tenantID).
			Str("category", string(category)).
			Str("actor", actorID).
			Int("count", count).
			Str("punishment", string(policy.Punishment)).
			Msg("threshold crossed")
		return triggerResult(category, policy, count)
	}
}

// Record is RecordEvent taking an EventRecord.
func (g *Guard) Record(ev EventRecord) Result {
	return g.RecordEvent(ev.TenantID, ev.Category, ev.ActorID, ev.RoleIDs, ev.Timestamp)
}

// RecordMentionFlood evaluates a single message: it triggers when the
// mention count of that message alone reaches the mention-flood threshold.
// No history is kept.
func (g *Guard) RecordMentionFlood(tenantID, actorID string, roleIDs []string, mentionCount int, now time.Time) Result {
	policy, ok := g.activePolicy(tenantID, CategoryMentionFlood)
	if !ok {
		return NoTrigger
	}
	if g.exempt(tenantID, actorID, roleIDs) {
		return NoTrigger
	}
	g.metrics.GuardEvent(string(CategoryMentionFlood))
	if mentionCount < policy.ThresholdCount {
		return Result{Category: CategoryMentionFlood, Count: mentionCount}
	}
	g.metrics.GuardTrigger(string(CategoryMentionFlood), string(policy.Punishment))
	g.log.Warn().
		Str("guild", tenantID).
		Str("actor", actorID).
		Int("mentions", mentionCount).
		Time("at", now).
		Msg("mention flood")
	return triggerResult(CategoryMentionFlood, policy, mentionCount)
}

// Len returns the number of events currently held for a key.
func (g *Guard) Len(tenantID string, category Category, actorID string) int {
	g.mu.Lock()
	l, ok := g.logs[logKey{tenant: tenantID, category: category, actor: actorID}]
	g.mu.Unlock()
	if !ok {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.times)
}

// Reset forgets every log of a tenant.
func (g *Guard) Reset(tenantID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for k, l := range g.logs {
		if k.tenant != tenantID {
			continue
		}
		l.mu.Lock()
		l.dead = true
		l.mu.Unlock()
		delete(g.logs, k)
	}
}

// Sweep drops logs whose newest entry left the window. Returns how many
// keys were removed.
func (g *Guard) Sweep(now time.Time) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	removed := 0
	for k, l := range g.logs {
		l.mu.Lock()
		l.times = prune(l.times, now, g.window)
		if len(l.times) == 0 {
			l.dead = true
			delete(g.logs, k)
			removed++
		}
		l.mu.Unlock()
	}
	return removed
}

// RunSweeper sweeps idle logs every interval of the guard's clock until ctx
// is done.
func (g *Guard) RunSweeper(ctx context.Context, interval time.Duration) {
	for {
		due := make(chan struct{})
		t := g.clock.AfterFunc(interval, func() { close(due) })
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-due:
		}
		if n := g.Sweep(g.clock.Now()); n > 0 {
			g.log.Debug().Int("keys", n).Msg("swept idle guard logs")
		}
	}
}

func (g *Guard) logFor(k logKey) *actorLog {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.logs[k]
	if !ok {
		l = &actorLog{}
		g.logs[k] = l
	}
	return l
}

func (g *Guard) activePolicy(tenantID string, category Category) (WindowPolicy, bool) {
	policy, ok, err := g.store.GetPolicy(tenantID, category)
	if err != nil {
		g.log.Error().Err(err).Str("guild", tenantID).Str("category", string(category)).Msg("policy lookup failed")
		return WindowPolicy{}, false
	}
	if !ok || !policy.Enabled || policy.ThresholdCount < 1 {
		return WindowPolicy{}, false
	}
	return policy, true
}

func (g *Guard) exempt(tenantID, actorID string, roleIDs []string) bool {
	ex, err := g.store.GetExemptions(tenantID)
	if err != nil {
		g.log.Error().Err(err).Str("guild", tenantID).Msg("exemption lookup failed")
		return false
	}
	return ex.IsExempt(actorID, roleIDs)
}

// prune keeps entries no older than window relative to now. Entries are not
// assumed sorted since concurrent deliveries may append out of order.
func prune(times []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	kept := times[:0]
	for _, t := range times {
		if !t.Before(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}

func triggerResult(category Category, p WindowPolicy, count int) Result {
	r := Result{
		Triggered:  true,
		Category:   category,
		Punishment: p.Punishment,
		Count:      count,
	}
	if p.Punishment == PunishTimeout {
		r.TimeoutDuration = p.TimeoutDuration
	}
	return r
}
