package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TaomasSpace/clubhall-guard/internal/clock"
)

// memPort is an in-memory PersistencePort with failure injection.
type memPort struct {
	mu      sync.Mutex
	rows    map[Key]TimerEntry
	putErr  error
	delErr  error
	listErr error
	puts    int
	deletes int
}

func newMemPort() *memPort { return &memPort{rows: make(map[Key]TimerEntry)} }

func (m *memPort) PutTimer(_ context.Context, e TimerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.puts++
	m.rows[e.Key()] = e
	return nil
}

func (m *memPort) DeleteTimer(_ context.Context, tenantID, timerID string, kind Kind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.delErr != nil {
		return m.delErr
	}
	m.deletes++
	delete(m.rows, Key{TenantID: tenantID, TimerID: timerID, Kind: kind})
	return nil
}

func (m *memPort) ListAllTimers(context.Context) ([]TimerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]TimerEntry, 0, len(m.rows))
	for _, e := range m.rows {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key().String() < out[j].Key().String() })
	return out, nil
}

func (m *memPort) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

type fireRecorder struct {
	mu    sync.Mutex
	fired []TimerEntry
	err   error
}

func (r *fireRecorder) fire(_ context.Context, e TimerEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fired = append(r.fired, e)
	return r.err
}

func (r *fireRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fired)
}

var start = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

func newTestScheduler(t *testing.T, port PersistencePort) (*Scheduler, *clock.Fake) {
	t.Helper()
	fc := clock.NewFake(start)
	s := New(port, WithClock(fc))
	require.NoError(t, s.RecoverAll(context.Background(), nil))
	t.Cleanup(s.Close)
	return s, fc
}

func giveawayEntry(t *testing.T, id string, deadline time.Time) TimerEntry {
	t.Helper()
	payload, err := EncodePayload(GiveawayPayload{ChannelID: "c1", MessageID: id, Prize: "Nitro", Winners: 1})
	require.NoError(t, err)
	return TimerEntry{TenantID: "g1", TimerID: id, Kind: KindGiveaway, Deadline: deadline, Payload: payload}
}

func TestSchedule_PersistsBeforeReturning(t *testing.T) {
	port := newMemPort()
	s, _ := newTestScheduler(t, port)

	entry := giveawayEntry(t, "m1", start.Add(600*time.Second))
	h, err := s.Schedule(context.Background(), entry, (&fireRecorder{}).fire)
	require.NoError(t, err)
	assert.Equal(t, Scheduled, h.State())

	rows, err := port.ListAllTimers(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "g1", rows[0].TenantID)
	assert.Equal(t, "m1", rows[0].TimerID)
	assert.Equal(t, KindGiveaway, rows[0].Kind)
	assert.True(t, rows[0].Deadline.Equal(start.Add(600*time.Second)))

	var p GiveawayPayload
	require.NoError(t, rows[0].DecodePayload(&p))
	assert.Equal(t, "Nitro", p.Prize)
	assert.Equal(t, 1, p.Winners)
}

func TestSchedule_FiresAtDeadlineAndDeletesRow(t *testing.T) {
	port := newMemPort()
	s, fc := newTestScheduler(t, port)
	rec := &fireRecorder{}

	h, err := s.Schedule(context.Background(), giveawayEntry(t, "m1", start.Add(time.Minute)), rec.fire)
	require.NoError(t, err)

	fc.Advance(59 * time.Second)
	assert.Equal(t, 0, rec.count())

	fc.Advance(time.Second)
	assert.Equal(t, 1, rec.count())
	assert.Equal(t, Fired, h.State())
	assert.Equal(t, 0, port.len())
	_, ok := s.Get("g1", "m1", KindGiveaway)
	assert.False(t, ok)

	select {
	case <-h.Done():
	default:
		t.Fatal("done channel not closed")
	}
}

func TestSchedule_PersistenceFailureArmsNothing(t *testing.T) {
	port := newMemPort()
	s, fc := newTestScheduler(t, port)
	rec := &fireRecorder{}

	first, err := s.Schedule(context.Background(), giveawayEntry(t, "m1", start.Add(time.Minute)), rec.fire)
	require.NoError(t, err)

	port.putErr = errors.New("disk full")
	_, err = s.Schedule(context.Background(), giveawayEntry(t, "m1", start.Add(time.Hour)), rec.fire)
	require.ErrorIs(t, err, ErrPersistence)

	_, err = s.Schedule(context.Background(), giveawayEntry(t, "m2", start.Add(time.Hour)), rec.fire)
	require.ErrorIs(t, err, ErrPersistence)
	_, ok := s.Get("g1", "m2", KindGiveaway)
	assert.False(t, ok)

	// the original timer is untouched
	assert.Equal(t, Scheduled, first.State())
	fc.Advance(time.Minute)
	assert.Equal(t, 1, rec.count())
}

func TestCancel(t *testing.T) {
	port := newMemPort()
	s, fc := newTestScheduler(t, port)
	rec := &fireRecorder{}

	h, err := s.Schedule(context.Background(), giveawayEntry(t, "m1", start.Add(time.Minute)), rec.fire)
	require.NoError(t, err)

	ok, err := s.Cancel(context.Background(), "g1", "m1", KindGiveaway)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, Cancelled, h.State())
	assert.Equal(t, 0, port.len())

	ok, err = s.Cancel(context.Background(), "g1", "m1", KindGiveaway)
	require.NoError(t, err)
	assert.False(t, ok)

	fc.Advance(time.Hour)
	assert.Equal(t, 0, rec.count())
}

func TestCancel_UnknownKeyIsClean(t *testing.T) {
	s, _ := newTestScheduler(t, newMemPort())
	ok, err := s.Cancel(context.Background(), "g1", "nope", KindPrisonRelease)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCancel_DeleteFailureIsReported(t *testing.T) {
	port := newMemPort()
	s, fc := newTestScheduler(t, port)
	rec := &fireRecorder{}
	_, err := s.Schedule(context.Background(), giveawayEntry(t, "m1", start.Add(time.Minute)), rec.fire)
	require.NoError(t, err)

	port.delErr = errors.New("read-only")
	ok, err := s.Cancel(context.Background(), "g1", "m1", KindGiveaway)
	assert.True(t, ok)
	assert.Error(t, err)

	fc.Advance(time.Hour)
	assert.Equal(t, 0, rec.count(), "in-memory task is stopped even if the row survives")
}

func TestSchedule_ReplaceCancelsPrevious(t *testing.T) {
	port := newMemPort()
	s, fc := newTestScheduler(t, port)
	first, second := &fireRecorder{}, &fireRecorder{}

	h1, err := s.Schedule(context.Background(), giveawayEntry(t, "m1", start.Add(time.Minute)), first.fire)
	require.NoError(t, err)
	h2, err := s.Schedule(context.Background(), giveawayEntry(t, "m1", start.Add(2*time.Minute)), second.fire)
	require.NoError(t, err)

	assert.NotEqual(t, h1.ID(), h2.ID())
	assert.Equal(t, Cancelled, h1.State())
	assert.Equal(t, 1, port.len())

	fc.Advance(time.Minute)
	assert.Equal(t, 0, first.count())
	assert.Equal(t, 0, second.count())

	fc.Advance(time.Minute)
	assert.Equal(t, 0, first.count())
	assert.Equal(t, 1, second.count())
	assert.Equal(t, 0, port.len())
}

func TestFire_ErrorsAndPanicsStillDeleteRow(t *testing.T) {
	port := newMemPort()
	s, fc := newTestScheduler(t, port)

	failing := &fireRecorder{err: errors.New("channel gone")}
	_, err := s.Schedule(context.Background(), giveawayEntry(t, "m1", start.Add(time.Second)), failing.fire)
	require.NoError(t, err)

	panicking := func(context.Context, TimerEntry) error { panic("boom") }
	_, err = s.Schedule(context.Background(), giveawayEntry(t, "m2", start.Add(time.Second)), panicking)
	require.NoError(t, err)

	fc.Advance(time.Second)
	assert.Equal(t, 1, failing.count())
	assert.Equal(t, 0, port.len())
}

func TestFire_DeleteFailureDoesNotUnfire(t *testing.T) {
	port := newMemPort()
	s, fc := newTestScheduler(t, port)
	rec := &fireRecorder{}

	h, err := s.Schedule(context.Background(), giveawayEntry(t, "m1", start.Add(time.Second)), rec.fire)
	require.NoError(t, err)
	port.delErr = errors.New("locked")

	fc.Advance(time.Second)
	assert.Equal(t, 1, rec.count())
	assert.Equal(t, Fired, h.State())
	assert.Equal(t, 1, port.len())
}

func TestCancel_DuringFireIsNoop(t *testing.T) {
	port := newMemPort()
	s, fc := newTestScheduler(t, port)

	entered := make(chan struct{})
	release := make(chan struct{})
	var fires atomic.Int32
	onFire := func(context.Context, TimerEntry) error {
		fires.Add(1)
		close(entered)
		<-release
		return nil
	}
	h, err := s.Schedule(context.Background(), giveawayEntry(t, "m1", start.Add(time.Second)), onFire)
	require.NoError(t, err)

	go fc.Advance(time.Second)
	<-entered

	ok, err := s.Cancel(context.Background(), "g1", "m1", KindGiveaway)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, Firing, h.State())

	close(release)
	<-h.Done()
	assert.Equal(t, int32(1), fires.Load())
	assert.Eventually(t, func() bool { return port.len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestSchedule_DuringFireKeepsReplacementRow(t *testing.T) {
	port := newMemPort()
	s, fc := newTestScheduler(t, port)

	entered := make(chan struct{})
	release := make(chan struct{})
	onFire := func(context.Context, TimerEntry) error {
		close(entered)
		<-release
		return nil
	}
	h1, err := s.Schedule(context.Background(), giveawayEntry(t, "m1", start.Add(time.Second)), onFire)
	require.NoError(t, err)

	go fc.Advance(time.Second)
	<-entered

	rec := &fireRecorder{}
	h2, err := s.Schedule(context.Background(), giveawayEntry(t, "m1", start.Add(time.Hour)), rec.fire)
	require.NoError(t, err)

	close(release)
	<-h1.Done()
	assert.Equal(t, 1, port.len(), "replacement row must survive the old fire")
	assert.Equal(t, Scheduled, h2.State())

	fc.Advance(time.Hour)
	assert.Equal(t, 1, rec.count())
	assert.Equal(t, 0, port.len())
}

func TestRecoverAll(t *testing.T) {
	port := newMemPort()

	// first process life
	fc := clock.NewFake(start)
	s1 := New(port, WithClock(fc))
	require.NoError(t, s1.RecoverAll(context.Background(), nil))
	_, err := s1.Schedule(context.Background(), giveawayEntry(t, "past", start.Add(time.Minute)), (&fireRecorder{}).fire)
	require.NoError(t, err)
	_, err = s1.Schedule(context.Background(), giveawayEntry(t, "future", start.Add(time.Hour)), (&fireRecorder{}).fire)
	require.NoError(t, err)
	prison, err := EncodePayload(PrisonPayload{UserID: "u1", PrisonRoleID: "r1"})
	require.NoError(t, err)
	_, err = s1.Schedule(context.Background(), TimerEntry{TenantID: "g1", TimerID: "u1", Kind: KindPrisonRelease, Deadline: start.Add(time.Minute), Payload: prison}, (&fireRecorder{}).fire)
	require.NoError(t, err)
	s1.Close()
	require.Equal(t, 3, port.len(), "close keeps rows for recovery")

	// restart after the first deadline passed
	fc2 := clock.NewFake(start.Add(10 * time.Minute))
	s2 := New(port, WithClock(fc2))
	defer s2.Close()
	giveaways, prisons := &fireRecorder{}, &fireRecorder{}
	require.NoError(t, s2.RecoverAll(context.Background(), map[Kind]FireFunc{
		KindGiveaway:      giveaways.fire,
		KindPrisonRelease: prisons.fire,
	}))

	assert.Eventually(t, func() bool { return port.len() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, giveaways.count())
	assert.Equal(t, 1, prisons.count())
	assert.Equal(t, "past", giveaways.fired[0].TimerID)

	_, armed := s2.Get("g1", "future", KindGiveaway)
	assert.True(t, armed)

	fc2.Advance(50 * time.Minute)
	assert.Equal(t, 2, giveaways.count())
	assert.Equal(t, 0, port.len())

	assert.Error(t, s2.RecoverAll(context.Background(), nil), "recovery runs once")
}

func TestRecoverAll_KindWithoutHandlerStaysPersisted(t *testing.T) {
	port := newMemPort()
	port.rows[Key{TenantID: "g1", TimerID: "g1", Kind: KindMessageLogFlush}] = TimerEntry{
		TenantID: "g1", TimerID: "g1", Kind: KindMessageLogFlush, Deadline: start.Add(-time.Minute),
		Payload: json.RawMessage(`{"channel_id":"c","top_n":5}`),
	}
	s := New(port, WithClock(clock.NewFake(start)))
	defer s.Close()
	require.NoError(t, s.RecoverAll(context.Background(), map[Kind]FireFunc{}))
	assert.Equal(t, 1, port.len())
	assert.Empty(t, s.Pending(""))
}

func TestRecoverAll_ListFailureStillOpensGate(t *testing.T) {
	port := newMemPort()
	port.listErr = errors.New("corrupt")
	s := New(port, WithClock(clock.NewFake(start)))
	defer s.Close()

	require.Error(t, s.RecoverAll(context.Background(), nil))
	port.listErr = nil
	_, err := s.Schedule(context.Background(), giveawayEntry(t, "m1", start.Add(time.Minute)), (&fireRecorder{}).fire)
	assert.NoError(t, err)
}

func TestSchedule_WaitsForRecovery(t *testing.T) {
	s := New(newMemPort(), WithClock(clock.NewFake(start)))
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.Schedule(ctx, giveawayEntry(t, "m1", start.Add(time.Minute)), (&fireRecorder{}).fire)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSchedule_Validation(t *testing.T) {
	s, _ := newTestScheduler(t, newMemPort())
	rec := &fireRecorder{}

	_, err := s.Schedule(context.Background(), TimerEntry{TenantID: "g1", Kind: KindGiveaway, Deadline: start}, rec.fire)
	assert.ErrorIs(t, err, ErrInvalidEntry)

	_, err = s.Schedule(context.Background(), TimerEntry{TenantID: "g1", TimerID: "x", Kind: "raffle", Deadline: start}, rec.fire)
	assert.ErrorIs(t, err, ErrInvalidEntry)

	_, err = s.Schedule(context.Background(), TimerEntry{TenantID: "g1", TimerID: "x", Kind: KindGiveaway, Deadline: start, Payload: json.RawMessage("{")}, rec.fire)
	assert.ErrorIs(t, err, ErrInvalidEntry)

	_, err = s.Schedule(context.Background(), giveawayEntry(t, "m1", start), nil)
	assert.ErrorIs(t, err, ErrNoHandler)
}

func TestSchedule_AfterClose(t *testing.T) {
	s := New(newMemPort(), WithClock(clock.NewFake(start)))
	require.NoError(t, s.RecoverAll(context.Background(), nil))
	s.Close()
	_, err := s.Schedule(context.Background(), giveawayEntry(t, "m1", start.Add(time.Minute)), (&fireRecorder{}).fire)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPending(t *testing.T) {
	s, _ := newTestScheduler(t, newMemPort())
	rec := &fireRecorder{}
	_, err := s.Schedule(context.Background(), giveawayEntry(t, "late", start.Add(time.Hour)), rec.fire)
	require.NoError(t, err)
	_, err = s.Schedule(context.Background(), giveawayEntry(t, "soon", start.Add(time.Minute)), rec.fire)
	require.NoError(t, err)
	other := giveawayEntry(t, "other", start.Add(time.Second))
	other.TenantID = "g2"
	_, err = s.Schedule(context.Background(), other, rec.fire)
	require.NoError(t, err)

	pending := s.Pending("g1")
	require.Len(t, pending, 2)
	assert.Equal(t, "soon", pending[0].TimerID)
	assert.Len(t, s.Pending(""), 3)
}
