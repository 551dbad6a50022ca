package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TaomasSpace/clubhall-guard/internal/guard"
	"github.com/TaomasSpace/clubhall-guard/internal/scheduler"
)

var (
	_ guard.Metrics     = (*Metrics)(nil)
	_ scheduler.Metrics = (*Metrics)(nil)
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	return rec.Body.String()
}

func TestCounters(t *testing.T) {
	m := New()

	m.GuardEvent("ban")
	m.GuardEvent("ban")
	m.GuardTrigger("ban", "kick")
	m.TimerScheduled("giveaway")
	m.TimerFired("giveaway", "ok")
	m.TimerCancelled("prison-release")
	m.TimerPending("giveaway", 1)
	m.TimerPending("giveaway", 1)
	m.TimerPending("giveaway", -1)

	body := scrape(t, m)
	assert.Contains(t, body, `guard_events_total{category="ban"} 2`)
	assert.Contains(t, body, `guard_triggers_total{category="ban",punishment="kick"} 1`)
	assert.Contains(t, body, `scheduler_scheduled_total{kind="giveaway"} 1`)
	assert.Contains(t, body, `scheduler_fires_total{kind="giveaway",result="ok"} 1`)
	assert.Contains(t, body, `scheduler_cancels_total{kind="prison-release"} 1`)
	assert.Contains(t, body, `scheduler_pending{kind="giveaway"} 1`)
	assert.Contains(t, body, "go_goroutines")
}
