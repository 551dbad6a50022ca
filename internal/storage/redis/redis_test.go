package redis

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TaomasSpace/clubhall-guard/internal/scheduler"
)

func TestTimerStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	ctx := context.Background()
	store, err := Open(ctx, Options{Addr: addr, HashKey: "test:timers:" + uuid.NewString()})
	require.NoError(t, err)
	t.Cleanup(func() {
		store.client.Del(context.Background(), store.key)
		store.Close()
	})

	deadline := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.PutTimer(ctx, scheduler.TimerEntry{TenantID: "g1", TimerID: "m1", Kind: scheduler.KindGiveaway, Deadline: deadline.Add(time.Hour)}))
	require.NoError(t, store.PutTimer(ctx, scheduler.TimerEntry{TenantID: "g1", TimerID: "g1", Kind: scheduler.KindMessageLogFlush, Deadline: deadline}))

	rows, err := store.ListAllTimers(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, scheduler.KindMessageLogFlush, rows[0].Kind)

	require.NoError(t, store.DeleteTimer(ctx, "g1", "m1", scheduler.KindGiveaway))
	require.NoError(t, store.DeleteTimer(ctx, "g1", "m1", scheduler.KindGiveaway))
	rows, err = store.ListAllTimers(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestDecodeSkipsAndLogsBadRows(t *testing.T) {
	var buf bytes.Buffer
	store := &TimerStore{key: "timers", log: zerolog.New(&buf)}

	good, err := json.Marshal(scheduler.TimerEntry{TenantID: "g1", TimerID: "u1", Kind: scheduler.KindPrisonRelease, Deadline: time.Now()})
	require.NoError(t, err)

	rows := store.decode(map[string]string{
		"g1/prison-release/u1": string(good),
		"g1/giveaway/m1":       "{not json",
	})
	require.Len(t, rows, 1)
	assert.Equal(t, "u1", rows[0].TimerID)
	assert.Contains(t, buf.String(), `"field":"g1/giveaway/m1"`)
	assert.Contains(t, buf.String(), `"level":"warn"`)
}
