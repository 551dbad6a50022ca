package discord

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TaomasSpace/clubhall-guard/internal/clock"
	"github.com/TaomasSpace/clubhall-guard/internal/guard"
)

const discordEpochMs = 1420070400000

var start = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func snowflake(t time.Time, seq int) string {
	return strconv.FormatInt(((t.UnixMilli()-discordEpochMs)<<22)+int64(seq), 10)
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []*discordgo.AuditLogEntry
	calls   int
}

func (a *fakeAudit) add(id, actorID, targetID string, action discordgo.AuditLogAction) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append([]*discordgo.AuditLogEntry{{
		ID:         id,
		UserID:     actorID,
		TargetID:   targetID,
		ActionType: &action,
	}}, a.entries...)
}

func (a *fakeAudit) GuildAuditLog(_, _, _ string, actionType, limit int, _ ...discordgo.RequestOption) (*discordgo.GuildAuditLog, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	out := &discordgo.GuildAuditLog{}
	for _, e := range a.entries {
		if int(*e.ActionType) == actionType && len(out.AuditLogEntries) < limit {
			out.AuditLogEntries = append(out.AuditLogEntries, e)
		}
	}
	return out, nil
}

type fakeInfo struct {
	self, owner string
	roles       map[string][]string
}

func (i fakeInfo) SelfID() string                           { return i.self }
func (i fakeInfo) OwnerID(string) string                    { return i.owner }
func (i fakeInfo) RoleIDs(_ string, userID string) []string { return i.roles[userID] }

type punishCall struct {
	guildID, actorID string
	res              guard.Result
}

type fakePunisher struct {
	mu    sync.Mutex
	calls []punishCall
}

func (p *fakePunisher) Punish(_ context.Context, guildID, actorID string, res guard.Result) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, punishCall{guildID, actorID, res})
	return nil
}

type fakeCounter struct {
	counted map[string]int
}

func (c *fakeCounter) CountMessage(_, userID string) (bool, error) {
	c.counted[userID]++
	return true, nil
}

type policies struct {
	byCategory map[guard.Category]guard.WindowPolicy
	exempt     guard.ExemptionSet
}

func (p policies) GetPolicy(_ string, c guard.Category) (guard.WindowPolicy, bool, error) {
	pol, ok := p.byCategory[c]
	return pol, ok, nil
}

func (p policies) GetExemptions(string) (guard.ExemptionSet, error) { return p.exempt, nil }

type watcherFixture struct {
	w        *watcher
	audit    *fakeAudit
	punisher *fakePunisher
	counter  *fakeCounter
	clock    *clock.Fake
	guard    *guard.Guard
}

func newWatcherFixture(t *testing.T, pols map[guard.Category]guard.WindowPolicy) *watcherFixture {
	t.Helper()
	f := &watcherFixture{
		audit:    &fakeAudit{},
		punisher: &fakePunisher{},
		counter:  &fakeCounter{counted: map[string]int{}},
		clock:    clock.NewFake(start),
	}
	f.guard = guard.New(policies{
		byCategory: pols,
		exempt:     guard.NewExemptionSet([]string{"trusted"}, []string{"safe-role"}),
	}, guard.WithClock(f.clock))
	info := fakeInfo{self: "bot", owner: "owner", roles: map[string][]string{"helper": {"safe-role"}}}
	f.w = newWatcher(f.audit, info, f.guard, f.punisher, f.counter, f.clock, zerolog.Nop())
	return f
}

func kickPolicy(threshold int) map[guard.Category]guard.WindowPolicy {
	return map[guard.Category]guard.WindowPolicy{
		guard.CategoryRoleDelete: {Enabled: true, ThresholdCount: threshold, Punishment: guard.PunishKick},
	}
}

func (f *watcherFixture) deleteRole(actorID, roleID string, seq int) {
	f.audit.add(snowflake(f.clock.Now(), seq), actorID, roleID, discordgo.AuditLogActionRoleDelete)
	f.w.onRoleDelete(context.Background(), &discordgo.GuildRoleDelete{GuildID: "g1", RoleID: roleID})
}

func TestWatcherTriggersAtThreshold(t *testing.T) {
	f := newWatcherFixture(t, kickPolicy(3))

	f.deleteRole("nuker", "r1", 1)
	f.clock.Advance(time.Second)
	f.deleteRole("nuker", "r2", 2)
	assert.Empty(t, f.punisher.calls)

	f.clock.Advance(time.Second)
	f.deleteRole("nuker", "r3", 3)

	require.Len(t, f.punisher.calls, 1)
	call := f.punisher.calls[0]
	assert.Equal(t, "g1", call.guildID)
	assert.Equal(t, "nuker", call.actorID)
	assert.True(t, call.res.Triggered)
	assert.Equal(t, guard.PunishKick, call.res.Punishment)
	assert.Equal(t, 0, f.guard.Len("g1", guard.CategoryRoleDelete, "nuker"))
}

func TestWatcherAttribution(t *testing.T) {
	t.Run("stale audit entries are ignored", func(t *testing.T) {
		f := newWatcherFixture(t, kickPolicy(1))
		f.audit.add(snowflake(start.Add(-11*time.Second), 1), "nuker", "r1", discordgo.AuditLogActionRoleDelete)

		f.w.onRoleDelete(context.Background(), &discordgo.GuildRoleDelete{GuildID: "g1", RoleID: "r1"})
		assert.Empty(t, f.punisher.calls)
	})

	t.Run("target must match", func(t *testing.T) {
		f := newWatcherFixture(t, kickPolicy(1))
		f.audit.add(snowflake(start, 1), "nuker", "other", discordgo.AuditLogActionRoleDelete)

		f.w.onRoleDelete(context.Background(), &discordgo.GuildRoleDelete{GuildID: "g1", RoleID: "r1"})
		assert.Empty(t, f.punisher.calls)
	})

	t.Run("an audit entry is counted once", func(t *testing.T) {
		f := newWatcherFixture(t, kickPolicy(2))
		f.audit.add(snowflake(start, 1), "nuker", "", discordgo.AuditLogActionWebhookCreate)
		f.w.guard = guard.New(policies{byCategory: map[guard.Category]guard.WindowPolicy{
			guard.CategoryWebhookCreate: {Enabled: true, ThresholdCount: 2, Punishment: guard.PunishBan},
		}}, guard.WithClock(f.clock))

		f.w.onWebhooksUpdate(context.Background(), &discordgo.WebhooksUpdate{GuildID: "g1", ChannelID: "c1"})
		f.w.onWebhooksUpdate(context.Background(), &discordgo.WebhooksUpdate{GuildID: "g1", ChannelID: "c1"})

		assert.Equal(t, 1, f.w.guard.Len("g1", guard.CategoryWebhookCreate, "nuker"))
		assert.Empty(t, f.punisher.calls)
	})

	t.Run("bot and owner are never counted", func(t *testing.T) {
		f := newWatcherFixture(t, kickPolicy(1))
		f.deleteRole("bot", "r1", 1)
		f.deleteRole("owner", "r2", 2)

		assert.Empty(t, f.punisher.calls)
		assert.Equal(t, 0, f.guard.Len("g1", guard.CategoryRoleDelete, "owner"))
	})

	t.Run("exempt roles come from member state", func(t *testing.T) {
		f := newWatcherFixture(t, kickPolicy(1))
		f.deleteRole("helper", "r1", 1)
		f.deleteRole("trusted", "r2", 2)

		assert.Empty(t, f.punisher.calls)
	})

	t.Run("member leaving is not a kick", func(t *testing.T) {
		f := newWatcherFixture(t, map[guard.Category]guard.WindowPolicy{
			guard.CategoryKick: {Enabled: true, ThresholdCount: 1, Punishment: guard.PunishBan},
		})
		remove := &discordgo.GuildMemberRemove{Member: &discordgo.Member{GuildID: "g1", User: &discordgo.User{ID: "u1"}}}

		f.w.onMemberRemove(context.Background(), remove)
		assert.Empty(t, f.punisher.calls)

		f.audit.add(snowflake(start, 1), "nuker", "u1", discordgo.AuditLogActionMemberKick)
		f.w.onMemberRemove(context.Background(), remove)
		require.Len(t, f.punisher.calls, 1)
		assert.Equal(t, guard.CategoryKick, f.punisher.calls[0].res.Category)
	})
}

func TestWatcherMessages(t *testing.T) {
	floodPolicy := map[guard.Category]guard.WindowPolicy{
		guard.CategoryMentionFlood: {Enabled: true, ThresholdCount: 4, Punishment: guard.PunishTimeout, TimeoutDuration: time.Hour},
	}
	users := func(ids ...string) []*discordgo.User {
		out := make([]*discordgo.User, len(ids))
		for i, id := range ids {
			out[i] = &discordgo.User{ID: id}
		}
		return out
	}

	t.Run("mentions below threshold only count the message", func(t *testing.T) {
		f := newWatcherFixture(t, floodPolicy)
		f.w.message(context.Background(), &discordgo.Message{
			GuildID:  "g1",
			Author:   &discordgo.User{ID: "spammer"},
			Mentions: users("a", "b", "c"),
		})

		assert.Empty(t, f.punisher.calls)
		assert.Equal(t, 1, f.counter.counted["spammer"])
	})

	t.Run("role mentions and everyone add up", func(t *testing.T) {
		f := newWatcherFixture(t, floodPolicy)
		f.w.message(context.Background(), &discordgo.Message{
			GuildID:         "g1",
			Author:          &discordgo.User{ID: "spammer"},
			Mentions:        users("a", "b"),
			MentionRoles:    []string{"r1"},
			MentionEveryone: true,
		})

		require.Len(t, f.punisher.calls, 1)
		assert.Equal(t, guard.PunishTimeout, f.punisher.calls[0].res.Punishment)
		assert.Equal(t, time.Hour, f.punisher.calls[0].res.TimeoutDuration)
	})

	t.Run("bots and direct messages are skipped", func(t *testing.T) {
		f := newWatcherFixture(t, floodPolicy)
		f.w.message(context.Background(), &discordgo.Message{GuildID: "g1", Author: &discordgo.User{ID: "b", Bot: true}, Mentions: users("a", "b", "c", "d")})
		f.w.message(context.Background(), &discordgo.Message{Author: &discordgo.User{ID: "u"}, Mentions: users("a", "b", "c", "d")})

		assert.Empty(t, f.punisher.calls)
		assert.Empty(t, f.counter.counted)
	})

	t.Run("exempt role skips the flood check", func(t *testing.T) {
		f := newWatcherFixture(t, floodPolicy)
		f.w.message(context.Background(), &discordgo.Message{
			GuildID:  "g1",
			Author:   &discordgo.User{ID: "mod"},
			Member:   &discordgo.Member{Roles: []string{"safe-role"}},
			Mentions: users("a", "b", "c", "d"),
		})

		assert.Empty(t, f.punisher.calls)
		assert.Equal(t, 1, f.counter.counted["mod"])
	})
}
