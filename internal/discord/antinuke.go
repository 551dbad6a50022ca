package discord

import (
	"context"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/TaomasSpace/clubhall-guard/internal/clock"
	"github.com/TaomasSpace/clubhall-guard/internal/guard"
)

const (
	// auditWindow bounds how old an audit entry may be to explain an event.
	auditWindow = 10 * time.Second
	auditLimit  = 5
	// seenTTL keeps consumed audit entry IDs so one entry is counted once.
	seenTTL = time.Minute
)

type auditLog interface {
	GuildAuditLog(guildID, userID, beforeID string, actionType, limit int, options ...discordgo.RequestOption) (*discordgo.GuildAuditLog, error)
}

// guildInfo answers the identity questions attribution needs.
type guildInfo interface {
	SelfID() string
	OwnerID(guildID string) string
	RoleIDs(guildID, userID string) []string
}

type punisher interface {
	Punish(ctx context.Context, guildID, actorID string, res guard.Result) error
}

type messageCounter interface {
	CountMessage(guildID, userID string) (bool, error)
}

// watcher turns gateway events into guard records and punishes triggers.
type watcher struct {
	audit    auditLog
	info     guildInfo
	guard    *guard.Guard
	punisher punisher
	counter  messageCounter
	clock    clock.Clock
	log      zerolog.Logger

	mu   sync.Mutex
	seen map[string]time.Time
}

func newWatcher(audit auditLog, info guildInfo, g *guard.Guard, p punisher, counter messageCounter, c clock.Clock, log zerolog.Logger) *watcher {
	return &watcher{
		audit:    audit,
		info:     info,
		guard:    g,
		punisher: p,
		counter:  counter,
		clock:    c,
		log:      log.With().Str("component", "antinuke").Logger(),
		seen:     make(map[string]time.Time),
	}
}

// observe attributes an audited action to its actor and records it.
func (w *watcher) observe(ctx context.Context, guildID string, category guard.Category, action discordgo.AuditLogAction, targetID string) {
	if guildID == "" {
		return
	}
	now := w.clock.Now()
	actorID, ok := w.attribute(guildID, action, targetID, now)
	if !ok {
		return
	}
	if w.ignored(guildID, actorID) {
		return
	}

	res := w.guard.RecordEvent(guildID, category, actorID, w.info.RoleIDs(guildID, actorID), now)
	w.log.Debug().
		Str("guild", guildID).
		Str("actor", actorID).
		Str("category", string(category)).
		Bool("triggered", res.Triggered).
		Msg("event recorded")
	w.punish(ctx, guildID, actorID, res)
}

// attribute finds the newest unconsumed audit entry for action on targetID.
// An empty targetID matches any target.
func (w *watcher) attribute(guildID string, action discordgo.AuditLogAction, targetID string, now time.Time) (string, bool) {
	audit, err := w.audit.GuildAuditLog(guildID, "", "", int(action), auditLimit)
	if err != nil {
		w.log.Warn().Err(err).Str("guild", guildID).Int("action", int(action)).Msg("failed to fetch audit log")
		return "", false
	}

	for _, entry := range audit.AuditLogEntries {
		if entry == nil || entry.ActionType == nil || *entry.ActionType != action {
			continue
		}
		if targetID != "" && entry.TargetID != targetID {
			continue
		}
		created, err := discordgo.SnowflakeTimestamp(entry.ID)
		if err != nil || now.Sub(created) > auditWindow {
			continue
		}
		if !w.consume(entry.ID, now) {
			continue
		}
		return entry.UserID, entry.UserID != ""
	}
	return "", false
}

// consume marks an audit entry as used and reports whether it was fresh.
func (w *watcher) consume(entryID string, now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	for id, at := range w.seen {
		if now.Sub(at) > seenTTL {
			delete(w.seen, id)
		}
	}
	if _, dup := w.seen[entryID]; dup {
		return false
	}
	w.seen[entryID] = now
	return true
}

// ignored reports actors the guard never counts: the bot and the owner.
func (w *watcher) ignored(guildID, actorID string) bool {
	return actorID == w.info.SelfID() || actorID == w.info.OwnerID(guildID)
}

func (w *watcher) punish(ctx context.Context, guildID, actorID string, res guard.Result) {
	if !res.Triggered {
		return
	}
	if err := w.punisher.Punish(ctx, guildID, actorID, res); err != nil {
		w.log.Error().Err(err).Str("guild", guildID).Str("actor", actorID).Msg("punishment failed")
	}
}

// message counts a guild message for the message log and checks it for a
// mention flood.
func (w *watcher) message(ctx context.Context, m *discordgo.Message) {
	if m == nil || m.GuildID == "" || m.Author == nil || m.Author.Bot {
		return
	}

	if _, err := w.counter.CountMessage(m.GuildID, m.Author.ID); err != nil {
		w.log.Warn().Err(err).Str("guild", m.GuildID).Msg("failed to count message")
	}

	mentions := mentionCount(m)
	if mentions == 0 || w.ignored(m.GuildID, m.Author.ID) {
		return
	}
	var roles []string
	if m.Member != nil {
		roles = m.Member.Roles
	}
	res := w.guard.RecordMentionFlood(m.GuildID, m.Author.ID, roles, mentions, w.clock.Now())
	w.punish(ctx, m.GuildID, m.Author.ID, res)
}

// mentionCount adds user and role mentions; @everyone counts as one.
func mentionCount(m *discordgo.Message) int {
	n := len(m.Mentions) + len(m.MentionRoles)
	if m.MentionEveryone {
		n++
	}
	return n
}

func (w *watcher) onRoleDelete(ctx context.Context, e *discordgo.GuildRoleDelete) {
	w.observe(ctx, e.GuildID, guard.CategoryRoleDelete, discordgo.AuditLogActionRoleDelete, e.RoleID)
}

func (w *watcher) onRoleCreate(ctx context.Context, e *discordgo.GuildRoleCreate) {
	if e.GuildRole == nil || e.Role == nil {
		return
	}
	w.observe(ctx, e.GuildID, guard.CategoryRoleCreate, discordgo.AuditLogActionRoleCreate, e.Role.ID)
}

func (w *watcher) onBanAdd(ctx context.Context, e *discordgo.GuildBanAdd) {
	if e.User == nil {
		return
	}
	w.observe(ctx, e.GuildID, guard.CategoryBan, discordgo.AuditLogActionMemberBanAdd, e.User.ID)
}

// onMemberRemove only counts removals explained by a kick audit entry;
// everything else is a member leaving.
func (w *watcher) onMemberRemove(ctx context.Context, e *discordgo.GuildMemberRemove) {
	if e.Member == nil || e.User == nil {
		return
	}
	w.observe(ctx, e.GuildID, guard.CategoryKick, discordgo.AuditLogActionMemberKick, e.User.ID)
}

func (w *watcher) onChannelDelete(ctx context.Context, e *discordgo.ChannelDelete) {
	if e.Channel == nil {
		return
	}
	w.observe(ctx, e.GuildID, guard.CategoryChannelDelete, discordgo.AuditLogActionChannelDelete, e.ID)
}

// onWebhooksUpdate fires for any webhook change; the create audit entry
// tells creations apart.
func (w *watcher) onWebhooksUpdate(ctx context.Context, e *discordgo.WebhooksUpdate) {
	w.observe(ctx, e.GuildID, guard.CategoryWebhookCreate, discordgo.AuditLogActionWebhookCreate, "")
}

// stateInfo reads identities from the gateway state cache.
type stateInfo struct {
	s *discordgo.Session
}

func (i stateInfo) SelfID() string {
	if i.s.State == nil || i.s.State.User == nil {
		return ""
	}
	return i.s.State.User.ID
}

func (i stateInfo) OwnerID(guildID string) string {
	g, err := i.s.State.Guild(guildID)
	if err != nil || g == nil {
		return ""
	}
	return g.OwnerID
}

func (i stateInfo) RoleIDs(guildID, userID string) []string {
	m, err := i.s.State.Member(guildID, userID)
	if err != nil || m == nil {
		return nil
	}
	return m.Roles
}
