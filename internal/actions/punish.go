package actions

import (
	"context"
	"fmt"

	"github.com/TaomasSpace/clubhall-guard/internal/guard"
	"github.com/TaomasSpace/clubhall-guard/internal/platform"
)

// Punish applies the triggered punishment to actorID and posts an audit
// notice. Failures are logged; the returned error only reports them.
func (s *Service) Punish(ctx context.Context, guildID, actorID string, res guard.Result) error {
	if !res.Triggered {
		return nil
	}

	reason := fmt.Sprintf("Antinuke: %d× %s within %s", res.Count, res.Category, guard.Window)
	err := s.apply(ctx, guildID, actorID, res, reason)

	logEvt := s.log.Info()
	if err != nil {
		logEvt = s.log.Error().Err(err)
	}
	logEvt.Str("guild", guildID).
		Str("actor", actorID).
		Str("category", string(res.Category)).
		Str("punishment", string(res.Punishment)).
		Msg("antinuke punishment")

	outcome := "applied"
	if err != nil {
		outcome = "failed: " + err.Error()
	}
	fields := []platform.Field{
		{Name: "User", Value: fmt.Sprintf("<@%s>", actorID), Inline: true},
		{Name: "Action", Value: string(res.Category), Inline: true},
		{Name: "Count", Value: fmt.Sprintf("%d", res.Count), Inline: true},
		{Name: "Punishment", Value: punishmentLabel(res), Inline: true},
		{Name: "Result", Value: outcome},
	}
	s.notify(ctx, guildID, platform.Message{
		Title:  "🛡️ Antinuke triggered",
		Fields: fields,
		Footer: reason,
	})
	return err
}

func (s *Service) apply(ctx context.Context, guildID, userID string, res guard.Result, reason string) error {
	switch res.Punishment {
	case guard.PunishTimeout:
		return s.platform.Timeout(ctx, guildID, userID, res.TimeoutDuration, reason)
	case guard.PunishKick:
		return s.platform.Kick(ctx, guildID, userID, reason)
	case guard.PunishBan:
		return s.platform.Ban(ctx, guildID, userID, reason)
	case guard.PunishStripRoles:
		return s.stripRoles(ctx, guildID, userID)
	}
	return fmt.Errorf("unknown punishment %q", res.Punishment)
}

// stripRoles removes every role it can and reports the first failure.
func (s *Service) stripRoles(ctx context.Context, guildID, userID string) error {
	member, err := s.platform.Member(ctx, guildID, userID)
	if err != nil {
		return fmt.Errorf("fetch member: %w", err)
	}
	var first error
	for _, roleID := range member.RoleIDs {
		if err := s.platform.RemoveRole(ctx, guildID, userID, roleID); err != nil {
			s.log.Warn().Err(err).Str("guild", guildID).Str("user", userID).Str("role", roleID).Msg("failed to strip role")
			if first == nil {
				first = fmt.Errorf("remove role %s: %w", roleID, err)
			}
		}
	}
	return first
}

func punishmentLabel(res guard.Result) string {
	if res.Punishment == guard.PunishTimeout {
		return fmt.Sprintf("timeout (%s)", res.TimeoutDuration)
	}
	return string(res.Punishment)
}
