package actions

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/TaomasSpace/clubhall-guard/internal/platform"
	"github.com/TaomasSpace/clubhall-guard/internal/scheduler"
	"github.com/TaomasSpace/clubhall-guard/internal/storage"
)

var ErrNoPrisonRole = errors.New("no prison role configured")

// Sentence jails userID for d: the member's roles are stored, replaced with
// the prison role and restored when the release timer fires. Sentencing a
// prisoner again replaces the release time and keeps the original roles.
func (s *Service) Sentence(ctx context.Context, guildID, userID, moderatorID string, d time.Duration, reason string) (time.Time, error) {
	if d <= 0 {
		return time.Time{}, fmt.Errorf("sentence must be positive")
	}
	prisonRole, err := s.store.PrisonRole(guildID)
	if err != nil {
		return time.Time{}, err
	}
	if prisonRole == "" {
		return time.Time{}, ErrNoPrisonRole
	}

	member, err := s.platform.Member(ctx, guildID, userID)
	if err != nil {
		return time.Time{}, fmt.Errorf("fetch member: %w", err)
	}

	restore := slices.DeleteFunc(slices.Clone(member.RoleIDs), func(id string) bool { return id == prisonRole })
	if prev, ok, err := s.store.TakePrisoner(guildID, userID); err != nil {
		return time.Time{}, err
	} else if ok {
		restore = prev.RoleIDs
	}

	releaseAt := s.clock.Now().Add(d)
	prisoner := storage.Prisoner{
		UserID:       userID,
		RoleIDs:      restore,
		ReleaseAt:    releaseAt,
		ModeratorID:  moderatorID,
		SentencedFor: reason,
	}
	if err := s.store.SetPrisoner(guildID, prisoner); err != nil {
		return time.Time{}, err
	}

	payload, err := scheduler.EncodePayload(scheduler.PrisonPayload{
		UserID:         userID,
		PrisonRoleID:   prisonRole,
		RestoreRoleIDs: restore,
		ModeratorID:    moderatorID,
	})
	if err != nil {
		return time.Time{}, err
	}
	if _, err := s.timers.Schedule(ctx, scheduler.TimerEntry{
		TenantID: guildID,
		TimerID:  userID,
		Kind:     scheduler.KindPrisonRelease,
		Deadline: releaseAt,
		Payload:  payload,
	}, s.firePrisonRelease); err != nil {
		if _, _, takeErr := s.store.TakePrisoner(guildID, userID); takeErr != nil {
			s.log.Error().Err(takeErr).Str("guild", guildID).Str("user", userID).Msg("failed to roll back prisoner")
		}
		return time.Time{}, err
	}

	if err := s.platform.AddRole(ctx, guildID, userID, prisonRole); err != nil {
		s.log.Error().Err(err).Str("guild", guildID).Str("user", userID).Msg("failed to add prison role")
	}
	for _, roleID := range member.RoleIDs {
		if roleID == prisonRole {
			continue
		}
		if err := s.platform.RemoveRole(ctx, guildID, userID, roleID); err != nil {
			s.log.Warn().Err(err).Str("guild", guildID).Str("user", userID).Str("role", roleID).Msg("failed to remove role")
		}
	}

	s.log.Info().Str("guild", guildID).Str("user", userID).Time("release_at", releaseAt).Msg("member sentenced")
	s.notify(ctx, guildID, platform.Message{
		Title:       "⛓️ Prison sentence",
		Description: fmt.Sprintf("<@%s> was sent to prison by <@%s> until <t:%d:f>.", userID, moderatorID, releaseAt.Unix()),
		Footer:      reason,
	})
	return releaseAt, nil
}

// Pardon cancels a sentence and releases the member immediately. It reports
// whether a sentence was running.
func (s *Service) Pardon(ctx context.Context, guildID, userID string) (bool, error) {
	existed, err := s.timers.Cancel(ctx, guildID, userID, scheduler.KindPrisonRelease)
	if err != nil {
		return existed, err
	}
	prisoner, stored, err := s.store.TakePrisoner(guildID, userID)
	if err != nil {
		return existed, err
	}
	if !existed && !stored {
		return false, nil
	}

	prisonRole, err := s.store.PrisonRole(guildID)
	if err != nil {
		return true, err
	}
	s.release(ctx, guildID, userID, prisonRole, prisoner.RoleIDs)
	return true, nil
}

func (s *Service) firePrisonRelease(ctx context.Context, entry scheduler.TimerEntry) error {
	var p scheduler.PrisonPayload
	if err := entry.DecodePayload(&p); err != nil {
		return err
	}

	restore := p.RestoreRoleIDs
	if stored, ok, err := s.store.TakePrisoner(entry.TenantID, p.UserID); err != nil {
		s.log.Warn().Err(err).Str("guild", entry.TenantID).Str("user", p.UserID).Msg("failed to read prisoner record")
	} else if ok {
		restore = stored.RoleIDs
	}

	s.release(ctx, entry.TenantID, p.UserID, p.PrisonRoleID, restore)
	return nil
}

func (s *Service) release(ctx context.Context, guildID, userID, prisonRole string, restore []string) {
	if prisonRole != "" {
		if err := s.platform.RemoveRole(ctx, guildID, userID, prisonRole); err != nil {
			s.log.Warn().Err(err).Str("guild", guildID).Str("user", userID).Msg("failed to remove prison role")
		}
	}
	for _, roleID := range restore {
		if err := s.platform.AddRole(ctx, guildID, userID, roleID); err != nil {
			s.log.Warn().Err(err).Str("guild", guildID).Str("user", userID).Str("role", roleID).Msg("failed to restore role")
		}
	}

	s.log.Info().Str("guild", guildID).Str("user", userID).Int("restored", len(restore)).Msg("member released")
	s.notify(ctx, guildID, platform.Message{
		Title:       "🔓 Released from prison",
		Description: fmt.Sprintf("<@%s> is free again.", userID),
	})
}
