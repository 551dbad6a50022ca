package actions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/TaomasSpace/clubhall-guard/internal/platform"
	"github.com/TaomasSpace/clubhall-guard/internal/scheduler"
	"github.com/TaomasSpace/clubhall-guard/internal/storage"
	"github.com/TaomasSpace/clubhall-guard/pkg/util"
)

const maxTopN = 25

// StartMessageLog starts counting messages per member and schedules the
// leaderboard for channelID after d. A running log is replaced.
func (s *Service) StartMessageLog(ctx context.Context, guildID, channelID string, topN int, d time.Duration) (time.Time, error) {
	if d <= 0 {
		return time.Time{}, fmt.Errorf("duration must be positive")
	}
	if topN < 1 || topN > maxTopN {
		return time.Time{}, fmt.Errorf("top must be between 1 and %d", maxTopN)
	}

	now := s.clock.Now()
	end := now.Add(d)
	payload, err := scheduler.EncodePayload(scheduler.MessageLogPayload{ChannelID: channelID, TopN: topN, StartedAt: now})
	if err != nil {
		return time.Time{}, err
	}

	prev, err := s.store.MessageLog(guildID)
	if err != nil {
		return time.Time{}, err
	}
	if err := s.store.StartMessageLog(guildID, channelID, topN, now, end); err != nil {
		return time.Time{}, err
	}
	if _, err := s.timers.Schedule(ctx, scheduler.TimerEntry{
		TenantID: guildID,
		TimerID:  guildID,
		Kind:     scheduler.KindMessageLogFlush,
		Deadline: end,
		Payload:  payload,
	}, s.fireMessageLog); err != nil {
		// the previous flush timer is still armed, so its window keeps counting
		if restoreErr := s.store.RestoreMessageLog(guildID, prev); restoreErr != nil {
			s.log.Error().Err(restoreErr).Str("guild", guildID).Msg("failed to roll back message log")
		}
		return time.Time{}, err
	}
	return end, nil
}

// CancelMessageLog stops the running log and discards its counts.
func (s *Service) CancelMessageLog(ctx context.Context, guildID string) (bool, error) {
	existed, err := s.timers.Cancel(ctx, guildID, guildID, scheduler.KindMessageLogFlush)
	if err != nil {
		return existed, err
	}
	if _, err := s.store.FinishMessageLog(guildID, 0); err != nil && !errors.Is(err, storage.ErrNoMessageLog) {
		return existed, err
	}
	return existed, nil
}

func (s *Service) fireMessageLog(ctx context.Context, entry scheduler.TimerEntry) error {
	var p scheduler.MessageLogPayload
	if err := entry.DecodePayload(&p); err != nil {
		return err
	}

	top, err := s.store.FinishMessageLog(entry.TenantID, p.TopN)
	if errors.Is(err, storage.ErrNoMessageLog) {
		s.log.Warn().Str("guild", entry.TenantID).Msg("message log timer fired without counts")
		top, err = nil, nil
	}
	if err != nil {
		return err
	}

	if _, err := s.platform.SendMessage(ctx, p.ChannelID, Leaderboard(top, p.StartedAt, entry.Deadline)); err != nil {
		return fmt.Errorf("post leaderboard: %w", err)
	}
	return nil
}

// Leaderboard renders the top message counts.
func Leaderboard(top []storage.MessageCount, start, end time.Time) platform.Message {
	var b strings.Builder
	if len(top) == 0 {
		b.WriteString("No messages were counted.")
	}
	for i, row := range top {
		fmt.Fprintf(&b, "**%d.** <@%s>: %d message", i+1, row.UserID, row.Count)
		if row.Count != 1 {
			b.WriteString("s")
		}
		b.WriteString("\n")
	}

	return platform.Message{
		Title:       "📊 Message leaderboard",
		Description: strings.TrimRight(b.String(), "\n"),
		Footer:      fmt.Sprintf("%s to %s UTC", util.FormatTime(start, "DD.MM.YYYY hh:mm"), util.FormatTime(end, "DD.MM.YYYY hh:mm")),
		Color:       platform.EmbedColor,
	}
}
