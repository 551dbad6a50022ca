package actions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/TaomasSpace/clubhall-guard/internal/platform"
	"github.com/TaomasSpace/clubhall-guard/internal/scheduler"
)

const GiveawayEmoji = "🎉"

var ErrInvalidGiveaway = errors.New("invalid giveaway")

// StartGiveaway posts the giveaway message in channelID and schedules the
// draw. The returned message ID identifies the giveaway.
func (s *Service) StartGiveaway(ctx context.Context, guildID, channelID, hostID, prize string, d time.Duration, winners int) (string, error) {
	if strings.TrimSpace(prize) == "" || winners < 1 || d <= 0 {
		return "", fmt.Errorf("%w: prize, positive duration and at least one winner are required", ErrInvalidGiveaway)
	}

	deadline := s.clock.Now().Add(d)
	messageID, err := s.platform.SendMessage(ctx, channelID, platform.Message{
		Title:       "🎉 Giveaway: " + prize,
		Description: fmt.Sprintf("React with %s to enter!\nEnds <t:%d:R>", GiveawayEmoji, deadline.Unix()),
		Fields: []platform.Field{
			{Name: "Winners", Value: fmt.Sprintf("%d", winners), Inline: true},
			{Name: "Hosted by", Value: fmt.Sprintf("<@%s>", hostID), Inline: true},
		},
		Color: platform.EmbedColor,
	})
	if err != nil {
		return "", fmt.Errorf("post giveaway: %w", err)
	}
	if err := s.platform.AddReaction(ctx, channelID, messageID, GiveawayEmoji); err != nil {
		s.log.Warn().Err(err).Str("message", messageID).Msg("failed to seed giveaway reaction")
	}

	payload, err := scheduler.EncodePayload(scheduler.GiveawayPayload{
		ChannelID: channelID,
		MessageID: messageID,
		Prize:     prize,
		Winners:   winners,
		HostID:    hostID,
	})
	if err != nil {
		return "", err
	}
	_, err = s.timers.Schedule(ctx, scheduler.TimerEntry{
		TenantID: guildID,
		TimerID:  messageID,
		Kind:     scheduler.KindGiveaway,
		Deadline: deadline,
		Payload:  payload,
	}, s.fireGiveaway)
	if err != nil {
		return "", err
	}
	return messageID, nil
}

// CancelGiveaway stops a running giveaway without drawing.
func (s *Service) CancelGiveaway(ctx context.Context, guildID, messageID string) (bool, error) {
	return s.timers.Cancel(ctx, guildID, messageID, scheduler.KindGiveaway)
}

func (s *Service) fireGiveaway(ctx context.Context, entry scheduler.TimerEntry) error {
	var p scheduler.GiveawayPayload
	if err := entry.DecodePayload(&p); err != nil {
		return err
	}

	users, err := s.platform.ReactionUsers(ctx, p.ChannelID, p.MessageID, GiveawayEmoji)
	if err != nil {
		return fmt.Errorf("fetch giveaway entrants: %w", err)
	}
	winners := s.drawWinners(users, p.Winners)

	msg := platform.Message{Title: "🎉 Giveaway ended: " + p.Prize, Color: platform.EmbedColor}
	if len(winners) == 0 {
		msg.Description = "Nobody entered, so there is no winner."
	} else {
		mentions := make([]string, len(winners))
		for i, id := range winners {
			mentions[i] = fmt.Sprintf("<@%s>", id)
		}
		msg.Content = "Congratulations " + strings.Join(mentions, ", ") + "!"
		msg.Description = fmt.Sprintf("Winner(s): %s\nPrize: **%s**", strings.Join(mentions, ", "), p.Prize)
	}
	if _, err := s.platform.SendMessage(ctx, p.ChannelID, msg); err != nil {
		return fmt.Errorf("announce giveaway: %w", err)
	}

	s.log.Info().Str("guild", entry.TenantID).Str("message", p.MessageID).Strs("winners", winners).Msg("giveaway drawn")
	return nil
}

// drawWinners picks up to n distinct non-bot entrants uniformly at random.
func (s *Service) drawWinners(users []platform.User, n int) []string {
	seen := make(map[string]struct{}, len(users))
	pool := make([]string, 0, len(users))
	for _, u := range users {
		if u.Bot {
			continue
		}
		if _, dup := seen[u.ID]; dup {
			continue
		}
		seen[u.ID] = struct{}{}
		pool = append(pool, u.ID)
	}

	s.shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	if n < len(pool) {
		pool = pool[:n]
	}
	return pool
}
