package discord

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/TaomasSpace/clubhall-guard/internal/platform"
	"github.com/TaomasSpace/clubhall-guard/pkg/retrylimit"
)

// maxTimeout is the longest communication timeout Discord accepts.
const maxTimeout = 28 * 24 * time.Hour

const reactionPage = 100

// Platform implements platform.Platform on a discordgo session. Every REST
// call goes through an adaptive limiter; only 429 responses are retried.
type Platform struct {
	s     *discordgo.Session
	lim   *retrylimit.AdaptiveLimiter
	retry retrylimit.RetryConfig
}

var _ platform.Platform = (*Platform)(nil)

func NewPlatform(s *discordgo.Session, log zerolog.Logger) *Platform {
	cfg := retrylimit.DefaultRetryConfig()
	cfg.MaxAttempts = 5
	cfg.RateLimitDelay = time.Second
	cfg.Logger = log.With().Str("component", "platform").Logger()
	return &Platform{
		s:     s,
		lim:   retrylimit.NewAdaptiveLimiter(20, 2, 45, 1, 0.5),
		retry: cfg,
	}
}

// restError exposes the status of a failed REST call to retrylimit.
type restError struct {
	*discordgo.RESTError
}

func (e restError) StatusCode() int { return e.Response.StatusCode }

// classify keeps 429 responses retryable and marks everything else fatal.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var re *discordgo.RESTError
	if errors.As(err, &re) && re.Response != nil && re.Response.StatusCode == http.StatusTooManyRequests {
		return restError{re}
	}
	return retrylimit.Fatal(err)
}

// unwrapFatal strips the retry marker so callers see the REST error.
func unwrapFatal(err error) error {
	var fatal *retrylimit.FatalError
	if errors.As(err, &fatal) {
		return fatal.Err
	}
	return err
}

func (p *Platform) do(ctx context.Context, fn func(opts ...discordgo.RequestOption) error) error {
	err := retrylimit.WithRetryConfig(ctx, func() error {
		return classify(fn(discordgo.WithContext(ctx)))
	}, p.lim, p.retry)
	return unwrapFatal(err)
}

func (p *Platform) Timeout(ctx context.Context, guildID, userID string, d time.Duration, reason string) error {
	if d > maxTimeout {
		d = maxTimeout
	}
	until := time.Now().Add(d)
	return p.do(ctx, func(opts ...discordgo.RequestOption) error {
		return p.s.GuildMemberTimeout(guildID, userID, &until, append(opts, discordgo.WithAuditLogReason(reason))...)
	})
}

func (p *Platform) Kick(ctx context.Context, guildID, userID, reason string) error {
	return p.do(ctx, func(opts ...discordgo.RequestOption) error {
		return p.s.GuildMemberDeleteWithReason(guildID, userID, reason, opts...)
	})
}

func (p *Platform) Ban(ctx context.Context, guildID, userID, reason string) error {
	return p.do(ctx, func(opts ...discordgo.RequestOption) error {
		return p.s.GuildBanCreateWithReason(guildID, userID, reason, 0, opts...)
	})
}

// Member prefers the gateway state cache and falls back to REST.
func (p *Platform) Member(ctx context.Context, guildID, userID string) (platform.Member, error) {
	if p.s.State != nil {
		if m, err := p.s.State.Member(guildID, userID); err == nil && m != nil {
			return toMember(m, userID), nil
		}
	}
	var m *discordgo.Member
	err := p.do(ctx, func(opts ...discordgo.RequestOption) error {
		var err error
		m, err = p.s.GuildMember(guildID, userID, opts...)
		return err
	})
	if err != nil {
		return platform.Member{}, err
	}
	return toMember(m, userID), nil
}

func (p *Platform) AddRole(ctx context.Context, guildID, userID, roleID string) error {
	return p.do(ctx, func(opts ...discordgo.RequestOption) error {
		return p.s.GuildMemberRoleAdd(guildID, userID, roleID, opts...)
	})
}

func (p *Platform) RemoveRole(ctx context.Context, guildID, userID, roleID string) error {
	return p.do(ctx, func(opts ...discordgo.RequestOption) error {
		return p.s.GuildMemberRoleRemove(guildID, userID, roleID, opts...)
	})
}

func (p *Platform) SendMessage(ctx context.Context, channelID string, msg platform.Message) (string, error) {
	var sent *discordgo.Message
	err := p.do(ctx, func(opts ...discordgo.RequestOption) error {
		var err error
		sent, err = p.s.ChannelMessageSendComplex(channelID, toMessageSend(msg), opts...)
		return err
	})
	if err != nil {
		return "", err
	}
	return sent.ID, nil
}

func (p *Platform) AddReaction(ctx context.Context, channelID, messageID, emoji string) error {
	return p.do(ctx, func(opts ...discordgo.RequestOption) error {
		return p.s.MessageReactionAdd(channelID, messageID, emoji, opts...)
	})
}

// ReactionUsers pages through every user that reacted with emoji.
func (p *Platform) ReactionUsers(ctx context.Context, channelID, messageID, emoji string) ([]platform.User, error) {
	var (
		out   []platform.User
		after string
	)
	for {
		var page []*discordgo.User
		err := p.do(ctx, func(opts ...discordgo.RequestOption) error {
			var err error
			page, err = p.s.MessageReactions(channelID, messageID, emoji, reactionPage, "", after, opts...)
			return err
		})
		if err != nil {
			return nil, err
		}
		for _, u := range page {
			out = append(out, platform.User{ID: u.ID, Bot: u.Bot})
		}
		if len(page) < reactionPage {
			return out, nil
		}
		after = page[len(page)-1].ID
	}
}

func toMember(m *discordgo.Member, userID string) platform.Member {
	out := platform.Member{UserID: userID, RoleIDs: append([]string(nil), m.Roles...)}
	if m.User != nil {
		out.UserID = m.User.ID
		out.Bot = m.User.Bot
	}
	return out
}

func toEmbed(msg platform.Message) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       msg.Title,
		Description: msg.Description,
		Color:       msg.Color,
	}
	if embed.Color == 0 {
		embed.Color = platform.EmbedColor
	}
	for _, f := range msg.Fields {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	if msg.Footer != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: msg.Footer}
	}
	return embed
}

func toMessageSend(msg platform.Message) *discordgo.MessageSend {
	return &discordgo.MessageSend{
		Content: msg.Content,
		Embeds:  []*discordgo.MessageEmbed{toEmbed(msg)},
	}
}
