package command

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/TaomasSpace/clubhall-guard/internal/actions"
	"github.com/TaomasSpace/clubhall-guard/internal/guard"
	"github.com/TaomasSpace/clubhall-guard/internal/scheduler"
	"github.com/TaomasSpace/clubhall-guard/internal/storage"
	"github.com/TaomasSpace/clubhall-guard/pkg/cmd"
)

// Responder lets commands reply without importing the discord package.
type Responder interface {
	RespondEmbed(s *discordgo.Session, e *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) error
	RespondEmbedEphemeral(s *discordgo.Session, e *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) error
	EmbedColor() int
}

// Services is everything a command may touch. The bot builds it once and
// passes it with every interaction.
type Services struct {
	Storage     *storage.Storage
	Guard       *guard.Guard
	Actions     *actions.Service
	Timers      *scheduler.Scheduler
	Responder   Responder
	DeveloperID string
	Log         zerolog.Logger
}

// Discord-specific contexts (what the runtime passes when executing).

type SlashInteractionContext struct {
	Session  *discordgo.Session
	Event    *discordgo.InteractionCreate
	Services *Services
}

// Reply sends an ephemeral embed with the given description.
func (c *SlashInteractionContext) Reply(description string) error {
	return c.Services.Responder.RespondEmbedEphemeral(c.Session, c.Event, &discordgo.MessageEmbed{
		Description: description,
		Color:       c.Services.Responder.EmbedColor(),
	})
}

// ReplyEmbed sends an ephemeral embed, filling in the accent color.
func (c *SlashInteractionContext) ReplyEmbed(embed *discordgo.MessageEmbed) error {
	if embed.Color == 0 {
		embed.Color = c.Services.Responder.EmbedColor()
	}
	return c.Services.Responder.RespondEmbedEphemeral(c.Session, c.Event, embed)
}

// UserID returns the invoking user.
func (c *SlashInteractionContext) UserID() string {
	if c.Event.Member != nil && c.Event.Member.User != nil {
		return c.Event.Member.User.ID
	}
	if c.Event.User != nil {
		return c.Event.User.ID
	}
	return ""
}

// Providers: how a command is registered with Discord.

type SlashProvider interface {
	SlashDefinition() *discordgo.ApplicationCommand
}

// DiscordMeta is exposed by the Discord adapter so middleware can read Group/Category/Permissions
// without depending on the concrete Discord command type.
type DiscordMeta interface {
	Group() string
	Category() string
	UserPermissions() []int64
}

// DiscordCommand is what individual Discord commands implement.
type DiscordCommand interface {
	Name() string
	Description() string
	Group() string
	Category() string
	UserPermissions() []int64
	Run(ctx context.Context, data interface{}) error
}

// DiscordAdapter adapts a DiscordCommand to cmd.Command so it can live in the universal registry.
// It also implements SlashProvider and DiscordMeta by delegating to the inner command.
type DiscordAdapter struct {
	Cmd DiscordCommand
}

func (a *DiscordAdapter) Name() string             { return a.Cmd.Name() }
func (a *DiscordAdapter) Description() string      { return a.Cmd.Description() }
func (a *DiscordAdapter) Group() string            { return a.Cmd.Group() }
func (a *DiscordAdapter) Category() string         { return a.Cmd.Category() }
func (a *DiscordAdapter) UserPermissions() []int64 { return a.Cmd.UserPermissions() }

func (a *DiscordAdapter) Run(ctx context.Context, inv *cmd.Invocation) error {
	return a.Cmd.Run(ctx, inv.Data)
}

func (a *DiscordAdapter) SlashDefinition() *discordgo.ApplicationCommand {
	if sp, ok := a.Cmd.(SlashProvider); ok {
		return sp.SlashDefinition()
	}
	return nil
}

// RegisterCommand registers a Discord command with the universal registry and applies middlewares.
func RegisterCommand(discordCmd DiscordCommand, mws ...cmd.Middleware) {
	c := cmd.Apply(&DiscordAdapter{Cmd: discordCmd}, mws...)
	cmd.DefaultRegistry.Register(c)
}

// Meta returns the Discord metadata of a possibly wrapped command.
func Meta(c cmd.Command) (DiscordMeta, bool) {
	m, ok := cmd.Root(c).(DiscordMeta)
	return m, ok
}

// Definition returns the slash definition of a possibly wrapped command.
func Definition(c cmd.Command) *discordgo.ApplicationCommand {
	sp, ok := cmd.Root(c).(SlashProvider)
	if !ok {
		return nil
	}
	def := sp.SlashDefinition()
	if def != nil && def.Type == 0 {
		def.Type = discordgo.ChatApplicationCommand
	}
	return def
}
