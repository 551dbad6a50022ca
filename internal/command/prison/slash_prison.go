package prison

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/TaomasSpace/clubhall-guard/internal/actions"
	"github.com/TaomasSpace/clubhall-guard/internal/command"
	"github.com/TaomasSpace/clubhall-guard/internal/middleware"
)

type PrisonCommand struct{}

func (c *PrisonCommand) Name() string        { return "prison" }
func (c *PrisonCommand) Description() string { return "Temporarily jail a member" }
func (c *PrisonCommand) Group() string       { return "moderation" }
func (c *PrisonCommand) Category() string    { return "⛓️ Moderation" }
func (c *PrisonCommand) UserPermissions() []int64 {
	return []int64{discordgo.PermissionModerateMembers, discordgo.PermissionManageRoles}
}

func (c *PrisonCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        c.Name(),
		Description: c.Description(),
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "sentence",
				Description: "Replace a member's roles with the prison role for a while",
				Options: []*discordgo.ApplicationCommandOption{
					{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "Member to jail", Required: true},
					{Type: discordgo.ApplicationCommandOptionString, Name: "duration", Description: "Sentence length, e.g. 30m or 1d", Required: true},
					{Type: discordgo.ApplicationCommandOptionString, Name: "reason", Description: "Shown in the log channel"},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "cancel",
				Description: "Release a member now",
				Options: []*discordgo.ApplicationCommandOption{
					{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "Member to release", Required: true},
				},
			},
		},
	}
}

func (c *PrisonCommand) Run(ctx context.Context, data interface{}) error {
	v, ok := data.(*command.SlashInteractionContext)
	if !ok {
		return nil
	}
	sub, opts := command.Subcommand(v.Event.ApplicationCommandData())
	userID := opts.ID("user")

	switch sub {
	case "sentence":
		if userID == v.UserID() {
			return v.Reply("You cannot jail yourself.")
		}
		d, err := command.ParseDuration(opts.String("duration"))
		if err != nil {
			return v.Reply(err.Error())
		}
		releaseAt, err := v.Services.Actions.Sentence(ctx, v.Event.GuildID, userID, v.UserID(), d, opts.String("reason"))
		if errors.Is(err, actions.ErrNoPrisonRole) {
			return v.Reply("Set a prison role first with `/antinuke prison-role`.")
		}
		if err != nil {
			return v.Reply(fmt.Sprintf("Failed to jail <@%s>: %v", userID, err))
		}
		return v.Reply(fmt.Sprintf("<@%s> is in prison until <t:%d:f>.", userID, releaseAt.Unix()))

	case "cancel":
		existed, err := v.Services.Actions.Pardon(ctx, v.Event.GuildID, userID)
		if err != nil {
			return v.Reply(fmt.Sprintf("Failed to release <@%s>: %v", userID, err))
		}
		if !existed {
			return v.Reply(fmt.Sprintf("<@%s> is not in prison.", userID))
		}
		return v.Reply(fmt.Sprintf("<@%s> was released.", userID))
	}

	return v.Reply("Unknown subcommand.")
}

func init() {
	command.RegisterCommand(
		&PrisonCommand{},
		middleware.WithUserPermissionCheck(),
		middleware.WithGuildOnly(),
		middleware.WithCommandLogger(),
	)
}
