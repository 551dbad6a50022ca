package giveaway

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/TaomasSpace/clubhall-guard/internal/actions"
	"github.com/TaomasSpace/clubhall-guard/internal/command"
	"github.com/TaomasSpace/clubhall-guard/internal/middleware"
)

type GiveawayCommand struct{}

func (c *GiveawayCommand) Name() string        { return "giveaway" }
func (c *GiveawayCommand) Description() string { return "Run a reaction giveaway" }
func (c *GiveawayCommand) Group() string       { return "events" }
func (c *GiveawayCommand) Category() string    { return "🎉 Events" }
func (c *GiveawayCommand) UserPermissions() []int64 {
	return []int64{discordgo.PermissionManageGuild}
}

func (c *GiveawayCommand) SlashDefinition() *discordgo.ApplicationCommand {
	minWinners := 1.0
	return &discordgo.ApplicationCommand{
		Name:        c.Name(),
		Description: c.Description(),
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "start",
				Description: "Post a giveaway in this channel",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "prize",
						Description: "What the winners get",
						Required:    true,
					},
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "duration",
						Description: "How long entries are open, e.g. 1h or 2d",
						Required:    true,
					},
					{
						Type:        discordgo.ApplicationCommandOptionInteger,
						Name:        "winners",
						Description: "Number of winners (default 1)",
						MinValue:    &minWinners,
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "cancel",
				Description: "Cancel a running giveaway without drawing",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "message_id",
						Description: "ID of the giveaway message",
						Required:    true,
					},
				},
			},
		},
	}
}

func (c *GiveawayCommand) Run(ctx context.Context, data interface{}) error {
	v, ok := data.(*command.SlashInteractionContext)
	if !ok {
		return nil
	}
	sub, opts := command.Subcommand(v.Event.ApplicationCommandData())

	switch sub {
	case "start":
		d, err := command.ParseDuration(opts.String("duration"))
		if err != nil {
			return v.Reply(err.Error())
		}
		messageID, err := v.Services.Actions.StartGiveaway(ctx, v.Event.GuildID, v.Event.ChannelID, v.UserID(),
			opts.String("prize"), d, opts.Int("winners", 1))
		if errors.Is(err, actions.ErrInvalidGiveaway) {
			return v.Reply(err.Error())
		}
		if err != nil {
			return v.Reply(fmt.Sprintf("Failed to start giveaway: %v", err))
		}
		return v.Reply(fmt.Sprintf("Giveaway started. Cancel it with `/giveaway cancel message_id:%s`.", messageID))

	case "cancel":
		messageID := opts.String("message_id")
		existed, err := v.Services.Actions.CancelGiveaway(ctx, v.Event.GuildID, messageID)
		if err != nil {
			return v.Reply(fmt.Sprintf("Failed to cancel giveaway: %v", err))
		}
		if !existed {
			return v.Reply("No running giveaway with that message ID.")
		}
		return v.Reply("Giveaway cancelled.")
	}

	return v.Reply("Unknown subcommand.")
}

func init() {
	command.RegisterCommand(
		&GiveawayCommand{},
		middleware.WithUserPermissionCheck(),
		middleware.WithGuildOnly(),
		middleware.WithCommandLogger(),
	)
}
