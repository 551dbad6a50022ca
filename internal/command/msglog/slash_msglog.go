package msglog

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/TaomasSpace/clubhall-guard/internal/command"
	"github.com/TaomasSpace/clubhall-guard/internal/middleware"
)

const defaultTop = 10

type MessageLogCommand struct{}

func (c *MessageLogCommand) Name() string        { return "msglog" }
func (c *MessageLogCommand) Description() string { return "Count messages and post a leaderboard" }
func (c *MessageLogCommand) Group() string       { return "events" }
func (c *MessageLogCommand) Category() string    { return "🎉 Events" }
func (c *MessageLogCommand) UserPermissions() []int64 {
	return []int64{discordgo.PermissionManageGuild}
}

func (c *MessageLogCommand) SlashDefinition() *discordgo.ApplicationCommand {
	minTop, maxTop := 1.0, 25.0
	return &discordgo.ApplicationCommand{
		Name:        c.Name(),
		Description: c.Description(),
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "start",
				Description: "Start counting messages, replacing a running count",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:         discordgo.ApplicationCommandOptionChannel,
						Name:         "channel",
						Description:  "Where the leaderboard is posted",
						Required:     true,
						ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText},
					},
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "duration",
						Description: "How long to count, e.g. 1d or 1w",
						Required:    true,
					},
					{
						Type:        discordgo.ApplicationCommandOptionInteger,
						Name:        "top",
						Description: "Leaderboard size (default 10)",
						MinValue:    &minTop,
						MaxValue:    maxTop,
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "cancel",
				Description: "Stop counting without posting",
			},
		},
	}
}

func (c *MessageLogCommand) Run(ctx context.Context, data interface{}) error {
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
		channelID := opts.ID("channel")
		end, err := v.Services.Actions.StartMessageLog(ctx, v.Event.GuildID, channelID, opts.Int("top", defaultTop), d)
		if err != nil {
			return v.Reply(fmt.Sprintf("Failed to start message log: %v", err))
		}
		return v.Reply(fmt.Sprintf("Counting messages until <t:%d:f>. The leaderboard goes to <#%s>.", end.Unix(), channelID))

	case "cancel":
		existed, err := v.Services.Actions.CancelMessageLog(ctx, v.Event.GuildID)
		if err != nil {
			return v.Reply(fmt.Sprintf("Failed to cancel message log: %v", err))
		}
		if !existed {
			return v.Reply("No message log is running.")
		}
		return v.Reply("Message log cancelled.")
	}

	return v.Reply("Unknown subcommand.")
}

func init() {
	command.RegisterCommand(
		&MessageLogCommand{},
		middleware.WithUserPermissionCheck(),
		middleware.WithGuildOnly(),
		middleware.WithCommandLogger(),
	)
}
