package antinuke

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/TaomasSpace/clubhall-guard/internal/command"
	"github.com/TaomasSpace/clubhall-guard/internal/guard"
	"github.com/TaomasSpace/clubhall-guard/internal/middleware"
)

type AntinukeCommand struct{}

func (c *AntinukeCommand) Name() string        { return "antinuke" }
func (c *AntinukeCommand) Description() string { return "Configure the antinuke guard" }
func (c *AntinukeCommand) Group() string       { return "antinuke" }
func (c *AntinukeCommand) Category() string    { return "🛡️ Antinuke" }
func (c *AntinukeCommand) UserPermissions() []int64 {
	return []int64{discordgo.PermissionAdministrator}
}

func categoryChoices() []*discordgo.ApplicationCommandOptionChoice {
	var out []*discordgo.ApplicationCommandOptionChoice
	for _, cat := range guard.Categories() {
		out = append(out, &discordgo.ApplicationCommandOptionChoice{Name: string(cat), Value: string(cat)})
	}
	return out
}

func toggleOption() *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "action",
		Description: "Add or remove",
		Required:    true,
		Choices: []*discordgo.ApplicationCommandOptionChoice{
			{Name: "add", Value: "add"},
			{Name: "remove", Value: "remove"},
		},
	}
}

func (c *AntinukeCommand) SlashDefinition() *discordgo.ApplicationCommand {
	minThreshold := 1.0
	return &discordgo.ApplicationCommand{
		Name:        c.Name(),
		Description: c.Description(),
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "set",
				Description: "Enable a category with a threshold and punishment",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "category",
						Description: "Monitored action",
						Required:    true,
						Choices:     categoryChoices(),
					},
					{
						Type:        discordgo.ApplicationCommandOptionInteger,
						Name:        "threshold",
						Description: "Actions within 15 seconds that trigger the punishment",
						Required:    true,
						MinValue:    &minThreshold,
					},
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "punishment",
						Description: "What happens to the actor",
						Required:    true,
						Choices: []*discordgo.ApplicationCommandOptionChoice{
							{Name: "timeout", Value: string(guard.PunishTimeout)},
							{Name: "strip roles", Value: string(guard.PunishStripRoles)},
							{Name: "kick", Value: string(guard.PunishKick)},
							{Name: "ban", Value: string(guard.PunishBan)},
						},
					},
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "timeout",
						Description: "Timeout length for the timeout punishment, e.g. 10m or 1d",
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "disable",
				Description: "Stop monitoring a category",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "category",
						Description: "Monitored action",
						Required:    true,
						Choices:     categoryChoices(),
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "safe-user",
				Description: "Exempt a user from the guard",
				Options: []*discordgo.ApplicationCommandOption{
					toggleOption(),
					{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "User", Required: true},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "safe-role",
				Description: "Exempt every member of a role from the guard",
				Options: []*discordgo.ApplicationCommandOption{
					toggleOption(),
					{Type: discordgo.ApplicationCommandOptionRole, Name: "role", Description: "Role", Required: true},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "log-channel",
				Description: "Channel for punishment and timer notices",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:         discordgo.ApplicationCommandOptionChannel,
						Name:         "channel",
						Description:  "Text channel",
						Required:     true,
						ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText},
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "prison-role",
				Description: "Role given to members sent to prison",
				Options: []*discordgo.ApplicationCommandOption{
					{Type: discordgo.ApplicationCommandOptionRole, Name: "role", Description: "Role", Required: true},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "status",
				Description: "Show policies, exemptions and pending timers",
			},
		},
	}
}

func (c *AntinukeCommand) Run(ctx context.Context, data interface{}) error {
	v, ok := data.(*command.SlashInteractionContext)
	if !ok {
		return nil
	}

	guildID := v.Event.GuildID
	store := v.Services.Storage
	sub, opts := command.Subcommand(v.Event.ApplicationCommandData())

	switch sub {
	case "set":
		category, policy, err := ParsePolicy(opts)
		if err != nil {
			return v.Reply(err.Error())
		}
		if err := store.SetPolicy(guildID, category, policy); err != nil {
			return v.Reply(fmt.Sprintf("Failed to save policy: %v", err))
		}
		return v.Reply(fmt.Sprintf("**%s** is now guarded: %s.", category, describePolicy(policy)))

	case "disable":
		category, err := guard.ParseCategory(opts.String("category"))
		if err != nil {
			return v.Reply(err.Error())
		}
		if err := store.DisablePolicy(guildID, category); err != nil {
			return v.Reply(fmt.Sprintf("Failed to disable %s: %v", category, err))
		}
		v.Services.Guard.Reset(guildID)
		return v.Reply(fmt.Sprintf("**%s** is no longer monitored.", category))

	case "safe-user":
		userID := opts.ID("user")
		add := opts.String("action") == "add"
		if err := store.SetSafeUser(guildID, userID, add); err != nil {
			return v.Reply(fmt.Sprintf("Failed to update safe users: %v", err))
		}
		return v.Reply(toggleReply(fmt.Sprintf("<@%s>", userID), add))

	case "safe-role":
		roleID := opts.ID("role")
		add := opts.String("action") == "add"
		if err := store.SetSafeRole(guildID, roleID, add); err != nil {
			return v.Reply(fmt.Sprintf("Failed to update safe roles: %v", err))
		}
		return v.Reply(toggleReply(fmt.Sprintf("<@&%s>", roleID), add))

	case "log-channel":
		channelID := opts.ID("channel")
		if err := store.SetLogChannel(guildID, channelID); err != nil {
			return v.Reply(fmt.Sprintf("Failed to set log channel: %v", err))
		}
		return v.Reply(fmt.Sprintf("Notices will be posted in <#%s>.", channelID))

	case "prison-role":
		roleID := opts.ID("role")
		if err := store.SetPrisonRole(guildID, roleID); err != nil {
			return v.Reply(fmt.Sprintf("Failed to set prison role: %v", err))
		}
		return v.Reply(fmt.Sprintf("Prison role set to <@&%s>.", roleID))

	case "status":
		embed, err := c.status(v)
		if err != nil {
			return v.Reply(fmt.Sprintf("Failed to read settings: %v", err))
		}
		return v.ReplyEmbed(embed)
	}

	return v.Reply("Unknown subcommand.")
}

// ParsePolicy builds an enabled policy from the set subcommand options.
func ParsePolicy(opts command.Options) (guard.Category, guard.WindowPolicy, error) {
	category, err := guard.ParseCategory(opts.String("category"))
	if err != nil {
		return "", guard.WindowPolicy{}, err
	}
	punishment, err := guard.ParsePunishment(opts.String("punishment"))
	if err != nil {
		return "", guard.WindowPolicy{}, err
	}

	policy := guard.WindowPolicy{
		Enabled:        true,
		ThresholdCount: opts.Int("threshold", 0),
		Punishment:     punishment,
	}
	if raw := opts.String("timeout"); raw != "" {
		if punishment != guard.PunishTimeout {
			return "", guard.WindowPolicy{}, fmt.Errorf("timeout only applies to the timeout punishment")
		}
		d, err := command.ParseDuration(raw)
		if err != nil {
			return "", guard.WindowPolicy{}, err
		}
		policy.TimeoutDuration = d
	} else if punishment == guard.PunishTimeout {
		return "", guard.WindowPolicy{}, fmt.Errorf("the timeout punishment needs a timeout length")
	}

	if err := policy.Validate(); err != nil {
		return "", guard.WindowPolicy{}, err
	}
	return category, policy, nil
}

func describePolicy(p guard.WindowPolicy) string {
	if !p.Enabled {
		return "disabled"
	}
	out := fmt.Sprintf("%d within %s → %s", p.ThresholdCount, command.FormatDuration(guard.Window), p.Punishment)
	if p.Punishment == guard.PunishTimeout {
		out += fmt.Sprintf(" (%s)", command.FormatDuration(p.TimeoutDuration))
	}
	return out
}

func toggleReply(mention string, added bool) string {
	if added {
		return mention + " is now exempt from the guard."
	}
	return mention + " is no longer exempt."
}

func (c *AntinukeCommand) status(v *command.SlashInteractionContext) (*discordgo.MessageEmbed, error) {
	guildID := v.Event.GuildID
	store := v.Services.Storage

	policies, err := store.Policies(guildID)
	if err != nil {
		return nil, err
	}
	exempt, err := store.GetExemptions(guildID)
	if err != nil {
		return nil, err
	}
	logChannel, err := store.LogChannel(guildID)
	if err != nil {
		return nil, err
	}
	prisonRole, err := store.PrisonRole(guildID)
	if err != nil {
		return nil, err
	}

	var lines []string
	for _, cat := range guard.Categories() {
		p, ok := policies[cat]
		if !ok {
			lines = append(lines, fmt.Sprintf("**%s**: not configured", cat))
			continue
		}
		lines = append(lines, fmt.Sprintf("**%s**: %s", cat, describePolicy(p)))
	}

	var pending []string
	for _, e := range v.Services.Timers.Pending(guildID) {
		pending = append(pending, fmt.Sprintf("%s `%s` <t:%d:R>", e.Kind, e.TimerID, e.Deadline.Unix()))
	}

	return &discordgo.MessageEmbed{
		Title:       "🛡️ Antinuke status",
		Description: strings.Join(lines, "\n"),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Safe users", Value: mentions(slices.Sorted(maps.Keys(exempt.SafeActorIDs)), "<@%s>"), Inline: true},
			{Name: "Safe roles", Value: mentions(slices.Sorted(maps.Keys(exempt.SafeRoleIDs)), "<@&%s>"), Inline: true},
			{Name: "Log channel", Value: mentions(nonEmpty(logChannel), "<#%s>"), Inline: true},
			{Name: "Prison role", Value: mentions(nonEmpty(prisonRole), "<@&%s>"), Inline: true},
			{Name: "Pending timers", Value: orNone(strings.Join(pending, "\n"))},
		},
		Footer:    &discordgo.MessageEmbedFooter{Text: "Window: " + command.FormatDuration(guard.Window)},
		Timestamp: time.Now().Format(time.RFC3339),
	}, nil
}

func nonEmpty(id string) []string {
	if id == "" {
		return nil
	}
	return []string{id}
}

func mentions(ids []string, format string) string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = fmt.Sprintf(format, id)
	}
	return orNone(strings.Join(out, ", "))
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

func init() {
	command.RegisterCommand(
		&AntinukeCommand{},
		middleware.WithUserPermissionCheck(),
		middleware.WithGuildOnly(),
		middleware.WithCommandLogger(),
	)
}
