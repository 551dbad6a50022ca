package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/TaomasSpace/clubhall-guard/internal/command"
	"github.com/TaomasSpace/clubhall-guard/internal/config"
	"github.com/TaomasSpace/clubhall-guard/internal/middleware"
	"github.com/TaomasSpace/clubhall-guard/pkg/cmd"
)

type HelpCommand struct{}

func (c *HelpCommand) Name() string             { return "help" }
func (c *HelpCommand) Description() string      { return "Get a list of available commands" }
func (c *HelpCommand) Group() string            { return "core" }
func (c *HelpCommand) Category() string         { return "🕯️ Information" }
func (c *HelpCommand) UserPermissions() []int64 { return []int64{} }

func (c *HelpCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        c.Name(),
		Description: c.Description(),
	}
}

func (c *HelpCommand) Run(_ context.Context, data interface{}) error {
	v, ok := data.(*command.SlashInteractionContext)
	if !ok {
		return nil
	}
	return v.ReplyEmbed(&discordgo.MessageEmbed{
		Title:       "Help",
		Description: BuildHelp(cmd.DefaultRegistry.GetAll()),
	})
}

// BuildHelp lists commands grouped by category in CategoryWeights order.
func BuildHelp(all []cmd.Command) string {
	var sb strings.Builder
	for _, sec := range command.Sections(all, config.CategoryWeights) {
		fmt.Fprintf(&sb, "**%s**\n", sec.Category)
		for _, c := range sec.Commands {
			fmt.Fprintf(&sb, "`/%s` - %s\n", c.Name(), c.Description())
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func init() {
	command.RegisterCommand(
		&HelpCommand{},
		middleware.WithCommandLogger(),
	)
}
