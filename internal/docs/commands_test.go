package docs

import (
	"context"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TaomasSpace/clubhall-guard/internal/command"
	"github.com/TaomasSpace/clubhall-guard/pkg/cmd"
)

type fakeCommand struct {
	name, category string
	subs           []string
}

func (f fakeCommand) Name() string                           { return f.name }
func (f fakeCommand) Description() string                    { return "does " + f.name }
func (f fakeCommand) Group() string                          { return "test" }
func (f fakeCommand) Category() string                       { return f.category }
func (f fakeCommand) UserPermissions() []int64               { return nil }
func (f fakeCommand) Run(context.Context, interface{}) error { return nil }

func (f fakeCommand) SlashDefinition() *discordgo.ApplicationCommand {
	def := &discordgo.ApplicationCommand{Name: f.name, Description: f.Description()}
	for _, s := range f.subs {
		def.Options = append(def.Options, &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        s,
			Description: s + " it",
		})
	}
	return def
}

func TestRender(t *testing.T) {
	reg := cmd.NewRegistry()
	reg.Register(&command.DiscordAdapter{Cmd: fakeCommand{name: "prison", category: "⛓️ Moderation", subs: []string{"sentence", "cancel"}}})
	reg.Register(&command.DiscordAdapter{Cmd: fakeCommand{name: "help", category: "🕯️ Information"}})

	var sb strings.Builder
	require.NoError(t, Render(&sb, reg, map[string]int{"🕯️ Information": 0, "⛓️ Moderation": 20}))
	out := sb.String()

	assert.True(t, strings.HasPrefix(out, "# Commands\n"))
	assert.Contains(t, out, "- **/help** - does help")
	assert.Contains(t, out, "  - `prison sentence: sentence it`")
	assert.Less(t, strings.Index(out, "## 🕯️ Information"), strings.Index(out, "## ⛓️ Moderation"))
}
