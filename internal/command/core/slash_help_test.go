package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/TaomasSpace/clubhall-guard/internal/command"
	"github.com/TaomasSpace/clubhall-guard/pkg/cmd"
)

type fakeCommand struct {
	name, category string
}

func (f fakeCommand) Name() string                           { return f.name }
func (f fakeCommand) Description() string                    { return f.name + " description" }
func (f fakeCommand) Group() string                          { return "test" }
func (f fakeCommand) Category() string                       { return f.category }
func (f fakeCommand) UserPermissions() []int64               { return nil }
func (f fakeCommand) Run(context.Context, interface{}) error { return nil }

func TestBuildHelpOrdersByCategoryWeight(t *testing.T) {
	adapt := func(name, category string) cmd.Command {
		return &command.DiscordAdapter{Cmd: fakeCommand{name, category}}
	}
	out := BuildHelp([]cmd.Command{
		adapt("msglog", "🎉 Events"),
		adapt("antinuke", "🛡️ Antinuke"),
		adapt("zzz", "Unlisted"),
		adapt("giveaway", "🎉 Events"),
		adapt("help", "🕯️ Information"),
	})

	want := "**🕯️ Information**\n`/help` - help description\n\n" +
		"**🛡️ Antinuke**\n`/antinuke` - antinuke description\n\n" +
		"**🎉 Events**\n`/giveaway` - giveaway description\n`/msglog` - msglog description\n\n" +
		"**Unlisted**\n`/zzz` - zzz description"
	assert.Equal(t, want, out)
}
