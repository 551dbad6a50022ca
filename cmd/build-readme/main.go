// Command build-readme writes docs/COMMANDS.md from the registered commands.
package main

import (
	"os"

	"github.com/rs/zerolog"

	_ "github.com/TaomasSpace/clubhall-guard/internal/command/antinuke"
	_ "github.com/TaomasSpace/clubhall-guard/internal/command/core"
	_ "github.com/TaomasSpace/clubhall-guard/internal/command/giveaway"
	_ "github.com/TaomasSpace/clubhall-guard/internal/command/msglog"
	_ "github.com/TaomasSpace/clubhall-guard/internal/command/prison"

	"github.com/TaomasSpace/clubhall-guard/internal/config"
	"github.com/TaomasSpace/clubhall-guard/internal/docs"
	"github.com/TaomasSpace/clubhall-guard/pkg/cmd"
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	out := "docs/COMMANDS.md"
	if len(os.Args) > 1 {
		out = os.Args[1]
	}
	if err := docs.WriteFile(out, cmd.DefaultRegistry, config.CategoryWeights); err != nil {
		log.Fatal().Err(err).Msg("failed to write command reference")
	}
	log.Info().Str("path", out).Int("commands", len(cmd.DefaultRegistry.GetAll())).Msg("command reference updated")
}
