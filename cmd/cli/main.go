// Command cli inspects and repairs the guard's stored state while the bot
// is stopped.
package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/TaomasSpace/clubhall-guard/internal/cli"
	"github.com/TaomasSpace/clubhall-guard/internal/config"
	"github.com/TaomasSpace/clubhall-guard/internal/storage"
	"github.com/TaomasSpace/clubhall-guard/internal/storage/timerstore"
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	ctx := context.Background()
	store, err := storage.New(cfg.StoragePath, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open datastore")
	}
	defer store.Close()

	timers, err := timerstore.Open(ctx, cfg, store, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open timer store")
	}
	defer timers.Close()

	if cfg.PolicyFile != "" {
		if defaults, err := config.LoadPolicies(cfg.PolicyFile); err == nil {
			store.SetDefaultPolicies(defaults)
		} else {
			log.Warn().Err(err).Msg("ignoring policy file")
		}
	}

	env := &cli.Env{Storage: store, Timers: timers, Out: os.Stdout, Now: time.Now}
	if err := cli.Run(ctx, cli.Registry(), env, os.Args[1:]); err != nil {
		if !errors.Is(err, cli.ErrUsage) || len(os.Args) > 1 {
			log.Error().Err(err).Msg("command failed")
		}
		timers.Close()
		store.Close()
		os.Exit(2)
	}
}
