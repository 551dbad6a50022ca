// cmd/discord/main.go
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	_ "github.com/TaomasSpace/clubhall-guard/internal/command/antinuke"
	_ "github.com/TaomasSpace/clubhall-guard/internal/command/core"
	_ "github.com/TaomasSpace/clubhall-guard/internal/command/giveaway"
	_ "github.com/TaomasSpace/clubhall-guard/internal/command/msglog"
	_ "github.com/TaomasSpace/clubhall-guard/internal/command/prison"

	"github.com/TaomasSpace/clubhall-guard/internal/actions"
	"github.com/TaomasSpace/clubhall-guard/internal/command"
	"github.com/TaomasSpace/clubhall-guard/internal/config"
	"github.com/TaomasSpace/clubhall-guard/internal/discord"
	"github.com/TaomasSpace/clubhall-guard/internal/guard"
	"github.com/TaomasSpace/clubhall-guard/internal/logging"
	"github.com/TaomasSpace/clubhall-guard/internal/metrics"
	"github.com/TaomasSpace/clubhall-guard/internal/scheduler"
	"github.com/TaomasSpace/clubhall-guard/internal/storage"
	"github.com/TaomasSpace/clubhall-guard/internal/storage/timerstore"
	"github.com/TaomasSpace/clubhall-guard/pkg/cmd"
)

const sweepInterval = time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		zerolog.New(os.Stderr).Fatal().Err(err).Msg("failed to load config")
	}

	log, logCloser := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	defer logCloser.Close()

	if err := run(cfg, log); err != nil {
		log.Error().Err(err).Msg("bot stopped with error")
		logCloser.Close()
		os.Exit(1)
	}
	log.Info().Msg("shutdown complete")
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.New(cfg.StoragePath, log)
	if err != nil {
		return err
	}
	defer store.Close()

	port, err := timerstore.Open(ctx, cfg, store, log)
	if err != nil {
		return err
	}
	defer port.Close()

	if cfg.PolicyFile != "" {
		defaults, err := config.LoadPolicies(cfg.PolicyFile)
		if err != nil {
			return err
		}
		store.SetDefaultPolicies(defaults)
	}

	m := metrics.New()
	g := guard.New(store,
		guard.WithMetrics(m),
		guard.WithLogger(log.With().Str("component", "guard").Logger()),
	)
	timers := scheduler.New(port,
		scheduler.WithMetrics(m),
		scheduler.WithLogger(log.With().Str("component", "scheduler").Logger()),
		scheduler.WithRecoveryWorkers(cfg.RecoveryWorkers),
	)
	defer timers.Close()

	session, err := discord.NewSession(cfg.DiscordToken)
	if err != nil {
		return err
	}
	act := actions.New(discord.NewPlatform(session, log), store, timers,
		actions.WithLogger(log.With().Str("component", "actions").Logger()))

	services := &command.Services{
		Storage:     store,
		Guard:       g,
		Actions:     act,
		Timers:      timers,
		Responder:   discord.DefaultResponder,
		DeveloperID: cfg.DeveloperID,
		Log:         log,
	}
	bot := discord.NewBot(session, cfg, services, cmd.DefaultRegistry, log)

	if err := timers.RecoverAll(ctx, act.Handlers()); err != nil {
		log.Error().Err(err).Msg("timer recovery incomplete")
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		g.RunSweeper(ctx, sweepInterval)
		return nil
	})
	if cfg.MetricsAddr != "" {
		eg.Go(func() error { return m.Serve(ctx, cfg.MetricsAddr) })
	}
	if cfg.PolicyFile != "" {
		eg.Go(func() error {
			return config.WatchPolicies(ctx, cfg.PolicyFile, log, store.SetDefaultPolicies)
		})
	}
	eg.Go(func() error { return bot.Run(ctx) })

	log.Info().Str("storage", string(cfg.StorageDriver)).Msg("starting clubhall guard")
	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
