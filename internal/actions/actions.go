// Package actions performs the platform side of guard triggers and timer
// fires: punishments, audit notices, giveaway draws, prison releases and
// message log leaderboards.
package actions

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"

	"github.com/TaomasSpace/clubhall-guard/internal/clock"
	"github.com/TaomasSpace/clubhall-guard/internal/platform"
	"github.com/TaomasSpace/clubhall-guard/internal/scheduler"
	"github.com/TaomasSpace/clubhall-guard/internal/storage"
)

// Store is the guild state the actions read and write.
type Store interface {
	LogChannel(guildID string) (string, error)
	PrisonRole(guildID string) (string, error)
	SetPrisoner(guildID string, p storage.Prisoner) error
	TakePrisoner(guildID, userID string) (storage.Prisoner, bool, error)
	MessageLog(guildID string) (*storage.MessageLog, error)
	StartMessageLog(guildID, channelID string, topN int, start, end time.Time) error
	RestoreMessageLog(guildID string, log *storage.MessageLog) error
	FinishMessageLog(guildID string, n int) ([]storage.MessageCount, error)
}

// Timers is the part of the scheduler the actions use.
type Timers interface {
	Schedule(ctx context.Context, entry scheduler.TimerEntry, onFire scheduler.FireFunc) (*scheduler.TimerHandle, error)
	Cancel(ctx context.Context, tenantID, timerID string, kind scheduler.Kind) (bool, error)
}

type Service struct {
	platform platform.Platform
	store    Store
	timers   Timers
	clock    clock.Clock
	log      zerolog.Logger
	shuffle  func(n int, swap func(i, j int))
}

type Option func(*Service)

func WithClock(c clock.Clock) Option { return func(s *Service) { s.clock = c } }

func WithLogger(l zerolog.Logger) Option { return func(s *Service) { s.log = l } }

// WithShuffle replaces the random permutation used for giveaway draws.
func WithShuffle(f func(n int, swap func(i, j int))) Option {
	return func(s *Service) { s.shuffle = f }
}

func New(p platform.Platform, store Store, timers Timers, opts ...Option) *Service {
	s := &Service{
		platform: p,
		store:    store,
		timers:   timers,
		clock:    clock.Real{},
		log:      zerolog.Nop(),
		shuffle:  rand.Shuffle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handlers maps every timer kind to its fire function for recovery.
func (s *Service) Handlers() map[scheduler.Kind]scheduler.FireFunc {
	return map[scheduler.Kind]scheduler.FireFunc{
		scheduler.KindGiveaway:        s.fireGiveaway,
		scheduler.KindPrisonRelease:   s.firePrisonRelease,
		scheduler.KindMessageLogFlush: s.fireMessageLog,
	}
}

// notify posts to the guild's log channel, if one is configured.
func (s *Service) notify(ctx context.Context, guildID string, msg platform.Message) {
	channelID, err := s.store.LogChannel(guildID)
	if err != nil {
		s.log.Error().Err(err).Str("guild", guildID).Msg("failed to read log channel")
		return
	}
	if channelID == "" {
		return
	}
	if msg.Color == 0 {
		msg.Color = platform.EmbedColor
	}
	if _, err := s.platform.SendMessage(ctx, channelID, msg); err != nil {
		s.log.Error().Err(err).Str("guild", guildID).Str("channel", channelID).Msg("failed to post log message")
	}
}
