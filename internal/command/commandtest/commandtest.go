// Package commandtest builds slash interactions and services for command
// tests without a Discord session.
package commandtest

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/TaomasSpace/clubhall-guard/internal/actions"
	"github.com/TaomasSpace/clubhall-guard/internal/clock"
	"github.com/TaomasSpace/clubhall-guard/internal/command"
	"github.com/TaomasSpace/clubhall-guard/internal/guard"
	"github.com/TaomasSpace/clubhall-guard/internal/platform/platformtest"
	"github.com/TaomasSpace/clubhall-guard/internal/scheduler"
	"github.com/TaomasSpace/clubhall-guard/internal/storage"
)

// Responder records embeds instead of answering the interaction.
type Responder struct {
	mu     sync.Mutex
	Embeds []*discordgo.MessageEmbed
}

func (r *Responder) RespondEmbed(_ *discordgo.Session, _ *discordgo.InteractionCreate, e *discordgo.MessageEmbed) error {
	r.mu.Lock()
	r.Embeds = append(r.Embeds, e)
	r.mu.Unlock()
	return nil
}

func (r *Responder) RespondEmbedEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate, e *discordgo.MessageEmbed) error {
	return r.RespondEmbed(s, i, e)
}

func (r *Responder) EmbedColor() int { return 1 }

// Last returns the description of the latest reply.
func (r *Responder) Last(t *testing.T) string {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.Embeds)
	return r.Embeds[len(r.Embeds)-1].Description
}

// Env is a full service stack on a temp datastore, a fake clock and a fake
// platform.
type Env struct {
	Services *command.Services
	Resp     *Responder
	Platform *platformtest.Fake
	Clock    *clock.Fake
	Store    *storage.Storage
}

func NewEnv(t *testing.T) *Env {
	t.Helper()
	store, err := storage.New(filepath.Join(t.TempDir(), "datastore.json"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	fc := clock.NewFake(time.Date(2026, 6, 1, 20, 0, 0, 0, time.UTC))
	timers := scheduler.New(store, scheduler.WithClock(fc))
	t.Cleanup(timers.Close)

	fp := platformtest.New()
	act := actions.New(fp, store, timers, actions.WithClock(fc))
	require.NoError(t, timers.RecoverAll(context.Background(), act.Handlers()))

	resp := &Responder{}
	return &Env{
		Services: &command.Services{
			Storage:   store,
			Guard:     guard.New(store, guard.WithClock(fc)),
			Actions:   act,
			Timers:    timers,
			Responder: resp,
			Log:       zerolog.Nop(),
		},
		Resp:     resp,
		Platform: fp,
		Clock:    fc,
		Store:    store,
	}
}

// Context builds an interaction for /name sub invoked by userID in guild g1.
func (e *Env) Context(name, sub, userID string, opts ...*discordgo.ApplicationCommandInteractionDataOption) *command.SlashInteractionContext {
	return &command.SlashInteractionContext{
		Event: &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
			Type:      discordgo.InteractionApplicationCommand,
			GuildID:   "g1",
			ChannelID: "c1",
			Member:    &discordgo.Member{User: &discordgo.User{ID: userID}, Permissions: discordgo.PermissionAdministrator},
			Data: discordgo.ApplicationCommandInteractionData{
				Name: name,
				Options: []*discordgo.ApplicationCommandInteractionDataOption{{
					Name:    sub,
					Type:    discordgo.ApplicationCommandOptionSubCommand,
					Options: opts,
				}},
			},
		}},
		Services: e.Services,
	}
}

func String(name, value string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: discordgo.ApplicationCommandOptionString, Value: value}
}

func Int(name string, value int) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: discordgo.ApplicationCommandOptionInteger, Value: float64(value)}
}

func User(name, id string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: discordgo.ApplicationCommandOptionUser, Value: id}
}

func Channel(name, id string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: discordgo.ApplicationCommandOptionChannel, Value: id}
}
