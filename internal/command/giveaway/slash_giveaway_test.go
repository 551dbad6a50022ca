package giveaway

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TaomasSpace/clubhall-guard/internal/command/commandtest"
	"github.com/TaomasSpace/clubhall-guard/internal/platform"
)

func run(t *testing.T, env *commandtest.Env, sub string, opts ...*discordgo.ApplicationCommandInteractionDataOption) string {
	t.Helper()
	require.NoError(t, (&GiveawayCommand{}).Run(context.Background(), env.Context("giveaway", sub, "host", opts...)))
	return env.Resp.Last(t)
}

func TestGiveawayStartAndDraw(t *testing.T) {
	env := commandtest.NewEnv(t)

	out := run(t, env, "start", commandtest.String("prize", "Nitro"), commandtest.String("duration", "10m"), commandtest.Int("winners", 1))
	assert.Contains(t, out, "message_id:msg1")
	require.Len(t, env.Platform.Sent(), 1)
	assert.Equal(t, "c1", env.Platform.Sent()[0].ChannelID)

	env.Platform.Reactions = []platform.User{{ID: "bot", Bot: true}, {ID: "u1"}}
	env.Clock.Advance(10 * time.Minute)

	sent := env.Platform.Sent()
	require.Len(t, sent, 2)
	assert.Contains(t, sent[1].Msg.Content, "<@u1>")
	assert.Empty(t, env.Services.Timers.Pending("g1"))
}

func TestGiveawayCancel(t *testing.T) {
	env := commandtest.NewEnv(t)

	run(t, env, "start", commandtest.String("prize", "Nitro"), commandtest.String("duration", "1h"))
	assert.Equal(t, "Giveaway cancelled.", run(t, env, "cancel", commandtest.String("message_id", "msg1")))
	assert.Equal(t, "No running giveaway with that message ID.", run(t, env, "cancel", commandtest.String("message_id", "msg1")))

	env.Clock.Advance(2 * time.Hour)
	assert.Len(t, env.Platform.Sent(), 1)
}

func TestGiveawayValidation(t *testing.T) {
	env := commandtest.NewEnv(t)
	assert.Contains(t, run(t, env, "start", commandtest.String("prize", "Nitro"), commandtest.String("duration", "0s")), "duration must be positive")
	assert.Contains(t, run(t, env, "start", commandtest.String("prize", "Nitro"), commandtest.String("duration", "1h"), commandtest.Int("winners", 0)), "invalid giveaway")
	assert.Empty(t, env.Platform.Sent())
}
