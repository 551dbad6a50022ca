package middleware

import (
	"context"
	"time"

	"github.com/TaomasSpace/clubhall-guard/internal/command"
	"github.com/TaomasSpace/clubhall-guard/pkg/cmd"
)

// WithCommandLogger wraps a command to log its execution
func WithCommandLogger() cmd.Middleware {
	return func(c cmd.Command) cmd.Command {
		return cmd.Wrap(c, func(ctx context.Context, inv *cmd.Invocation) error {
			started := time.Now()
			err := c.Run(ctx, inv)

			v, ok := inv.Data.(*command.SlashInteractionContext)
			if !ok {
				return err
			}
			evt := v.Services.Log.Info()
			if err != nil {
				evt = v.Services.Log.Error().Err(err)
			}
			evt.Str("command", c.Name()).
				Str("guild", v.Event.GuildID).
				Str("channel", v.Event.ChannelID).
				Str("user", v.UserID()).
				Dur("took", time.Since(started)).
				Msg("command executed")
			return err
		})
	}
}
