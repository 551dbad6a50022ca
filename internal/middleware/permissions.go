package middleware

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/TaomasSpace/clubhall-guard/internal/command"
	"github.com/TaomasSpace/clubhall-guard/pkg/cmd"
)

var PermissionNames = map[int64]string{
	discordgo.PermissionAdministrator:   "Administrator",
	discordgo.PermissionManageGuild:     "Manage Server",
	discordgo.PermissionManageRoles:     "Manage Roles",
	discordgo.PermissionManageMessages:  "Manage Messages",
	discordgo.PermissionModerateMembers: "Moderate Members",
	discordgo.PermissionKickMembers:     "Kick Members",
	discordgo.PermissionBanMembers:      "Ban Members",
	discordgo.PermissionViewAuditLogs:   "View Audit Logs",
}

// WithUserPermissionCheck lets the command run when the member holds
// Administrator, any of the command's required permissions, or is the
// configured developer.
func WithUserPermissionCheck() cmd.Middleware {
	return func(c cmd.Command) cmd.Command {
		return cmd.Wrap(c, func(ctx context.Context, inv *cmd.Invocation) error {
			v, ok := inv.Data.(*command.SlashInteractionContext)
			if !ok {
				return c.Run(ctx, inv)
			}
			meta, ok := command.Meta(c)
			if !ok || len(meta.UserPermissions()) == 0 {
				return c.Run(ctx, inv)
			}
			if Allowed(v.Event.Member, v.Services.DeveloperID, meta.UserPermissions()) {
				return c.Run(ctx, inv)
			}

			var names []string
			for _, p := range meta.UserPermissions() {
				name := PermissionNames[p]
				if name == "" {
					name = fmt.Sprintf("0x%x", p)
				}
				names = append(names, name)
			}
			return v.Reply(fmt.Sprintf(
				"You need at least one of the following permissions to run this command:\n`%s`",
				strings.Join(names, "`, `"),
			))
		})
	}
}

// Allowed checks the member's resolved interaction permissions.
func Allowed(m *discordgo.Member, developerID string, required []int64) bool {
	if m == nil || m.User == nil {
		return false
	}
	if developerID != "" && m.User.ID == developerID {
		return true
	}
	if m.Permissions&discordgo.PermissionAdministrator != 0 {
		return true
	}
	for _, p := range required {
		if m.Permissions&p != 0 {
			return true
		}
	}
	return false
}
