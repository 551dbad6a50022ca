// Package platform describes the chat platform operations the bot performs.
// internal/discord implements it on discordgo; tests use in-memory fakes.
package platform

import (
	"context"
	"time"
)

// Member is a guild member as seen by the moderation code.
type Member struct {
	UserID  string
	RoleIDs []string
	Bot     bool
}

type User struct {
	ID  string
	Bot bool
}

type Field struct {
	Name   string
	Value  string
	Inline bool
}

// Message is a platform neutral embed.
type Message struct {
	Title       string
	Description string
	Color       int
	Fields      []Field
	Footer      string
	// Content is sent outside the embed so user mentions ping.
	Content string
}

// Platform performs platform mutations. Every method may fail; callers log
// and continue.
type Platform interface {
	Timeout(ctx context.Context, guildID, userID string, d time.Duration, reason string) error
	Kick(ctx context.Context, guildID, userID, reason string) error
	Ban(ctx context.Context, guildID, userID, reason string) error

	Member(ctx context.Context, guildID, userID string) (Member, error)
	AddRole(ctx context.Context, guildID, userID, roleID string) error
	RemoveRole(ctx context.Context, guildID, userID, roleID string) error

	SendMessage(ctx context.Context, channelID string, msg Message) (messageID string, err error)
	AddReaction(ctx context.Context, channelID, messageID, emoji string) error
	ReactionUsers(ctx context.Context, channelID, messageID, emoji string) ([]User, error)
}

// EmbedColor is the accent used for every embed the bot posts.
const EmbedColor = 0xb01e66
