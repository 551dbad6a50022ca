package discord

import (
	"github.com/bwmarrin/discordgo"

	"github.com/TaomasSpace/clubhall-guard/internal/command"
	"github.com/TaomasSpace/clubhall-guard/internal/platform"
)

// DefaultResponder answers interactions with a single embed.
var DefaultResponder command.Responder = responder{}

type responder struct{}

func (responder) RespondEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) error {
	return respond(s, i, embed, 0)
}

func (responder) RespondEmbedEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) error {
	return respond(s, i, embed, discordgo.MessageFlagsEphemeral)
}

func (responder) EmbedColor() int { return platform.EmbedColor }

func respond(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, flags discordgo.MessageFlags) error {
	return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Flags:  flags,
			Embeds: []*discordgo.MessageEmbed{embed},
		},
	})
}
