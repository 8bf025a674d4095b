package discord

import (
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/require"

	"ebibot/internal/transport"
)

func TestToMessageEmbed(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 2, 12, 14, 30, 0, 0, time.UTC)
	e := toMessageEmbed(transport.Embed{
		Title:       "t",
		Description: "d",
		Color:       0x00BFFF,
		Footer:      "EbiBot",
		Timestamp:   ts,
		Fields:      []transport.EmbedField{{Name: "n", Value: "v", Inline: true}},
	})
	require.Equal(t, "t", e.Title)
	require.Equal(t, 0x00BFFF, e.Color)
	require.Equal(t, "EbiBot", e.Footer.Text)
	require.Equal(t, "2026-02-12T14:30:00Z", e.Timestamp)
	require.Len(t, e.Fields, 1)
	require.True(t, e.Fields[0].Inline)

	bare := toMessageEmbed(transport.Embed{Title: "x"})
	require.Nil(t, bare.Footer)
	require.Empty(t, bare.Timestamp)
}

func TestFromInteraction(t *testing.T) {
	t.Parallel()

	i := &discordgo.Interaction{
		Type:      discordgo.InteractionApplicationCommand,
		ChannelID: "123456789",
		Member:    &discordgo.Member{User: &discordgo.User{ID: "42"}},
		Data: discordgo.ApplicationCommandInteractionData{
			Name: "remind",
			Options: []*discordgo.ApplicationCommandInteractionDataOption{
				{Name: "time", Type: discordgo.ApplicationCommandOptionString, Value: "14:30"},
				{Name: "message", Type: discordgo.ApplicationCommandOptionString, Value: "stretch"},
			},
		},
	}
	in, ok := fromInteraction(i)
	require.True(t, ok)
	require.Equal(t, "remind", in.Command)
	require.Equal(t, int64(123456789), in.ChannelID)
	require.Equal(t, "42", in.UserID)
	require.Equal(t, map[string]string{"time": "14:30", "message": "stretch"}, in.Options)

	i.ChannelID = "not-a-number"
	_, ok = fromInteraction(i)
	require.False(t, ok)
}

func TestToInteractionResponse(t *testing.T) {
	t.Parallel()

	r := toInteractionResponse(transport.Response{Content: "bad time", Ephemeral: true})
	require.Equal(t, discordgo.InteractionResponseChannelMessageWithSource, r.Type)
	require.Equal(t, "bad time", r.Data.Content)
	require.Equal(t, discordgo.MessageFlagsEphemeral, r.Data.Flags)
	require.Empty(t, r.Data.Embeds)

	r = toInteractionResponse(transport.Response{Embed: &transport.Embed{Title: "ok"}})
	require.Len(t, r.Data.Embeds, 1)
	require.Zero(t, r.Data.Flags)
}

func TestToApplicationCommandOrdersRequiredFirst(t *testing.T) {
	t.Parallel()

	ac := toApplicationCommand(transport.Command{
		Name: "remind",
		Options: []transport.CommandOption{
			{Name: "note"},
			{Name: "time", Required: true},
			{Name: "message", Required: true},
		},
	})
	require.Len(t, ac.Options, 3)
	require.Equal(t, "time", ac.Options[0].Name)
	require.Equal(t, "message", ac.Options[1].Name)
	require.Equal(t, "note", ac.Options[2].Name)
}

func TestFromDiscordMessage(t *testing.T) {
	t.Parallel()

	m := fromDiscordMessage(&discordgo.Message{
		ID: "1", ChannelID: "2", GuildID: "3", Content: "hi", WebhookID: "w",
		Author: &discordgo.User{Bot: true},
	})
	require.Equal(t, transport.Message{ID: "1", ChannelID: "2", GuildID: "3", Content: "hi", WebhookID: "w", AuthorBot: true}, m)
}
