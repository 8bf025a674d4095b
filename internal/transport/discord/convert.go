package discord

import (
	"sort"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"

	"ebibot/internal/transport"
)

func toMessageEmbed(e transport.Embed) *discordgo.MessageEmbed {
	out := &discordgo.MessageEmbed{
		Title:       e.Title,
		Description: e.Description,
		Color:       e.Color,
	}
	if e.Footer != "" {
		out.Footer = &discordgo.MessageEmbedFooter{Text: e.Footer}
	}
	if !e.Timestamp.IsZero() {
		out.Timestamp = e.Timestamp.Format(time.RFC3339)
	}
	for _, f := range e.Fields {
		out.Fields = append(out.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	return out
}

func fromDiscordMessage(m *discordgo.Message) transport.Message {
	msg := transport.Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		GuildID:   m.GuildID,
		Content:   m.Content,
		WebhookID: m.WebhookID,
	}
	if m.Author != nil {
		msg.AuthorBot = m.Author.Bot
	}
	return msg
}

// fromInteraction flattens a slash command invocation. ok is false when the
// channel id is not numeric.
func fromInteraction(i *discordgo.Interaction) (transport.Interaction, bool) {
	data := i.ApplicationCommandData()
	channelID, err := strconv.ParseInt(i.ChannelID, 10, 64)
	if err != nil {
		return transport.Interaction{}, false
	}
	in := transport.Interaction{
		Command:   data.Name,
		ChannelID: channelID,
		Options:   make(map[string]string, len(data.Options)),
	}
	switch {
	case i.Member != nil && i.Member.User != nil:
		in.UserID = i.Member.User.ID
	case i.User != nil:
		in.UserID = i.User.ID
	}
	for _, o := range data.Options {
		if o.Type == discordgo.ApplicationCommandOptionString {
			in.Options[o.Name] = o.StringValue()
		}
	}
	return in, true
}

func toInteractionResponse(r transport.Response) *discordgo.InteractionResponse {
	data := &discordgo.InteractionResponseData{Content: r.Content}
	if r.Embed != nil {
		data.Embeds = []*discordgo.MessageEmbed{toMessageEmbed(*r.Embed)}
	}
	if r.Ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	}
}

func toApplicationCommand(c transport.Command) *discordgo.ApplicationCommand {
	ac := &discordgo.ApplicationCommand{Name: c.Name, Description: c.Description}
	opts := append([]transport.CommandOption(nil), c.Options...)
	// Discord rejects optional options listed before required ones.
	sort.SliceStable(opts, func(i, j int) bool { return opts[i].Required && !opts[j].Required })
	for _, o := range opts {
		ac.Options = append(ac.Options, &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        o.Name,
			Description: o.Description,
			Required:    o.Required,
		})
	}
	return ac
}
