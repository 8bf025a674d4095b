package transport

import (
	"context"
	"errors"
	"time"
)

// ErrNoChannel means a channel id could not be resolved to a destination.
var ErrNoChannel = errors.New("channel not found")

type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

// Embed is a platform-neutral rich message.
type Embed struct {
	Title       string
	Description string
	Color       int
	Footer      string
	Timestamp   time.Time
	Fields      []EmbedField
}

// Sender is a resolved destination channel.
type Sender interface {
	SendEmbed(ctx context.Context, e Embed) error
}

// Channels resolves channel ids. Channel only consults local state;
// FetchChannel may go over the network.
type Channels interface {
	Channel(id int64) (Sender, bool)
	FetchChannel(ctx context.Context, id int64) (Sender, error)
}

// Resolve tries the cache first, then the network.
func Resolve(ctx context.Context, ch Channels, id int64) (Sender, error) {
	if s, ok := ch.Channel(id); ok && s != nil {
		return s, nil
	}
	return ch.FetchChannel(ctx, id)
}

// Message is an inbound chat message.
type Message struct {
	ID        string
	ChannelID string
	GuildID   string
	Content   string
	// WebhookID is non-empty when a webhook posted the message.
	WebhookID string
	AuthorBot bool
}

// Messenger covers the text operations used outside embed delivery.
type Messenger interface {
	SendText(ctx context.Context, channelID, text string) error
	Reply(ctx context.Context, m Message, text string) error
	StartThread(ctx context.Context, m Message, name string) (threadID string, err error)
	React(ctx context.Context, m Message, emoji string) error
}

// Interaction is an invoked slash command.
type Interaction struct {
	Command   string
	ChannelID int64
	UserID    string
	Options   map[string]string
}

// Response is the reply to an Interaction. Ephemeral replies are only shown
// to the invoking user.
type Response struct {
	Content   string
	Embed     *Embed
	Ephemeral bool
}

// CommandOption describes one string option of a slash command.
type CommandOption struct {
	Name        string
	Description string
	Required    bool
}

// Command is a slash command definition and its handler.
type Command struct {
	Name        string
	Description string
	Options     []CommandOption
	Handle      func(ctx context.Context, in Interaction) Response
}
