package admin

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

// discordAPI is the REST-only implementation of API. It never opens a
// gateway connection.
type discordAPI struct {
	s *discordgo.Session
}

func NewDiscordAPI(token string) (API, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("discord token is empty")
	}
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	return discordAPI{s: s}, nil
}

func (d discordAPI) Channel(ctx context.Context, id string) (ChannelInfo, error) {
	ch, err := d.s.Channel(id, discordgo.WithContext(ctx))
	if err != nil {
		return ChannelInfo{}, mapRESTError(err)
	}
	return ChannelInfo{
		ID:       ch.ID,
		Name:     ch.Name,
		Type:     int(ch.Type),
		GuildID:  ch.GuildID,
		ParentID: ch.ParentID,
	}, nil
}

func (d discordAPI) ActiveThreads(ctx context.Context, guildID string) ([]Thread, error) {
	list, err := d.s.GuildThreadsActive(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, mapRESTError(err)
	}
	return toThreads(list.Threads), nil
}

func (d discordAPI) ArchivedThreads(ctx context.Context, channelID string, private bool, before time.Time) ([]Thread, bool, error) {
	var b *time.Time
	if !before.IsZero() {
		b = &before
	}
	var (
		list *discordgo.ThreadsList
		err  error
	)
	if private {
		list, err = d.s.ThreadsPrivateArchived(channelID, b, archivedPageSize, discordgo.WithContext(ctx))
	} else {
		list, err = d.s.ThreadsArchived(channelID, b, archivedPageSize, discordgo.WithContext(ctx))
	}
	if err != nil {
		return nil, false, mapRESTError(err)
	}
	return toThreads(list.Threads), list.HasMore, nil
}

func (d discordAPI) DeleteChannel(ctx context.Context, id string) error {
	_, err := d.s.ChannelDelete(id, discordgo.WithContext(ctx))
	return mapRESTError(err)
}

// projectArchiveMinutes is the week-long auto archive Discord allows for
// public threads.
const projectArchiveMinutes = 10080

func (d discordAPI) CreateThread(ctx context.Context, channelID, name string) (Thread, error) {
	ch, err := d.s.ThreadStart(channelID, name, discordgo.ChannelTypeGuildPublicThread, projectArchiveMinutes, discordgo.WithContext(ctx))
	if err != nil {
		return Thread{}, mapRESTError(err)
	}
	return toThreads([]*discordgo.Channel{ch})[0], nil
}

func (d discordAPI) SendMessage(ctx context.Context, channelID, content string) error {
	_, err := d.s.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
	return mapRESTError(err)
}

func (d discordAPI) AddThreadMember(ctx context.Context, threadID, userID string) error {
	return mapRESTError(d.s.ThreadMemberAdd(threadID, userID, discordgo.WithContext(ctx)))
}

func toThreads(chs []*discordgo.Channel) []Thread {
	out := make([]Thread, 0, len(chs))
	for _, ch := range chs {
		t := Thread{ID: ch.ID, Name: ch.Name, ParentID: ch.ParentID}
		if md := ch.ThreadMetadata; md != nil {
			t.Archived = md.Archived
			t.ArchivedAt = md.ArchiveTimestamp
		}
		out = append(out, t)
	}
	return out
}

func mapRESTError(err error) error {
	if err == nil {
		return nil
	}
	var re *discordgo.RESTError
	if errors.As(err, &re) && re.Response != nil {
		switch re.Response.StatusCode {
		case http.StatusNotFound:
			return errors.Join(ErrNotFound, err)
		case http.StatusForbidden:
			return errors.Join(ErrForbidden, err)
		}
	}
	return err
}
