package reminder

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"ebibot/internal/embeds"
	"ebibot/internal/eventbus"
	"ebibot/internal/notification"
	"ebibot/internal/transport"
	logx "ebibot/pkg/logx"
)

var (
	ErrInvalidTime    = errors.New("time must be HH:MM (e.g. 14:30)")
	ErrTimeOutOfRange = errors.New("time out of range: use 00:00-23:59")
)

var hhmm = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)

// ParseTimeOfDay validates a user-entered HH:MM.
func ParseTimeOfDay(s string) (hour, minute int, err error) {
	m := hhmm.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, 0, ErrInvalidTime
	}
	hour, _ = strconv.Atoi(m[1])
	minute, _ = strconv.Atoi(m[2])
	if hour > 23 || minute > 59 {
		return 0, 0, ErrTimeOutOfRange
	}
	return hour, minute, nil
}

// NextOccurrence is today at hour:minute:00 in now's location when that is
// strictly after now, otherwise the same time tomorrow.
func NextOccurrence(now time.Time, hour, minute int) time.Time {
	t := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !t.After(now) {
		t = time.Date(now.Year(), now.Month(), now.Day()+1, hour, minute, 0, 0, now.Location())
	}
	return t
}

// Creator is the subset of notification.Repository the command needs.
type Creator interface {
	Create(ctx context.Context, n notification.NewNotification) (int64, error)
}

const (
	optTime    = "time"
	optMessage = "message"
)

// RemindCommand builds the /remind slash command.
func RemindCommand(store Creator, now func() time.Time, bus eventbus.Bus, log logx.Logger) transport.Command {
	if now == nil {
		now = time.Now
	}
	if bus == nil {
		bus = eventbus.Nop{}
	}
	return transport.Command{
		Name:        "remind",
		Description: "Remind you at a time of day",
		Options: []transport.CommandOption{
			{Name: optTime, Description: "Time (HH:MM)", Required: true},
			{Name: optMessage, Description: "Reminder message", Required: true},
		},
		Handle: func(ctx context.Context, in transport.Interaction) transport.Response {
			return handleRemind(ctx, store, now(), bus, log, in)
		},
	}
}

func handleRemind(ctx context.Context, store Creator, now time.Time, bus eventbus.Bus, log logx.Logger, in transport.Interaction) transport.Response {
	hour, minute, err := ParseTimeOfDay(in.Options[optTime])
	if err != nil {
		return transport.Response{Content: err.Error(), Ephemeral: true}
	}
	msg := strings.TrimSpace(in.Options[optMessage])
	if msg == "" {
		return transport.Response{Content: "message is required", Ephemeral: true}
	}

	at := NextOccurrence(now, hour, minute)
	channelID := in.ChannelID
	id, err := store.Create(ctx, notification.NewNotification{
		Message:     msg,
		ScheduledAt: at.Format(notification.TimeLayout),
		Source:      notification.SourceSlashCommand,
		ChannelID:   &channelID,
	})
	if err != nil {
		log.Error("remind: create failed", logx.String("user", in.UserID), logx.Err(err))
		return transport.Response{Content: fmt.Sprintf("could not save reminder: %v", err), Ephemeral: true}
	}

	log.Info("reminder scheduled",
		logx.Int64("id", id), logx.String("user", in.UserID), logx.String("at", at.Format(notification.TimeLayout)))
	bus.Publish(eventbus.Event{
		Type: eventbus.NotificationScheduled,
		Data: eventbus.NotificationData{ID: id, Source: notification.SourceSlashCommand},
	})
	e := embeds.ScheduleConfirm(msg, at.Format("01/02 15:04"))
	return transport.Response{Embed: &e}
}
