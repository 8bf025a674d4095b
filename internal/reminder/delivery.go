// Package reminder delivers due scheduled notifications and implements the
// /remind slash command.
package reminder

import (
	"context"
	"fmt"
	"time"

	"ebibot/internal/embeds"
	"ebibot/internal/eventbus"
	"ebibot/internal/notification"
	"ebibot/internal/transport"
	logx "ebibot/pkg/logx"
)

// Store is the subset of notification.Repository the delivery loop needs.
type Store interface {
	Pending(ctx context.Context, before string) ([]notification.Notification, error)
	MarkSent(ctx context.Context, id int64) (bool, error)
	MarkFailed(ctx context.Context, id int64, reason string) (bool, error)
}

// ReasonNoChannel is recorded when neither the row nor the process has a
// destination.
const ReasonNoChannel = "No channel ID"

type DeliveryConfig struct {
	// DefaultChannelID is used for rows without channel_id. Zero means none.
	DefaultChannelID int64
	// SendTimeout bounds resolving the channel and sending one embed.
	SendTimeout time.Duration
	Now         func() time.Time
}

type Delivery struct {
	store    Store
	channels transport.Channels
	cfg      DeliveryConfig
	bus      eventbus.Bus
	log      logx.Logger
}

func NewDelivery(store Store, channels transport.Channels, cfg DeliveryConfig, bus eventbus.Bus, log logx.Logger) *Delivery {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if bus == nil {
		bus = eventbus.Nop{}
	}
	return &Delivery{store: store, channels: channels, cfg: cfg, bus: bus, log: log}
}

// Tick sends every pending row due at or before now, in scheduled order.
// A failing row is marked failed and does not stop the rest; only a failure
// to list due rows is returned.
func (d *Delivery) Tick(ctx context.Context) error {
	now := d.cfg.Now().Format(notification.TimeLayout)
	due, err := d.store.Pending(ctx, now)
	if err != nil {
		return fmt.Errorf("list due notifications: %w", err)
	}
	for _, n := range due {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d.deliver(ctx, n)
	}
	return nil
}

func (d *Delivery) deliver(ctx context.Context, n notification.Notification) {
	log := d.log.With(logx.Int64("id", n.ID))

	channelID := d.cfg.DefaultChannelID
	if n.ChannelID != nil && *n.ChannelID != 0 {
		channelID = *n.ChannelID
	}
	if channelID == 0 {
		log.Warn("no destination channel")
		d.fail(ctx, log, n, ReasonNoChannel)
		return
	}

	if err := d.send(ctx, channelID, n); err != nil {
		log.Error("send failed", logx.Int64("channel_id", channelID), logx.Err(err))
		d.fail(ctx, log, n, err.Error())
		return
	}
	if _, err := d.store.MarkSent(ctx, n.ID); err != nil {
		log.Error("mark sent failed", logx.Err(err))
		return
	}
	log.Info("notification sent", logx.Int64("channel_id", channelID))
	d.bus.Publish(eventbus.Event{
		Type: eventbus.NotificationSent,
		Data: eventbus.NotificationData{ID: n.ID, Source: n.Source},
	})
}

func (d *Delivery) send(ctx context.Context, channelID int64, n notification.Notification) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if d.cfg.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.SendTimeout)
		defer cancel()
	}
	ch, err := transport.Resolve(ctx, d.channels, channelID)
	if err != nil {
		return err
	}
	return ch.SendEmbed(ctx, embeds.Reminder(n.Message, n.DisplayTitle(), int(n.Color)))
}

func (d *Delivery) fail(ctx context.Context, log logx.Logger, n notification.Notification, reason string) {
	if _, err := d.store.MarkFailed(ctx, n.ID, reason); err != nil {
		log.Error("mark failed failed", logx.Err(err))
	}
	d.bus.Publish(eventbus.Event{
		Type: eventbus.NotificationFailed,
		Data: eventbus.NotificationData{ID: n.ID, Source: n.Source, Err: reason},
	})
}
