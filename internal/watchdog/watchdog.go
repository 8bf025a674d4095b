// Package watchdog nags about overdue tracker tasks during active hours.
package watchdog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ebibot/internal/embeds"
	"ebibot/internal/eventbus"
	"ebibot/internal/transport"
	logx "ebibot/pkg/logx"
)

type Config struct {
	DefaultChannelID int64
	// Active window [ActiveFrom, ActiveUntil) in local hours.
	ActiveFrom  int
	ActiveUntil int
	Now         func() time.Time
}

// Watchdog remembers which task ids it already reported today. The set
// resets when the local date changes.
type Watchdog struct {
	fetcher  Fetcher
	channels transport.Channels
	bus      eventbus.Bus
	log      logx.Logger
	now      func() time.Time

	mu          sync.Mutex
	channelID   int64
	activeFrom  int
	activeUntil int
	notified    map[string]struct{}
	day         string
}

func New(fetcher Fetcher, channels transport.Channels, cfg Config, bus eventbus.Bus, log logx.Logger) *Watchdog {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if bus == nil {
		bus = eventbus.Nop{}
	}
	return &Watchdog{
		fetcher:     fetcher,
		channels:    channels,
		bus:         bus,
		log:         log,
		now:         cfg.Now,
		channelID:   cfg.DefaultChannelID,
		activeFrom:  cfg.ActiveFrom,
		activeUntil: cfg.ActiveUntil,
		notified:    map[string]struct{}{},
	}
}

// SetActiveHours swaps the active window; used on config reload.
func (w *Watchdog) SetActiveHours(from, until int) {
	w.mu.Lock()
	w.activeFrom, w.activeUntil = from, until
	w.mu.Unlock()
}

// Tick runs one check. Fetch problems are logged and count as "no tasks".
// New ids are remembered before the alert is sent, so a failed send is not
// retried the same day.
func (w *Watchdog) Tick(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	if h := now.Hour(); h < w.activeFrom || h >= w.activeUntil {
		return nil
	}
	if today := now.Format(time.DateOnly); w.day != today {
		clear(w.notified)
		w.day = today
	}

	tasks, err := w.fetcher.Overdue(ctx)
	if err != nil {
		w.log.Error("fetch overdue tasks failed", logx.Err(err))
		w.bus.Publish(eventbus.Event{Type: eventbus.WatchdogFetchFailed})
		return nil
	}
	if len(tasks) == 0 {
		return nil
	}

	var fresh []embeds.Task
	for _, t := range tasks {
		id := string(t.ID)
		if id == "" {
			continue
		}
		if _, seen := w.notified[id]; seen {
			continue
		}
		w.notified[id] = struct{}{}
		fresh = append(fresh, embeds.Task{Content: t.Content, Due: string(t.Due)})
	}
	if len(fresh) == 0 {
		return nil
	}

	if w.channelID == 0 {
		w.log.Warn("default channel not configured; skipping alert", logx.Int("new", len(fresh)))
		return nil
	}
	ch, err := transport.Resolve(ctx, w.channels, w.channelID)
	if err != nil {
		w.log.Error("resolve channel failed", logx.Int64("channel_id", w.channelID), logx.Err(err))
		return nil
	}
	if err := ch.SendEmbed(ctx, embeds.Watchdog(fresh)); err != nil {
		return fmt.Errorf("send overdue alert: %w", err)
	}

	sev := embeds.SeverityFor(len(fresh))
	w.log.Info("overdue alert sent", logx.Int("new", len(fresh)), logx.String("severity", string(sev)))
	w.bus.Publish(eventbus.Event{
		Type: eventbus.WatchdogAlerted,
		Data: eventbus.WatchdogData{NewTasks: len(fresh), TotalTasks: len(tasks), Severity: string(sev)},
	})
	return nil
}
