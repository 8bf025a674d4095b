package app

import (
	"context"
	"reflect"
	"strings"

	"ebibot/internal/config"
	logx "ebibot/pkg/logx"
)

// reloadLoop applies committed configs. Logging and watchdog active hours
// change live; every other section waits for a restart.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	defer a.cfgm.Unsubscribe(sub)
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// keep only the newest of a burst
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					break drain
				}
			}
			a.applyConfig(lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	a.logs.Apply(mapLogConfig(newCfg))

	if a.watchdog != nil {
		from, until := newCfg.Watchdog.ActiveHours()
		a.watchdog.SetActiveHours(from, until)
	}

	pending := config.RequiresRestart(sections)
	if watchdogNeedsRestart(oldCfg, newCfg) {
		pending = append(pending, "watchdog")
	}
	if len(pending) > 0 {
		a.log.Warn("config sections changed; restart required for them to take effect",
			logx.String("sections", strings.Join(pending, ",")))
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

// watchdogNeedsRestart reports watchdog changes other than the active hours.
func watchdogNeedsRestart(oldCfg, newCfg *config.Config) bool {
	if oldCfg == nil || newCfg == nil {
		return false
	}
	ow, nw := oldCfg.Watchdog, newCfg.Watchdog
	ow.ActiveFrom, ow.ActiveUntil = nil, nil
	nw.ActiveFrom, nw.ActiveUntil = nil, nil
	return !reflect.DeepEqual(ow, nw)
}
