package app

import (
	"strings"

	"ebibot/internal/config"
	"ebibot/internal/storage"
	"ebibot/internal/upgrade"
	"ebibot/internal/watchdog"
	logx "ebibot/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File: logx.FileConfig{
			Enabled: l.File.Enabled,
			Path:    l.File.Path,
		},
		Discord: logx.DiscordConfig{
			Enabled:    l.Discord.Enabled,
			ChannelID:  strings.TrimSpace(l.Discord.ChannelID),
			MinLevel:   l.Discord.MinLevel,
			RatePerSec: l.Discord.RatePerSec,
		},
	}
}

func mapStorageConfig(cfg *config.Config) storage.Config {
	return storage.Config{
		Path:        cfg.Storage.DBPath(),
		BusyTimeout: cfg.Storage.Busy(),
	}
}

func mapWatchdogConfig(cfg *config.Config) (watchdog.Config, watchdog.ExecFetcher) {
	from, until := cfg.Watchdog.ActiveHours()
	name, args := cfg.Watchdog.Argv()
	return watchdog.Config{
			DefaultChannelID: cfg.Discord.DefaultChannelID,
			ActiveFrom:       from,
			ActiveUntil:      until,
		}, watchdog.ExecFetcher{
			Argv:    append([]string{name}, args...),
			Timeout: cfg.Watchdog.FetchDeadline(),
		}
}

func mapUpgradeConfig(cfg *config.Config) upgrade.Config {
	u := cfg.Upgrade
	steps := make([]upgrade.Step, 0, len(u.Steps))
	for _, s := range u.Steps {
		name := strings.TrimSpace(s.Name)
		if name == "" && len(s.Argv) > 0 {
			name = s.Argv[0]
		}
		steps = append(steps, upgrade.Step{Name: name, Argv: append([]string(nil), s.Argv...)})
	}
	return upgrade.Config{
		ChannelID:   strings.TrimSpace(u.ChannelID),
		Trigger:     u.TriggerText(),
		Dir:         u.Dir,
		Unit:        u.UnitName(),
		Steps:       steps,
		StepTimeout: u.StepDeadline(),
	}
}
