package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	logx "ebibot/pkg/logx"
)

// Validate checks a parsed config before it is committed. All problems are
// reported together.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if !logx.ValidLevel(cfg.Logging.Level) {
		add("logging.level: unknown level %q", cfg.Logging.Level)
	}
	if !logx.ValidLevel(cfg.Logging.Discord.MinLevel) {
		add("logging.discord.min_level: unknown level %q", cfg.Logging.Discord.MinLevel)
	}
	if cfg.Logging.Discord.RatePerSec < 0 {
		add("logging.discord.rate_per_sec: must be >= 0")
	}
	if cfg.Discord.DefaultChannelID < 0 {
		add("discord.default_channel_id: must be >= 0")
	}

	durations := []struct{ path, raw string }{
		{"storage.busy_timeout", cfg.Storage.BusyTimeout},
		{"reminder.interval", cfg.Reminder.Interval},
		{"reminder.send_timeout", cfg.Reminder.SendTimeout},
		{"watchdog.interval", cfg.Watchdog.Interval},
		{"watchdog.fetch_timeout", cfg.Watchdog.FetchTimeout},
		{"upgrade.step_timeout", cfg.Upgrade.StepTimeout},
	}
	for _, d := range durations {
		if _, err := ParseDurationField(d.path, d.raw); err != nil {
			errs = append(errs, err)
		}
	}

	if cfg.API.Enabled {
		if _, _, err := net.SplitHostPort(cfg.API.ListenAddr()); err != nil {
			add("api.addr: %w", err)
		}
	}

	from, until := cfg.Watchdog.ActiveHours()
	if from < 0 || from > 23 {
		add("watchdog.active_from: must be within 0..23")
	}
	if until < 1 || until > 24 {
		add("watchdog.active_until: must be within 1..24")
	}
	if from >= until {
		add("watchdog.active_from must be < active_until")
	}

	if cfg.Upgrade.Enabled {
		if strings.TrimSpace(cfg.Upgrade.ChannelID) == "" {
			add("upgrade.channel_id: required when upgrade is enabled")
		}
		for i, st := range cfg.Upgrade.Steps {
			if len(st.Argv) == 0 || strings.TrimSpace(st.Argv[0]) == "" {
				add("upgrade.commands[%d]: argv is empty", i)
			}
		}
	}

	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			add("scheduler.timezone: %w", err)
		}
	}

	return errors.Join(errs...)
}
