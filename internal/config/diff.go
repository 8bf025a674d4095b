package config

import (
	"reflect"
	"strings"

	logx "ebibot/pkg/logx"
)

// SummarizeConfigChange returns the changed top-level sections and safe
// structured attrs for logging. Tokens are never included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 16)

	// never log the token itself
	od, nd := oldCfg.Discord, newCfg.Discord
	if od.DefaultChannelID != nd.DefaultChannelID ||
		strings.TrimSpace(od.GuildID) != strings.TrimSpace(nd.GuildID) ||
		od.RatePerSec != nd.RatePerSec ||
		od.Token != nd.Token {
		changed = append(changed, "discord")
		attrs = append(attrs,
			logx.Int64("discord.default_channel_id", nd.DefaultChannelID),
			logx.String("discord.guild_id", strings.TrimSpace(nd.GuildID)),
			logx.Bool("discord.token_changed", od.Token != nd.Token),
		)
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.discord_enabled", newCfg.Logging.Discord.Enabled),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs, logx.String("storage.path", newCfg.Storage.DBPath()))
	}

	if oldCfg.API != newCfg.API {
		changed = append(changed, "api")
		attrs = append(attrs,
			logx.Bool("api.enabled", newCfg.API.Enabled),
			logx.String("api.addr", newCfg.API.ListenAddr()),
			logx.Bool("api.pprof", newCfg.API.Pprof),
		)
	}

	if oldCfg.Reminder != newCfg.Reminder {
		changed = append(changed, "reminder")
		attrs = append(attrs,
			logx.Duration("reminder.interval", newCfg.Reminder.Every()),
			logx.Duration("reminder.send_timeout", newCfg.Reminder.SendDeadline()),
		)
	}

	if !reflect.DeepEqual(oldCfg.Watchdog, newCfg.Watchdog) {
		from, until := newCfg.Watchdog.ActiveHours()
		changed = append(changed, "watchdog")
		attrs = append(attrs,
			logx.Bool("watchdog.enabled", newCfg.Watchdog.Enabled),
			logx.Duration("watchdog.interval", newCfg.Watchdog.Every()),
			logx.Int("watchdog.active_from", from),
			logx.Int("watchdog.active_until", until),
		)
	}

	if !reflect.DeepEqual(oldCfg.Upgrade, newCfg.Upgrade) {
		changed = append(changed, "upgrade")
		attrs = append(attrs,
			logx.Bool("upgrade.enabled", newCfg.Upgrade.Enabled),
			logx.Int("upgrade.steps", len(newCfg.Upgrade.Steps)),
			logx.String("upgrade.unit", newCfg.Upgrade.UnitName()),
		)
	}

	if strings.TrimSpace(oldCfg.Scheduler.Timezone) != strings.TrimSpace(newCfg.Scheduler.Timezone) {
		changed = append(changed, "scheduler")
		attrs = append(attrs, logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)))
	}

	return changed, attrs
}

// RequiresRestart reports sections whose change is only picked up on the
// next process start.
func RequiresRestart(changed []string) []string {
	var out []string
	for _, s := range changed {
		switch s {
		case "discord", "storage", "api", "upgrade", "scheduler", "reminder":
			out = append(out, s)
		}
	}
	return out
}
