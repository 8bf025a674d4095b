package config

import (
	"strings"
	"time"
)

const (
	DefaultAPIAddr        = "127.0.0.1:8099"
	DefaultDBPath         = "./data/notifications.db"
	DefaultUpgradeTrigger = "🔄 ebibot-upgrade"
	DefaultUpgradeUnit    = "discord-bot.service"
	DefaultWatchdogCmd    = "todoist.sh"
)

var defaultWatchdogArgs = []string{"tasks", "--filter", "(overdue)"}

func (c APIConfig) ListenAddr() string {
	if s := strings.TrimSpace(c.Addr); s != "" {
		return s
	}
	return DefaultAPIAddr
}

func (c StorageConfig) DBPath() string {
	if s := strings.TrimSpace(c.Path); s != "" {
		return s
	}
	return DefaultDBPath
}

func (c StorageConfig) Busy() time.Duration { return mustDuration(c.BusyTimeout, 5*time.Second) }

func (c DiscordConfig) SendRate() int {
	if c.RatePerSec > 0 {
		return c.RatePerSec
	}
	return 5
}

func (c ReminderConfig) Every() time.Duration       { return mustDuration(c.Interval, 30*time.Second) }
func (c ReminderConfig) SendDeadline() time.Duration { return mustDuration(c.SendTimeout, 15*time.Second) }

func (c WatchdogConfig) Every() time.Duration { return mustDuration(c.Interval, 30*time.Minute) }
func (c WatchdogConfig) FetchDeadline() time.Duration {
	return mustDuration(c.FetchTimeout, 30*time.Second)
}

// ActiveHours returns the local-hour window [from, until).
func (c WatchdogConfig) ActiveHours() (from, until int) {
	from, until = 8, 23
	if c.ActiveFrom != nil {
		from = *c.ActiveFrom
	}
	if c.ActiveUntil != nil {
		until = *c.ActiveUntil
	}
	return from, until
}

func (c WatchdogConfig) Argv() (string, []string) {
	cmd := strings.TrimSpace(c.Command)
	if cmd == "" {
		cmd = DefaultWatchdogCmd
	}
	args := c.Args
	if len(args) == 0 {
		args = defaultWatchdogArgs
	}
	return cmd, append([]string(nil), args...)
}

func (c UpgradeConfig) TriggerText() string {
	if c.Trigger != "" {
		return c.Trigger
	}
	return DefaultUpgradeTrigger
}

func (c UpgradeConfig) UnitName() string {
	if s := strings.TrimSpace(c.Unit); s != "" {
		return s
	}
	return DefaultUpgradeUnit
}

func (c UpgradeConfig) StepDeadline() time.Duration {
	return mustDuration(c.StepTimeout, 60*time.Second)
}
