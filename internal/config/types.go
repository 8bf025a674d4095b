package config

type Config struct {
	Discord   DiscordConfig   `json:"discord"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	API       APIConfig       `json:"api"`
	Reminder  ReminderConfig  `json:"reminder"`
	Watchdog  WatchdogConfig  `json:"watchdog"`
	Upgrade   UpgradeConfig   `json:"upgrade"`
	Scheduler SchedulerConfig `json:"scheduler"`
}

type DiscordConfig struct {
	Token string `json:"token"`
	// DefaultChannelID receives the startup embed, notify API posts, watchdog
	// alerts and reminders without their own channel. 0 means unset.
	DefaultChannelID int64 `json:"default_channel_id,omitempty"`
	// GuildID scopes slash command registration. Empty registers globally.
	GuildID string `json:"guild_id,omitempty"`
	// RatePerSec bounds outbound sends. Default: 5.
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

type LoggingConfig struct {
	Level   string         `json:"level"`
	Console bool           `json:"console"`
	File    LoggingFile    `json:"file"`
	Discord LoggingDiscord `json:"discord"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingDiscord struct {
	Enabled    bool   `json:"enabled"`
	ChannelID  string `json:"channel_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig points at the SQLite database.
//
// Example:
//
//	"storage": { "path": "./data/notifications.db", "busy_timeout": "5s" }
type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}

// APIConfig controls the local REST API.
//
// Security note: the API has no authentication. Keep it on loopback.
type APIConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: "127.0.0.1:8099"
	// Pprof mounts /debug/pprof/* on the API listener.
	Pprof bool `json:"pprof,omitempty"`
}

type ReminderConfig struct {
	// Interval between delivery passes. Default: "30s".
	Interval string `json:"interval,omitempty"`
	// SendTimeout bounds one embed send. Default: "15s".
	SendTimeout string `json:"send_timeout,omitempty"`
}

// WatchdogConfig controls the overdue-task watchdog.
//
// Defaults (when fields are omitted/zero):
//   - interval: "30m"
//   - command: "todoist.sh"
//   - args: ["tasks", "--filter", "(overdue)"]
//   - fetch_timeout: "30s"
//   - active_from: 8, active_until: 23
type WatchdogConfig struct {
	Enabled      bool     `json:"enabled"`
	Interval     string   `json:"interval,omitempty"`
	Command      string   `json:"command,omitempty"`
	Args         []string `json:"args,omitempty"`
	FetchTimeout string   `json:"fetch_timeout,omitempty"`
	ActiveFrom   *int     `json:"active_from,omitempty"`
	ActiveUntil  *int     `json:"active_until,omitempty"`
}

// UpgradeConfig controls the webhook-triggered self upgrade.
type UpgradeConfig struct {
	Enabled   bool   `json:"enabled"`
	ChannelID string `json:"channel_id"`
	// Trigger must match the whole message content. Default: "🔄 ebibot-upgrade".
	Trigger string `json:"trigger,omitempty"`
	// Dir is the working directory of every step.
	Dir string `json:"dir,omitempty"`
	// Unit is restarted through systemd after all steps succeed.
	// Default: "discord-bot.service".
	Unit        string        `json:"unit,omitempty"`
	Steps       []UpgradeStep `json:"commands,omitempty"`
	StepTimeout string        `json:"step_timeout,omitempty"` // default: "60s"
}

type UpgradeStep struct {
	Name string   `json:"name"`
	Argv []string `json:"argv"`
}

// SchedulerConfig controls the periodic loop runner.
type SchedulerConfig struct {
	// Trigger timezone. Empty means local time.
	Timezone string `json:"timezone,omitempty"`
}
