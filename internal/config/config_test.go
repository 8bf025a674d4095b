package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDecodeYAMLAndJSON(t *testing.T) {
	t.Parallel()

	yml := []byte(`
discord:
  default_channel_id: 12345
logging:
  level: debug
watchdog:
  enabled: true
  active_from: 9
  active_until: 21
upgrade:
  enabled: true
  channel_id: "999"
  commands:
    - name: pull
      argv: [git, pull]
`)
	cfg, err := Decode("bot.yaml", yml)
	require.NoError(t, err)
	require.Equal(t, int64(12345), cfg.Discord.DefaultChannelID)
	require.Equal(t, "debug", cfg.Logging.Level)
	from, until := cfg.Watchdog.ActiveHours()
	require.Equal(t, 9, from)
	require.Equal(t, 21, until)
	require.Equal(t, []string{"git", "pull"}, cfg.Upgrade.Steps[0].Argv)
	require.NoError(t, Validate(cfg))

	cfg, err = Decode("bot.json", []byte(`{"api":{"enabled":true,"addr":"127.0.0.1:9000"}}`))
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9000", cfg.API.ListenAddr())
}

func TestDecodeRejectsUnknownKeysAndTrailingData(t *testing.T) {
	t.Parallel()

	_, err := Decode("bot.json", []byte(`{"discord":{"tokn":"x"}}`))
	require.Error(t, err)

	_, err = Decode("bot.yaml", []byte("telegram:\n  token: x\n"))
	require.Error(t, err)

	_, err = Decode("bot.json", []byte(`{} {}`))
	require.Error(t, err)
}

func TestDefaults(t *testing.T) {
	t.Parallel()

	var cfg Config
	require.Equal(t, DefaultAPIAddr, cfg.API.ListenAddr())
	require.Equal(t, DefaultDBPath, cfg.Storage.DBPath())
	require.Equal(t, 30*time.Second, cfg.Reminder.Every())
	require.Equal(t, 15*time.Second, cfg.Reminder.SendDeadline())
	require.Equal(t, 30*time.Minute, cfg.Watchdog.Every())
	require.Equal(t, 30*time.Second, cfg.Watchdog.FetchDeadline())
	from, until := cfg.Watchdog.ActiveHours()
	require.Equal(t, 8, from)
	require.Equal(t, 23, until)
	cmd, args := cfg.Watchdog.Argv()
	require.Equal(t, "todoist.sh", cmd)
	require.Equal(t, []string{"tasks", "--filter", "(overdue)"}, args)
	require.Equal(t, "🔄 ebibot-upgrade", cfg.Upgrade.TriggerText())
	require.Equal(t, "discord-bot.service", cfg.Upgrade.UnitName())
	require.Equal(t, 60*time.Second, cfg.Upgrade.StepDeadline())
	require.NoError(t, Validate(&cfg))
}

func TestValidate(t *testing.T) {
	t.Parallel()

	hour := func(h int) *int { return &h }

	tests := []struct {
		name string
		mut  func(c *Config)
	}{
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }},
		{"bad duration", func(c *Config) { c.Reminder.Interval = "soon" }},
		{"negative duration", func(c *Config) { c.Watchdog.FetchTimeout = "-1s" }},
		{"inverted window", func(c *Config) { c.Watchdog.ActiveFrom, c.Watchdog.ActiveUntil = hour(20), hour(8) }},
		{"hour out of range", func(c *Config) { c.Watchdog.ActiveUntil = hour(25) }},
		{"bad api addr", func(c *Config) { c.API.Enabled, c.API.Addr = true, "nope" }},
		{"upgrade without channel", func(c *Config) { c.Upgrade.Enabled = true }},
		{"empty upgrade argv", func(c *Config) {
			c.Upgrade.Enabled, c.Upgrade.ChannelID = true, "1"
			c.Upgrade.Steps = []UpgradeStep{{Name: "x"}}
		}},
		{"bad timezone", func(c *Config) { c.Scheduler.Timezone = "Mars/Olympus" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var cfg Config
			tt.mut(&cfg)
			require.Error(t, Validate(&cfg))
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		EnvBotToken:  "secret",
		EnvChannelID: "4242",
		EnvAPIPort:   "9100",
		EnvDBPath:    "/tmp/x.db",
	}
	cfg := &Config{}
	cfg.Discord.Token = "file-token"
	require.NoError(t, applyEnv(cfg, func(k string) string { return env[k] }))
	require.Equal(t, "secret", cfg.Discord.Token)
	require.Equal(t, int64(4242), cfg.Discord.DefaultChannelID)
	require.Equal(t, "127.0.0.1:9100", cfg.API.Addr)
	require.Equal(t, "/tmp/x.db", cfg.Storage.Path)

	env = map[string]string{EnvAPIHost: "0.0.0.0"}
	cfg = &Config{API: APIConfig{Addr: "127.0.0.1:7000"}}
	require.NoError(t, applyEnv(cfg, func(k string) string { return env[k] }))
	require.Equal(t, "0.0.0.0:7000", cfg.API.Addr)

	env = map[string]string{EnvChannelID: "abc"}
	require.Error(t, applyEnv(&Config{}, func(k string) string { return env[k] }))

	env = map[string]string{EnvAPIPort: "http"}
	require.Error(t, applyEnv(&Config{}, func(k string) string { return env[k] }))
}

func TestManagerLoadAndPublish(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"logging":{"level":"info"}}`), 0o600))

	m := NewConfigManager(path)
	m.getenv = func(string) string { return "" }
	cfg, err := m.Load()
	require.NoError(t, err)
	require.Same(t, cfg, m.Get())

	ch := m.Subscribe(1)
	next := &Config{Logging: LoggingConfig{Level: "debug"}}
	m.publish(next)
	m.publish(next)
	require.Same(t, next, <-ch)

	m.Unsubscribe(ch)
	_, ok := <-ch
	require.False(t, ok)
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()

	oldCfg := &Config{Logging: LoggingConfig{Level: "info"}}
	newCfg := &Config{Logging: LoggingConfig{Level: "debug"}, API: APIConfig{Enabled: true}}
	newCfg.Discord.Token = "rotated"

	changed, attrs := SummarizeConfigChange(oldCfg, newCfg)
	require.ElementsMatch(t, []string{"discord", "logging", "api"}, changed)
	require.NotEmpty(t, attrs)
	require.ElementsMatch(t, []string{"discord", "api"}, RequiresRestart(changed))
}
