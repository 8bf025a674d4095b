package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
)

// Environment variables that override file values. Secrets should come from
// here rather than the config file.
const (
	EnvBotToken  = "DISCORD_BOT_TOKEN"
	EnvChannelID = "DISCORD_CHANNEL_ID"
	EnvAPIHost   = "API_HOST"
	EnvAPIPort   = "API_PORT"
	EnvDBPath    = "EBIBOT_DB_PATH"
)

// ApplyEnv overlays environment overrides onto cfg using os.Getenv.
func ApplyEnv(cfg *Config) error { return applyEnv(cfg, os.Getenv) }

func applyEnv(cfg *Config, getenv func(string) string) error {
	if cfg == nil {
		return nil
	}
	if v := strings.TrimSpace(getenv(EnvBotToken)); v != "" {
		cfg.Discord.Token = v
	}
	if v := strings.TrimSpace(getenv(EnvChannelID)); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id < 0 {
			return fmt.Errorf("%s: invalid channel id %q", EnvChannelID, v)
		}
		cfg.Discord.DefaultChannelID = id
	}

	host := strings.TrimSpace(getenv(EnvAPIHost))
	port := strings.TrimSpace(getenv(EnvAPIPort))
	if host != "" || port != "" {
		curHost, curPort, err := net.SplitHostPort(cfg.API.ListenAddr())
		if err != nil {
			curHost, curPort, _ = net.SplitHostPort(DefaultAPIAddr)
		}
		if host == "" {
			host = curHost
		}
		if port == "" {
			port = curPort
		}
		if _, err := strconv.ParseUint(port, 10, 16); err != nil {
			return fmt.Errorf("%s: invalid port %q", EnvAPIPort, port)
		}
		cfg.API.Addr = net.JoinHostPort(host, port)
	}

	if v := strings.TrimSpace(getenv(EnvDBPath)); v != "" {
		cfg.Storage.Path = v
	}
	return nil
}
