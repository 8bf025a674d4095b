package systemd

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUnitName(t *testing.T) {
	t.Parallel()
	require.Equal(t, "discord-bot.service", UnitName("discord-bot"))
	require.Equal(t, "discord-bot.service", UnitName(" discord-bot.service "))
	require.Equal(t, "backup.timer", UnitName("backup.timer"))
	require.Equal(t, "my.app.service", UnitName("my.app"))
}

func TestNotifyWithoutSocket(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	sent, err := Ready()
	require.NoError(t, err)
	require.False(t, sent)
}
