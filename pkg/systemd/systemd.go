// Package systemd wraps the pieces of systemd the bot touches: readiness
// notifications and restarting its own unit.
package systemd

import (
	"context"
	"strings"

	"github.com/coreos/go-systemd/v22/daemon"
)

// UnitName appends ".service" when unit has no type suffix.
func UnitName(unit string) string {
	unit = strings.TrimSpace(unit)
	if i := strings.LastIndexByte(unit, '.'); i > 0 {
		switch unit[i+1:] {
		case "service", "socket", "timer", "target", "path", "mount", "scope", "slice":
			return unit
		}
	}
	return unit + ".service"
}

// Notify sends state to the service manager. sent is false when the process
// was not started with NOTIFY_SOCKET.
func Notify(state string) (sent bool, err error) {
	return daemon.SdNotify(false, state)
}

func Ready() (bool, error)    { return Notify(daemon.SdNotifyReady) }
func Stopping() (bool, error) { return Notify(daemon.SdNotifyStopping) }

// Status publishes a free-form status line (shown by systemctl status).
func Status(s string) (bool, error) { return Notify("STATUS=" + s) }

// RestartUnit connects, restarts unit and disconnects.
func RestartUnit(ctx context.Context, unit string) error {
	m, err := Connect(ctx)
	if err != nil {
		return err
	}
	defer m.Close()
	return m.Restart(ctx, unit)
}
