//go:build linux

package systemd

import (
	"context"
	"fmt"
	"sync"

	"github.com/coreos/go-systemd/v22/dbus"
)

// Manager talks to the system instance of systemd over D-Bus.
type Manager struct {
	mu   sync.RWMutex
	conn *dbus.Conn
}

func Connect(ctx context.Context) (*Manager, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	conn, err := dbus.NewSystemConnectionContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to systemd: %w", err)
	}
	return &Manager{conn: conn}, nil
}

func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	return nil
}

// Restart queues a restart job and returns without waiting for it; when the
// unit is this process the job outlives the caller.
func (m *Manager) Restart(ctx context.Context, unit string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.conn == nil {
		return fmt.Errorf("systemd connection is closed")
	}
	unit = UnitName(unit)
	if _, err := m.conn.RestartUnitContext(ctx, unit, "replace", nil); err != nil {
		return fmt.Errorf("failed to restart %s: %w", unit, err)
	}
	return nil
}

// ActiveState reports e.g. "active", "activating" or "failed".
func (m *Manager) ActiveState(ctx context.Context, unit string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.conn == nil {
		return "", fmt.Errorf("systemd connection is closed")
	}
	unit = UnitName(unit)
	p, err := m.conn.GetUnitPropertyContext(ctx, unit, "ActiveState")
	if err != nil {
		return "", fmt.Errorf("failed to query %s: %w", unit, err)
	}
	s, _ := p.Value.Value().(string)
	return s, nil
}
