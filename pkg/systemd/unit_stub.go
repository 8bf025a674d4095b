//go:build !linux

package systemd

import (
	"context"
	"errors"
)

var ErrUnsupported = errors.New("systemd: unsupported OS (linux only)")

type Manager struct{}

func Connect(context.Context) (*Manager, error) { return nil, ErrUnsupported }

func (m *Manager) Close() error { return nil }

func (m *Manager) Restart(context.Context, string) error { return ErrUnsupported }

func (m *Manager) ActiveState(context.Context, string) (string, error) { return "", ErrUnsupported }
