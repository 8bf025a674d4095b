package storage

import "time"

// Config configures the SQLite database.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means 5s
}
