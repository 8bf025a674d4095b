package notification

import (
	"errors"
	"time"
)

// TimeLayout is the only format written to scheduled_at, sent_at and
// created_at. Due rows are selected by comparing these strings, so every
// writer must use it.
const TimeLayout = "2006-01-02T15:04:05"

const (
	DefaultTitle = "⏰ Reminder!"
	DefaultColor = 0x00BFFF
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

const (
	SourceAPI          = "api"
	SourceSlashCommand = "slash_command"
)

var (
	ErrInvalid  = errors.New("invalid notification")
	ErrNotFound = errors.New("notification not found")
)

// Notification is one row of scheduled_notifications.
type Notification struct {
	ID           int64   `db:"id" json:"id"`
	Message      string  `db:"message" json:"message"`
	Title        *string `db:"title" json:"title"`
	Color        int64   `db:"color" json:"color"`
	ScheduledAt  string  `db:"scheduled_at" json:"scheduled_at"`
	Source       string  `db:"source" json:"source"`
	ChannelID    *int64  `db:"channel_id" json:"channel_id"`
	Status       Status  `db:"status" json:"status"`
	SentAt       *string `db:"sent_at" json:"sent_at"`
	ErrorMessage *string `db:"error_message" json:"error_message"`
	CreatedAt    string  `db:"created_at" json:"created_at"`
}

// DisplayTitle returns the stored title or DefaultTitle.
func (n Notification) DisplayTitle() string {
	if n.Title != nil && *n.Title != "" {
		return *n.Title
	}
	return DefaultTitle
}

// NewNotification is the input to Repository.Create.
type NewNotification struct {
	Message     string
	ScheduledAt string // TimeLayout
	Title       *string
	Color       *int64  // nil means DefaultColor
	Source      string  // empty means SourceAPI
	ChannelID   *int64  // nil means the default channel at delivery time
}

// FormatTime renders t in TimeLayout after converting it to local time.
func FormatTime(t time.Time) string { return t.Local().Format(TimeLayout) }
