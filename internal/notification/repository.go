package notification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

const selectColumns = `SELECT id, message, title, COALESCE(color, 0) AS color, scheduled_at, source,
	channel_id, status, sent_at, error_message, created_at
	FROM scheduled_notifications`

// Repository stores scheduled notifications in SQLite.
type Repository struct {
	db  *sqlx.DB
	now func() time.Time
}

type Option func(*Repository)

// WithClock overrides the clock used for created_at and sent_at.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) {
		if now != nil {
			r.now = now
		}
	}
}

func NewRepository(db *sqlx.DB, opts ...Option) *Repository {
	r := &Repository{db: db, now: time.Now}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Create inserts a pending notification and returns its id.
func (r *Repository) Create(ctx context.Context, n NewNotification) (int64, error) {
	if strings.TrimSpace(n.Message) == "" {
		return 0, fmt.Errorf("%w: message is required", ErrInvalid)
	}
	if strings.TrimSpace(n.ScheduledAt) == "" {
		return 0, fmt.Errorf("%w: scheduled_at is required", ErrInvalid)
	}
	if _, err := time.ParseInLocation(TimeLayout, n.ScheduledAt, time.Local); err != nil {
		return 0, fmt.Errorf("%w: scheduled_at %q is not in %s", ErrInvalid, n.ScheduledAt, TimeLayout)
	}

	color := int64(DefaultColor)
	if n.Color != nil {
		color = *n.Color
	}
	source := n.Source
	if source == "" {
		source = SourceAPI
	}

	res, err := r.db.NamedExecContext(ctx,
		`INSERT INTO scheduled_notifications
			(message, title, color, scheduled_at, source, channel_id, status, created_at)
		 VALUES (:message, :title, :color, :scheduled_at, :source, :channel_id, 'pending', :created_at)`,
		map[string]any{
			"message":      n.Message,
			"title":        deref(n.Title),
			"color":        color,
			"scheduled_at": n.ScheduledAt,
			"source":       source,
			"channel_id":   deref(n.ChannelID),
			"created_at":   FormatTime(r.now()),
		})
	if err != nil {
		return 0, fmt.Errorf("insert notification: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert notification: %w", err)
	}
	return id, nil
}

// Pending returns pending rows ordered by scheduled_at then id. A non-empty
// before keeps only rows with scheduled_at <= before.
func (r *Repository) Pending(ctx context.Context, before string) ([]Notification, error) {
	var (
		rows []Notification
		err  error
	)
	if before != "" {
		err = r.db.SelectContext(ctx, &rows,
			selectColumns+` WHERE status = 'pending' AND scheduled_at <= ? ORDER BY scheduled_at, id`, before)
	} else {
		err = r.db.SelectContext(ctx, &rows,
			selectColumns+` WHERE status = 'pending' ORDER BY scheduled_at, id`)
	}
	if err != nil {
		return nil, fmt.Errorf("select pending notifications: %w", err)
	}
	return rows, nil
}

// AllPending returns every pending row.
func (r *Repository) AllPending(ctx context.Context) ([]Notification, error) {
	return r.Pending(ctx, "")
}

func (r *Repository) Get(ctx context.Context, id int64) (*Notification, error) {
	var n Notification
	err := r.db.GetContext(ctx, &n, selectColumns+` WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get notification %d: %w", id, err)
	}
	return &n, nil
}

// MarkSent moves a pending row to sent. It reports whether a row changed.
func (r *Repository) MarkSent(ctx context.Context, id int64) (bool, error) {
	return r.update(ctx, "mark sent",
		`UPDATE scheduled_notifications SET status = 'sent', sent_at = ?
		 WHERE id = ? AND status = 'pending'`,
		FormatTime(r.now()), id)
}

// MarkFailed moves a pending row to failed with the given reason.
func (r *Repository) MarkFailed(ctx context.Context, id int64, reason string) (bool, error) {
	return r.update(ctx, "mark failed",
		`UPDATE scheduled_notifications SET status = 'failed', error_message = ?
		 WHERE id = ? AND status = 'pending'`,
		reason, id)
}

// Cancel moves a pending row to cancelled. False means the row is missing or
// no longer pending.
func (r *Repository) Cancel(ctx context.Context, id int64) (bool, error) {
	return r.update(ctx, "cancel",
		`UPDATE scheduled_notifications SET status = 'cancelled'
		 WHERE id = ? AND status = 'pending'`,
		id)
}

func (r *Repository) update(ctx context.Context, op, query string, args ...any) (bool, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return n > 0, nil
}

// deref turns a nil pointer into an untyped nil for the driver.
func deref[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
