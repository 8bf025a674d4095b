package storage

import (
	"context"
	"path/filepath"
	"testing"

	logx "ebibot/pkg/logx"

	"github.com/stretchr/testify/require"
)

func TestOpenCreatesSchemaAndIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "bot.db")

	db, err := Open(ctx, Config{Path: path}, logx.Nop())
	require.NoError(t, err)

	var n int
	require.NoError(t, db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name='idx_notif_status_scheduled'`))
	require.Equal(t, 1, n)

	_, err = db.ExecContext(ctx, `INSERT INTO scheduled_notifications(message, scheduled_at) VALUES('m', '2030-01-01T00:00:00')`)
	require.NoError(t, err)

	var row struct {
		Color  int64  `db:"color"`
		Source string `db:"source"`
		Status string `db:"status"`
	}
	require.NoError(t, db.GetContext(ctx, &row, `SELECT color, source, status FROM scheduled_notifications`))
	require.Equal(t, int64(49151), row.Color)
	require.Equal(t, "api", row.Source)
	require.Equal(t, "pending", row.Status)
	require.NoError(t, db.Close())

	db, err = Open(ctx, Config{Path: path}, logx.Nop())
	require.NoError(t, err)
	require.NoError(t, db.GetContext(ctx, &n, `SELECT COUNT(*) FROM scheduled_notifications`))
	require.Equal(t, 1, n)
	require.NoError(t, db.Close())
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), Config{}, logx.Nop())
	require.Error(t, err)
}
