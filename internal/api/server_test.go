package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ebibot/internal/notification"
	"ebibot/internal/storage"
	"ebibot/internal/transport"
	logx "ebibot/pkg/logx"
)

type stubSender struct {
	sent []transport.Embed
	err  error
}

func (s *stubSender) SendEmbed(_ context.Context, e transport.Embed) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, e)
	return nil
}

type stubChannels struct{ s *stubSender }

func (c stubChannels) Channel(int64) (transport.Sender, bool) { return c.s, c.s != nil }

func (c stubChannels) FetchChannel(context.Context, int64) (transport.Sender, error) {
	return nil, transport.ErrNoChannel
}

func newTestServer(t *testing.T, defaultChannel int64, sender *stubSender) (*Server, *notification.Repository) {
	t.Helper()
	db, err := storage.Open(context.Background(),
		storage.Config{Path: filepath.Join(t.TempDir(), "api.db")}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	repo := notification.NewRepository(db)

	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# metrics\n"))
	})
	s := New(Config{DefaultChannelID: defaultChannel}, repo, stubChannels{s: sender}, WithMetrics(metrics))
	return s, repo
}

func do(t *testing.T, s *Server, method, path, body string) (int, map[string]any) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	out := map[string]any{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec.Code, out
}

func TestHealth(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, 0, nil)

	code, body := do(t, s, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "ok", body["status"])
	_, err := time.Parse(time.RFC3339, body["timestamp"].(string))
	require.NoError(t, err)
}

func TestScheduleListCancel(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, 1, &stubSender{})

	future := time.Now().Add(time.Hour).Format("2006-01-02T15:04:05.000000")
	code, body := do(t, s, http.MethodPost, "/api/schedule",
		`{"message":"m","scheduled_at":"`+future+`"}`)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "scheduled", body["status"])
	id := int64(body["id"].(float64))
	require.Positive(t, id)

	code, body = do(t, s, http.MethodGet, "/api/scheduled", "")
	require.Equal(t, http.StatusOK, code)
	list := body["notifications"].([]any)
	require.Len(t, list, 1)
	row := list[0].(map[string]any)
	require.Equal(t, float64(id), row["id"])
	require.Equal(t, "pending", row["status"])
	require.Equal(t, "api", row["source"])

	path := "/api/scheduled/" + strconv.FormatInt(id, 10)
	code, body = do(t, s, http.MethodDelete, path, "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "cancelled", body["status"])

	code, body = do(t, s, http.MethodDelete, path, "")
	require.Equal(t, http.StatusNotFound, code)
	require.NotEmpty(t, body["error"])

	code, body = do(t, s, http.MethodGet, "/api/scheduled", "")
	require.Equal(t, http.StatusOK, code)
	require.Empty(t, body["notifications"])
}

func TestScheduleStoresTitleColorAndConvertsOffset(t *testing.T) {
	t.Parallel()
	s, repo := newTestServer(t, 1, nil)

	code, body := do(t, s, http.MethodPost, "/api/schedule",
		`{"message":"m","scheduled_at":"2030-01-02T03:04:05Z","title":"T","color":255}`)
	require.Equal(t, http.StatusOK, code)

	got, err := repo.Get(context.Background(), int64(body["id"].(float64)))
	require.NoError(t, err)
	require.Equal(t, "T", *got.Title)
	require.Equal(t, int64(255), got.Color)
	want := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC).Local().Format(notification.TimeLayout)
	require.Equal(t, want, got.ScheduledAt)
}

func TestScheduleRejects(t *testing.T) {
	t.Parallel()
	s, repo := newTestServer(t, 1, nil)

	for _, body := range []string{
		`{"message":"m"}`,
		`{"scheduled_at":"2030-01-01T00:00:00"}`,
		`{"message":"m","scheduled_at":"tomorrow"}`,
		`{"message":"m","scheduled_at":`,
		`{"message":5,"scheduled_at":"2030-01-01T00:00:00"}`,
	} {
		code, out := do(t, s, http.MethodPost, "/api/schedule", body)
		require.Equal(t, http.StatusBadRequest, code, body)
		require.NotEmpty(t, out["error"], body)
	}

	rows, err := repo.AllPending(context.Background())
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestCancelBadID(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, 1, nil)

	code, body := do(t, s, http.MethodDelete, "/api/scheduled/abc", "")
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, errBadID.Error(), body["error"])

	code, _ = do(t, s, http.MethodDelete, "/api/scheduled/999", "")
	require.Equal(t, http.StatusNotFound, code)
}

func TestNotify(t *testing.T) {
	t.Parallel()

	sender := &stubSender{}
	s, _ := newTestServer(t, 42, sender)
	code, body := do(t, s, http.MethodPost, "/api/notify", `{"message":"hi"}`)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "sent", body["status"])
	require.Len(t, sender.sent, 1)
	require.Equal(t, "hi", sender.sent[0].Description)
	require.Equal(t, "📢 Notification from Claude Code", sender.sent[0].Title)
	require.Equal(t, 0x7289DA, sender.sent[0].Color)

	code, _ = do(t, s, http.MethodPost, "/api/notify", `{"message":"hi","title":"Build","color":65280}`)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "Build", sender.sent[1].Title)
	require.Equal(t, 65280, sender.sent[1].Color)
}

func TestNotifyErrors(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, 0, nil)
	code, _ := do(t, s, http.MethodPost, "/api/notify", `{}`)
	require.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, s, http.MethodPost, "/api/notify", `not json`)
	require.Equal(t, http.StatusBadRequest, code)

	code, body := do(t, s, http.MethodPost, "/api/notify", `{"message":"hi"}`)
	require.Equal(t, http.StatusInternalServerError, code)
	require.Equal(t, errNoDefaultChannel.Error(), body["error"])

	broken, _ := newTestServer(t, 7, &stubSender{err: errors.New("discord down")})
	code, body = do(t, broken, http.MethodPost, "/api/notify", `{"message":"hi"}`)
	require.Equal(t, http.StatusInternalServerError, code)
	require.Equal(t, "discord down", body["error"])

	unresolvable, _ := newTestServer(t, 7, nil)
	code, _ = do(t, unresolvable, http.MethodPost, "/api/notify", `{"message":"hi"}`)
	require.Equal(t, http.StatusInternalServerError, code)
}

func TestMetricsMountedAndUnknownRoute(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, 0, nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "# metrics")

	code, body := do(t, s, http.MethodGet, "/api/nope", "")
	require.Equal(t, http.StatusNotFound, code)
	require.NotEmpty(t, body["error"])

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPprofWhenEnabled(t *testing.T) {
	t.Parallel()
	s := New(Config{Pprof: true}, nil, stubChannels{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()
	require.True(t, isLoopbackAddr("127.0.0.1:8099"))
	require.True(t, isLoopbackAddr("localhost:8099"))
	require.True(t, isLoopbackAddr("[::1]:8099"))
	require.False(t, isLoopbackAddr(":8099"))
	require.False(t, isLoopbackAddr("0.0.0.0:8099"))
}

func TestRunServesAndStops(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, 0, nil)
	s.cfg.Addr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}
