package reminder

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ebibot/internal/eventbus"
	"ebibot/internal/notification"
	"ebibot/internal/storage"
	"ebibot/internal/transport"
	logx "ebibot/pkg/logx"
)

var now = time.Date(2026, 2, 12, 14, 31, 0, 0, time.Local)

type fakeSender struct {
	mu    sync.Mutex
	sent  []transport.Embed
	err   error
	panic bool
}

func (s *fakeSender) SendEmbed(_ context.Context, e transport.Embed) error {
	if s.panic {
		panic("sender blew up")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, e)
	return nil
}

// fakeChannels serves cached channels from cache and fetchable ones from
// fetch; anything else is ErrNoChannel.
type fakeChannels struct {
	cache   map[int64]*fakeSender
	fetch   map[int64]*fakeSender
	fetched []int64
}

func (c *fakeChannels) Channel(id int64) (transport.Sender, bool) {
	s, ok := c.cache[id]
	return s, ok
}

func (c *fakeChannels) FetchChannel(_ context.Context, id int64) (transport.Sender, error) {
	c.fetched = append(c.fetched, id)
	if s, ok := c.fetch[id]; ok {
		return s, nil
	}
	return nil, transport.ErrNoChannel
}

func newRepo(t *testing.T) *notification.Repository {
	t.Helper()
	db, err := storage.Open(context.Background(),
		storage.Config{Path: filepath.Join(t.TempDir(), "reminder.db")}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return notification.NewRepository(db, notification.WithClock(func() time.Time { return now }))
}

func newDelivery(repo Store, ch transport.Channels, defaultChannel int64, bus eventbus.Bus) *Delivery {
	return NewDelivery(repo, ch, DeliveryConfig{
		DefaultChannelID: defaultChannel,
		SendTimeout:      time.Second,
		Now:              func() time.Time { return now },
	}, bus, logx.Nop())
}

func schedule(t *testing.T, repo *notification.Repository, msg string, at time.Time, channelID *int64) int64 {
	t.Helper()
	id, err := repo.Create(context.Background(), notification.NewNotification{
		Message:     msg,
		ScheduledAt: at.Format(notification.TimeLayout),
		ChannelID:   channelID,
	})
	require.NoError(t, err)
	return id
}

func TestTickDeliversDueRow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := newRepo(t)
	def := &fakeSender{}
	ch := &fakeChannels{cache: map[int64]*fakeSender{100: def}}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()

	id := schedule(t, repo, "stand up", now.Add(-time.Minute), nil)
	future := schedule(t, repo, "later", now.Add(time.Hour), nil)

	require.NoError(t, newDelivery(repo, ch, 100, bus).Tick(ctx))

	require.Len(t, def.sent, 1)
	require.Equal(t, "stand up", def.sent[0].Description)
	require.Equal(t, notification.DefaultTitle, def.sent[0].Title)
	require.Equal(t, notification.DefaultColor, def.sent[0].Color)

	got, err := repo.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, notification.StatusSent, got.Status)
	require.NotNil(t, got.SentAt)
	require.Equal(t, now.Format(notification.TimeLayout), *got.SentAt)
	require.Nil(t, got.ErrorMessage)

	pending, err := repo.AllPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, future, pending[0].ID)

	ev := <-events
	require.Equal(t, eventbus.NotificationSent, ev.Type)
	require.Equal(t, id, ev.Data.(eventbus.NotificationData).ID)
}

func TestTickUsesRowChannelAndFetchFallback(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := newRepo(t)
	own := &fakeSender{}
	ch := &fakeChannels{fetch: map[int64]*fakeSender{200: own}}

	rowChannel := int64(200)
	id := schedule(t, repo, "in thread", now.Add(-time.Second), &rowChannel)

	require.NoError(t, newDelivery(repo, ch, 100, nil).Tick(ctx))
	require.Equal(t, []int64{200}, ch.fetched)
	require.Len(t, own.sent, 1)

	got, err := repo.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, notification.StatusSent, got.Status)
}

func TestTickRowStoredTitleAndColor(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := newRepo(t)
	def := &fakeSender{}
	ch := &fakeChannels{cache: map[int64]*fakeSender{100: def}}

	title := "Meds"
	color := int64(0x123456)
	_, err := repo.Create(ctx, notification.NewNotification{
		Message:     "take them",
		ScheduledAt: now.Add(-time.Minute).Format(notification.TimeLayout),
		Title:       &title,
		Color:       &color,
	})
	require.NoError(t, err)

	require.NoError(t, newDelivery(repo, ch, 100, nil).Tick(ctx))
	require.Len(t, def.sent, 1)
	require.Equal(t, "Meds", def.sent[0].Title)
	require.Equal(t, 0x123456, def.sent[0].Color)
}

func TestTickFailuresAreIsolated(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := newRepo(t)

	broken := &fakeSender{err: errors.New("403 missing access")}
	exploding := &fakeSender{panic: true}
	good := &fakeSender{}
	ch := &fakeChannels{cache: map[int64]*fakeSender{1: broken, 2: exploding, 3: good}}

	one, two, three, missing := int64(1), int64(2), int64(3), int64(4)
	idBroken := schedule(t, repo, "a", now.Add(-4*time.Minute), &one)
	idPanic := schedule(t, repo, "b", now.Add(-3*time.Minute), &two)
	idGood := schedule(t, repo, "c", now.Add(-2*time.Minute), &three)
	idMissing := schedule(t, repo, "d", now.Add(-1*time.Minute), &missing)

	require.NoError(t, newDelivery(repo, ch, 0, nil).Tick(ctx))

	check := func(id int64, status notification.Status, reason string) {
		t.Helper()
		got, err := repo.Get(ctx, id)
		require.NoError(t, err)
		require.Equal(t, status, got.Status)
		if reason == "" {
			require.Nil(t, got.ErrorMessage)
			return
		}
		require.NotNil(t, got.ErrorMessage)
		require.Contains(t, *got.ErrorMessage, reason)
		require.Nil(t, got.SentAt)
	}
	check(idBroken, notification.StatusFailed, "403 missing access")
	check(idPanic, notification.StatusFailed, "sender blew up")
	check(idGood, notification.StatusSent, "")
	check(idMissing, notification.StatusFailed, transport.ErrNoChannel.Error())
	require.Len(t, good.sent, 1)
}

func TestTickWithoutAnyChannel(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := newRepo(t)
	id := schedule(t, repo, "nowhere", now.Add(-time.Minute), nil)

	require.NoError(t, newDelivery(repo, &fakeChannels{}, 0, nil).Tick(ctx))

	got, err := repo.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, notification.StatusFailed, got.Status)
	require.Equal(t, ReasonNoChannel, *got.ErrorMessage)
}

func TestParseTimeOfDay(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in      string
		h, m    int
		wantErr error
	}{
		{in: "14:30", h: 14, m: 30},
		{in: " 9:05 ", h: 9, m: 5},
		{in: "00:00", h: 0, m: 0},
		{in: "23:59", h: 23, m: 59},
		{in: "24:00", wantErr: ErrTimeOutOfRange},
		{in: "12:60", wantErr: ErrTimeOutOfRange},
		{in: "1430", wantErr: ErrInvalidTime},
		{in: "14:3", wantErr: ErrInvalidTime},
		{in: "123:00", wantErr: ErrInvalidTime},
		{in: "ab:cd", wantErr: ErrInvalidTime},
		{in: "", wantErr: ErrInvalidTime},
	}
	for _, tc := range cases {
		h, m, err := ParseTimeOfDay(tc.in)
		if tc.wantErr != nil {
			require.ErrorIs(t, err, tc.wantErr, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.h, h, tc.in)
		require.Equal(t, tc.m, m, tc.in)
	}
}

func TestNextOccurrenceRollsOver(t *testing.T) {
	t.Parallel()

	at1431 := time.Date(2026, 2, 12, 14, 31, 0, 0, time.Local)
	require.Equal(t, "2026-02-13T14:30:00",
		NextOccurrence(at1431, 14, 30).Format(notification.TimeLayout))

	at1400 := time.Date(2026, 2, 12, 14, 0, 0, 0, time.Local)
	require.Equal(t, "2026-02-12T14:30:00",
		NextOccurrence(at1400, 14, 30).Format(notification.TimeLayout))

	// exactly now counts as passed
	at1430 := time.Date(2026, 2, 12, 14, 30, 0, 0, time.Local)
	require.Equal(t, "2026-02-13T14:30:00",
		NextOccurrence(at1430, 14, 30).Format(notification.TimeLayout))

	endOfMonth := time.Date(2026, 2, 28, 23, 0, 0, 0, time.Local)
	require.Equal(t, "2026-03-01T08:00:00",
		NextOccurrence(endOfMonth, 8, 0).Format(notification.TimeLayout))
}

func TestRemindCommand(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := newRepo(t)
	cmd := RemindCommand(repo, func() time.Time { return now }, nil, logx.Nop())
	require.Equal(t, "remind", cmd.Name)

	resp := cmd.Handle(ctx, transport.Interaction{
		Command:   "remind",
		ChannelID: 555,
		Options:   map[string]string{"time": "14:30", "message": "stretch"},
	})
	require.False(t, resp.Ephemeral)
	require.NotNil(t, resp.Embed)
	require.Contains(t, resp.Embed.Description+embedFields(resp.Embed), "02/13 14:30")

	pending, err := repo.AllPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "2026-02-13T14:30:00", pending[0].ScheduledAt)
	require.Equal(t, notification.SourceSlashCommand, pending[0].Source)
	require.NotNil(t, pending[0].ChannelID)
	require.Equal(t, int64(555), *pending[0].ChannelID)
}

func TestRemindCommandRejectsWithoutStoring(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := newRepo(t)
	cmd := RemindCommand(repo, func() time.Time { return now }, nil, logx.Nop())

	for _, tm := range []string{"25:00", "noon", "7:5"} {
		resp := cmd.Handle(ctx, transport.Interaction{
			ChannelID: 1,
			Options:   map[string]string{"time": tm, "message": "x"},
		})
		require.True(t, resp.Ephemeral, tm)
		require.Nil(t, resp.Embed, tm)
		require.NotEmpty(t, resp.Content, tm)
	}

	pending, err := repo.AllPending(ctx)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func embedFields(e *transport.Embed) string {
	var s string
	for _, f := range e.Fields {
		s += f.Name + f.Value
	}
	return s
}
