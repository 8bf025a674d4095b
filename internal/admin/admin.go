// Package admin lists and prunes the threads under a Discord channel and
// keeps project notes paired with their threads.
package admin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"
)

const archivedPageSize = 100

var (
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")
	ErrNoGuild   = errors.New("channel has no guild id")
	ErrNoFilter  = errors.New("one of -all, -older-than or -keep-newest is required")
)

type ChannelInfo struct {
	ID       string
	Name     string
	Type     int
	GuildID  string
	ParentID string
}

type Thread struct {
	ID         string
	Name       string
	ParentID   string
	Archived   bool
	ArchivedAt time.Time
}

// API is the slice of the Discord REST API the admin commands need.
type API interface {
	Channel(ctx context.Context, id string) (ChannelInfo, error)
	ActiveThreads(ctx context.Context, guildID string) ([]Thread, error)
	// ArchivedThreads returns one page of threads archived before before
	// (zero means newest) and whether more pages exist.
	ArchivedThreads(ctx context.Context, channelID string, private bool, before time.Time) ([]Thread, bool, error)
	DeleteChannel(ctx context.Context, id string) error
	// CreateThread opens a public thread without a starter message.
	CreateThread(ctx context.Context, channelID, name string) (Thread, error)
	SendMessage(ctx context.Context, channelID, content string) error
	AddThreadMember(ctx context.Context, threadID, userID string) error
}

type Admin struct {
	api   API
	out   io.Writer
	now   func() time.Time
	pause time.Duration
}

type Option func(*Admin)

func WithClock(now func() time.Time) Option { return func(a *Admin) { a.now = now } }

// WithPause sets the delay between deletions.
func WithPause(d time.Duration) Option { return func(a *Admin) { a.pause = d } }

func New(api API, out io.Writer, opts ...Option) *Admin {
	a := &Admin{api: api, out: out, now: time.Now, pause: 500 * time.Millisecond}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *Admin) ChannelInfo(ctx context.Context, id string) error {
	info, err := a.api.Channel(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Channel:")
	fmt.Fprintf(a.out, "  ID       : %s\n", info.ID)
	fmt.Fprintf(a.out, "  Name     : %s\n", orDefault(info.Name, "(thread)"))
	fmt.Fprintf(a.out, "  Type     : %d\n", info.Type)
	fmt.Fprintf(a.out, "  Guild ID : %s\n", orDefault(info.GuildID, "unknown"))
	fmt.Fprintf(a.out, "  Parent   : %s\n", orDefault(info.ParentID, "none"))
	return nil
}

// Listing is every thread under one channel.
type Listing struct {
	Channel         ChannelInfo
	Active          []Thread
	ArchivedPublic  []Thread
	ArchivedPrivate []Thread
}

func (l Listing) All() []Thread {
	all := make([]Thread, 0, len(l.Active)+len(l.ArchivedPublic)+len(l.ArchivedPrivate))
	all = append(all, l.Active...)
	all = append(all, l.ArchivedPublic...)
	return append(all, l.ArchivedPrivate...)
}

// Collect gathers active threads whose parent is channelID plus both kinds
// of archived threads. Private archives the bot cannot read are skipped.
func (a *Admin) Collect(ctx context.Context, channelID string) (Listing, error) {
	info, err := a.api.Channel(ctx, channelID)
	if err != nil {
		return Listing{}, err
	}
	if info.GuildID == "" {
		return Listing{}, ErrNoGuild
	}
	l := Listing{Channel: info}

	active, err := a.api.ActiveThreads(ctx, info.GuildID)
	if err != nil {
		return Listing{}, err
	}
	for _, t := range active {
		if t.ParentID == channelID {
			l.Active = append(l.Active, t)
		}
	}

	if l.ArchivedPublic, err = a.archived(ctx, channelID, false); err != nil {
		return Listing{}, err
	}
	if l.ArchivedPrivate, err = a.archived(ctx, channelID, true); err != nil {
		return Listing{}, err
	}
	return l, nil
}

func (a *Admin) archived(ctx context.Context, channelID string, private bool) ([]Thread, error) {
	var (
		out    []Thread
		before time.Time
	)
	for {
		page, more, err := a.api.ArchivedThreads(ctx, channelID, private, before)
		if errors.Is(err, ErrForbidden) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if !more || len(page) == 0 {
			return out, nil
		}
		next := page[len(page)-1].ArchivedAt
		if next.IsZero() || next.Equal(before) {
			return out, nil
		}
		before = next
	}
}

func (a *Admin) ListThreads(ctx context.Context, channelID string) error {
	l, err := a.Collect(ctx, channelID)
	if err != nil {
		return err
	}
	all := newestFirst(l.All())

	fmt.Fprintf(a.out, "\n📌 Channel: %s\n", orDefault(l.Channel.Name, channelID))
	fmt.Fprintf(a.out, "   active: %d / archived (public): %d / archived (private): %d\n",
		len(l.Active), len(l.ArchivedPublic), len(l.ArchivedPrivate))
	fmt.Fprintf(a.out, "   total: %d threads\n\n", len(all))

	now := a.now()
	for _, t := range all {
		icon := "💬"
		if t.Archived {
			icon = "🗂"
		}
		fmt.Fprintf(a.out, "  %s [%3dd ago] %s  (id: %s)\n", icon, a.age(t, now), clip(orDefault(t.Name, "(untitled)"), 60), t.ID)
	}
	return nil
}

// Filter selects threads for DeleteThreads. KeepNewest wins over the
// others; otherwise All, then OlderThanDays.
type Filter struct {
	All           bool
	OlderThanDays int // <0 means unset
	KeepNewest    int // <0 means unset
	DryRun        bool
}

type Result struct {
	Deleted int
	Failed  int
}

func (a *Admin) DeleteThreads(ctx context.Context, channelID string, f Filter) (Result, error) {
	if !f.All && f.OlderThanDays < 0 && f.KeepNewest < 0 {
		return Result{}, ErrNoFilter
	}

	fmt.Fprintln(a.out, "📡 Fetching threads...")
	l, err := a.Collect(ctx, channelID)
	if err != nil {
		return Result{}, err
	}
	all := l.All()
	fmt.Fprintf(a.out, "   found %d threads\n", len(all))

	now := a.now()
	targets := a.selectTargets(all, f, now)
	fmt.Fprintf(a.out, "   to delete: %d threads\n", len(targets))
	if f.DryRun {
		fmt.Fprintln(a.out, "   ⚠️  DRY-RUN: nothing will be deleted")
	}
	fmt.Fprintln(a.out)

	var res Result
	for i, t := range targets {
		name := orDefault(t.Name, "(untitled)")
		fmt.Fprintf(a.out, "  [%3dd ago] %s\n", a.age(t, now), clip(name, 50))
		if a.deleteOne(ctx, t.ID, name, f.DryRun) {
			res.Deleted++
		} else {
			res.Failed++
		}
		if !f.DryRun && a.pause > 0 && i < len(targets)-1 {
			select {
			case <-time.After(a.pause):
			case <-ctx.Done():
				return res, ctx.Err()
			}
		}
	}

	prefix := ""
	if f.DryRun {
		prefix = "[DRY-RUN] "
	}
	fmt.Fprintf(a.out, "\n%sdone: %d deleted, %d failed\n", prefix, res.Deleted, res.Failed)
	return res, nil
}

func (a *Admin) selectTargets(all []Thread, f Filter, now time.Time) []Thread {
	if f.KeepNewest >= 0 {
		sorted := newestFirst(all)
		keep := min(f.KeepNewest, len(sorted))
		fmt.Fprintf(a.out, "   keeping the newest %d:\n", keep)
		for _, t := range sorted[:keep] {
			fmt.Fprintf(a.out, "     ✅ %s\n", clip(orDefault(t.Name, "(untitled)"), 60))
		}
		return sorted[keep:]
	}
	if f.All {
		return all
	}
	var out []Thread
	for _, t := range all {
		if a.age(t, now) >= f.OlderThanDays {
			out = append(out, t)
		}
	}
	return out
}

// DeleteThread deletes one thread. A thread that is already gone counts as
// deleted.
func (a *Admin) DeleteThread(ctx context.Context, id string) error {
	if !a.deleteOne(ctx, id, id, false) {
		return fmt.Errorf("delete %s failed", id)
	}
	return nil
}

func (a *Admin) deleteOne(ctx context.Context, id, label string, dryRun bool) bool {
	if dryRun {
		fmt.Fprintf(a.out, "  [DRY-RUN] skipping delete: %s\n", label)
		return true
	}
	err := a.api.DeleteChannel(ctx, id)
	switch {
	case err == nil:
		fmt.Fprintf(a.out, "  ✅ deleted: %s\n", label)
		return true
	case errors.Is(err, ErrNotFound):
		fmt.Fprintf(a.out, "  ⚠️  already gone: %s\n", label)
		return true
	case errors.Is(err, ErrForbidden):
		fmt.Fprintf(a.out, "  ❌ no permission: %s\n", label)
		return false
	default:
		fmt.Fprintf(a.out, "  ❌ error: %s: %v\n", label, err)
		return false
	}
}

func (a *Admin) age(t Thread, now time.Time) int {
	created, err := CreatedAt(t.ID)
	if err != nil {
		return 0
	}
	return ageDays(created, now)
}

// newestFirst sorts by snowflake id, which orders by creation time.
func newestFirst(ts []Thread) []Thread {
	out := append([]Thread(nil), ts...)
	sort.SliceStable(out, func(i, j int) bool {
		a, _ := strconv.ParseUint(out[i].ID, 10, 64)
		b, _ := strconv.ParseUint(out[j].ID, 10, 64)
		return a > b
	})
	return out
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// clip cuts s to n runes.
func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
