package upgrade

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ebibot/internal/eventbus"
	"ebibot/internal/transport"
	logx "ebibot/pkg/logx"
)

type fakeMessenger struct {
	mu        sync.Mutex
	threads   []string
	texts     []string
	replies   []string
	reactions []string
}

func (f *fakeMessenger) SendText(_ context.Context, channelID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, channelID+"|"+text)
	return nil
}

func (f *fakeMessenger) Reply(_ context.Context, _ transport.Message, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, text)
	return nil
}

func (f *fakeMessenger) StartThread(_ context.Context, m transport.Message, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.threads = append(f.threads, name)
	return "thread-" + m.ID, nil
}

func (f *fakeMessenger) React(_ context.Context, _ transport.Message, emoji string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reactions = append(f.reactions, emoji)
	return nil
}

type scriptedRunner struct {
	mu    sync.Mutex
	calls [][]string
	out   map[string]string
	errs  map[string]error
	block chan struct{}
}

func (r *scriptedRunner) Run(ctx context.Context, _ string, argv []string) (string, error) {
	r.mu.Lock()
	r.calls = append(r.calls, argv)
	r.mu.Unlock()
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	key := strings.Join(argv, " ")
	return r.out[key], r.errs[key]
}

type restartRecorder struct {
	mu    sync.Mutex
	units []string
	err   error
}

func (r *restartRecorder) Restart(_ context.Context, unit string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.units = append(r.units, unit)
	return r.err
}

var steps = []Step{
	{Name: "pull", Argv: []string{"git", "pull"}},
	{Name: "build", Argv: []string{"go", "build"}},
}

func newUpgrader(msg transport.Messenger, run Runner, rs Restarter, bus eventbus.Bus) *Upgrader {
	return New(Config{
		ChannelID:    "42",
		Trigger:      "🔄 ebibot-upgrade",
		Unit:         "discord-bot.service",
		Steps:        steps,
		StepTimeout:  time.Second,
		RestartDelay: -1,
	}, msg, run, rs, bus, logx.Nop())
}

func trigger() transport.Message {
	return transport.Message{ID: "m1", ChannelID: "42", Content: " 🔄 ebibot-upgrade\n", WebhookID: "w1"}
}

func TestMatchesOnlyWebhookTriggerInChannel(t *testing.T) {
	t.Parallel()
	u := newUpgrader(&fakeMessenger{}, &scriptedRunner{}, &restartRecorder{}, nil)

	require.True(t, u.Matches(trigger()))

	human := trigger()
	human.WebhookID = ""
	require.False(t, u.Matches(human))

	elsewhere := trigger()
	elsewhere.ChannelID = "43"
	require.False(t, u.Matches(elsewhere))

	chatter := trigger()
	chatter.Content = "🔄 ebibot-upgrade please"
	require.False(t, u.Matches(chatter))
}

func TestIgnoredMessagesDoNothing(t *testing.T) {
	t.Parallel()
	msg := &fakeMessenger{}
	run := &scriptedRunner{}
	rs := &restartRecorder{}
	u := newUpgrader(msg, run, rs, nil)

	human := trigger()
	human.WebhookID = ""
	u.HandleMessage(context.Background(), human)

	require.Empty(t, msg.threads)
	require.Empty(t, run.calls)
	require.Empty(t, rs.units)
}

func TestSuccessfulUpgradeRestarts(t *testing.T) {
	t.Parallel()
	msg := &fakeMessenger{}
	run := &scriptedRunner{out: map[string]string{"git pull": "Already up to date.\n"}}
	rs := &restartRecorder{}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(2)
	defer unsub()
	u := newUpgrader(msg, run, rs, bus)

	u.HandleMessage(context.Background(), trigger())

	require.Equal(t, []string{ThreadName}, msg.threads)
	require.Equal(t, [][]string{{"git", "pull"}, {"go", "build"}}, run.calls)
	require.Equal(t, []string{"discord-bot.service"}, rs.units)
	require.Equal(t, []string{reactOK}, msg.reactions)
	require.Equal(t, []string{
		"thread-m1|" + msgStarting,
		"thread-m1|⚙️ `git pull`",
		"thread-m1|```\nAlready up to date.\n```",
		"thread-m1|⚙️ `go build`",
		"thread-m1|" + msgRestart,
	}, msg.texts)

	ev := <-events
	require.True(t, ev.Data.(eventbus.UpgradeData).OK)
	require.False(t, u.Running())
}

func TestFailedStepStopsAndReacts(t *testing.T) {
	t.Parallel()
	exitErr := exec.Command("/bin/sh", "-c", "exit 2").Run()
	require.Error(t, exitErr)

	msg := &fakeMessenger{}
	run := &scriptedRunner{errs: map[string]error{"git pull": exitErr}}
	rs := &restartRecorder{}
	u := newUpgrader(msg, run, rs, nil)

	u.HandleMessage(context.Background(), trigger())

	require.Len(t, run.calls, 1)
	require.Empty(t, rs.units)
	require.Equal(t, []string{reactFailed}, msg.reactions)
	require.Contains(t, msg.texts, "thread-m1|❌ `pull` failed.")
}

func TestStepTimeoutAndOtherErrors(t *testing.T) {
	t.Parallel()

	msg := &fakeMessenger{}
	run := &scriptedRunner{block: make(chan struct{})}
	u := newUpgrader(msg, run, &restartRecorder{}, nil)
	u.cfg.StepTimeout = 20 * time.Millisecond
	u.HandleMessage(context.Background(), trigger())
	require.Contains(t, msg.texts, "thread-m1|"+msgTimedOut)
	require.Equal(t, []string{reactFailed}, msg.reactions)

	msg = &fakeMessenger{}
	run = &scriptedRunner{errs: map[string]error{"git pull": errors.New("executable not found")}}
	u = newUpgrader(msg, run, &restartRecorder{}, nil)
	u.HandleMessage(context.Background(), trigger())
	require.Contains(t, msg.texts, "thread-m1|"+msgError)
}

func TestSecondTriggerWhileRunningIsRejected(t *testing.T) {
	t.Parallel()
	msg := &fakeMessenger{}
	run := &scriptedRunner{block: make(chan struct{})}
	rs := &restartRecorder{}
	u := newUpgrader(msg, run, rs, nil)
	u.cfg.StepTimeout = 5 * time.Second

	done := make(chan struct{})
	go func() {
		defer close(done)
		u.HandleMessage(context.Background(), trigger())
	}()
	require.Eventually(t, u.Running, time.Second, 5*time.Millisecond)

	u.HandleMessage(context.Background(), trigger())
	close(run.block)
	<-done

	require.Equal(t, []string{msgRunning}, msg.replies)
	require.Len(t, msg.threads, 1)
	require.Len(t, rs.units, 1)
}

func TestRestartFailureIsReported(t *testing.T) {
	t.Parallel()
	msg := &fakeMessenger{}
	rs := &restartRecorder{err: errors.New("access denied")}
	u := newUpgrader(msg, &scriptedRunner{}, rs, nil)

	u.HandleMessage(context.Background(), trigger())
	require.Contains(t, msg.texts, "thread-m1|❌ Restart failed: access denied")
}

func TestExecRunner(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	out, err := ExecRunner{}.Run(context.Background(), dir, []string{"/bin/sh", "-c", "pwd; echo oops >&2"})
	require.NoError(t, err)
	require.Contains(t, out, dir)
	require.Contains(t, out, "oops")

	_, err = ExecRunner{}.Run(context.Background(), dir, []string{"/bin/sh", "-c", "exit 1"})
	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr)

	_, err = ExecRunner{}.Run(context.Background(), dir, nil)
	require.Error(t, err)
}
