// Package upgrade rebuilds and restarts the bot when a deploy webhook posts
// the trigger message in the upgrade channel.
//
// Only webhook messages are honoured and the commands come from config, so
// chat users cannot run anything.
package upgrade

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"ebibot/internal/embeds"
	"ebibot/internal/eventbus"
	"ebibot/internal/transport"
	logx "ebibot/pkg/logx"
)

const (
	ThreadName   = "🔄 ebibot-upgrade"
	outputLimit  = 1800
	reactOK      = "✅"
	reactFailed  = "❌"
	msgRunning   = "⏳ An upgrade is already running."
	msgStarting  = "📦 Starting package update..."
	msgRestart   = "🔄 Restarting..."
	msgTimedOut  = "❌ Timed out."
	msgError     = "❌ Upgrade failed with an error."
	restartDelay = time.Second
)

type Step struct {
	Name string
	Argv []string
}

// DefaultSteps pull the checkout and rebuild the binary in place.
var DefaultSteps = []Step{
	{Name: "git pull", Argv: []string{"git", "pull", "--ff-only"}},
	{Name: "go build", Argv: []string{"go", "build", "-o", "bin/ebibot", "./cmd/ebibot"}},
}

type Config struct {
	ChannelID   string
	Trigger     string
	Dir         string
	Unit        string
	Steps       []Step
	StepTimeout time.Duration
	// RestartDelay lets the last messages flush before the unit restarts.
	RestartDelay time.Duration
}

// Runner executes one step and returns its combined output.
type Runner interface {
	Run(ctx context.Context, dir string, argv []string) (output string, err error)
}

type Restarter interface {
	Restart(ctx context.Context, unit string) error
}

// RestartFunc adapts a function to Restarter.
type RestartFunc func(ctx context.Context, unit string) error

func (f RestartFunc) Restart(ctx context.Context, unit string) error { return f(ctx, unit) }

type Upgrader struct {
	cfg     Config
	msg     transport.Messenger
	run     Runner
	restart Restarter
	bus     eventbus.Bus
	log     logx.Logger

	running atomic.Bool
}

func New(cfg Config, msg transport.Messenger, run Runner, restart Restarter, bus eventbus.Bus, log logx.Logger) *Upgrader {
	if len(cfg.Steps) == 0 {
		cfg.Steps = DefaultSteps
	}
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = 60 * time.Second
	}
	if cfg.RestartDelay < 0 {
		cfg.RestartDelay = 0
	} else if cfg.RestartDelay == 0 {
		cfg.RestartDelay = restartDelay
	}
	if bus == nil {
		bus = eventbus.Nop{}
	}
	return &Upgrader{cfg: cfg, msg: msg, run: run, restart: restart, bus: bus, log: log}
}

// Matches reports whether m is a trigger: posted by a webhook, in the
// upgrade channel, with exactly the trigger text.
func (u *Upgrader) Matches(m transport.Message) bool {
	return m.WebhookID != "" &&
		m.ChannelID == u.cfg.ChannelID &&
		strings.TrimSpace(m.Content) == u.cfg.Trigger
}

// HandleMessage runs an upgrade for trigger messages and ignores the rest.
// A second trigger while one is running gets a reply and nothing else.
func (u *Upgrader) HandleMessage(ctx context.Context, m transport.Message) {
	if !u.Matches(m) {
		return
	}
	u.log.Info("upgrade trigger received", logx.String("message_id", m.ID))

	if !u.running.CompareAndSwap(false, true) {
		if err := u.msg.Reply(ctx, m, msgRunning); err != nil {
			u.log.Warn("reply failed", logx.Err(err))
		}
		return
	}
	defer u.running.Store(false)

	start := time.Now()
	ok := u.upgrade(ctx, m)
	u.bus.Publish(eventbus.Event{
		Type: eventbus.UpgradeFinished,
		Data: eventbus.UpgradeData{OK: ok, Duration: time.Since(start)},
	})
}

// Running reports whether an upgrade is in progress.
func (u *Upgrader) Running() bool { return u.running.Load() }

func (u *Upgrader) upgrade(ctx context.Context, trigger transport.Message) bool {
	thread, err := u.msg.StartThread(ctx, trigger, ThreadName)
	if err != nil {
		u.log.Error("start upgrade thread failed", logx.Err(err))
		u.react(ctx, trigger, reactFailed)
		return false
	}
	say := func(text string) {
		if err := u.msg.SendText(ctx, thread, text); err != nil {
			u.log.Warn("upgrade thread send failed", logx.Err(err))
		}
	}

	say(msgStarting)
	for _, st := range u.cfg.Steps {
		say(fmt.Sprintf("⚙️ `%s`", strings.Join(st.Argv, " ")))

		out, err := u.runStep(ctx, st)
		if out = strings.TrimSpace(out); out != "" {
			say(embeds.CodeBlock(out, outputLimit))
		}
		if err == nil {
			continue
		}

		var exitErr interface{ ExitCode() int }
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			say(msgTimedOut)
		case errors.As(err, &exitErr):
			say(fmt.Sprintf("❌ `%s` failed.", st.Name))
		default:
			say(msgError)
		}
		u.log.Error("upgrade step failed", logx.String("step", st.Name), logx.Err(err))
		u.react(ctx, trigger, reactFailed)
		return false
	}

	say(msgRestart)
	u.react(ctx, trigger, reactOK)
	select {
	case <-time.After(u.cfg.RestartDelay):
	case <-ctx.Done():
		return true
	}

	u.log.Info("restarting unit", logx.String("unit", u.cfg.Unit))
	if err := u.restart.Restart(ctx, u.cfg.Unit); err != nil {
		u.log.Error("restart failed", logx.String("unit", u.cfg.Unit), logx.Err(err))
		say(fmt.Sprintf("❌ Restart failed: %v", err))
		return false
	}
	return true
}

func (u *Upgrader) runStep(ctx context.Context, st Step) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, u.cfg.StepTimeout)
	defer cancel()
	out, err := u.run.Run(ctx, u.cfg.Dir, st.Argv)
	if err != nil && ctx.Err() != nil {
		return out, fmt.Errorf("%s: %w", st.Name, ctx.Err())
	}
	return out, err
}

func (u *Upgrader) react(ctx context.Context, m transport.Message, emoji string) {
	if err := u.msg.React(ctx, m, emoji); err != nil {
		u.log.Warn("reaction failed", logx.String("emoji", emoji), logx.Err(err))
	}
}
