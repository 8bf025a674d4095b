package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"ebibot/internal/api"
	"ebibot/internal/config"
	"ebibot/internal/embeds"
	"ebibot/internal/eventbus"
	"ebibot/internal/metrics"
	"ebibot/internal/notification"
	"ebibot/internal/reminder"
	rtsup "ebibot/internal/runtime/supervisor"
	"ebibot/internal/storage"
	"ebibot/internal/task/scheduler"
	"ebibot/internal/transport"
	"ebibot/internal/transport/discord"
	"ebibot/internal/upgrade"
	"ebibot/internal/watchdog"
	logx "ebibot/pkg/logx"
	"ebibot/pkg/systemd"
)

const (
	loopDelivery = "reminder.delivery"
	loopWatchdog = "watchdog"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus
	db   *sqlx.DB
	repo *notification.Repository

	adapter  *discord.Adapter
	sched    *scheduler.Service
	delivery *reminder.Delivery
	watchdog *watchdog.Watchdog
	upgrader *upgrade.Upgrader
	api      *api.Server
	metrics  *metrics.Metrics

	startupOnce sync.Once
}

// New loads the config and builds every component. Nothing talks to the
// network until Start.
func New(ctx context.Context, cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg), nil)
	a := &App{
		cfgm:    cfgm,
		log:     log.With(logx.String("comp", "app")),
		logs:    logSvc,
		bus:     eventbus.New(),
		metrics: metrics.New(),
	}

	a.db, err = storage.Open(ctx, mapStorageConfig(cfg), log.With(logx.String("comp", "storage")))
	if err != nil {
		logSvc.Close()
		return nil, err
	}

	a.sched = scheduler.New(scheduler.Config{Timezone: cfg.Scheduler.Timezone}, log.With(logx.String("comp", "scheduler")))
	a.sched.SetObserver(a.metrics.ObserveLoop)
	clock := a.sched.Now

	a.repo = notification.NewRepository(a.db, notification.WithClock(clock))

	a.adapter, err = discord.New(discord.Config{
		Token:      cfg.Discord.Token,
		GuildID:    cfg.Discord.GuildID,
		RatePerSec: cfg.Discord.SendRate(),
	}, log.With(logx.String("comp", "discord")))
	if err != nil {
		_ = a.db.Close()
		logSvc.Close()
		return nil, err
	}
	logSvc.SetSink(a.adapter)

	a.delivery = reminder.NewDelivery(a.repo, a.adapter, reminder.DeliveryConfig{
		DefaultChannelID: cfg.Discord.DefaultChannelID,
		SendTimeout:      cfg.Reminder.SendDeadline(),
		Now:              clock,
	}, a.bus, log.With(logx.String("comp", "reminder")))
	if err := a.sched.AddInterval(loopDelivery, cfg.Reminder.Every(), 0, a.delivery.Tick, scheduler.RunOnStart()); err != nil {
		return nil, a.abort(err)
	}

	a.adapter.RegisterCommand(reminder.RemindCommand(a.repo, clock, a.bus, log.With(logx.String("comp", "remind"))))

	if cfg.Watchdog.Enabled {
		wcfg, fetcher := mapWatchdogConfig(cfg)
		wcfg.Now = clock
		a.watchdog = watchdog.New(fetcher, a.adapter, wcfg, a.bus, log.With(logx.String("comp", "watchdog")))
		if err := a.sched.AddInterval(loopWatchdog, cfg.Watchdog.Every(), 0, a.watchdog.Tick, scheduler.RunOnStart()); err != nil {
			return nil, a.abort(err)
		}
	}

	if cfg.Upgrade.Enabled {
		a.upgrader = upgrade.New(mapUpgradeConfig(cfg), a.adapter, upgrade.ExecRunner{},
			upgrade.RestartFunc(systemd.RestartUnit), a.bus, log.With(logx.String("comp", "upgrade")))
		a.adapter.OnMessage(a.upgrader.HandleMessage)
	}

	if cfg.API.Enabled {
		a.api = api.New(api.Config{
			Addr:             cfg.API.ListenAddr(),
			Pprof:            cfg.API.Pprof,
			DefaultChannelID: cfg.Discord.DefaultChannelID,
			Location:         a.sched.Location(),
		}, a.repo, a.adapter,
			api.WithLogger(log.With(logx.String("comp", "api"))),
			api.WithBus(a.bus),
			api.WithMetrics(a.metrics.Handler()),
			api.WithClock(clock),
		)
	}

	a.adapter.OnReady(a.postStartup)
	return a, nil
}

func (a *App) abort(err error) error {
	_ = a.db.Close()
	a.logs.Close()
	return err
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	a.metrics.GaugeFunc("goroutines_supervised", "Goroutines currently running under the app supervisor.", func() float64 {
		return float64(a.sup.Counters().Active)
	})
	a.metrics.GaugeFunc("supervisor_panics", "Panics recovered by the app supervisor.", func() float64 {
		return float64(a.sup.Counters().Panics)
	})
	a.metrics.GaugeFunc("notifications_pending", "Pending scheduled notifications.", a.pendingCount)

	a.sup.Go("metrics.events", func(c context.Context) error { return a.metrics.Run(c, a.bus) })
	a.sup.Go0("eventbus.log", a.logEvents)

	if err := a.adapter.Start(a.sup.Context()); err != nil {
		return err
	}
	a.sched.Start(a.sup.Context())

	if a.api != nil {
		a.sup.GoRestart("api", a.api.Run,
			rtsup.WithRestartBackoff(500*time.Millisecond, 30*time.Second))
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) { a.reloadLoop(c, sub) })
	a.sup.Go("config.watch", a.cfgm.Watch)

	if sent, err := systemd.Ready(); err != nil {
		a.log.Warn("sd_notify ready failed", logx.Err(err))
	} else if sent {
		a.log.Debug("sd_notify ready sent")
	}
	a.log.Info("app started",
		logx.Bool("watchdog", a.watchdog != nil),
		logx.Bool("upgrade", a.upgrader != nil),
		logx.Bool("api", a.api != nil),
	)
	return nil
}

// postStartup announces the bot once per process. Gateway resumes fire ready
// again and stay quiet.
func (a *App) postStartup(ctx context.Context) {
	a.startupOnce.Do(func() {
		id := a.cfgm.Get().Discord.DefaultChannelID
		if id == 0 {
			a.log.Warn("no default channel; startup message skipped")
			return
		}
		ch, err := transport.Resolve(ctx, a.adapter, id)
		if err != nil {
			a.log.Warn("startup channel not found", logx.Int64("channel_id", id), logx.Err(err))
			return
		}
		if err := ch.SendEmbed(ctx, embeds.Startup()); err != nil {
			a.log.Warn("startup message failed", logx.Err(err))
		}
	})
}

func (a *App) pendingCount() float64 {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	rows, err := a.repo.AllPending(ctx)
	if err != nil {
		return 0
	}
	return float64(len(rows))
}

func (a *App) logEvents(ctx context.Context) {
	events, unsub := a.bus.Subscribe(128)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
		}
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	if _, err := systemd.Stopping(); err != nil {
		a.log.Debug("sd_notify stopping failed", logx.Err(err))
	}

	a.sup.Cancel()

	a.step(ctx, "scheduler", 3*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	a.step(ctx, "discord", 2*time.Second, a.adapter.Stop)
	a.step(ctx, "supervisor", 5*time.Second, a.sup.Wait)
	a.step(ctx, "storage", time.Second, func(context.Context) error { return a.db.Close() })

	a.log.Info("stopped")
	return a.logs.Close()
}

// step runs one shutdown step bounded by max and the caller's deadline. A
// step that overruns is logged and left behind.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Err(stepCtx.Err()),
			logx.Duration("elapsed", time.Since(start)),
		)
	}
}
