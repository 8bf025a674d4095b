package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	logx "ebibot/pkg/logx"
)

func New(cfg Config, log logx.Logger) *Service {
	return &Service{cfg: cfg, log: log}
}

// SetObserver installs a hook called after every run. Call before Start.
func (s *Service) SetObserver(o Observer) {
	s.mu.Lock()
	s.observer = o
	s.mu.Unlock()
}

// Location is the timezone loops are scheduled in.
func (s *Service) Location() *time.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loc == nil {
		s.loc = s.loadLocationLocked()
	}
	return s.loc
}

// Now is the wall clock in Location. Every component that reads or writes
// stored local timestamps shares it.
func (s *Service) Now() time.Time {
	return time.Now().In(s.Location())
}

// AddInterval registers job to run every interval. A positive timeout bounds
// each run. Registering an existing name replaces it.
func (s *Service) AddInterval(name string, every, timeout time.Duration, job Job, opts ...AddOption) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("name required")
	}
	if every <= 0 {
		return fmt.Errorf("%s: interval must be > 0", name)
	}
	if job == nil {
		return fmt.Errorf("%s: job required", name)
	}
	d := &scheduleDef{name: name, every: every, timeout: timeout, job: job}
	for _, o := range opts {
		o(d)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(name)
	s.defs = append(s.defs, d)
	if s.c != nil {
		s.addCronLocked(d)
		if d.runOnStart {
			s.fireLocked(d)
		}
	}
	s.log.Debug("schedule registered",
		logx.String("name", name), logx.Duration("every", every), logx.Duration("timeout", timeout))
	return nil
}

// Remove unregisters a loop by name.
func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(name)
}

func (s *Service) removeLocked(name string) bool {
	for i, d := range s.defs {
		if d.name != name {
			continue
		}
		if s.c != nil && d.entryID != 0 {
			s.c.Remove(d.entryID)
		}
		s.defs = append(s.defs[:i], s.defs[i+1:]...)
		return true
	}
	return false
}

// Start begins triggering. Jobs receive a context derived from ctx that is
// cancelled by Stop.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	if s.loc == nil {
		s.loc = s.loadLocationLocked()
	}
	s.ctx, s.stop = context.WithCancel(ctx)

	cl := cronLogger{log: s.log}
	s.c = cron.New(
		cron.WithLocation(s.loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	for _, d := range s.defs {
		s.addCronLocked(d)
	}
	s.c.Start()
	for _, d := range s.defs {
		if d.runOnStart {
			s.fireLocked(d)
		}
	}
	s.log.Info("service started", logx.String("tz", s.loc.String()), logx.Int("schedules", len(s.defs)))
}

// Stop stops triggering and waits for running jobs until ctx ends.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	c := s.c
	stop := s.stop
	s.c = nil
	s.stop = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	if stop != nil {
		stop()
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
}

// Snapshot lists registered loops with their next and previous trigger times.
func (s *Service) Snapshot() []ScheduleInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ScheduleInfo, 0, len(s.defs))
	for _, d := range s.defs {
		it := ScheduleInfo{Name: d.name, Every: d.every, Timeout: d.timeout}
		if s.c != nil && d.entryID != 0 {
			e := s.c.Entry(d.entryID)
			it.Next, it.Prev = e.Next, e.Prev
		}
		out = append(out, it)
	}
	return out
}

func (s *Service) addCronLocked(d *scheduleDef) {
	d.entryID = s.c.Schedule(cron.Every(d.every), s.wrap(d))
}

// fireLocked runs the wrapped job once now, through the chain, so
// SkipIfStillRunning still applies.
func (s *Service) fireLocked(d *scheduleDef) {
	e := s.c.Entry(d.entryID)
	if e.WrappedJob == nil {
		return
	}
	go e.WrappedJob.Run()
}

func (s *Service) wrap(d *scheduleDef) cron.Job {
	ctx := s.ctx
	observer := s.observer
	log := s.log.With(logx.String("job", d.name))
	return cron.FuncJob(func() {
		if ctx.Err() != nil {
			return
		}
		runCtx := ctx
		if d.timeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(ctx, d.timeout)
			defer cancel()
		}
		start := time.Now()
		err := d.job(runCtx)
		took := time.Since(start)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("job failed", logx.Duration("took", took), logx.Err(err))
		} else {
			log.Debug("job finished", logx.Duration("took", took))
		}
		if observer != nil {
			observer(d.name, took, err)
		}
	})
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	// cron logs every wake-up at info; keep it at debug
	l.log.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
