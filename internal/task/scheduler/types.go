package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "ebibot/pkg/logx"
)

type Config struct {
	Timezone string // IANA TZ, e.g. "Asia/Tokyo"; empty means Local
}

// Job is one tick of a loop.
type Job func(ctx context.Context) error

// Observer is told about every finished run.
type Observer func(name string, took time.Duration, err error)

type scheduleDef struct {
	name       string
	every      time.Duration
	timeout    time.Duration
	job        Job
	runOnStart bool
	entryID    cron.EntryID
}

// AddOption tunes a registered loop.
type AddOption func(*scheduleDef)

// RunOnStart fires the first tick right after Start instead of one interval later.
func RunOnStart() AddOption { return func(d *scheduleDef) { d.runOnStart = true } }

type Service struct {
	mu sync.Mutex

	log      logx.Logger
	cfg      Config
	loc      *time.Location
	observer Observer

	c    *cron.Cron
	ctx  context.Context
	stop context.CancelFunc
	defs []*scheduleDef
}

type ScheduleInfo struct {
	Name    string
	Every   time.Duration
	Timeout time.Duration
	Next    time.Time
	Prev    time.Time
}
