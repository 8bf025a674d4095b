package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event is an in-memory signal used to decouple producers (delivery loop,
// watchdog, API) from observers (metrics, debug logging).
//
// Publish never blocks; slow subscribers drop events.
type Event struct {
	Type string
	Time time.Time
	Data any
}

const (
	NotificationScheduled = "notification.scheduled"
	NotificationSent      = "notification.sent"
	NotificationFailed    = "notification.failed"
	NotificationCancelled = "notification.cancelled"
	NotifyPosted          = "notify.posted"
	WatchdogAlerted       = "watchdog.alerted"
	WatchdogFetchFailed   = "watchdog.fetch_failed"
	UpgradeFinished       = "upgrade.finished"
)

// NotificationData accompanies the notification.* events.
type NotificationData struct {
	ID     int64
	Source string
	Err    string
}

// WatchdogData accompanies watchdog.alerted.
type WatchdogData struct {
	NewTasks   int
	TotalTasks int
	Severity   string
}

// UpgradeData accompanies upgrade.finished.
type UpgradeData struct {
	OK       bool
	Duration time.Duration
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory fanout bus. It owns no goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// sends happen under the read lock so unsubscribe can't close a channel
	// mid-send
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(Event) {}

func (Nop) Subscribe(int) (<-chan Event, func()) {
	ch := make(chan Event)
	close(ch)
	return ch, func() {}
}
