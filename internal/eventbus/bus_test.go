package eventbus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublishFansOutAndDropsWhenFull(t *testing.T) {
	t.Parallel()

	b := New()
	a, unsubA := b.Subscribe(1)
	c, unsubC := b.Subscribe(4)
	defer unsubC()

	b.Publish(Event{Type: NotificationSent, Data: NotificationData{ID: 1}})
	b.Publish(Event{Type: NotificationFailed, Data: NotificationData{ID: 2}})

	e := <-a
	require.Equal(t, NotificationSent, e.Type)
	require.False(t, e.Time.IsZero())
	require.Len(t, a, 0)
	require.Len(t, c, 2)

	unsubA()
	unsubA()
	_, ok := <-a
	require.False(t, ok)

	// publishing after an unsubscribe must not panic
	b.Publish(Event{Type: WatchdogAlerted})
	require.Len(t, c, 3)
}
