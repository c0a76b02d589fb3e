package events

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestBus_PublishSubscribe(t *testing.T) {
	t.Parallel()
	bus := NewBus(quiet())
	all := bus.Subscribe(4)
	deps := bus.Subscribe(4, DependencyAdded, DependencyRemoved)

	bus.Publish(Event{Kind: TaskUpdated, ProjectID: "p", TaskID: "a"})
	bus.Publish(Event{Kind: DependencyAdded, ProjectID: "p", TaskID: "b"})

	first := <-all.C()
	assert.Equal(t, TaskUpdated, first.Kind)
	assert.False(t, first.At.IsZero(), "publish stamps the event")
	assert.Equal(t, DependencyAdded, (<-all.C()).Kind)

	got := <-deps.C()
	assert.Equal(t, "b", got.TaskID)
	assert.Empty(t, deps.C(), "filtered subscriber got an unwanted kind")
}

func TestBus_FullSubscriberDrops(t *testing.T) {
	t.Parallel()
	bus := NewBus(quiet())
	sub := bus.Subscribe(1)

	bus.Publish(Event{Kind: TaskUpdated, ProjectID: "p"})
	bus.Publish(Event{Kind: TaskUpdated, ProjectID: "p"})

	assert.Equal(t, int64(1), bus.Dropped())
	assert.Len(t, sub.C(), 1)
}

func TestBus_UnsubscribeAndClose(t *testing.T) {
	t.Parallel()
	bus := NewBus(quiet())
	a := bus.Subscribe(1)
	b := bus.Subscribe(1)

	bus.Unsubscribe(a)
	bus.Unsubscribe(a)
	_, open := <-a.C()
	require.False(t, open)

	bus.Close()
	_, open = <-b.C()
	require.False(t, open)

	bus.Publish(Event{Kind: TaskUpdated})
	late := bus.Subscribe(1)
	_, open = <-late.C()
	assert.False(t, open, "subscribing to a closed bus yields a closed channel")
}

func TestBus_ConcurrentPublish(t *testing.T) {
	t.Parallel()
	bus := NewBus(quiet())
	sub := bus.Subscribe(100)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				bus.Publish(Event{Kind: TaskUpdated, ProjectID: "p"})
			}
		}()
	}
	wg.Wait()
	assert.Len(t, sub.C(), 100)
	assert.Zero(t, bus.Dropped())
}
