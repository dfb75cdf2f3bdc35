package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soltixdb/unistor/internal/logging"
)

func newTestBus(size int) *Bus {
	return NewBus(size, logging.NewNop())
}

func TestBus_DeliversInPublishOrder(t *testing.T) {
	bus := newTestBus(8)
	defer bus.Close()

	sub := bus.Subscribe("test")
	for i := 0; i < 5; i++ {
		bus.Publish(Event{Type: NodeUpdated, NodeID: "node-1", Generation: uint64(i + 1)})
	}

	for i := 0; i < 5; i++ {
		e := <-sub.C()
		assert.Equal(t, uint64(i+1), e.Generation)
	}

	stats := bus.Stats()
	assert.Equal(t, uint64(5), stats.Published)
	assert.Equal(t, uint64(5), stats.Delivered)
	assert.Equal(t, uint64(0), stats.Dropped)
	assert.Equal(t, 1, stats.Subscribers)
}

func TestBus_FullSubscriberDropsWithoutBlocking(t *testing.T) {
	bus := newTestBus(2)
	defer bus.Close()

	var droppedFor []string
	bus.OnDrop = func(name string, e Event) { droppedFor = append(droppedFor, name) }

	slow := bus.Subscribe("slow")
	fast := bus.Subscribe("fast")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 4; i++ {
			bus.Publish(Event{Type: NodeJoined, NodeID: "n"})
			// keep the fast consumer drained
			<-fast.C()
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}

	assert.Equal(t, uint64(2), slow.Dropped())
	assert.Equal(t, uint64(0), fast.Dropped())
	assert.Equal(t, uint64(2), bus.Stats().Dropped)
	assert.Equal(t, []string{"slow", "slow"}, droppedFor)
	assert.Len(t, slow.C(), 2)
}

func TestBus_TypeFilter(t *testing.T) {
	bus := newTestBus(8)
	defer bus.Close()

	sub := bus.Subscribe("drives", DriveReclassified, DriveMetricsAlert)
	bus.Publish(Event{Type: NodeJoined})
	bus.Publish(Event{Type: DriveReclassified, DriveID: "d1"})
	bus.Publish(Event{Type: NodeRemoved})
	bus.Publish(Event{Type: DriveMetricsAlert, DriveID: "d2"})

	require.Len(t, sub.C(), 2)
	assert.Equal(t, "d1", (<-sub.C()).DriveID)
	assert.Equal(t, "d2", (<-sub.C()).DriveID)
}

func TestBus_SubscriptionClose(t *testing.T) {
	bus := newTestBus(4)
	defer bus.Close()

	sub := bus.Subscribe("x")
	sub.Close()
	sub.Close()

	_, ok := <-sub.C()
	assert.False(t, ok, "channel should be closed")
	assert.Equal(t, 0, bus.Stats().Subscribers)

	// publishing after the subscriber left must not panic
	bus.Publish(Event{Type: NodeJoined})
}

func TestBus_Close(t *testing.T) {
	bus := newTestBus(4)
	a := bus.Subscribe("a")
	bus.Close()
	bus.Close()

	_, ok := <-a.C()
	assert.False(t, ok)

	late := bus.Subscribe("late")
	_, ok = <-late.C()
	assert.False(t, ok, "subscribing to a closed bus yields a closed channel")

	bus.Publish(Event{Type: NodeJoined})
	assert.Equal(t, uint64(0), bus.Stats().Delivered)
}

func TestBus_ConcurrentPublish(t *testing.T) {
	bus := newTestBus(10000)
	defer bus.Close()
	sub := bus.Subscribe("all")

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				bus.Publish(Event{Type: NodeUpdated})
			}
		}()
	}
	wg.Wait()

	assert.Len(t, sub.C(), 4000)
	assert.Equal(t, uint64(4000), bus.Stats().Published)
}

func TestConsume(t *testing.T) {
	bus := newTestBus(4)
	defer bus.Close()

	sub := bus.Subscribe("consumer")
	ctx, cancel := context.WithCancel(context.Background())

	got := make(chan Event, 4)
	finished := make(chan struct{})
	go func() {
		Consume(ctx, sub, func(e Event) { got <- e })
		close(finished)
	}()

	bus.Publish(Event{Type: NodeRemoved, NodeID: "gone"})
	e := <-got
	assert.Equal(t, "gone", e.NodeID)

	cancel()
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("Consume did not return after cancel")
	}
	assert.Equal(t, 0, bus.Stats().Subscribers)
}

func TestEventHelpers(t *testing.T) {
	assert.True(t, Event{Type: NodeJoined}.IsNodeEvent())
	assert.False(t, Event{Type: DriveReclassified}.IsNodeEvent())
	assert.True(t, Event{Type: DriveMetricsAlert, DriveID: "d"}.IsDriveEvent())
	assert.Len(t, AllTypes, 5)

	var seen []Type
	p := PublisherFunc(func(e Event) { seen = append(seen, e.Type) })
	p.Publish(Event{Type: NodeJoined})
	Discard.Publish(Event{Type: NodeRemoved})
	assert.Equal(t, []Type{NodeJoined}, seen)
}
