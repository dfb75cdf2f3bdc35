// Package events is the in-process registry change stream. Delivery is
// best-effort and at-most-once: a subscriber whose buffer is full misses the
// event and the drop is counted.
package events

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/soltixdb/unistor/internal/logging"
)

// DefaultBufferSize is the per-subscriber channel capacity
const DefaultBufferSize = 1024

// BusStats is a point-in-time view of bus counters
type BusStats struct {
	Published   uint64 `json:"published"`
	Delivered   uint64 `json:"delivered"`
	Dropped     uint64 `json:"dropped"`
	Subscribers int    `json:"subscribers"`
}

// Bus fans events out to subscribers without ever blocking the publisher
type Bus struct {
	mu         sync.RWMutex
	subs       map[uint64]*Subscription
	nextID     uint64
	bufferSize int
	closed     bool
	logger     *logging.Logger

	published atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64

	// OnDrop, when set, is called for every event a subscriber misses
	OnDrop func(subscriber string, e Event)
}

// NewBus creates a bus with the given per-subscriber buffer
func NewBus(bufferSize int, logger *logging.Logger) *Bus {
	if bufferSize < 1 {
		bufferSize = DefaultBufferSize
	}
	if logger == nil {
		logger = logging.Global()
	}
	return &Bus{
		subs:       make(map[uint64]*Subscription),
		bufferSize: bufferSize,
		logger:     logger.With("component", "events.bus"),
	}
}

// Subscription is one consumer's view of the bus
type Subscription struct {
	id      uint64
	name    string
	bus     *Bus
	ch      chan Event
	filter  map[Type]struct{}
	dropped atomic.Uint64
	once    sync.Once
}

// C returns the delivery channel. It is closed when the subscription or the
// bus is closed.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// Name returns the subscriber name given at Subscribe
func (s *Subscription) Name() string {
	return s.name
}

// Dropped returns how many events this subscriber missed
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close detaches the subscription from the bus
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	delete(s.bus.subs, s.id)
	s.bus.mu.Unlock()
	s.closeChannel()
}

func (s *Subscription) closeChannel() {
	s.once.Do(func() { close(s.ch) })
}

func (s *Subscription) wants(t Type) bool {
	if len(s.filter) == 0 {
		return true
	}
	_, ok := s.filter[t]
	return ok
}

// Subscribe registers a consumer. With no types every event is delivered.
func (b *Bus) Subscribe(name string, types ...Type) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		id:   b.nextID,
		name: name,
		bus:  b,
		ch:   make(chan Event, b.bufferSize),
	}
	if len(types) > 0 {
		sub.filter = make(map[Type]struct{}, len(types))
		for _, t := range types {
			sub.filter[t] = struct{}{}
		}
	}
	if b.closed {
		sub.closeChannel()
		return sub
	}
	b.subs[sub.id] = sub
	return sub
}

// Publish delivers e to every interested subscriber that has buffer room
func (b *Bus) Publish(e Event) {
	b.published.Add(1)

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		if !sub.wants(e.Type) {
			continue
		}
		select {
		case sub.ch <- e:
			b.delivered.Add(1)
		default:
			sub.dropped.Add(1)
			b.dropped.Add(1)
			if b.OnDrop != nil {
				b.OnDrop(sub.name, e)
			}
		}
	}
}

// Stats returns bus counters
func (b *Bus) Stats() BusStats {
	b.mu.RLock()
	n := len(b.subs)
	b.mu.RUnlock()

	return BusStats{
		Published:   b.published.Load(),
		Delivered:   b.delivered.Load(),
		Dropped:     b.dropped.Load(),
		Subscribers: n,
	}
}

// Close closes every subscription; later publishes are no-ops
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		sub.closeChannel()
		delete(b.subs, id)
	}
	b.logger.Debug("Event bus closed")
}

// Consume calls fn for each event until ctx is done or the subscription is
// closed. It closes the subscription on return.
func Consume(ctx context.Context, sub *Subscription, fn func(Event)) {
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub.C():
			if !ok {
				return
			}
			fn(e)
		}
	}
}
