package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soltixdb/unistor/internal/logging"
	"github.com/soltixdb/unistor/internal/queue"
)

type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
	fail     bool
}

func (p *recordingPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker down")
	}
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, data)
	return nil
}

func (p *recordingPublisher) PublishBatch(ctx context.Context, msgs []queue.BatchMessage) (int, error) {
	for _, m := range msgs {
		if err := p.Publish(ctx, m.Subject, m.Data); err != nil {
			return 0, err
		}
	}
	return len(msgs), nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subjects)
}

func TestForwarder_PublishesBySubject(t *testing.T) {
	bus := NewBus(16, logging.NewNop())
	pub := &recordingPublisher{}
	codec, err := NewCodec(CodecJSON, false)
	require.NoError(t, err)

	fwd := NewForwarder(bus, pub, codec, "unistor.events", logging.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go fwd.Run(ctx)

	bus.Publish(Event{Type: NodeJoined, NodeID: "n1"})
	bus.Publish(Event{Type: DriveMetricsAlert, NodeID: "n1", DriveID: "sda", Alert: AlertHighTemperature})

	require.Eventually(t, func() bool { return pub.count() == 2 }, 2*time.Second, 10*time.Millisecond)

	pub.mu.Lock()
	assert.Equal(t, []string{"unistor.events.NodeJoined", "unistor.events.DriveMetricsAlert"}, pub.subjects)
	decoded, err := codec.Decode(pub.payloads[1])
	pub.mu.Unlock()
	require.NoError(t, err)
	assert.Equal(t, AlertHighTemperature, decoded.Alert)
	assert.Equal(t, uint64(2), fwd.Stats().Forwarded)
}

func TestForwarder_CountsFailures(t *testing.T) {
	bus := NewBus(16, logging.NewNop())
	pub := &recordingPublisher{fail: true}
	codec, _ := NewCodec(CodecJSON, false)

	fwd := NewForwarder(bus, pub, codec, "unistor.events", logging.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go fwd.Run(ctx)

	bus.Publish(Event{Type: NodeRemoved, NodeID: "n1"})
	require.Eventually(t, func() bool { return fwd.Stats().Failed == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, uint64(0), fwd.Stats().Forwarded)
}

func TestForwarder_MemoryQueue(t *testing.T) {
	q, err := queue.NewQueue(queueConfigMemory())
	require.NoError(t, err)
	defer func() { _ = q.Close() }()

	received := make(chan []byte, 1)
	require.NoError(t, q.Subscribe("unistor.events.NodeRemoved", func(data []byte) error {
		received <- data
		return nil
	}))

	bus := NewBus(16, logging.NewNop())
	codec, _ := NewCodec(CodecProto, true)
	fwd := NewForwarder(bus, q, codec, "unistor.events", logging.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go fwd.Run(ctx)

	bus.Publish(Event{Type: NodeRemoved, NodeID: "gone", Generation: 4})

	select {
	case data := <-received:
		e, err := codec.Decode(data)
		require.NoError(t, err)
		assert.Equal(t, "gone", e.NodeID)
		assert.Equal(t, uint64(4), e.Generation)
	case <-time.After(2 * time.Second):
		t.Fatal("event not forwarded")
	}
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "p.NodeJoined", Subject("p", NodeJoined))
}
