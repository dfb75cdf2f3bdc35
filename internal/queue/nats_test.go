package queue

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestNATS starts an embedded JetStream server on a random port
func setupTestNATS(t *testing.T) string {
	t.Helper()

	ns, err := server.NewServer(&server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
	})
	require.NoError(t, err)

	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}

	t.Cleanup(func() {
		ns.Shutdown()
		ns.WaitForShutdown()
	})
	return ns.ClientURL()
}

func newTestNATSQueue(t *testing.T) *NATSQueue {
	t.Helper()

	conn, err := nats.Connect(setupTestNATS(t))
	require.NoError(t, err)

	q, err := NewNATSQueueWithConn(conn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func TestNATSQueue_PublishSubscribe(t *testing.T) {
	q := newTestNATSQueue(t)
	subject := "unistor.events.NodeJoined"

	received := make(chan string, 4)
	require.NoError(t, q.Subscribe(subject, func(data []byte) error {
		received <- string(data)
		return nil
	}))

	require.NoError(t, q.Publish(context.Background(), subject, []byte(`{"node_id":"n1"}`)))

	select {
	case msg := <-received:
		assert.Equal(t, `{"node_id":"n1"}`, msg)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestNATSQueue_StreamCreatedOnPublish(t *testing.T) {
	q := newTestNATSQueue(t)
	subject := "unistor.events.NodeRemoved"

	require.NoError(t, q.Publish(context.Background(), subject, []byte("x")))

	info, err := q.js.StreamInfo(q.StreamName(subject))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.State.Msgs)
	assert.Equal(t, "UNISTOR-unistor_events_NodeRemoved", info.Config.Name)
}

func TestNATSQueue_PublishBatch(t *testing.T) {
	q := newTestNATSQueue(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	n, err := q.PublishBatch(ctx, []BatchMessage{
		{Subject: "unistor.events.NodeUpdated", Data: []byte("1")},
		{Subject: "unistor.events.NodeUpdated", Data: []byte("2")},
		{Subject: "unistor.events.DriveReclassified", Data: []byte("3")},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = q.PublishBatch(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestNATSQueue_DuplicateSubscribe(t *testing.T) {
	q := newTestNATSQueue(t)
	noop := func([]byte) error { return nil }

	require.NoError(t, q.Subscribe("unistor.events.NodeJoined", noop))
	assert.Error(t, q.Subscribe("unistor.events.NodeJoined", noop))
	require.NoError(t, q.Unsubscribe("unistor.events.NodeJoined"))
	assert.Error(t, q.Unsubscribe("unistor.events.NodeJoined"))
}

func TestNewNATSQueue_InvalidURL(t *testing.T) {
	_, err := newNATSQueue(NATSConfig{URL: "nats://127.0.0.1:1"})
	assert.Error(t, err)
}

func TestSanitizeName(t *testing.T) {
	tests := map[string]string{
		"unistor.events.NodeJoined": "unistor_events_NodeJoined",
		"a-b_c":                     "a-b_c",
		"x.*.>":                     "x_____",
	}
	for in, want := range tests {
		if got := sanitizeName(in); got != want {
			t.Errorf("sanitizeName(%q) = %q, want %q", in, got, want)
		}
	}
}
