package queue

import "github.com/nats-io/nats.go"

// Test-only constructors; production code goes through NewQueue.

func NewNATSQueueWithConn(conn *nats.Conn) (*NATSQueue, error) {
	return newNATSQueueWithConn(conn, NATSConfig{})
}

func NewMemoryQueue(bufferSize int) *MemoryQueue {
	return newMemoryQueue(bufferSize)
}
