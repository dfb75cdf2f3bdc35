package queue

import (
	"context"
	"fmt"
	"sync"
)

// MemoryQueue is a process-local queue used in tests and single-binary setups
type MemoryQueue struct {
	mu         sync.Mutex
	bufferSize int
	topics     map[string]chan []byte
	cancels    map[string]context.CancelFunc
	wg         sync.WaitGroup
	closed     bool
}

func newMemoryQueue(bufferSize int) *MemoryQueue {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &MemoryQueue{
		bufferSize: bufferSize,
		topics:     make(map[string]chan []byte),
		cancels:    make(map[string]context.CancelFunc),
	}
}

func (q *MemoryQueue) topic(subject string) (chan []byte, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, fmt.Errorf("queue closed")
	}
	ch, ok := q.topics[subject]
	if !ok {
		ch = make(chan []byte, q.bufferSize)
		q.topics[subject] = ch
	}
	return ch, nil
}

// Publish enqueues a copy of data; it fails instead of blocking when the
// subject buffer is full
func (q *MemoryQueue) Publish(ctx context.Context, subject string, data []byte) error {
	ch, err := q.topic(subject)
	if err != nil {
		return err
	}

	msg := append([]byte(nil), data...)
	select {
	case ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("buffer full for subject: %s", subject)
	}
}

// PublishBatch publishes each message in order, skipping failures
func (q *MemoryQueue) PublishBatch(ctx context.Context, messages []BatchMessage) (int, error) {
	n := 0
	for _, m := range messages {
		if err := q.Publish(ctx, m.Subject, m.Data); err != nil {
			if ctx.Err() != nil {
				return n, ctx.Err()
			}
			continue
		}
		n++
	}
	return n, nil
}

// Subscribe starts a consumer goroutine for subject
func (q *MemoryQueue) Subscribe(subject string, handler MessageHandler) error {
	ch, err := q.topic(subject)
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if _, exists := q.cancels[subject]; exists {
		return fmt.Errorf("already subscribed to subject: %s", subject)
	}

	ctx, cancel := context.WithCancel(context.Background())
	q.cancels[subject] = cancel

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case data, ok := <-ch:
				if !ok {
					return
				}
				// no redelivery in memory; failures are dropped
				_ = handler(data)
			}
		}
	}()
	return nil
}

// Unsubscribe stops the consumer for subject
func (q *MemoryQueue) Unsubscribe(subject string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	cancel, ok := q.cancels[subject]
	if !ok {
		return fmt.Errorf("not subscribed to subject: %s", subject)
	}
	cancel()
	delete(q.cancels, subject)
	return nil
}

// Close stops every consumer and waits for them to exit
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	for subject, cancel := range q.cancels {
		cancel()
		delete(q.cancels, subject)
	}
	q.mu.Unlock()

	q.wg.Wait()
	return nil
}

// Pending returns the number of undelivered messages for subject
func (q *MemoryQueue) Pending(subject string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	if ch, ok := q.topics[subject]; ok {
		return len(ch)
	}
	return 0
}
