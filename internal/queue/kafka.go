package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/soltixdb/unistor/internal/utils"
)

// KafkaConfig configures the Kafka queue
type KafkaConfig struct {
	Brokers      []string
	GroupID      string        // consumer group (default "unistor-watchers")
	BatchSize    int           // producer batch size (default 100)
	BatchTimeout time.Duration // producer linger (default 10ms)
	MaxAttempts  int           // producer attempts (default 3)
}

// KafkaQueue maps each subject to a topic of the same name
type KafkaQueue struct {
	cfg     KafkaConfig
	mu      sync.Mutex
	writers map[string]*kafka.Writer
	readers map[string]*kafka.Reader
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

func newKafkaQueue(cfg KafkaConfig) (*KafkaQueue, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}
	if cfg.GroupID == "" {
		cfg.GroupID = "unistor-watchers"
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = utils.DefaultKafkaBatchSize
	}
	if cfg.BatchTimeout == 0 {
		cfg.BatchTimeout = 10 * time.Millisecond
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = utils.DefaultMaxRetries
	}

	return &KafkaQueue{
		cfg:     cfg,
		writers: make(map[string]*kafka.Writer),
		readers: make(map[string]*kafka.Reader),
		cancels: make(map[string]context.CancelFunc),
	}, nil
}

func (q *KafkaQueue) writer(topic string) *kafka.Writer {
	q.mu.Lock()
	defer q.mu.Unlock()

	if w, ok := q.writers[topic]; ok {
		return w
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(q.cfg.Brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              q.cfg.BatchSize,
		BatchTimeout:           q.cfg.BatchTimeout,
		RequiredAcks:           kafka.RequireOne,
		MaxAttempts:            q.cfg.MaxAttempts,
		AllowAutoTopicCreation: true,
	}
	q.writers[topic] = w
	return w
}

// Publish writes one message to the subject topic
func (q *KafkaQueue) Publish(ctx context.Context, subject string, data []byte) error {
	err := q.writer(subject).WriteMessages(ctx, kafka.Message{Value: data, Time: time.Now()})
	if err != nil {
		return fmt.Errorf("failed to publish to kafka topic %s: %w", subject, err)
	}
	return nil
}

// PublishBatch groups messages by topic and writes each group at once
func (q *KafkaQueue) PublishBatch(ctx context.Context, messages []BatchMessage) (int, error) {
	if len(messages) == 0 {
		return 0, nil
	}

	byTopic := make(map[string][]kafka.Message)
	now := time.Now()
	for _, m := range messages {
		byTopic[m.Subject] = append(byTopic[m.Subject], kafka.Message{Value: m.Data, Time: now})
	}

	written := 0
	var lastErr error
	for topic, msgs := range byTopic {
		if err := q.writer(topic).WriteMessages(ctx, msgs...); err != nil {
			lastErr = err
			continue
		}
		written += len(msgs)
	}

	if lastErr != nil && written == 0 {
		return 0, fmt.Errorf("failed to publish batch: %w", lastErr)
	}
	return written, nil
}

// Subscribe starts a group reader on the subject topic
func (q *KafkaQueue) Subscribe(subject string, handler MessageHandler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.cancels[subject]; exists {
		return fmt.Errorf("already subscribed to topic: %s", subject)
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        q.cfg.Brokers,
		GroupID:        q.cfg.GroupID,
		Topic:          subject,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        time.Second,
		CommitInterval: time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	q.readers[subject] = reader
	q.cancels[subject] = cancel

	q.wg.Add(1)
	go q.consume(ctx, reader, handler)
	return nil
}

func (q *KafkaQueue) consume(ctx context.Context, reader *kafka.Reader, handler MessageHandler) {
	defer q.wg.Done()

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			time.Sleep(utils.DefaultRetryBackoff)
			continue
		}

		if err := handler(msg.Value); err != nil {
			continue
		}
		if err := reader.CommitMessages(ctx, msg); err != nil && ctx.Err() != nil {
			return
		}
	}
}

// Unsubscribe stops and closes the reader for subject
func (q *KafkaQueue) Unsubscribe(subject string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	cancel, ok := q.cancels[subject]
	if !ok {
		return fmt.Errorf("not subscribed to topic: %s", subject)
	}
	cancel()
	delete(q.cancels, subject)
	if r, ok := q.readers[subject]; ok {
		_ = r.Close()
		delete(q.readers, subject)
	}
	return nil
}

// Close stops readers and flushes writers
func (q *KafkaQueue) Close() error {
	q.mu.Lock()
	for subject, cancel := range q.cancels {
		cancel()
		delete(q.cancels, subject)
	}
	q.mu.Unlock()
	q.wg.Wait()

	q.mu.Lock()
	defer q.mu.Unlock()

	var lastErr error
	for subject, r := range q.readers {
		if err := r.Close(); err != nil {
			lastErr = err
		}
		delete(q.readers, subject)
	}
	for topic, w := range q.writers {
		if err := w.Close(); err != nil {
			lastErr = err
		}
		delete(q.writers, topic)
	}
	return lastErr
}

// WriterStats returns producer stats for topic
func (q *KafkaQueue) WriterStats(topic string) kafka.WriterStats {
	q.mu.Lock()
	defer q.mu.Unlock()

	if w, ok := q.writers[topic]; ok {
		return w.Stats()
	}
	return kafka.WriterStats{}
}
