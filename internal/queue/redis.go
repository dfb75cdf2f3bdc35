package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/soltixdb/unistor/internal/utils"
)

// RedisConfig configures the Redis Streams queue
type RedisConfig struct {
	URL      string // redis://host:6379/0 or host:port
	Password string
	DB       int
	Stream   string // stream key prefix (default "unistor")
	Group    string // consumer group (default "unistor-watchers")
	Consumer string // consumer name (default hostname)
	MaxLen   int64  // approximate stream cap (default 100000)
}

// RedisQueue publishes events with XADD and consumes them with XREADGROUP
type RedisQueue struct {
	client  *redis.Client
	cfg     RedisConfig
	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

func newRedisQueue(cfg RedisConfig) (*RedisQueue, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		opts = &redis.Options{Addr: cfg.URL}
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), utils.BrokerConnectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return newRedisQueueWithClient(client, cfg), nil
}

func newRedisQueueWithClient(client *redis.Client, cfg RedisConfig) *RedisQueue {
	if cfg.Stream == "" {
		cfg.Stream = "unistor"
	}
	if cfg.Group == "" {
		cfg.Group = "unistor-watchers"
	}
	if cfg.Consumer == "" {
		cfg.Consumer, _ = os.Hostname()
		if cfg.Consumer == "" {
			cfg.Consumer = "watcher-1"
		}
	}
	if cfg.MaxLen == 0 {
		cfg.MaxLen = 100000
	}

	return &RedisQueue{
		client:  client,
		cfg:     cfg,
		cancels: make(map[string]context.CancelFunc),
	}
}

// StreamKey returns the Redis key backing subject
func (q *RedisQueue) StreamKey(subject string) string {
	return q.cfg.Stream + ":" + subject
}

func (q *RedisQueue) addArgs(subject string, data []byte) *redis.XAddArgs {
	return &redis.XAddArgs{
		Stream: q.StreamKey(subject),
		MaxLen: q.cfg.MaxLen,
		Approx: true,
		Values: map[string]interface{}{"data": data},
	}
}

// Publish appends a message to the subject stream
func (q *RedisQueue) Publish(ctx context.Context, subject string, data []byte) error {
	if err := q.client.XAdd(ctx, q.addArgs(subject, data)).Err(); err != nil {
		return fmt.Errorf("failed to publish to Redis stream %s: %w", q.StreamKey(subject), err)
	}
	return nil
}

// PublishBatch pipelines every XADD in one round trip
func (q *RedisQueue) PublishBatch(ctx context.Context, messages []BatchMessage) (int, error) {
	if len(messages) == 0 {
		return 0, nil
	}

	pipe := q.client.Pipeline()
	for _, msg := range messages {
		pipe.XAdd(ctx, q.addArgs(msg.Subject, msg.Data))
	}

	cmds, err := pipe.Exec(ctx)
	ok := 0
	for _, cmd := range cmds {
		if cmd.Err() == nil {
			ok++
		}
	}
	if err != nil && ok == 0 {
		return 0, fmt.Errorf("failed to execute batch publish: %w", err)
	}
	return ok, nil
}

// Subscribe joins the consumer group on the subject stream
func (q *RedisQueue) Subscribe(subject string, handler MessageHandler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.cancels[subject]; exists {
		return fmt.Errorf("already subscribed to subject: %s", subject)
	}

	key := q.StreamKey(subject)
	ctx, cancel := context.WithCancel(context.Background())

	err := q.client.XGroupCreateMkStream(ctx, key, q.cfg.Group, "$").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		cancel()
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	q.cancels[subject] = cancel
	q.wg.Add(1)
	go q.consume(ctx, key, handler)
	return nil
}

func (q *RedisQueue) consume(ctx context.Context, key string, handler MessageHandler) {
	defer q.wg.Done()

	for ctx.Err() == nil {
		streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.cfg.Group,
			Consumer: q.cfg.Consumer,
			Streams:  []string{key, ">"},
			Count:    100,
			Block:    2 * time.Second,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			time.Sleep(utils.DefaultRetryBackoff)
			continue
		}

		for _, s := range streams {
			for _, msg := range s.Messages {
				data, ok := msg.Values["data"].(string)
				if ok && handler([]byte(data)) != nil {
					// left pending for XCLAIM by another watcher
					continue
				}
				q.client.XAck(ctx, key, q.cfg.Group, msg.ID)
			}
		}
	}
}

// Unsubscribe stops the consumer for subject
func (q *RedisQueue) Unsubscribe(subject string) error {
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

// Close stops consumers and closes the client
func (q *RedisQueue) Close() error {
	q.mu.Lock()
	for subject, cancel := range q.cancels {
		cancel()
		delete(q.cancels, subject)
	}
	q.mu.Unlock()

	q.wg.Wait()
	return q.client.Close()
}
