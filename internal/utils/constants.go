package utils

import "time"

// =============================================================================
// Timeout Constants
// =============================================================================

// HTTP Handler Timeouts
const (
	// DefaultRequestTimeout is the default timeout for HTTP requests
	DefaultRequestTimeout = 30 * time.Second

	// ShutdownTimeout bounds graceful shutdown of the HTTP and gRPC servers
	ShutdownTimeout = 10 * time.Second

	// HealthRefreshInterval is how often the gRPC health status is refreshed
	HealthRefreshInterval = 5 * time.Second
)

// Broker Timeouts
const (
	// BrokerConnectTimeout is the timeout for establishing broker connections
	BrokerConnectTimeout = 5 * time.Second

	// ForwardPublishTimeout bounds a single forwarded event publish
	ForwardPublishTimeout = 2 * time.Second
)

// =============================================================================
// Capacity Units
// =============================================================================

const (
	KiB uint64 = 1 << 10
	MiB uint64 = 1 << 20
	GiB uint64 = 1 << 30
	TiB uint64 = 1 << 40

	// SectorSize is the unit of /sys/block/<dev>/size
	SectorSize uint64 = 512
)

// =============================================================================
// Retry and Backoff Constants
// =============================================================================

const (
	// DefaultMaxRetries is the default number of retry attempts
	DefaultMaxRetries = 3

	// DefaultRetryBackoff is the default backoff duration between retries
	DefaultRetryBackoff = 100 * time.Millisecond
)

// =============================================================================
// Buffer and Batch Size Constants
// =============================================================================

const (
	// DefaultQueueBufferSize is the per-subject buffer of the in-memory queue
	DefaultQueueBufferSize = 10000

	// DefaultKafkaBatchSize is the producer batch size
	DefaultKafkaBatchSize = 100
)

// =============================================================================
// Queue Type Constants
// =============================================================================
// QueueType represents the type of message queue
type QueueType string

const (
	// QueueTypeNATS represents NATS JetStream queue (default)
	QueueTypeNATS QueueType = "nats"

	// QueueTypeRedis represents Redis Streams queue
	QueueTypeRedis QueueType = "redis"

	// QueueTypeKafka represents Apache Kafka queue
	QueueTypeKafka QueueType = "kafka"

	// QueueTypeMemory represents in-memory queue (for testing)
	QueueTypeMemory QueueType = "memory"
)
