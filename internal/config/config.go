package config

import (
	"fmt"
	"time"
)

// Config represents the complete application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Registry   RegistryConfig   `mapstructure:"registry"`
	Allocation AllocationConfig `mapstructure:"allocation"`
	Discovery  DiscoveryConfig  `mapstructure:"discovery"`
	Events     EventsConfig     `mapstructure:"events"`
	Queue      QueueConfig      `mapstructure:"queue"`
	Etcd       EtcdConfig       `mapstructure:"etcd"`
	Backends   BackendsConfig   `mapstructure:"backends"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host     string `mapstructure:"host"`      // Bind address (e.g., 0.0.0.0 for all interfaces)
	HTTPPort int    `mapstructure:"http_port"` // REST API port
	GRPCPort int    `mapstructure:"grpc_port"` // gRPC health port, 0 disables it
}

// RegistryConfig controls the node registry
type RegistryConfig struct {
	// StalenessThreshold marks nodes Unreachable when last_seen is older.
	// Evaluated lazily by readers, the registry runs no timers.
	StalenessThreshold time.Duration `mapstructure:"staleness_threshold"`
}

// PoolConfig declares a named drive grouping exposed by GET /v1/pools
type PoolConfig struct {
	Name        string   `mapstructure:"name"`
	StorageType string   `mapstructure:"storage_type"` // block, file, object or empty for any
	DriveTypes  []string `mapstructure:"drive_types"`  // nvme, ssd, hdd; empty means all
	Tiers       []string `mapstructure:"tiers"`        // UltraFast, FastNvme, StandardSsd, Hdd
	MinScore    int      `mapstructure:"min_score"`
	MinCapacity string   `mapstructure:"min_capacity"` // per-drive quantity, e.g. "500Gi"
}

// AllocationConfig controls the allocation engine and provisioning commit path
type AllocationConfig struct {
	// StalenessThreshold excludes nodes from candidacy; falls back to
	// registry.staleness_threshold when zero.
	StalenessThreshold time.Duration `mapstructure:"staleness_threshold"`
	MaxCommitRetries   int           `mapstructure:"max_commit_retries"`
	Pools              []PoolConfig  `mapstructure:"pools"`
}

// DiscoveryConfig controls the local hardware discovery feed
type DiscoveryConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	NodeName        string        `mapstructure:"node_name"` // defaults to $NODE_NAME, then hostname
	SysRoot         string        `mapstructure:"sys_root"`
	Interval        time.Duration `mapstructure:"interval"`
	MetricsInterval time.Duration `mapstructure:"metrics_interval"`
	MinDriveBytes   uint64        `mapstructure:"min_drive_bytes"`
	Udev            bool          `mapstructure:"udev"` // rescan on block hotplug (linux only)
}

// EventsConfig controls the in-process event bus and its external forwarder
type EventsConfig struct {
	BufferSize    int    `mapstructure:"buffer_size"` // per-subscriber channel capacity
	Forward       bool   `mapstructure:"forward"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
	Codec         string `mapstructure:"codec"` // json, proto
	Compress      bool   `mapstructure:"compress"`
}

// QueueConfig represents message queue configuration for forwarded events
type QueueConfig struct {
	Type     string `mapstructure:"type"` // nats (default), redis, kafka, memory
	URL      string `mapstructure:"url"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`

	RedisDB       int    `mapstructure:"redis_db"`
	RedisStream   string `mapstructure:"redis_stream"`
	RedisGroup    string `mapstructure:"redis_group"`
	RedisConsumer string `mapstructure:"redis_consumer"`

	KafkaBrokers []string `mapstructure:"kafka_brokers"`
	KafkaGroupID string   `mapstructure:"kafka_group_id"`
}

// EtcdConfig represents etcd configuration. When disabled, storage records
// live in process memory.
type EtcdConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Endpoints   []string      `mapstructure:"endpoints"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	Prefix      string        `mapstructure:"prefix"`
	MirrorNodes bool          `mapstructure:"mirror_nodes"` // publish node summaries for watchers
}

// BackendsConfig selects the platform variant wrapping the storage backends
type BackendsConfig struct {
	Platform string `mapstructure:"platform"` // none, harvester, openstack
}

// AuthConfig represents authentication configuration
type AuthConfig struct {
	Enabled   bool     `mapstructure:"enabled"`
	APIKeys   []string `mapstructure:"api_keys"`
	AgentKeys []string `mapstructure:"agent_keys"` // node agents: read state, push facts and metrics
}

// MetricsConfig controls the prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, file path
	TimeFormat string `mapstructure:"time_format"` // RFC3339, RFC3339Nano, DateTime, Kitchen
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Registry.Validate(); err != nil {
		return fmt.Errorf("registry config: %w", err)
	}

	if err := c.Allocation.Validate(); err != nil {
		return fmt.Errorf("allocation config: %w", err)
	}

	if err := c.Discovery.Validate(); err != nil {
		return fmt.Errorf("discovery config: %w", err)
	}

	if err := c.Events.Validate(); err != nil {
		return fmt.Errorf("events config: %w", err)
	}

	if err := c.Etcd.Validate(); err != nil {
		return fmt.Errorf("etcd config: %w", err)
	}

	if err := c.Backends.Validate(); err != nil {
		return fmt.Errorf("backends config: %w", err)
	}

	if err := c.Auth.Validate(); err != nil {
		return fmt.Errorf("auth config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (c *ServerConfig) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid http_port: %d", c.HTTPPort)
	}

	if c.GRPCPort < 0 || c.GRPCPort > 65535 {
		return fmt.Errorf("invalid grpc_port: %d", c.GRPCPort)
	}

	if c.HTTPPort == c.GRPCPort {
		return fmt.Errorf("http_port and grpc_port cannot be the same")
	}

	return nil
}

// Validate validates registry configuration
func (c *RegistryConfig) Validate() error {
	if c.StalenessThreshold < 0 {
		return fmt.Errorf("staleness_threshold cannot be negative")
	}
	return nil
}

// Validate validates allocation configuration
func (c *AllocationConfig) Validate() error {
	if c.StalenessThreshold < 0 {
		return fmt.Errorf("staleness_threshold cannot be negative")
	}

	if c.MaxCommitRetries < 0 {
		return fmt.Errorf("max_commit_retries cannot be negative")
	}

	seen := make(map[string]bool, len(c.Pools))
	for i, p := range c.Pools {
		if p.Name == "" {
			return fmt.Errorf("pools[%d].name is required", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate pool name: %s", p.Name)
		}
		seen[p.Name] = true
		if p.MinScore < 0 || p.MinScore > 100 {
			return fmt.Errorf("pools[%d].min_score must be within 0..100", i)
		}
	}

	return nil
}

// Validate validates discovery configuration
func (c *DiscoveryConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.SysRoot == "" {
		return fmt.Errorf("sys_root is required when discovery is enabled")
	}

	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}

	if c.MetricsInterval < 0 {
		return fmt.Errorf("metrics_interval cannot be negative")
	}

	return nil
}

// Validate validates events configuration
func (c *EventsConfig) Validate() error {
	if c.BufferSize < 1 {
		return fmt.Errorf("buffer_size must be at least 1")
	}

	if c.Codec != "json" && c.Codec != "proto" {
		return fmt.Errorf("codec must be 'json' or 'proto'")
	}

	if c.Forward && c.SubjectPrefix == "" {
		return fmt.Errorf("subject_prefix is required when forwarding is enabled")
	}

	return nil
}

// Validate validates etcd configuration
func (c *EtcdConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	if len(c.Endpoints) == 0 {
		return fmt.Errorf("etcd.endpoints is required")
	}

	if c.DialTimeout <= 0 {
		return fmt.Errorf("etcd.dial_timeout must be positive")
	}

	return nil
}

// Validate validates backends configuration
func (c *BackendsConfig) Validate() error {
	switch c.Platform {
	case "", "none", "harvester", "openstack":
		return nil
	default:
		return fmt.Errorf("platform must be one of: none, harvester, openstack")
	}
}

// Validate validates authentication configuration
func (c *AuthConfig) Validate() error {
	if c.Enabled && len(c.APIKeys) == 0 {
		return fmt.Errorf("auth.api_keys is required when auth is enabled")
	}
	return nil
}

// Validate validates logging configuration
func (c *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLevels[c.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{
		"json":    true,
		"console": true,
	}

	if !validFormats[c.Format] {
		return fmt.Errorf("logging.format must be 'json' or 'console'")
	}

	return nil
}
