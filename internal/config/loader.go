package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Load loads configuration from file, environment and defaults
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/unistor")
	}

	setDefaults(v)

	// UNISTOR_SERVER_HTTP_PORT overrides server.http_port
	v.SetEnvPrefix("UNISTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return parseConfig(v)
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return parseConfig(v)
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.http_port", d.Server.HTTPPort)
	v.SetDefault("server.grpc_port", d.Server.GRPCPort)

	v.SetDefault("registry.staleness_threshold", d.Registry.StalenessThreshold)

	v.SetDefault("allocation.max_commit_retries", d.Allocation.MaxCommitRetries)

	v.SetDefault("discovery.enabled", d.Discovery.Enabled)
	v.SetDefault("discovery.sys_root", d.Discovery.SysRoot)
	v.SetDefault("discovery.interval", d.Discovery.Interval)
	v.SetDefault("discovery.metrics_interval", d.Discovery.MetricsInterval)
	v.SetDefault("discovery.min_drive_bytes", d.Discovery.MinDriveBytes)
	v.SetDefault("discovery.udev", d.Discovery.Udev)

	v.SetDefault("events.buffer_size", d.Events.BufferSize)
	v.SetDefault("events.forward", d.Events.Forward)
	v.SetDefault("events.subject_prefix", d.Events.SubjectPrefix)
	v.SetDefault("events.codec", d.Events.Codec)
	v.SetDefault("events.compress", d.Events.Compress)

	v.SetDefault("queue.type", d.Queue.Type)
	v.SetDefault("queue.url", d.Queue.URL)

	v.SetDefault("etcd.enabled", d.Etcd.Enabled)
	v.SetDefault("etcd.endpoints", d.Etcd.Endpoints)
	v.SetDefault("etcd.dial_timeout", d.Etcd.DialTimeout)
	v.SetDefault("etcd.prefix", d.Etcd.Prefix)

	v.SetDefault("backends.platform", d.Backends.Platform)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.path", d.Metrics.Path)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output_path", d.Logging.OutputPath)
}

func parseConfig(v *viper.Viper) (*Config, error) {
	var cfg Config

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// LoadOrDefault loads configuration from file or returns default config
func LoadOrDefault(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		return DefaultConfig()
	}
	return cfg
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:     "0.0.0.0",
			HTTPPort: 8080,
			GRPCPort: 8081,
		},
		Registry: RegistryConfig{
			StalenessThreshold: 2 * time.Minute,
		},
		Allocation: AllocationConfig{
			MaxCommitRetries: 3,
		},
		Discovery: DiscoveryConfig{
			Enabled:         false,
			SysRoot:         "/sys",
			Interval:        5 * time.Minute,
			MetricsInterval: 30 * time.Second,
			MinDriveBytes:   1_000_000_000,
		},
		Events: EventsConfig{
			BufferSize:    1024,
			SubjectPrefix: "unistor.events",
			Codec:         "json",
		},
		Queue: QueueConfig{
			Type: "nats",
			URL:  "nats://localhost:4222",
		},
		Etcd: EtcdConfig{
			Endpoints:   []string{"http://localhost:2379"},
			DialTimeout: 5 * time.Second,
			Prefix:      "/unistor",
		},
		Backends: BackendsConfig{
			Platform: "none",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			OutputPath: "stdout",
		},
	}
}
