package config

import (
	"fmt"
	"os"
	"time"
)

// HTTPAddress returns the REST listen address
func (c *Config) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.HTTPPort)
}

// GRPCAddress returns the gRPC listen address, empty when disabled
func (c *Config) GRPCAddress() string {
	if c.Server.GRPCPort == 0 {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.GRPCPort)
}

// EffectiveStaleness returns the allocation staleness threshold, falling back
// to the registry threshold
func (c *Config) EffectiveStaleness() time.Duration {
	if c.Allocation.StalenessThreshold > 0 {
		return c.Allocation.StalenessThreshold
	}
	return c.Registry.StalenessThreshold
}

// ResolveNodeName returns the configured discovery node name, then
// $NODE_NAME (downward API), then the hostname.
func (c *DiscoveryConfig) ResolveNodeName() (string, error) {
	if c.NodeName != "" {
		return c.NodeName, nil
	}
	if name := os.Getenv("NODE_NAME"); name != "" {
		return name, nil
	}
	host, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("failed to resolve node name: %w", err)
	}
	return host, nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Logging.Level == "debug" && c.Logging.Format == "console"
}
