package events

import "github.com/soltixdb/unistor/internal/config"

func queueConfigMemory() config.QueueConfig {
	return config.QueueConfig{Type: "memory"}
}
