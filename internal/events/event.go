package events

import (
	"time"

	"github.com/soltixdb/unistor/internal/hardware"
)

// Type identifies a registry change
type Type string

const (
	NodeJoined        Type = "NodeJoined"
	NodeUpdated       Type = "NodeUpdated"
	NodeRemoved       Type = "NodeRemoved"
	DriveReclassified Type = "DriveReclassified"
	DriveMetricsAlert Type = "DriveMetricsAlert"
)

// AllTypes lists every event type in declaration order
var AllTypes = []Type{NodeJoined, NodeUpdated, NodeRemoved, DriveReclassified, DriveMetricsAlert}

// Alert kinds carried by DriveMetricsAlert
const (
	AlertHighTemperature = "high_temperature"
	AlertHighWearLevel   = "high_wear_level"
	AlertHighLatency     = "high_latency"
	AlertHighUtilization = "high_utilization"
)

// Event is a registry change notification. Events are hints for cache
// invalidation and watchers; registry reads are always authoritative.
type Event struct {
	Type          Type          `json:"type"`
	NodeID        string        `json:"node_id"`
	DriveID       string        `json:"drive_id,omitempty"`
	Shard         int           `json:"shard"`
	Generation    uint64        `json:"generation"`
	DriveCount    int           `json:"drive_count,omitempty"`
	CapacityBytes uint64        `json:"capacity_bytes,omitempty"`
	PreviousTier  hardware.Tier `json:"previous_tier,omitempty"`
	Tier          hardware.Tier `json:"tier,omitempty"`
	Score         int           `json:"score,omitempty"`
	Alert         string        `json:"alert,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
}

// IsNodeEvent reports whether the event concerns a whole node
func (e Event) IsNodeEvent() bool {
	switch e.Type {
	case NodeJoined, NodeUpdated, NodeRemoved:
		return true
	}
	return false
}

// IsDriveEvent reports whether the event concerns a single drive
func (e Event) IsDriveEvent() bool {
	return e.DriveID != ""
}

// Publisher accepts events from the registry mutation path. Implementations
// must not block.
type Publisher interface {
	Publish(e Event)
}

// PublisherFunc adapts a function to Publisher
type PublisherFunc func(e Event)

// Publish calls f(e)
func (f PublisherFunc) Publish(e Event) { f(e) }

// Discard drops every event
var Discard Publisher = PublisherFunc(func(Event) {})
