// Package metadata persists control-plane state that must outlive the
// process: storage records and, for external watchers, node summaries.
// etcd is the durable implementation; MemoryStore serves single-process
// deployments and tests.
package metadata

import (
	"context"
	"errors"
	"time"

	"github.com/soltixdb/unistor/internal/backends"
	"github.com/soltixdb/unistor/internal/hardware"
)

// ErrNotFound is returned by typed lookups of absent records
var ErrNotFound = errors.New("record not found")

// Store is a flat key-value store. Get returns "" and no error for a
// missing key.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	GetPrefix(ctx context.Context, prefix string) (map[string]string, error)
	Close() error
}

// StorageStatus is the lifecycle of a provisioned storage resource
type StorageStatus string

const (
	StatusBound    StorageStatus = "Bound"
	StatusReleased StorageStatus = "Released"
)

// StorageRecord is one provisioned resource and its reservation
type StorageRecord struct {
	ID            string               `json:"id"`
	Name          string               `json:"name"`
	StorageType   hardware.StorageType `json:"storage_type"`
	CapacityBytes uint64               `json:"capacity_bytes"`
	Tier          string               `json:"tier"`
	DriveType     string               `json:"drive_type"`
	Replication   int                  `json:"replication"`
	Labels        map[string]string    `json:"labels,omitempty"`
	Status        StorageStatus        `json:"status"`
	Handle        *backends.Handle     `json:"handle"`
	Attempts      int                  `json:"attempts"`
	CreatedAt     time.Time            `json:"created_at"`
}

// NodeSummary is the compact node view mirrored for watchers
type NodeSummary struct {
	NodeID        string             `json:"node_id"`
	Phase         hardware.NodePhase `json:"phase"`
	Generation    uint64             `json:"generation"`
	Shard         int                `json:"shard"`
	DriveCount    int                `json:"drive_count"`
	CapacityBytes uint64             `json:"capacity_bytes"`
	Tiers         map[string]int     `json:"tiers,omitempty"`
	FaultDomain   string             `json:"fault_domain,omitempty"`
	LastSeen      time.Time          `json:"last_seen"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// SummarizeNode builds the mirrored view of a registry node
func SummarizeNode(n *hardware.NodeState, shard int, now time.Time) NodeSummary {
	s := NodeSummary{
		NodeID:        n.NodeID,
		Phase:         n.Phase,
		Generation:    n.Generation,
		Shard:         shard,
		DriveCount:    len(n.Drives),
		CapacityBytes: n.TotalCapacity(),
		FaultDomain:   n.FaultDomain,
		LastSeen:      n.LastSeen,
		UpdatedAt:     now,
	}
	if len(n.Drives) > 0 {
		s.Tiers = make(map[string]int)
		for _, d := range n.Drives {
			s.Tiers[string(d.Tier)]++
		}
	}
	return s
}
