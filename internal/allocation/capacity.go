package allocation

import (
	"context"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/soltixdb/unistor/internal/events"
	"github.com/soltixdb/unistor/internal/hardware"
	"github.com/soltixdb/unistor/internal/registry"
)

// TierCapacity aggregates one tier
type TierCapacity struct {
	Drives         int    `json:"drives"`
	TotalBytes     uint64 `json:"total_bytes"`
	HealthyBytes   uint64 `json:"healthy_bytes"`
	AvailableBytes uint64 `json:"available_bytes"`
}

// CapacityReport is the cluster-wide view served by GET /v1/capacity
type CapacityReport struct {
	Nodes            int                            `json:"nodes"`
	ReadyNodes       int                            `json:"ready_nodes"`
	UnreachableNodes int                            `json:"unreachable_nodes"`
	Drives           int                            `json:"drives"`
	TotalBytes       uint64                         `json:"total_bytes"`
	HealthyBytes     uint64                         `json:"healthy_bytes"`
	AvailableBytes   uint64                         `json:"available_bytes"`
	Tiers            map[hardware.Tier]TierCapacity `json:"tiers"`
	GeneratedAt      time.Time                      `json:"generated_at"`
}

type driveSummary struct {
	id       string
	tier     hardware.Tier
	capacity uint64
	healthy  bool
}

type nodeSummary struct {
	id       string
	phase    hardware.NodePhase
	lastSeen time.Time
	drives   []driveSummary
}

// shardAggregate remembers the generations it was built from; a mismatch
// with the live registry means it must be rebuilt.
type shardAggregate struct {
	generations map[string]uint64
	nodes       []nodeSummary
}

// CacheStats counts capacity cache outcomes
type CacheStats struct {
	Hits          uint64 `json:"hits"`
	Misses        uint64 `json:"misses"`
	Invalidations uint64 `json:"invalidations"`
}

// CapacityCache keeps per-shard summaries so capacity reports touch only
// shards that changed. Staleness and reservations are applied at read time,
// never cached.
type CapacityCache struct {
	source NodeSource
	engine *Engine

	mu     sync.Mutex
	shards [registry.ShardCount]*shardAggregate

	hits          atomic.Uint64
	misses        atomic.Uint64
	invalidations atomic.Uint64
}

// NewCapacityCache builds a cache over the engine's node source
func NewCapacityCache(e *Engine) *CapacityCache {
	return &CapacityCache{source: e.source, engine: e}
}

// Invalidate drops the aggregate for one shard
func (c *CapacityCache) Invalidate(shard int) {
	if shard < 0 || shard >= registry.ShardCount {
		return
	}
	c.mu.Lock()
	if c.shards[shard] != nil {
		c.shards[shard] = nil
		c.invalidations.Add(1)
	}
	c.mu.Unlock()
}

// HandleEvent invalidates the shard the event's node lives in
func (c *CapacityCache) HandleEvent(e events.Event) {
	c.Invalidate(e.Shard)
}

// Run invalidates from sub until ctx is done or the subscription closes
func (c *CapacityCache) Run(ctx context.Context, sub *events.Subscription) {
	events.Consume(ctx, sub, c.HandleEvent)
}

// Stats returns hit/miss counters
func (c *CapacityCache) Stats() CacheStats {
	return CacheStats{
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Invalidations: c.invalidations.Load(),
	}
}

func (c *CapacityCache) aggregate(idx int) *shardAggregate {
	live := c.source.ShardGenerations(idx)

	c.mu.Lock()
	agg := c.shards[idx]
	c.mu.Unlock()

	if agg != nil && maps.Equal(agg.generations, live) {
		c.hits.Add(1)
		return agg
	}
	c.misses.Add(1)

	nodes := c.source.ListShard(idx)
	agg = &shardAggregate{
		generations: make(map[string]uint64, len(nodes)),
		nodes:       make([]nodeSummary, 0, len(nodes)),
	}
	for i := range nodes {
		n := &nodes[i]
		agg.generations[n.NodeID] = n.Generation
		ns := nodeSummary{id: n.NodeID, phase: n.Phase, lastSeen: n.LastSeen}
		for _, id := range n.SortedDriveIDs() {
			d := n.Drives[id]
			ns.drives = append(ns.drives, driveSummary{
				id:       d.DriveID,
				tier:     d.Tier,
				capacity: d.CapacityBytes,
				healthy:  d.SmartHealth == hardware.HealthHealthy,
			})
		}
		agg.nodes = append(agg.nodes, ns)
	}

	c.mu.Lock()
	c.shards[idx] = agg
	c.mu.Unlock()
	return agg
}

// Capacity sums every shard. Unreachable nodes are counted but contribute
// no bytes.
func (c *CapacityCache) Capacity() CapacityReport {
	now := c.engine.now()
	report := CapacityReport{
		Tiers:       make(map[hardware.Tier]TierCapacity, len(hardware.AllTiers)),
		GeneratedAt: now,
	}
	for _, t := range hardware.AllTiers {
		report.Tiers[t] = TierCapacity{}
	}

	for idx := 0; idx < registry.ShardCount; idx++ {
		agg := c.aggregate(idx)
		for _, n := range agg.nodes {
			report.Nodes++
			ns := hardware.NodeState{Phase: n.phase, LastSeen: n.lastSeen}
			switch ns.EffectivePhase(now, c.engine.staleness) {
			case hardware.PhaseUnreachable:
				report.UnreachableNodes++
				continue
			case hardware.PhaseReady:
				report.ReadyNodes++
			}

			for _, d := range n.drives {
				tc := report.Tiers[d.tier]
				tc.Drives++
				tc.TotalBytes += d.capacity
				report.Drives++
				report.TotalBytes += d.capacity
				if d.healthy {
					free := c.engine.freeBytes(n.id, d.id, d.capacity)
					tc.HealthyBytes += d.capacity
					tc.AvailableBytes += free
					report.HealthyBytes += d.capacity
					report.AvailableBytes += free
				}
				report.Tiers[d.tier] = tc
			}
		}
	}
	return report
}
