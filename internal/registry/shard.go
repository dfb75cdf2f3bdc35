package registry

import (
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/cpu"

	"github.com/soltixdb/unistor/internal/hardware"
)

// ShardCount is the fixed number of registry partitions. It never changes at
// runtime, so a node keeps its shard for as long as it is registered.
const ShardCount = 256

const (
	fnvOffset32 = 2166136261
	fnvPrime32  = 16777619
)

// ShardKey returns the shard owning nodeID: FNV-1a(nodeID) mod 256. The hash
// is unseeded, so the mapping is stable across processes.
func ShardKey(nodeID string) int {
	h := uint32(fnvOffset32)
	for i := 0; i < len(nodeID); i++ {
		h ^= uint32(nodeID[i])
		h *= fnvPrime32
	}
	return int(h % ShardCount)
}

// shard owns the NodeState of every node hashing to it. Padding keeps the
// lock and counters of adjacent shards on separate cache lines.
type shard struct {
	_          cpu.CacheLinePad
	mu         sync.RWMutex
	nodes      map[string]*hardware.NodeState
	updates    atomic.Uint64
	contention atomic.Uint64
	_          cpu.CacheLinePad
}

// lock takes the write lock, counting the acquisitions that had to wait
func (s *shard) lock() {
	if s.mu.TryLock() {
		return
	}
	s.contention.Add(1)
	s.mu.Lock()
}

func (s *shard) unlock() {
	s.mu.Unlock()
}

// snapshot copies every node of the shard in NodeID order
func (s *shard) snapshot() []hardware.NodeState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]hardware.NodeState, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, n.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NodeID < out[j].NodeID })
	return out
}
