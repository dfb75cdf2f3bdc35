package registry

import (
	"sync"

	"github.com/soltixdb/unistor/internal/classifier"
	"github.com/soltixdb/unistor/internal/hardware"
)

// NodeStore is the ingest/read surface shared by Registry and the unsharded
// baseline, so both can be driven by the same benchmark
type NodeStore interface {
	Ingest(nodeID string, facts []hardware.DriveFacts) (uint64, error)
	Get(nodeID string) (hardware.NodeState, bool)
	UpdateMetrics(nodeID, driveID string, m hardware.DriveMetrics) (uint64, error)
}

var (
	_ NodeStore = (*Registry)(nil)
	_ NodeStore = (*SingleLockStore)(nil)
)

// SingleLockStore keeps every node in one map behind one lock. It performs the
// same validation and classification as Registry and publishes no events.
type SingleLockStore struct {
	mu       sync.RWMutex
	nodes    map[string]*hardware.NodeState
	template *Registry
}

// NewSingleLockStore creates an empty baseline store
func NewSingleLockStore() *SingleLockStore {
	return &SingleLockStore{
		nodes:    make(map[string]*hardware.NodeState),
		template: &Registry{classify: classifier.Evaluate},
	}
}

// Ingest replaces the node's drives under the global lock
func (s *SingleLockStore) Ingest(nodeID string, facts []hardware.DriveFacts) (uint64, error) {
	drives, err := s.template.buildDrives(nodeID, facts)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	gen := uint64(1)
	if prev, ok := s.nodes[nodeID]; ok {
		gen = prev.Generation + 1
	}
	s.nodes[nodeID] = &hardware.NodeState{
		NodeID:     nodeID,
		Phase:      hardware.PhaseReady,
		Drives:     drives,
		Generation: gen,
	}
	return gen, nil
}

// Get copies the node under the global read lock
func (s *SingleLockStore) Get(nodeID string) (hardware.NodeState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.nodes[nodeID]
	if !ok {
		return hardware.NodeState{}, false
	}
	return n.Clone(), true
}

// UpdateMetrics stores a sample under the global lock
func (s *SingleLockStore) UpdateMetrics(nodeID, driveID string, m hardware.DriveMetrics) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[nodeID]
	if !ok {
		return 0, notFound(nodeID, "")
	}
	d, ok := n.Drives[driveID]
	if !ok {
		return 0, notFound(nodeID, driveID)
	}
	d.Metrics = &m
	n.Drives[driveID] = d
	n.Generation++
	return n.Generation, nil
}
