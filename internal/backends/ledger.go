package backends

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/soltixdb/unistor/internal/allocation"
)

func driveKey(nodeID, driveID string) string {
	return nodeID + "/" + driveID
}

// Ledger records reserved bytes per drive. All backends share one ledger
// because block, file and object placements can land on the same drive.
type Ledger struct {
	nodes NodeReader
	now   func() time.Time

	mu       sync.RWMutex
	handles  map[string]*Handle
	reserved map[string]uint64
}

// NewLedger creates an empty ledger validating against nodes
func NewLedger(nodes NodeReader) *Ledger {
	return &Ledger{
		nodes:    nodes,
		now:      time.Now,
		handles:  make(map[string]*Handle),
		reserved: make(map[string]uint64),
	}
}

// Reserved returns committed bytes on one drive
func (l *Ledger) Reserved(nodeID, driveID string) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.reserved[driveKey(nodeID, driveID)]
}

// Len returns the number of live handles
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.handles)
}

// Get returns a copy of a handle
func (l *Ledger) Get(id string) (*Handle, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	h, ok := l.handles[id]
	if !ok {
		return nil, false
	}
	return cloneHandle(h), true
}

// commit validates every node generation and drive headroom, then records
// the placements. Validation and recording happen under one lock so two
// commits cannot both claim the same free bytes.
func (l *Ledger) commit(res *allocation.Result, b Backend, prefix string, attrs map[string]string) (*Handle, error) {
	if res == nil || len(res.Placements) == 0 {
		return nil, fmt.Errorf("empty allocation result")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	snapshots := make(map[string]map[string]uint64, len(res.Generations))
	for nodeID, want := range res.Generations {
		n, ok := l.nodes.Get(nodeID)
		if !ok {
			return nil, &ConflictError{Err: ErrGenerationMismatch, NodeID: nodeID, Expected: want}
		}
		if n.Generation != want {
			return nil, &ConflictError{Err: ErrGenerationMismatch, NodeID: nodeID, Expected: want, Actual: n.Generation}
		}
		caps := make(map[string]uint64, len(n.Drives))
		for id, d := range n.Drives {
			caps[id] = d.CapacityBytes
		}
		snapshots[nodeID] = caps
	}

	pending := make(map[string]uint64, len(res.Placements))
	for _, p := range res.Placements {
		key := driveKey(p.NodeID, p.DriveID)
		capacity := snapshots[p.NodeID][p.DriveID]
		used := l.reserved[key] + pending[key]
		var free uint64
		if capacity > used {
			free = capacity - used
		}
		if p.BytesReserved > free {
			return nil, &ConflictError{Err: ErrDriveFull, NodeID: p.NodeID, DriveID: p.DriveID, Expected: p.BytesReserved, Actual: free}
		}
		pending[key] += p.BytesReserved
	}

	h := &Handle{
		ID:          prefix + uuid.NewString(),
		Backend:     b.Name(),
		StorageType: b.Kind(),
		Placements:  append([]allocation.Placement(nil), res.Placements...),
		Attributes:  attrs,
		CreatedAt:   l.now(),
	}
	for key, b := range pending {
		l.reserved[key] += b
	}
	l.handles[h.ID] = h
	return cloneHandle(h), nil
}

// Restore re-records a handle persisted before a restart without
// validating generations
func (l *Ledger) Restore(h *Handle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.handles[h.ID]; exists {
		return
	}
	c := cloneHandle(h)
	for _, p := range c.Placements {
		l.reserved[driveKey(p.NodeID, p.DriveID)] += p.BytesReserved
	}
	l.handles[c.ID] = c
}

func (l *Ledger) release(_ context.Context, b Backend, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	h, ok := l.handles[id]
	if !ok || h.StorageType != b.Kind() {
		return fmt.Errorf("%w: %s", ErrHandleNotFound, id)
	}
	for _, p := range h.Placements {
		key := driveKey(p.NodeID, p.DriveID)
		if l.reserved[key] <= p.BytesReserved {
			delete(l.reserved, key)
		} else {
			l.reserved[key] -= p.BytesReserved
		}
	}
	delete(l.handles, id)
	return nil
}

func cloneHandle(h *Handle) *Handle {
	c := *h
	c.Placements = append([]allocation.Placement(nil), h.Placements...)
	c.Attributes = maps.Clone(h.Attributes)
	return &c
}
