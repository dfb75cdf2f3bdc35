// Package backends commits allocation results as reservations. A Backend
// owns one storage type; platform variants wrap a Backend and add the
// names their platform expects. Every Reserve re-validates the node
// generations captured by the allocation engine, so a result computed
// against an outdated registry view is rejected rather than committed.
package backends

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/soltixdb/unistor/internal/allocation"
	"github.com/soltixdb/unistor/internal/hardware"
)

var (
	// ErrGenerationMismatch means a placement node changed since allocation
	ErrGenerationMismatch = errors.New("node generation changed since allocation")
	// ErrDriveFull means a drive no longer has room for its placement
	ErrDriveFull = errors.New("drive has insufficient unreserved capacity")
	// ErrHandleNotFound is returned by Release for unknown handles
	ErrHandleNotFound = errors.New("reservation handle not found")
	// ErrUnsupported means the backend or platform cannot serve the storage type
	ErrUnsupported = errors.New("storage type not supported")
)

// ConflictError wraps ErrGenerationMismatch or ErrDriveFull with the node
// and drive involved
type ConflictError struct {
	Err      error
	NodeID   string
	DriveID  string
	Expected uint64
	Actual   uint64
}

func (e *ConflictError) Error() string {
	if errors.Is(e.Err, ErrGenerationMismatch) {
		return fmt.Sprintf("node %s: %v (expected %d, got %d)", e.NodeID, e.Err, e.Expected, e.Actual)
	}
	return fmt.Sprintf("node %s drive %s: %v (need %d, free %d)", e.NodeID, e.DriveID, e.Err, e.Expected, e.Actual)
}

func (e *ConflictError) Unwrap() error {
	return e.Err
}

// IsConflict reports whether err is worth retrying with a fresh allocation
func IsConflict(err error) bool {
	return errors.Is(err, ErrGenerationMismatch) || errors.Is(err, ErrDriveFull)
}

// NodeReader is the registry view backends validate against
type NodeReader interface {
	Get(nodeID string) (hardware.NodeState, bool)
}

// Constraints carries request attributes that backends and platforms
// translate into their own parameters
type Constraints struct {
	Name     string
	Tier     allocation.TierPreference
	Replicas int
	Labels   map[string]string
}

// Handle identifies a committed reservation
type Handle struct {
	ID          string                 `json:"id"`
	Backend     string                 `json:"backend"`
	StorageType hardware.StorageType   `json:"storage_type"`
	Placements  []allocation.Placement `json:"placements"`
	Attributes  map[string]string      `json:"attributes,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

// Bytes sums reserved bytes over all placements
func (h *Handle) Bytes() uint64 {
	var total uint64
	for _, p := range h.Placements {
		total += p.BytesReserved
	}
	return total
}

// Backend is the capability every storage provider exposes
type Backend interface {
	Name() string
	Kind() hardware.StorageType
	Reserve(ctx context.Context, res *allocation.Result, c Constraints) (*Handle, error)
	Release(ctx context.Context, handleID string) error
	Reserved(nodeID, driveID string) uint64
}
