package allocation

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/soltixdb/unistor/internal/hardware"
	"github.com/soltixdb/unistor/internal/logging"
	"github.com/soltixdb/unistor/internal/registry"
)

const gib = uint64(1) << 30

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type reservations map[string]uint64

func (r reservations) Reserved(nodeID, driveID string) uint64 {
	return r[nodeID+"/"+driveID]
}

func newTestRegistry(clock *fakeClock) *registry.Registry {
	return registry.New(
		registry.WithClock(clock.Now),
		registry.WithLogger(logging.NewNop()),
	)
}

func newTestEngine(reg *registry.Registry, clock *fakeClock, opts ...Option) *Engine {
	base := []Option{
		WithClock(clock.Now),
		WithLogger(logging.NewNop()),
		WithStaleness(2 * time.Minute),
	}
	return NewEngine(reg, append(base, opts...)...)
}

func ingest(t *testing.T, reg *registry.Registry, nodeID string, facts ...hardware.DriveFacts) {
	t.Helper()
	_, err := reg.Ingest(nodeID, facts)
	require.NoError(t, err)
}

func ingestInDomain(t *testing.T, reg *registry.Registry, nodeID, domain string, facts ...hardware.DriveFacts) {
	t.Helper()
	_, err := reg.IngestWithMeta(nodeID, facts, &registry.NodeMeta{FaultDomain: domain})
	require.NoError(t, err)
}

func nvme(id string, capacity uint64) hardware.DriveFacts {
	return hardware.DriveFacts{
		DriveID:       id,
		DriveType:     hardware.DriveTypeNVMe,
		CapacityBytes: capacity,
		SmartHealth:   hardware.HealthHealthy,
	}
}

func ssd(id string, capacity uint64) hardware.DriveFacts {
	f := nvme(id, capacity)
	f.DriveType = hardware.DriveTypeSSD
	return f
}

func hdd(id string, capacity uint64) hardware.DriveFacts {
	f := nvme(id, capacity)
	f.DriveType = hardware.DriveTypeHDD
	return f
}

func blockReq(capacity uint64) Request {
	return Request{StorageType: hardware.StorageBlock, CapacityBytes: capacity, MinDriveCount: 1}
}
