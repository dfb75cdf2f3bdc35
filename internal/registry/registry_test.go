package registry

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soltixdb/unistor/internal/classifier"
	"github.com/soltixdb/unistor/internal/events"
	"github.com/soltixdb/unistor/internal/hardware"
	"github.com/soltixdb/unistor/internal/logging"
)

const gib = uint64(1) << 30

type eventLog struct {
	mu     sync.Mutex
	events []events.Event
}

func (l *eventLog) Publish(e events.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) types() []events.Type {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]events.Type, len(l.events))
	for i, e := range l.events {
		out[i] = e.Type
	}
	return out
}

func (l *eventLog) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
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

func newTestRegistry(opts ...Option) (*Registry, *eventLog, *fakeClock) {
	log := &eventLog{}
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	base := []Option{
		WithPublisher(log),
		WithClock(clock.Now),
		WithLogger(logging.NewNop()),
	}
	return New(append(base, opts...)...), log, clock
}

func nvme(id string, capacity uint64) hardware.DriveFacts {
	return hardware.DriveFacts{
		DriveID:          id,
		DriveType:        hardware.DriveTypeNVMe,
		CapacityBytes:    capacity,
		SmartHealth:      hardware.HealthHealthy,
		ModelFingerprint: "SAMSUNG MZQL23T8HCLS PM9A3",
	}
}

func hdd(id string, capacity uint64) hardware.DriveFacts {
	return hardware.DriveFacts{
		DriveID:       id,
		DriveType:     hardware.DriveTypeHDD,
		CapacityBytes: capacity,
		SmartHealth:   hardware.HealthHealthy,
	}
}

func TestShardKey_Stable(t *testing.T) {
	tests := []struct {
		nodeID string
		want   int
	}{
		{"node-1", 131},
		{"node-2", 22},
		{"worker-a", 189},
		{"k8s-worker-17", 183},
		{"", 197},
	}

	for _, tt := range tests {
		for i := 0; i < 3; i++ {
			if got := ShardKey(tt.nodeID); got != tt.want {
				t.Errorf("ShardKey(%q) = %d, want %d", tt.nodeID, got, tt.want)
			}
		}
	}
}

func TestShardKey_Spread(t *testing.T) {
	used := make(map[int]bool)
	for i := 0; i < 4096; i++ {
		k := ShardKey(fmt.Sprintf("node-%d", i))
		require.True(t, k >= 0 && k < ShardCount)
		used[k] = true
	}
	// 4096 keys over 256 shards should touch nearly all of them
	assert.Greater(t, len(used), 240)
}

func TestIngest_ThenGet(t *testing.T) {
	r, log, clock := newTestRegistry()

	gen, err := r.Ingest("node-1", []hardware.DriveFacts{nvme("nvme0n1", 100*gib), hdd("sda", 8000*gib)})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), gen)

	n, ok := r.Get("node-1")
	require.True(t, ok)
	assert.Equal(t, hardware.PhaseReady, n.Phase)
	assert.Equal(t, uint64(1), n.Generation)
	assert.Equal(t, clock.Now(), n.LastSeen)
	require.Len(t, n.Drives, 2)

	// classification fields come from a single classifier run over the facts
	for id, d := range n.Drives {
		want := classifier.Evaluate(d.DriveFacts)
		assert.Equal(t, want, d.Classification, "drive %s", id)
	}
	assert.Equal(t, hardware.TierFastNVMe, n.Drives["nvme0n1"].Tier)
	assert.Equal(t, hardware.TierHDD, n.Drives["sda"].Tier)

	assert.Equal(t, []events.Type{events.NodeJoined}, log.types())
	assert.Equal(t, 1, r.Len())
}

func TestGet_Missing(t *testing.T) {
	r, _, _ := newTestRegistry()
	_, ok := r.Get("ghost")
	assert.False(t, ok)

	_, ok = r.Generation("ghost")
	assert.False(t, ok)
}

func TestGet_ReturnsCopy(t *testing.T) {
	r, _, _ := newTestRegistry()
	_, err := r.IngestWithMeta("node-1", []hardware.DriveFacts{nvme("d1", 100*gib)},
		&NodeMeta{Labels: map[string]string{"zone": "a"}})
	require.NoError(t, err)

	n, _ := r.Get("node-1")
	d := n.Drives["d1"]
	d.Score = 1
	n.Drives["d1"] = d
	n.Labels["zone"] = "mutated"
	delete(n.Drives, "d1")

	again, _ := r.Get("node-1")
	require.Contains(t, again.Drives, "d1")
	assert.NotEqual(t, 1, again.Drives["d1"].Score)
	assert.Equal(t, "a", again.Labels["zone"])
}

func TestIngest_InvalidFactsLeavesStateUntouched(t *testing.T) {
	r, log, _ := newTestRegistry()

	_, err := r.Ingest("node-1", []hardware.DriveFacts{nvme("d1", 100*gib)})
	require.NoError(t, err)
	log.reset()

	tests := []struct {
		name  string
		node  string
		facts []hardware.DriveFacts
	}{
		{"zero capacity", "node-1", []hardware.DriveFacts{nvme("d2", 50*gib), nvme("d3", 0)}},
		{"empty drive id", "node-1", []hardware.DriveFacts{nvme("", 50*gib)}},
		{"duplicate drive id", "node-1", []hardware.DriveFacts{nvme("d2", 50*gib), nvme("d2", 60*gib)}},
		{"empty node id", "", []hardware.DriveFacts{nvme("d2", 50*gib)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Ingest(tt.node, tt.facts)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidFacts), "got %v", err)
			assert.False(t, errors.Is(err, ErrNotFound))

			n, ok := r.Get("node-1")
			require.True(t, ok)
			assert.Equal(t, uint64(1), n.Generation)
			assert.Len(t, n.Drives, 1)
			assert.Contains(t, n.Drives, "d1")
		})
	}
	assert.Empty(t, log.types(), "rejected ingests publish nothing")
}

func TestIngest_DefaultsUnknownFields(t *testing.T) {
	r, _, _ := newTestRegistry()
	_, err := r.Ingest("node-1", []hardware.DriveFacts{{DriveID: "x", CapacityBytes: 10 * gib}})
	require.NoError(t, err)

	n, _ := r.Get("node-1")
	d := n.Drives["x"]
	assert.Equal(t, hardware.DriveTypeUnknown, d.DriveType)
	assert.Equal(t, hardware.HealthUnknown, d.SmartHealth)
	assert.Equal(t, hardware.TierStandardSSD, d.Tier)
}

func TestGeneration_MonotonicAndResetAfterDeregister(t *testing.T) {
	r, log, _ := newTestRegistry()
	facts := []hardware.DriveFacts{nvme("d1", 100*gib)}

	var last uint64
	for i := 0; i < 5; i++ {
		gen, err := r.Ingest("node-1", facts)
		require.NoError(t, err)
		assert.Greater(t, gen, last)
		last = gen
	}
	assert.Equal(t, last+1, mustUpdateMetrics(t, r, "node-1", "d1", hardware.DriveMetrics{IOPS: 10}))
	gen, _ := r.Generation("node-1")
	assert.Equal(t, last+1, gen)

	assert.True(t, r.Deregister("node-1"))
	assert.False(t, r.Deregister("node-1"))
	_, ok := r.Get("node-1")
	assert.False(t, ok)
	assert.Equal(t, 0, r.Len())

	gen, err := r.Ingest("node-1", facts)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), gen)

	types := log.types()
	assert.Equal(t, events.NodeJoined, types[0])
	assert.Contains(t, types, events.NodeRemoved)
	assert.Equal(t, events.NodeJoined, types[len(types)-1])
}

func TestIngest_PreservesMetricsForSurvivingDrives(t *testing.T) {
	r, _, _ := newTestRegistry()
	_, err := r.Ingest("node-1", []hardware.DriveFacts{nvme("d1", 100*gib), nvme("d2", 100*gib)})
	require.NoError(t, err)
	mustUpdateMetrics(t, r, "node-1", "d1", hardware.DriveMetrics{IOPS: 5000})

	_, err = r.Ingest("node-1", []hardware.DriveFacts{nvme("d1", 100*gib), nvme("d3", 100*gib)})
	require.NoError(t, err)

	n, _ := r.Get("node-1")
	require.NotNil(t, n.Drives["d1"].Metrics)
	assert.Equal(t, uint64(5000), n.Drives["d1"].Metrics.IOPS)
	assert.Nil(t, n.Drives["d3"].Metrics)
	assert.NotContains(t, n.Drives, "d2")
}

func TestIngest_EmitsDriveReclassified(t *testing.T) {
	r, log, _ := newTestRegistry()
	_, err := r.Ingest("node-1", []hardware.DriveFacts{nvme("d1", 100*gib)})
	require.NoError(t, err)
	log.reset()

	degraded := nvme("d1", 100*gib)
	degraded.SmartHealth = hardware.HealthDegraded
	gen, err := r.Ingest("node-1", []hardware.DriveFacts{degraded})
	require.NoError(t, err)

	assert.Equal(t, []events.Type{events.NodeUpdated, events.DriveReclassified}, log.types())
	e := log.events[1]
	assert.Equal(t, "d1", e.DriveID)
	assert.Equal(t, gen, e.Generation)
	assert.Equal(t, 45, e.Score)
	assert.Equal(t, ShardKey("node-1"), e.Shard)
}

func TestRegister_ThenIngest(t *testing.T) {
	r, log, _ := newTestRegistry()

	gen, created, err := r.Register("node-1", &NodeMeta{FaultDomain: "rack-1"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, uint64(1), gen)

	n, _ := r.Get("node-1")
	assert.Equal(t, hardware.PhaseDiscovering, n.Phase)
	assert.Empty(t, n.Drives)

	gen, created, err = r.Register("node-1", nil)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, uint64(1), gen)

	gen, err = r.Ingest("node-1", []hardware.DriveFacts{hdd("sda", 4000*gib)})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), gen)

	n, _ = r.Get("node-1")
	assert.Equal(t, hardware.PhaseReady, n.Phase)
	assert.Equal(t, "rack-1", n.FaultDomain, "meta survives ingest without meta")
	assert.Equal(t, []events.Type{events.NodeJoined, events.NodeUpdated}, log.types())

	_, _, err = r.Register("", nil)
	assert.ErrorIs(t, err, ErrInvalidFacts)
}

func TestUpdateMetrics(t *testing.T) {
	r, log, clock := newTestRegistry()
	_, err := r.Ingest("node-1", []hardware.DriveFacts{nvme("d1", 100*gib)})
	require.NoError(t, err)
	log.reset()

	_, err = r.UpdateMetrics("ghost", "d1", hardware.DriveMetrics{})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.UpdateMetrics("node-1", "missing", hardware.DriveMetrics{})
	assert.ErrorIs(t, err, ErrNotFound)

	clock.Advance(time.Minute)
	mustUpdateMetrics(t, r, "node-1", "d1", hardware.DriveMetrics{IOPS: 100, TemperatureC: 40})

	n, _ := r.Get("node-1")
	m := n.Drives["d1"].Metrics
	require.NotNil(t, m)
	assert.Equal(t, uint64(100), m.IOPS)
	assert.Equal(t, clock.Now(), m.UpdatedAt)
	assert.Equal(t, clock.Now(), n.LastSeen)
	// classification untouched
	assert.Equal(t, classifier.Evaluate(n.Drives["d1"].DriveFacts), n.Drives["d1"].Classification)
	assert.Empty(t, log.types(), "plain metric refresh emits nothing")
}

func TestUpdateMetrics_AlertsAreEdgeTriggered(t *testing.T) {
	r, log, _ := newTestRegistry()
	_, err := r.Ingest("node-1", []hardware.DriveFacts{nvme("d1", 100*gib)})
	require.NoError(t, err)
	log.reset()

	hot := hardware.DriveMetrics{TemperatureC: 75}
	mustUpdateMetrics(t, r, "node-1", "d1", hot)
	mustUpdateMetrics(t, r, "node-1", "d1", hot)
	require.Len(t, log.events, 1)
	assert.Equal(t, events.DriveMetricsAlert, log.events[0].Type)
	assert.Equal(t, events.AlertHighTemperature, log.events[0].Alert)

	worn := hardware.DriveMetrics{TemperatureC: 75, WearLevel: 95}
	mustUpdateMetrics(t, r, "node-1", "d1", worn)
	require.Len(t, log.events, 2)
	assert.Equal(t, events.AlertHighWearLevel, log.events[1].Alert)

	// cooling down and heating again re-arms the alert
	mustUpdateMetrics(t, r, "node-1", "d1", hardware.DriveMetrics{})
	mustUpdateMetrics(t, r, "node-1", "d1", hot)
	assert.Len(t, log.events, 3)
}

func TestReclassify(t *testing.T) {
	penalize := false
	custom := func(f hardware.DriveFacts) hardware.Classification {
		c := classifier.Evaluate(f)
		if penalize {
			c.Score = 10
		}
		return c
	}
	r, log, _ := newTestRegistry(WithClassifier(custom))

	_, err := r.Ingest("node-1", []hardware.DriveFacts{nvme("a", 100*gib), nvme("b", 100*gib)})
	require.NoError(t, err)
	log.reset()

	gen, err := r.Reclassify("node-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), gen)
	assert.Equal(t, []events.Type{events.NodeUpdated}, log.types(), "no change, no DriveReclassified")
	log.reset()

	penalize = true
	gen, err = r.Reclassify("node-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), gen)
	assert.Equal(t, []events.Type{events.NodeUpdated, events.DriveReclassified, events.DriveReclassified}, log.types())
	assert.Equal(t, "a", log.events[1].DriveID)
	assert.Equal(t, "b", log.events[2].DriveID)

	n, _ := r.Get("node-1")
	assert.Equal(t, 10, n.Drives["a"].Score)

	_, err = r.Reclassify("ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestList_ShardOrder(t *testing.T) {
	r, _, _ := newTestRegistry()
	for i := 0; i < 100; i++ {
		_, err := r.Ingest(fmt.Sprintf("node-%03d", i), []hardware.DriveFacts{hdd("sda", 1000*gib)})
		require.NoError(t, err)
	}

	list := r.List()
	require.Len(t, list, 100)
	for i := 1; i < len(list); i++ {
		prev, cur := list[i-1], list[i]
		ps, cs := ShardKey(prev.NodeID), ShardKey(cur.NodeID)
		if ps > cs || (ps == cs && prev.NodeID >= cur.NodeID) {
			t.Fatalf("list out of order at %d: %s(shard %d) before %s(shard %d)", i, prev.NodeID, ps, cur.NodeID, cs)
		}
	}

	idx := ShardKey("node-007")
	found := false
	for _, n := range r.ListShard(idx) {
		assert.Equal(t, idx, ShardKey(n.NodeID))
		if n.NodeID == "node-007" {
			found = true
		}
	}
	assert.True(t, found)
	assert.Nil(t, r.ListShard(-1))
	assert.Nil(t, r.ListShard(ShardCount))
}

func TestStats(t *testing.T) {
	r, _, _ := newTestRegistry()
	_, _ = r.Ingest("a", []hardware.DriveFacts{nvme("d1", 100*gib), hdd("d2", 1000*gib)})
	_, _ = r.Ingest("b", []hardware.DriveFacts{hdd("d1", 500*gib)})
	_, _ = r.Ingest("b", []hardware.DriveFacts{hdd("d1", 500*gib)})
	_, _ = r.UpdateMetrics("a", "d1", hardware.DriveMetrics{})
	r.Deregister("b")

	st := r.Stats()
	assert.Equal(t, 1, st.TotalNodes)
	assert.Equal(t, 2, st.TotalDrives)
	assert.Equal(t, 1100*gib, st.TotalCapacityBytes)
	assert.Equal(t, uint64(2), st.Registrations)
	assert.Equal(t, uint64(1), st.Deregistrations)
	assert.Equal(t, uint64(3), st.Ingests)
	assert.Equal(t, uint64(1), st.MetricUpdates)

	shards := r.ShardStats()
	require.Len(t, shards, ShardCount)
	a := shards[ShardKey("a")]
	assert.Equal(t, 1, a.NodeCount)
	assert.Equal(t, uint64(2), a.UpdateCount)
	b := shards[ShardKey("b")]
	assert.Equal(t, 0, b.NodeCount)
	assert.Equal(t, uint64(3), b.UpdateCount)
}

func TestEffectivePhase_Staleness(t *testing.T) {
	r, _, clock := newTestRegistry()
	_, err := r.Ingest("node-1", []hardware.DriveFacts{hdd("sda", 1000*gib)})
	require.NoError(t, err)

	n, _ := r.Get("node-1")
	assert.Equal(t, hardware.PhaseReady, n.EffectivePhase(clock.Now(), time.Minute))

	clock.Advance(2 * time.Minute)
	n, _ = r.Get("node-1")
	assert.Equal(t, hardware.PhaseUnreachable, n.EffectivePhase(clock.Now(), time.Minute))
	assert.Equal(t, hardware.PhaseReady, n.Phase, "staleness is never written back")
	assert.Equal(t, hardware.PhaseReady, n.EffectivePhase(clock.Now(), 0))
}

func TestConcurrentAccess(t *testing.T) {
	bus := events.NewBus(16, logging.NewNop())
	defer bus.Close()
	r := New(WithPublisher(bus), WithLogger(logging.NewNop()))

	const writers = 16
	const rounds = 200

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			node := fmt.Sprintf("node-%d", w)
			for i := 0; i < rounds; i++ {
				if _, err := r.Ingest(node, []hardware.DriveFacts{nvme("d1", 100*gib), hdd("d2", 1000*gib)}); err != nil {
					t.Errorf("ingest: %v", err)
					return
				}
				_, _ = r.UpdateMetrics(node, "d1", hardware.DriveMetrics{IOPS: uint64(i)})
				if n, ok := r.Get(node); ok && len(n.Drives) != 2 {
					t.Errorf("torn read: %d drives", len(n.Drives))
				}
			}
		}(w)
	}
	for rd := 0; rd < 4; rd++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				for _, n := range r.List() {
					if len(n.Drives) != 2 {
						t.Errorf("torn list entry %s", n.NodeID)
					}
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, writers, r.Len())
	for w := 0; w < writers; w++ {
		gen, ok := r.Generation(fmt.Sprintf("node-%d", w))
		require.True(t, ok)
		assert.Equal(t, uint64(2*rounds), gen)
	}
}

func TestConcurrentIngestDeregisterList(t *testing.T) {
	r := New(WithLogger(logging.NewNop()))
	facts := []hardware.DriveFacts{nvme("d1", 100*gib)}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					_, _ = r.Ingest("churn", facts)
				}
			}
		}()
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					r.Deregister("churn")
				}
			}
		}()
	}

	for i := 0; i < 20000; i++ {
		if l := r.Len(); l < 0 || l > 1 {
			t.Fatalf("Len() = %d, want 0 or 1", l)
		}
		if nodes := r.List(); len(nodes) > 1 {
			t.Fatalf("List() returned %d nodes, want at most 1", len(nodes))
		}
	}
	close(stop)
	wg.Wait()

	_, ok := r.Get("churn")
	want := 0
	if ok {
		want = 1
	}
	assert.Equal(t, want, r.Len())
}

func TestErrorMessages(t *testing.T) {
	err := invalidFacts("node-1", "d1", "capacity_bytes is zero")
	assert.Equal(t, `registry: invalid facts: node "node-1" drive "d1": capacity_bytes is zero`, err.Error())
	assert.Equal(t, `registry: not found: node "x"`, notFound("x", "").Error())

	wrapped := fmt.Errorf("ingest: %w", err)
	assert.ErrorIs(t, wrapped, ErrInvalidFacts)
}

func TestShardGenerations(t *testing.T) {
	r, _, _ := newTestRegistry()
	_, _ = r.Ingest("node-1", []hardware.DriveFacts{hdd("sda", 1000*gib)})
	_, _ = r.Ingest("node-1", []hardware.DriveFacts{hdd("sda", 1000*gib)})

	gens := r.ShardGenerations(ShardKey("node-1"))
	assert.Equal(t, map[string]uint64{"node-1": 2}, gens)
	assert.Empty(t, r.ShardGenerations(ShardKey("node-2")))
	assert.Nil(t, r.ShardGenerations(999))
}

func mustUpdateMetrics(t *testing.T, r *Registry, nodeID, driveID string, m hardware.DriveMetrics) uint64 {
	t.Helper()
	gen, err := r.UpdateMetrics(nodeID, driveID, m)
	require.NoError(t, err)
	return gen
}
