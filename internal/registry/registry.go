// Package registry is the in-memory store of per-node hardware facts. Nodes
// are partitioned over 256 independently locked shards; every mutation takes
// exactly one shard lock and only list operations visit more than one shard,
// always in ascending shard order.
package registry

import (
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/soltixdb/unistor/internal/classifier"
	"github.com/soltixdb/unistor/internal/events"
	"github.com/soltixdb/unistor/internal/hardware"
	"github.com/soltixdb/unistor/internal/logging"
)

// ClassifyFunc derives a classification from drive facts
type ClassifyFunc func(f hardware.DriveFacts) hardware.Classification

// NodeMeta carries optional node attributes supplied alongside an ingestion
type NodeMeta struct {
	Labels      map[string]string
	FaultDomain string
}

// AlertThresholds trigger DriveMetricsAlert when a metrics update crosses them
type AlertThresholds struct {
	TemperatureC int
	WearLevel    int
	LatencyP99Us uint64
	Utilization  float64
}

// DefaultAlertThresholds returns the thresholds used when none are configured
func DefaultAlertThresholds() AlertThresholds {
	return AlertThresholds{
		TemperatureC: 70,
		WearLevel:    90,
		LatencyP99Us: 100_000,
		Utilization:  0.95,
	}
}

// Stats is a registry-wide summary
type Stats struct {
	TotalNodes         int    `json:"total_nodes"`
	TotalDrives        int    `json:"total_drives"`
	TotalCapacityBytes uint64 `json:"total_capacity_bytes"`
	Registrations      uint64 `json:"registrations"`
	Deregistrations    uint64 `json:"deregistrations"`
	Ingests            uint64 `json:"ingests"`
	MetricUpdates      uint64 `json:"metric_updates"`
	Reclassifications  uint64 `json:"reclassifications"`
}

// ShardStat describes one shard
type ShardStat struct {
	Shard           int    `json:"shard"`
	NodeCount       int    `json:"node_count"`
	UpdateCount     uint64 `json:"update_count"`
	ContentionCount uint64 `json:"contention_count"`
}

// Option configures a Registry
type Option func(*Registry)

// WithPublisher sets the event sink. Events are published after the shard
// lock is released.
func WithPublisher(p events.Publisher) Option {
	return func(r *Registry) {
		if p != nil {
			r.publisher = p
		}
	}
}

// WithClock overrides time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLogger sets the registry logger
func WithLogger(l *logging.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClassifier replaces the drive classifier
func WithClassifier(fn ClassifyFunc) Option {
	return func(r *Registry) {
		if fn != nil {
			r.classify = fn
		}
	}
}

// WithAlertThresholds sets the DriveMetricsAlert thresholds
func WithAlertThresholds(t AlertThresholds) Option {
	return func(r *Registry) {
		r.thresholds = t
	}
}

// Registry is the sharded node store
type Registry struct {
	shards [ShardCount]shard

	publisher  events.Publisher
	classify   ClassifyFunc
	now        func() time.Time
	logger     *logging.Logger
	thresholds AlertThresholds

	nodeCount         atomic.Int64
	registrations     atomic.Uint64
	deregistrations   atomic.Uint64
	ingests           atomic.Uint64
	metricUpdates     atomic.Uint64
	reclassifications atomic.Uint64
}

// New creates an empty registry
func New(opts ...Option) *Registry {
	r := &Registry{
		publisher:  events.Discard,
		classify:   classifier.Evaluate,
		now:        time.Now,
		logger:     logging.Global(),
		thresholds: DefaultAlertThresholds(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "registry")
	for i := range r.shards {
		r.shards[i].nodes = make(map[string]*hardware.NodeState)
	}
	return r
}

func (r *Registry) shardFor(nodeID string) (*shard, int) {
	idx := ShardKey(nodeID)
	return &r.shards[idx], idx
}

// Register announces a node before its first full scan. A new entry starts in
// phase Discovering with no drives and generation 1. Registering a known node
// is a no-op that returns its current generation.
func (r *Registry) Register(nodeID string, meta *NodeMeta) (uint64, bool, error) {
	if nodeID == "" {
		return 0, false, invalidFacts("", "", "empty node id")
	}

	s, idx := r.shardFor(nodeID)
	now := r.now()

	s.lock()
	if n, ok := s.nodes[nodeID]; ok {
		gen := n.Generation
		s.unlock()
		return gen, false, nil
	}
	n := &hardware.NodeState{
		NodeID:     nodeID,
		Phase:      hardware.PhaseDiscovering,
		Drives:     map[string]hardware.Drive{},
		LastSeen:   now,
		Generation: 1,
	}
	applyMeta(n, meta)
	s.nodes[nodeID] = n
	s.updates.Add(1)
	r.nodeCount.Add(1)
	s.unlock()

	r.registrations.Add(1)
	r.publisher.Publish(events.Event{
		Type:       events.NodeJoined,
		NodeID:     nodeID,
		Shard:      idx,
		Generation: 1,
		Timestamp:  now,
	})
	return 1, true, nil
}

// Ingest replaces the node's drive set with freshly classified facts. See
// IngestWithMeta.
func (r *Registry) Ingest(nodeID string, facts []hardware.DriveFacts) (uint64, error) {
	return r.IngestWithMeta(nodeID, facts, nil)
}

// IngestWithMeta validates and classifies facts, then atomically replaces the
// node's drives, bumps its generation, marks it Ready and refreshes
// last_seen. Any invalid fact rejects the whole call and leaves the prior
// state untouched. Metrics of drives that persist across the scan are kept.
func (r *Registry) IngestWithMeta(nodeID string, facts []hardware.DriveFacts, meta *NodeMeta) (uint64, error) {
	drives, err := r.buildDrives(nodeID, facts)
	if err != nil {
		return 0, err
	}

	s, idx := r.shardFor(nodeID)
	now := r.now()

	s.lock()
	prev, existed := s.nodes[nodeID]
	var changed []events.Event
	gen := uint64(1)
	if existed {
		gen = prev.Generation + 1
		for id, d := range drives {
			old, ok := prev.Drives[id]
			if !ok {
				continue
			}
			if old.Metrics != nil {
				m := *old.Metrics
				d.Metrics = &m
				drives[id] = d
			}
			if classificationChanged(old.Classification, d.Classification) {
				changed = append(changed, reclassifiedEvent(nodeID, idx, d, old.Tier))
			}
		}
		slices.SortFunc(changed, func(a, b events.Event) int {
			return strings.Compare(a.DriveID, b.DriveID)
		})
	}

	n := &hardware.NodeState{
		NodeID:     nodeID,
		Phase:      hardware.PhaseReady,
		Drives:     drives,
		LastSeen:   now,
		Generation: gen,
	}
	if existed {
		n.Labels = prev.Labels
		n.FaultDomain = prev.FaultDomain
	}
	applyMeta(n, meta)
	s.nodes[nodeID] = n
	s.updates.Add(1)
	if !existed {
		r.nodeCount.Add(1)
	}
	capacity := n.TotalCapacity()
	s.unlock()

	r.ingests.Add(1)
	evType := events.NodeUpdated
	if !existed {
		evType = events.NodeJoined
		r.registrations.Add(1)
	}
	r.publisher.Publish(events.Event{
		Type:          evType,
		NodeID:        nodeID,
		Shard:         idx,
		Generation:    gen,
		DriveCount:    len(drives),
		CapacityBytes: capacity,
		Timestamp:     now,
	})
	for _, e := range changed {
		e.Generation = gen
		e.Timestamp = now
		r.publisher.Publish(e)
	}

	r.logger.Debug("Node ingested",
		"node_id", nodeID,
		"shard", idx,
		"generation", gen,
		"drives", len(drives))
	return gen, nil
}

// buildDrives validates facts and classifies them outside any lock
func (r *Registry) buildDrives(nodeID string, facts []hardware.DriveFacts) (map[string]hardware.Drive, error) {
	if nodeID == "" {
		return nil, invalidFacts("", "", "empty node id")
	}

	drives := make(map[string]hardware.Drive, len(facts))
	for _, f := range facts {
		if f.DriveID == "" {
			return nil, invalidFacts(nodeID, "", "empty drive id")
		}
		if f.CapacityBytes == 0 {
			return nil, invalidFacts(nodeID, f.DriveID, "capacity_bytes is zero")
		}
		if _, dup := drives[f.DriveID]; dup {
			return nil, invalidFacts(nodeID, f.DriveID, "duplicate drive id")
		}
		if f.DriveType == "" {
			f.DriveType = hardware.DriveTypeUnknown
		}
		if f.SmartHealth == "" {
			f.SmartHealth = hardware.HealthUnknown
		}
		drives[f.DriveID] = hardware.Drive{
			DriveFacts:     f,
			Classification: r.classify(f),
		}
	}
	return drives, nil
}

// Get returns a copy of the node's state
func (r *Registry) Get(nodeID string) (hardware.NodeState, bool) {
	s, _ := r.shardFor(nodeID)

	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.nodes[nodeID]
	if !ok {
		return hardware.NodeState{}, false
	}
	return n.Clone(), true
}

// Generation returns the node's current generation without copying its state
func (r *Registry) Generation(nodeID string) (uint64, bool) {
	s, _ := r.shardFor(nodeID)

	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.nodes[nodeID]
	if !ok {
		return 0, false
	}
	return n.Generation, true
}

// List snapshots every shard in ascending order. Each shard is consistent on
// its own; the result as a whole is not a single point-in-time view, so
// callers that need more re-validate via generation.
func (r *Registry) List() []hardware.NodeState {
	out := make([]hardware.NodeState, 0, max(0, r.Len()))
	for i := range r.shards {
		out = append(out, r.shards[i].snapshot()...)
	}
	return out
}

// ListShard snapshots a single shard
func (r *Registry) ListShard(idx int) []hardware.NodeState {
	if idx < 0 || idx >= ShardCount {
		return nil
	}
	return r.shards[idx].snapshot()
}

// ShardGenerations returns node_id -> generation for one shard without
// copying drive state
func (r *Registry) ShardGenerations(idx int) map[string]uint64 {
	if idx < 0 || idx >= ShardCount {
		return nil
	}
	s := &r.shards[idx]

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]uint64, len(s.nodes))
	for id, n := range s.nodes {
		out[id] = n.Generation
	}
	return out
}

// UpdateMetrics stores a runtime sample for one drive without reclassifying.
// It bumps the generation and refreshes last_seen; a DriveMetricsAlert is
// published for each threshold the sample newly crosses. Returns the
// generation the update produced.
func (r *Registry) UpdateMetrics(nodeID, driveID string, m hardware.DriveMetrics) (uint64, error) {
	s, idx := r.shardFor(nodeID)
	now := r.now()
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = now
	}

	s.lock()
	n, ok := s.nodes[nodeID]
	if !ok {
		s.unlock()
		return 0, notFound(nodeID, "")
	}
	d, ok := n.Drives[driveID]
	if !ok {
		s.unlock()
		return 0, notFound(nodeID, driveID)
	}

	var before []string
	if d.Metrics != nil {
		before = r.thresholds.crossed(*d.Metrics)
	}
	sample := m
	d.Metrics = &sample
	n.Drives[driveID] = d
	n.Generation++
	n.LastSeen = now
	gen := n.Generation
	s.updates.Add(1)
	s.unlock()

	r.metricUpdates.Add(1)
	for _, alert := range r.thresholds.crossed(m) {
		if slices.Contains(before, alert) {
			continue
		}
		r.publisher.Publish(events.Event{
			Type:       events.DriveMetricsAlert,
			NodeID:     nodeID,
			DriveID:    driveID,
			Shard:      idx,
			Generation: gen,
			Alert:      alert,
			Timestamp:  now,
		})
	}
	return gen, nil
}

// Deregister removes the node and reports whether it existed. A later ingest
// recreates it from generation 1.
func (r *Registry) Deregister(nodeID string) bool {
	s, idx := r.shardFor(nodeID)

	s.lock()
	n, ok := s.nodes[nodeID]
	if ok {
		delete(s.nodes, nodeID)
		s.updates.Add(1)
		r.nodeCount.Add(-1)
	}
	s.unlock()

	if !ok {
		return false
	}

	r.deregistrations.Add(1)
	r.publisher.Publish(events.Event{
		Type:       events.NodeRemoved,
		NodeID:     nodeID,
		Shard:      idx,
		Generation: n.Generation,
		Timestamp:  r.now(),
	})
	r.logger.Info("Node deregistered", "node_id", nodeID, "shard", idx)
	return true
}

// Reclassify re-runs the classifier over the node's stored facts without a
// new scan. The generation is bumped even when nothing changed.
func (r *Registry) Reclassify(nodeID string) (uint64, error) {
	s, idx := r.shardFor(nodeID)
	now := r.now()

	s.lock()
	n, ok := s.nodes[nodeID]
	if !ok {
		s.unlock()
		return 0, notFound(nodeID, "")
	}

	var changed []events.Event
	for _, id := range n.SortedDriveIDs() {
		d := n.Drives[id]
		c := r.classify(d.DriveFacts)
		if classificationChanged(d.Classification, c) {
			prevTier := d.Tier
			d.Classification = c
			changed = append(changed, reclassifiedEvent(nodeID, idx, d, prevTier))
		} else {
			d.Classification = c
		}
		n.Drives[id] = d
	}
	n.Generation++
	gen := n.Generation
	s.updates.Add(1)
	s.unlock()

	r.reclassifications.Add(1)
	r.publisher.Publish(events.Event{
		Type:       events.NodeUpdated,
		NodeID:     nodeID,
		Shard:      idx,
		Generation: gen,
		Timestamp:  now,
	})
	for _, e := range changed {
		e.Generation = gen
		e.Timestamp = now
		r.publisher.Publish(e)
	}
	return gen, nil
}

// Len returns the number of registered nodes. The counter moves under the
// owning shard's write lock, so it is never negative.
func (r *Registry) Len() int {
	return int(r.nodeCount.Load())
}

// Stats walks every shard and returns registry-wide totals
func (r *Registry) Stats() Stats {
	st := Stats{
		Registrations:     r.registrations.Load(),
		Deregistrations:   r.deregistrations.Load(),
		Ingests:           r.ingests.Load(),
		MetricUpdates:     r.metricUpdates.Load(),
		Reclassifications: r.reclassifications.Load(),
	}
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		st.TotalNodes += len(s.nodes)
		for _, n := range s.nodes {
			st.TotalDrives += len(n.Drives)
			st.TotalCapacityBytes += n.TotalCapacity()
		}
		s.mu.RUnlock()
	}
	return st
}

// ShardStats returns per-shard counters in shard order
func (r *Registry) ShardStats() []ShardStat {
	out := make([]ShardStat, ShardCount)
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		count := len(s.nodes)
		s.mu.RUnlock()
		out[i] = ShardStat{
			Shard:           i,
			NodeCount:       count,
			UpdateCount:     s.updates.Load(),
			ContentionCount: s.contention.Load(),
		}
	}
	return out
}

func applyMeta(n *hardware.NodeState, meta *NodeMeta) {
	if meta == nil {
		return
	}
	if meta.Labels != nil {
		n.Labels = make(map[string]string, len(meta.Labels))
		for k, v := range meta.Labels {
			n.Labels[k] = v
		}
	}
	if meta.FaultDomain != "" {
		n.FaultDomain = meta.FaultDomain
	}
}

func classificationChanged(a, b hardware.Classification) bool {
	return a.Tier != b.Tier || a.Score != b.Score || a.ObjectScore != b.ObjectScore || a.SuitableFor != b.SuitableFor
}

func reclassifiedEvent(nodeID string, shard int, d hardware.Drive, prev hardware.Tier) events.Event {
	return events.Event{
		Type:          events.DriveReclassified,
		NodeID:        nodeID,
		DriveID:       d.DriveID,
		Shard:         shard,
		CapacityBytes: d.CapacityBytes,
		PreviousTier:  prev,
		Tier:          d.Tier,
		Score:         d.Score,
	}
}

func (t AlertThresholds) crossed(m hardware.DriveMetrics) []string {
	var alerts []string
	if t.TemperatureC > 0 && m.TemperatureC >= t.TemperatureC {
		alerts = append(alerts, events.AlertHighTemperature)
	}
	if t.WearLevel > 0 && m.WearLevel >= t.WearLevel {
		alerts = append(alerts, events.AlertHighWearLevel)
	}
	if t.LatencyP99Us > 0 && m.LatencyP99Us >= t.LatencyP99Us {
		alerts = append(alerts, events.AlertHighLatency)
	}
	if t.Utilization > 0 && m.Utilization >= t.Utilization {
		alerts = append(alerts, events.AlertHighUtilization)
	}
	return alerts
}
