package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/soltixdb/unistor/internal/allocation"
	"github.com/soltixdb/unistor/internal/events"
	"github.com/soltixdb/unistor/internal/registry"
)

// RegistrySource reports node registry totals
type RegistrySource interface {
	Stats() registry.Stats
	ShardStats() []registry.ShardStat
}

// CapacitySource reports aggregated capacity
type CapacitySource interface {
	Capacity() allocation.CapacityReport
	Stats() allocation.CacheStats
}

// BusSource reports event bus counters
type BusSource interface {
	Stats() events.BusStats
}

// ForwarderSource reports external event forwarding counters
type ForwarderSource interface {
	Stats() events.ForwarderStats
}

// StateCollector reads registry, capacity and bus state at scrape time.
// Any source may be nil.
type StateCollector struct {
	registry RegistrySource
	capacity CapacitySource
	bus      BusSource
	forward  ForwarderSource

	nodes            *prometheus.Desc
	drives           *prometheus.Desc
	capacityBytes    *prometheus.Desc
	tierBytes        *prometheus.Desc
	registryOps      *prometheus.Desc
	shardContention  *prometheus.Desc
	cacheLookups     *prometheus.Desc
	eventsPublished  *prometheus.Desc
	eventsDropped    *prometheus.Desc
	eventSubscribers *prometheus.Desc
	eventsForwarded  *prometheus.Desc
}

// NewStateCollector creates a collector over the given sources
func NewStateCollector(reg RegistrySource, capacity CapacitySource, bus BusSource) *StateCollector {
	return &StateCollector{
		registry: reg,
		capacity: capacity,
		bus:      bus,
		nodes: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "registry", "nodes"),
			"Registered nodes by effective phase.",
			[]string{"phase"}, nil),
		drives: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "registry", "drives"),
			"Registered drives.",
			nil, nil),
		capacityBytes: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "capacity", "bytes"),
			"Cluster capacity by kind (total, healthy, available).",
			[]string{"kind"}, nil),
		tierBytes: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "capacity", "tier_bytes"),
			"Capacity per performance tier by kind.",
			[]string{"tier", "kind"}, nil),
		registryOps: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "registry", "operations_total"),
			"Registry mutations by operation.",
			[]string{"op"}, nil),
		shardContention: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "registry", "shard_contention_total"),
			"Write lock acquisitions that had to wait, summed over shards.",
			nil, nil),
		cacheLookups: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "capacity", "cache_lookups_total"),
			"Capacity cache shard lookups by result.",
			[]string{"result"}, nil),
		eventsPublished: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "events", "published_total"),
			"Events published on the in-process bus.",
			nil, nil),
		eventsDropped: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "events", "dropped_total"),
			"Events dropped because a subscriber buffer was full.",
			nil, nil),
		eventSubscribers: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "events", "subscribers"),
			"Active event subscribers.",
			nil, nil),
		eventsForwarded: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "events", "forwarded_total"),
			"Events relayed to the external broker by result.",
			[]string{"result"}, nil),
	}
}

// WithForwarder adds the broker forwarder to the collected sources
func (c *StateCollector) WithForwarder(f ForwarderSource) *StateCollector {
	c.forward = f
	return c
}

// Describe implements prometheus.Collector
func (c *StateCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.nodes
	ch <- c.drives
	ch <- c.capacityBytes
	ch <- c.tierBytes
	ch <- c.registryOps
	ch <- c.shardContention
	ch <- c.cacheLookups
	ch <- c.eventsPublished
	ch <- c.eventsDropped
	ch <- c.eventSubscribers
	ch <- c.eventsForwarded
}

// Collect implements prometheus.Collector
func (c *StateCollector) Collect(ch chan<- prometheus.Metric) {
	if c.registry != nil {
		st := c.registry.Stats()
		ch <- prometheus.MustNewConstMetric(c.drives, prometheus.GaugeValue, float64(st.TotalDrives))
		for op, v := range map[string]uint64{
			"register":   st.Registrations,
			"deregister": st.Deregistrations,
			"ingest":     st.Ingests,
			"metrics":    st.MetricUpdates,
			"reclassify": st.Reclassifications,
		} {
			ch <- prometheus.MustNewConstMetric(c.registryOps, prometheus.CounterValue, float64(v), op)
		}

		var contention uint64
		for _, s := range c.registry.ShardStats() {
			contention += s.ContentionCount
		}
		ch <- prometheus.MustNewConstMetric(c.shardContention, prometheus.CounterValue, float64(contention))
	}

	if c.capacity != nil {
		report := c.capacity.Capacity()
		ready := report.ReadyNodes
		unreachable := report.UnreachableNodes
		other := report.Nodes - ready - unreachable
		ch <- prometheus.MustNewConstMetric(c.nodes, prometheus.GaugeValue, float64(ready), "Ready")
		ch <- prometheus.MustNewConstMetric(c.nodes, prometheus.GaugeValue, float64(unreachable), "Unreachable")
		ch <- prometheus.MustNewConstMetric(c.nodes, prometheus.GaugeValue, float64(other), "Other")

		ch <- prometheus.MustNewConstMetric(c.capacityBytes, prometheus.GaugeValue, float64(report.TotalBytes), "total")
		ch <- prometheus.MustNewConstMetric(c.capacityBytes, prometheus.GaugeValue, float64(report.HealthyBytes), "healthy")
		ch <- prometheus.MustNewConstMetric(c.capacityBytes, prometheus.GaugeValue, float64(report.AvailableBytes), "available")
		for tier, tc := range report.Tiers {
			ch <- prometheus.MustNewConstMetric(c.tierBytes, prometheus.GaugeValue, float64(tc.TotalBytes), string(tier), "total")
			ch <- prometheus.MustNewConstMetric(c.tierBytes, prometheus.GaugeValue, float64(tc.AvailableBytes), string(tier), "available")
		}

		cs := c.capacity.Stats()
		ch <- prometheus.MustNewConstMetric(c.cacheLookups, prometheus.CounterValue, float64(cs.Hits), "hit")
		ch <- prometheus.MustNewConstMetric(c.cacheLookups, prometheus.CounterValue, float64(cs.Misses), "miss")
	}

	if c.bus != nil {
		bs := c.bus.Stats()
		ch <- prometheus.MustNewConstMetric(c.eventsPublished, prometheus.CounterValue, float64(bs.Published))
		ch <- prometheus.MustNewConstMetric(c.eventsDropped, prometheus.CounterValue, float64(bs.Dropped))
		ch <- prometheus.MustNewConstMetric(c.eventSubscribers, prometheus.GaugeValue, float64(bs.Subscribers))
	}

	if c.forward != nil {
		fs := c.forward.Stats()
		ch <- prometheus.MustNewConstMetric(c.eventsForwarded, prometheus.CounterValue, float64(fs.Forwarded), "ok")
		ch <- prometheus.MustNewConstMetric(c.eventsForwarded, prometheus.CounterValue, float64(fs.Failed), "error")
	}
}
