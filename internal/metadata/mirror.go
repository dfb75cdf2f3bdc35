package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"sync/atomic"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/soltixdb/unistor/internal/events"
	"github.com/soltixdb/unistor/internal/hardware"
	"github.com/soltixdb/unistor/internal/logging"
)

// NodeLister is the registry view the mirror reads from
type NodeLister interface {
	Get(nodeID string) (hardware.NodeState, bool)
	List() []hardware.NodeState
}

// ShardFunc maps a node id to its registry shard
type ShardFunc func(nodeID string) int

// NodeMirror publishes node summaries under <prefix>/nodes/<id>, all bound
// to one lease. If this process dies the lease expires and the mirror
// disappears with it, so watchers never see a stale control plane's view.
type NodeMirror struct {
	store    *EtcdStore
	nodes    NodeLister
	shardOf  ShardFunc
	prefix   string
	ttl      int64
	resync   time.Duration
	logger   *logging.Logger
	leaseID  atomic.Int64
	written  atomic.Uint64
	failures atomic.Uint64
}

// NewNodeMirror creates a mirror; call Run to start it
func NewNodeMirror(store *EtcdStore, nodes NodeLister, shardOf ShardFunc, prefix string, logger *logging.Logger) *NodeMirror {
	if prefix == "" {
		prefix = "/unistor"
	}
	if logger == nil {
		logger = logging.Global()
	}
	return &NodeMirror{
		store:   store,
		nodes:   nodes,
		shardOf: shardOf,
		prefix:  path.Join(prefix, "nodes"),
		ttl:     10,
		resync:  30 * time.Second,
		logger:  logger.With("component", "node_mirror"),
	}
}

// Key returns the etcd key for a node
func (m *NodeMirror) Key(nodeID string) string {
	return path.Join(m.prefix, nodeID)
}

// Written counts successful summary writes
func (m *NodeMirror) Written() uint64 {
	return m.written.Load()
}

// Failures counts failed writes and deletes
func (m *NodeMirror) Failures() uint64 {
	return m.failures.Load()
}

// Start grants the lease and writes every current node. It returns once
// the initial sync is done; Run then keeps the mirror current.
func (m *NodeMirror) Start(ctx context.Context) error {
	lease, err := m.store.Client().Grant(ctx, m.ttl)
	if err != nil {
		return fmt.Errorf("failed to create lease: %w", err)
	}
	m.leaseID.Store(int64(lease.ID))
	m.logger.Info("Lease created", "lease_id", int64(lease.ID), "ttl", m.ttl)

	m.syncAll(ctx)
	return nil
}

// Run applies events from sub, keeps the lease alive and periodically
// rewrites every node. It returns when ctx is cancelled.
func (m *NodeMirror) Run(ctx context.Context, sub *events.Subscription) {
	lease := clientv3.LeaseID(m.leaseID.Load())
	ka, err := m.store.Client().KeepAlive(ctx, lease)
	if err != nil {
		m.logger.Error("Failed to start keep-alive", "error", err)
		return
	}

	ticker := time.NewTicker(m.resync)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Node mirror stopped")
			return

		case resp, ok := <-ka:
			if !ok {
				if ctx.Err() != nil {
					return
				}
				m.logger.Warn("Keep-alive channel closed, re-granting lease")
				if err := m.Start(ctx); err != nil {
					m.logger.Error("Failed to re-grant lease", "error", err)
					return
				}
				ka, err = m.store.Client().KeepAlive(ctx, clientv3.LeaseID(m.leaseID.Load()))
				if err != nil {
					m.logger.Error("Failed to restart keep-alive", "error", err)
					return
				}
				continue
			}
			if resp != nil {
				m.logger.Debug("Heartbeat sent", "lease_id", int64(resp.ID), "ttl", resp.TTL)
			}

		case e, ok := <-sub.C():
			if !ok {
				return
			}
			m.Apply(ctx, e)

		case <-ticker.C:
			m.syncAll(ctx)
		}
	}
}

// Apply mirrors a single event
func (m *NodeMirror) Apply(ctx context.Context, e events.Event) {
	if e.Type == events.NodeRemoved {
		if err := m.store.Delete(ctx, m.Key(e.NodeID)); err != nil {
			m.failures.Add(1)
			m.logger.Warn("Failed to remove mirrored node", "node_id", e.NodeID, "error", err)
		}
		return
	}
	if e.Type == events.DriveMetricsAlert {
		return
	}

	n, ok := m.nodes.Get(e.NodeID)
	if !ok {
		return
	}
	m.write(ctx, &n)
}

// syncAll rewrites every registered node and removes keys whose node is
// gone, so a NodeRemoved event that never reached Apply is repaired here.
func (m *NodeMirror) syncAll(ctx context.Context) {
	nodes := m.nodes.List()
	live := make(map[string]struct{}, len(nodes))
	for i := range nodes {
		live[nodes[i].NodeID] = struct{}{}
		m.write(ctx, &nodes[i])
	}
	pruned := m.prune(ctx, live)
	m.logger.Debug("Node mirror resynced", "nodes", len(nodes), "pruned", pruned)
}

func (m *NodeMirror) prune(ctx context.Context, live map[string]struct{}) int {
	kvs, err := m.store.GetPrefix(ctx, m.prefix+"/")
	if err != nil {
		m.failures.Add(1)
		m.logger.Warn("Failed to list mirrored nodes", "error", err)
		return 0
	}
	pruned := 0
	for key := range kvs {
		nodeID := strings.TrimPrefix(key, m.prefix+"/")
		if _, ok := live[nodeID]; ok {
			continue
		}
		// registered after List was taken
		if _, ok := m.nodes.Get(nodeID); ok {
			continue
		}
		if err := m.store.Delete(ctx, key); err != nil {
			m.failures.Add(1)
			m.logger.Warn("Failed to remove orphaned node", "node_id", nodeID, "error", err)
			continue
		}
		pruned++
	}
	return pruned
}

func (m *NodeMirror) write(ctx context.Context, n *hardware.NodeState) {
	summary := SummarizeNode(n, m.shardOf(n.NodeID), time.Now())
	data, err := json.Marshal(summary)
	if err != nil {
		m.failures.Add(1)
		return
	}
	lease := clientv3.LeaseID(m.leaseID.Load())
	if err := m.store.PutWithLease(ctx, m.Key(n.NodeID), string(data), lease); err != nil {
		m.failures.Add(1)
		m.logger.Warn("Failed to mirror node", "node_id", n.NodeID, "error", err)
		return
	}
	m.written.Add(1)
}

// Snapshot reads back every mirrored summary
func (m *NodeMirror) Snapshot(ctx context.Context) (map[string]NodeSummary, error) {
	kvs, err := m.store.GetPrefix(ctx, m.prefix+"/")
	if err != nil {
		return nil, err
	}
	out := make(map[string]NodeSummary, len(kvs))
	for _, raw := range kvs {
		var s NodeSummary
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			continue
		}
		out[s.NodeID] = s
	}
	return out, nil
}
