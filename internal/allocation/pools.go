package allocation

import (
	"fmt"
	"strings"

	"github.com/soltixdb/unistor/internal/config"
	"github.com/soltixdb/unistor/internal/hardware"
	"github.com/soltixdb/unistor/internal/utils"
)

// PoolSelector decides which drives belong to a named pool
type PoolSelector struct {
	Name             string
	StorageType      hardware.StorageType // empty matches any
	DriveTypes       []hardware.DriveType // empty matches any
	Tiers            []hardware.Tier      // empty matches any
	MinScore         int
	MinCapacityBytes uint64
	Builtin          bool
}

// Matches reports whether d belongs to the pool
func (s PoolSelector) Matches(d hardware.Drive) bool {
	if s.StorageType != "" && !d.SuitableFor.Has(s.StorageType) {
		return false
	}
	if len(s.DriveTypes) > 0 && !containsDriveType(s.DriveTypes, d.DriveType) {
		return false
	}
	if len(s.Tiers) > 0 && !containsTier(s.Tiers, d.Tier) {
		return false
	}
	if d.Score < s.MinScore {
		return false
	}
	return d.CapacityBytes >= s.MinCapacityBytes
}

// BuiltinPools returns one pool per tier
func BuiltinPools() []PoolSelector {
	return []PoolSelector{
		{Name: "ultrafast", Tiers: []hardware.Tier{hardware.TierUltraFast}, Builtin: true},
		{Name: "fast-nvme", Tiers: []hardware.Tier{hardware.TierFastNVMe}, Builtin: true},
		{Name: "standard-ssd", Tiers: []hardware.Tier{hardware.TierStandardSSD}, Builtin: true},
		{Name: "hdd", Tiers: []hardware.Tier{hardware.TierHDD}, Builtin: true},
	}
}

// SelectorsFromConfig converts configured pools, prepending the built-ins.
// A configured pool may not reuse a built-in name.
func SelectorsFromConfig(pools []config.PoolConfig) ([]PoolSelector, error) {
	out := BuiltinPools()
	names := make(map[string]bool, len(out)+len(pools))
	for _, p := range out {
		names[p.Name] = true
	}

	for _, p := range pools {
		if p.Name == "" {
			return nil, fmt.Errorf("pool name is required")
		}
		if names[p.Name] {
			return nil, fmt.Errorf("duplicate pool name: %s", p.Name)
		}
		names[p.Name] = true

		sel := PoolSelector{Name: p.Name, MinScore: p.MinScore}
		if p.StorageType != "" {
			st, ok := hardware.ParseStorageType(p.StorageType)
			if !ok {
				return nil, fmt.Errorf("pool %s: invalid storage type %q", p.Name, p.StorageType)
			}
			sel.StorageType = st
		}
		for _, dt := range p.DriveTypes {
			parsed := hardware.ParseDriveType(dt)
			if parsed == hardware.DriveTypeUnknown {
				return nil, fmt.Errorf("pool %s: invalid drive type %q", p.Name, dt)
			}
			sel.DriveTypes = append(sel.DriveTypes, parsed)
		}
		for _, t := range p.Tiers {
			tier, ok := parseTier(t)
			if !ok {
				return nil, fmt.Errorf("pool %s: invalid tier %q", p.Name, t)
			}
			sel.Tiers = append(sel.Tiers, tier)
		}
		if p.MinCapacity != "" {
			b, err := utils.ParseCapacity(p.MinCapacity)
			if err != nil {
				return nil, fmt.Errorf("pool %s: %w", p.Name, err)
			}
			sel.MinCapacityBytes = b
		}
		out = append(out, sel)
	}
	return out, nil
}

// Pool is a read-only projection over registry drives
type Pool struct {
	Name               string               `json:"name"`
	Builtin            bool                 `json:"builtin"`
	StorageType        hardware.StorageType `json:"storage_type,omitempty"`
	Tiers              []hardware.Tier      `json:"tiers,omitempty"`
	DriveCount         int                  `json:"drive_count"`
	NodeCount          int                  `json:"node_count"`
	TotalBytes         uint64               `json:"total_bytes"`
	AvailableBytes     uint64               `json:"available_bytes"`
	UtilizationPercent float64              `json:"utilization_percent"`
}

// WithPools sets the pool selectors; without it the built-ins are used
func WithPools(selectors []PoolSelector) Option {
	return func(e *Engine) {
		e.pools = selectors
	}
}

func (e *Engine) selectors() []PoolSelector {
	if len(e.pools) == 0 {
		return BuiltinPools()
	}
	return e.pools
}

// Pools projects every pool from one registry snapshot. Stale nodes are
// left out; available bytes count only healthy drives minus reservations.
func (e *Engine) Pools() []Pool {
	nodes := e.source.List()
	sels := e.selectors()
	out := make([]Pool, len(sels))
	for i, s := range sels {
		out[i] = e.project(s, nodes)
	}
	return out
}

// Pool projects a single pool by name
func (e *Engine) Pool(name string) (Pool, bool) {
	for _, s := range e.selectors() {
		if s.Name == name {
			return e.project(s, e.source.List()), true
		}
	}
	return Pool{}, false
}

func (e *Engine) project(s PoolSelector, nodes []hardware.NodeState) Pool {
	p := Pool{
		Name:        s.Name,
		Builtin:     s.Builtin,
		StorageType: s.StorageType,
		Tiers:       s.Tiers,
	}
	now := e.now()
	for i := range nodes {
		n := &nodes[i]
		if n.IsStale(now, e.staleness) {
			continue
		}
		member := false
		for _, d := range n.Drives {
			if !s.Matches(d) {
				continue
			}
			member = true
			p.DriveCount++
			p.TotalBytes += d.CapacityBytes
			if d.SmartHealth == hardware.HealthHealthy {
				p.AvailableBytes += e.free(n.NodeID, d)
			}
		}
		if member {
			p.NodeCount++
		}
	}
	if p.TotalBytes > 0 {
		used := p.TotalBytes - p.AvailableBytes
		p.UtilizationPercent = float64(used) / float64(p.TotalBytes) * 100
	}
	return p
}

func parseTier(s string) (hardware.Tier, bool) {
	for _, t := range hardware.AllTiers {
		if strings.EqualFold(string(t), s) {
			return t, true
		}
	}
	return "", false
}

func containsTier(ts []hardware.Tier, t hardware.Tier) bool {
	for _, x := range ts {
		if x == t {
			return true
		}
	}
	return false
}

func containsDriveType(ts []hardware.DriveType, t hardware.DriveType) bool {
	for _, x := range ts {
		if x == t {
			return true
		}
	}
	return false
}
