// Package hardware holds the value types describing drives and nodes as
// reported by discovery and enriched by the classifier.
package hardware

import (
	"sort"
	"strings"
	"time"
)

// DriveType is the physical interface class of a drive
type DriveType string

const (
	DriveTypeNVMe    DriveType = "nvme"
	DriveTypeSSD     DriveType = "ssd"
	DriveTypeHDD     DriveType = "hdd"
	DriveTypeUnknown DriveType = "unknown"
)

// ParseDriveType maps a free-form string to a DriveType, unknown on no match
func ParseDriveType(s string) DriveType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "nvme":
		return DriveTypeNVMe
	case "ssd", "sata-ssd", "sas-ssd":
		return DriveTypeSSD
	case "hdd", "rotational":
		return DriveTypeHDD
	default:
		return DriveTypeUnknown
	}
}

// SmartHealth is the SMART-derived health state of a drive
type SmartHealth string

const (
	HealthHealthy  SmartHealth = "healthy"
	HealthDegraded SmartHealth = "degraded"
	HealthFailing  SmartHealth = "failing"
	HealthUnknown  SmartHealth = "unknown"
)

// Tier is the performance class assigned by the classifier
type Tier string

const (
	TierUltraFast   Tier = "UltraFast"
	TierFastNVMe    Tier = "FastNvme"
	TierStandardSSD Tier = "StandardSsd"
	TierHDD         Tier = "Hdd"
)

// AllTiers lists tiers from fastest to slowest
var AllTiers = []Tier{TierUltraFast, TierFastNVMe, TierStandardSSD, TierHDD}

// Rank orders tiers, higher is faster. Unknown tiers rank 0.
func (t Tier) Rank() int {
	switch t {
	case TierUltraFast:
		return 4
	case TierFastNVMe:
		return 3
	case TierStandardSSD:
		return 2
	case TierHDD:
		return 1
	default:
		return 0
	}
}

// StorageType is a workload class a drive can serve
type StorageType string

const (
	StorageBlock  StorageType = "block"
	StorageFile   StorageType = "file"
	StorageObject StorageType = "object"
	StorageCache  StorageType = "cache"
)

// ParseStorageType validates a request-level storage type (block, file or object)
func ParseStorageType(s string) (StorageType, bool) {
	switch StorageType(strings.ToLower(strings.TrimSpace(s))) {
	case StorageBlock:
		return StorageBlock, true
	case StorageFile:
		return StorageFile, true
	case StorageObject:
		return StorageObject, true
	default:
		return "", false
	}
}

// StorageTypeSet is a small bitset of StorageType values
type StorageTypeSet uint8

const (
	setBlock StorageTypeSet = 1 << iota
	setFile
	setObject
	setCache
)

var storageTypeOrder = []StorageType{StorageBlock, StorageFile, StorageObject, StorageCache}

func bitFor(st StorageType) StorageTypeSet {
	switch st {
	case StorageBlock:
		return setBlock
	case StorageFile:
		return setFile
	case StorageObject:
		return setObject
	case StorageCache:
		return setCache
	}
	return 0
}

// NewStorageTypeSet builds a set from the given members
func NewStorageTypeSet(types ...StorageType) StorageTypeSet {
	var s StorageTypeSet
	for _, t := range types {
		s |= bitFor(t)
	}
	return s
}

// With returns the set with st added
func (s StorageTypeSet) With(st StorageType) StorageTypeSet {
	return s | bitFor(st)
}

// Has reports whether st is a member
func (s StorageTypeSet) Has(st StorageType) bool {
	b := bitFor(st)
	return b != 0 && s&b != 0
}

// Slice returns members in a fixed order (block, file, object, cache)
func (s StorageTypeSet) Slice() []StorageType {
	out := make([]StorageType, 0, 4)
	for _, st := range storageTypeOrder {
		if s.Has(st) {
			out = append(out, st)
		}
	}
	return out
}

// Strings returns members as strings in the same order as Slice
func (s StorageTypeSet) Strings() []string {
	members := s.Slice()
	out := make([]string, len(members))
	for i, st := range members {
		out[i] = string(st)
	}
	return out
}

// DriveFacts is the raw, unclassified description of a drive as produced by discovery
type DriveFacts struct {
	DriveID          string      `json:"drive_id"`
	DevicePath       string      `json:"device_path,omitempty"`
	DriveType        DriveType   `json:"drive_type"`
	CapacityBytes    uint64      `json:"capacity_bytes"`
	ZNSSupported     bool        `json:"zns_supported"`
	SmartHealth      SmartHealth `json:"smart_health"`
	ModelFingerprint string      `json:"model_fingerprint"`
	Serial           string      `json:"serial,omitempty"`
	Firmware         string      `json:"firmware,omitempty"`
}

// Classification is the output of one classifier invocation. Tier, Score,
// ObjectScore and SuitableFor are always written together.
type Classification struct {
	Tier        Tier           `json:"tier"`
	Score       int            `json:"score"`
	ObjectScore int            `json:"object_score"`
	SuitableFor StorageTypeSet `json:"-"`
	Enterprise  bool           `json:"enterprise"`
	Confidence  int            `json:"confidence"`
	Reason      string         `json:"reason"`
}

// DriveMetrics is the latest runtime sample for a drive
type DriveMetrics struct {
	IOPS          uint64    `json:"iops"`
	ThroughputBps uint64    `json:"throughput_bps"`
	LatencyP99Us  uint64    `json:"latency_us_p99"`
	Utilization   float64   `json:"utilization"`
	TemperatureC  int       `json:"temperature_c"`
	WearLevel     int       `json:"wear_level"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// IsStale reports whether the sample is older than maxAge
func (m DriveMetrics) IsStale(now time.Time, maxAge time.Duration) bool {
	return m.UpdatedAt.IsZero() || now.Sub(m.UpdatedAt) > maxAge
}

// Drive is a classified drive as stored in the registry
type Drive struct {
	DriveFacts
	Classification
	Metrics *DriveMetrics `json:"metrics,omitempty"`
}

// Clone returns a deep copy
func (d Drive) Clone() Drive {
	if d.Metrics != nil {
		m := *d.Metrics
		d.Metrics = &m
	}
	return d
}

// NodePhase is the lifecycle phase of a node
type NodePhase string

const (
	PhaseUnknown     NodePhase = "Unknown"
	PhaseDiscovering NodePhase = "Discovering"
	PhaseReady       NodePhase = "Ready"
	PhaseUnreachable NodePhase = "Unreachable"
)

// NodeState is a snapshot of a node's registry entry. Values returned by the
// registry are copies and may be retained freely by callers.
type NodeState struct {
	NodeID      string            `json:"node_id"`
	Phase       NodePhase         `json:"phase"`
	Drives      map[string]Drive  `json:"drives"`
	LastSeen    time.Time         `json:"last_seen"`
	Generation  uint64            `json:"generation"`
	Labels      map[string]string `json:"labels,omitempty"`
	FaultDomain string            `json:"fault_domain,omitempty"`
}

// EffectivePhase returns Unreachable when the node has not been seen within
// staleness, otherwise the stored phase. A zero staleness disables the check.
func (n *NodeState) EffectivePhase(now time.Time, staleness time.Duration) NodePhase {
	if staleness > 0 && now.Sub(n.LastSeen) > staleness {
		return PhaseUnreachable
	}
	return n.Phase
}

// IsStale reports whether last_seen is older than staleness
func (n *NodeState) IsStale(now time.Time, staleness time.Duration) bool {
	return n.EffectivePhase(now, staleness) == PhaseUnreachable
}

// Clone returns a deep copy of the node state
func (n *NodeState) Clone() NodeState {
	out := *n
	out.Drives = make(map[string]Drive, len(n.Drives))
	for id, d := range n.Drives {
		out.Drives[id] = d.Clone()
	}
	if n.Labels != nil {
		out.Labels = make(map[string]string, len(n.Labels))
		for k, v := range n.Labels {
			out.Labels[k] = v
		}
	}
	return out
}

// TotalCapacity sums capacity over all drives
func (n *NodeState) TotalCapacity() uint64 {
	var total uint64
	for _, d := range n.Drives {
		total += d.CapacityBytes
	}
	return total
}

// SortedDriveIDs returns drive ids in lexical order
func (n *NodeState) SortedDriveIDs() []string {
	ids := make([]string, 0, len(n.Drives))
	for id := range n.Drives {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
