// Package allocation answers "which drives on which nodes satisfy this
// request" from a snapshot of the registry. The engine is a greedy
// constraint solver: it never locks nodes and never reclassifies; callers
// commit against the per-node generations captured in the Result.
package allocation

import (
	"fmt"
	"strings"

	"github.com/soltixdb/unistor/internal/hardware"
)

// TierPreference expresses the performance class a request wants
type TierPreference string

const (
	TierHot  TierPreference = "hot"
	TierWarm TierPreference = "warm"
	TierCold TierPreference = "cold"
	TierAuto TierPreference = "auto"
)

// ParseTierPreference accepts hot, warm, cold or auto; empty means auto
func ParseTierPreference(s string) (TierPreference, error) {
	switch TierPreference(strings.ToLower(strings.TrimSpace(s))) {
	case "", TierAuto:
		return TierAuto, nil
	case TierHot:
		return TierHot, nil
	case TierWarm:
		return TierWarm, nil
	case TierCold:
		return TierCold, nil
	default:
		return "", fmt.Errorf("invalid tier preference %q (want hot, warm, cold or auto)", s)
	}
}

// Tiers returns the hardware tiers compatible with the preference
func (p TierPreference) Tiers() []hardware.Tier {
	switch p {
	case TierHot:
		return []hardware.Tier{hardware.TierUltraFast, hardware.TierFastNVMe}
	case TierWarm:
		return []hardware.Tier{hardware.TierFastNVMe, hardware.TierStandardSSD}
	case TierCold:
		return []hardware.Tier{hardware.TierHDD, hardware.TierStandardSSD}
	default:
		return hardware.AllTiers
	}
}

// Allows reports whether tier satisfies the preference
func (p TierPreference) Allows(tier hardware.Tier) bool {
	for _, t := range p.Tiers() {
		if t == tier {
			return true
		}
	}
	return false
}

// DriveTypePreference restricts candidate drive types; auto allows all
type DriveTypePreference string

const (
	DriveNVMe DriveTypePreference = "nvme"
	DriveSSD  DriveTypePreference = "ssd"
	DriveHDD  DriveTypePreference = "hdd"
	DriveAuto DriveTypePreference = "auto"
)

// ParseDriveTypePreference accepts nvme, ssd, hdd or auto; empty means auto
func ParseDriveTypePreference(s string) (DriveTypePreference, error) {
	switch DriveTypePreference(strings.ToLower(strings.TrimSpace(s))) {
	case "", DriveAuto:
		return DriveAuto, nil
	case DriveNVMe:
		return DriveNVMe, nil
	case DriveSSD:
		return DriveSSD, nil
	case DriveHDD:
		return DriveHDD, nil
	default:
		return "", fmt.Errorf("invalid drive type preference %q (want nvme, ssd, hdd or auto)", s)
	}
}

// Allows reports whether drive type dt satisfies the preference
func (p DriveTypePreference) Allows(dt hardware.DriveType) bool {
	if p == "" || p == DriveAuto {
		return true
	}
	return string(p) == string(dt)
}

// Request describes the storage to place
type Request struct {
	StorageType         hardware.StorageType
	CapacityBytes       uint64
	TierPreference      TierPreference
	DriveTypePreference DriveTypePreference
	MinDriveCount       int
	ReplicationFactor   int

	// MinFaultDomains is the distinct fault domain count the placement must
	// span. A node without a fault domain is a domain of its own.
	MinFaultDomains int
	// MinScore drops drives whose score for StorageType is lower
	MinScore int
	// MinDriveBytes drops drives smaller than this
	MinDriveBytes    uint64
	RequireZNS       bool
	PreferEnterprise bool

	// PreferNodes, when set, restricts candidates to these nodes
	PreferNodes []string
	// ExcludeNodes are never selected
	ExcludeNodes []string
	// NodeSelector must match node labels exactly
	NodeSelector map[string]string
}

// Validate checks the request shape. Defaults are applied by Normalize.
func (r Request) Validate() error {
	switch r.StorageType {
	case hardware.StorageBlock, hardware.StorageFile, hardware.StorageObject:
	default:
		return fmt.Errorf("invalid storage type %q", r.StorageType)
	}
	if r.CapacityBytes == 0 {
		return fmt.Errorf("capacity_bytes must be positive")
	}
	if r.MinDriveCount < 0 {
		return fmt.Errorf("min_drive_count cannot be negative")
	}
	if r.ReplicationFactor < 0 {
		return fmt.Errorf("replication_factor cannot be negative")
	}
	if r.MinFaultDomains < 0 {
		return fmt.Errorf("min_fault_domains cannot be negative")
	}
	if r.MinScore < 0 || r.MinScore > 100 {
		return fmt.Errorf("min_score must be between 0 and 100")
	}
	if _, err := ParseTierPreference(string(r.TierPreference)); err != nil {
		return err
	}
	if _, err := ParseDriveTypePreference(string(r.DriveTypePreference)); err != nil {
		return err
	}
	return nil
}

// Normalize fills empty preferences with auto
func (r Request) Normalize() Request {
	if r.TierPreference == "" {
		r.TierPreference = TierAuto
	}
	if r.DriveTypePreference == "" {
		r.DriveTypePreference = DriveAuto
	}
	return r
}

// RequiredNodes is the distinct-node count the placement must reach:
// max(min_drive_count, replication_factor, 1)
func (r Request) RequiredNodes() int {
	n := 1
	if r.MinDriveCount > n {
		n = r.MinDriveCount
	}
	if r.ReplicationFactor > n {
		n = r.ReplicationFactor
	}
	return n
}

// Placement is one selected drive and the bytes assigned to it
type Placement struct {
	NodeID        string        `json:"node_id"`
	DriveID       string        `json:"drive_id"`
	BytesReserved uint64        `json:"bytes_reserved"`
	Tier          hardware.Tier `json:"tier"`
	Score         int           `json:"score"`
}

// Result is a placement decision. Generations holds each selected node's
// registry generation at decision time; a commit is only valid while they
// are still current.
type Result struct {
	Placements     []Placement       `json:"placements"`
	Generations    map[string]uint64 `json:"generations"`
	TotalBytes     uint64            `json:"total_bytes"`
	CandidateCount int               `json:"candidate_count"`
}

// Nodes returns the distinct selected nodes in placement order
func (r *Result) Nodes() []string {
	seen := make(map[string]bool, len(r.Generations))
	var out []string
	for _, p := range r.Placements {
		if !seen[p.NodeID] {
			seen[p.NodeID] = true
			out = append(out, p.NodeID)
		}
	}
	return out
}
