package backends

import (
	"context"
	"fmt"
	"strings"

	"github.com/soltixdb/unistor/internal/allocation"
	"github.com/soltixdb/unistor/internal/hardware"
)

// Platform names accepted by NewSet
const (
	PlatformNone      = "none"
	PlatformHarvester = "harvester"
	PlatformOpenStack = "openstack"
)

// platformBackend wraps a Backend, refusing storage types the platform
// cannot serve and stamping platform attributes on the handle
type platformBackend struct {
	Backend
	platform string
	supports func(hardware.StorageType) bool
	stamp    func(h *Handle, tier allocation.TierPreference)
}

func (p *platformBackend) Name() string {
	return p.platform + "/" + p.Backend.Name()
}

func (p *platformBackend) Reserve(ctx context.Context, res *allocation.Result, c Constraints) (*Handle, error) {
	if !p.supports(p.Kind()) {
		return nil, fmt.Errorf("%s: %w: %s", p.platform, ErrUnsupported, p.Kind())
	}
	h, err := p.Backend.Reserve(ctx, res, c)
	if err != nil {
		return nil, err
	}
	if h.Attributes == nil {
		h.Attributes = make(map[string]string)
	}
	h.Backend = p.Name()
	h.Attributes["platform"] = p.platform
	p.stamp(h, effectiveTier(res, c.Tier))
	return h, nil
}

// Harvester serves block storage only, through Longhorn storage classes
// named by tier
func Harvester(inner Backend, classPrefix string) Backend {
	if classPrefix == "" {
		classPrefix = "unified-"
	}
	return &platformBackend{
		Backend:  inner,
		platform: PlatformHarvester,
		supports: func(st hardware.StorageType) bool { return st == hardware.StorageBlock },
		stamp: func(h *Handle, tier allocation.TierPreference) {
			media := map[allocation.TierPreference]string{
				allocation.TierHot:  "nvme",
				allocation.TierWarm: "ssd",
				allocation.TierCold: "hdd",
			}[tier]
			h.Attributes["storage_class"] = classPrefix + "longhorn-" + media
		},
	}
}

// OpenStack maps block to Cinder volume types, file to Manila share types
// and object to Swift storage policies
func OpenStack(inner Backend) Backend {
	return &platformBackend{
		Backend:  inner,
		platform: PlatformOpenStack,
		supports: func(hardware.StorageType) bool { return true },
		stamp: func(h *Handle, tier allocation.TierPreference) {
			switch h.StorageType {
			case hardware.StorageBlock:
				h.Attributes["service"] = "cinder"
				h.Attributes["volume_type"] = pick(tier, "high-iops", "standard", "archive")
			case hardware.StorageFile:
				h.Attributes["service"] = "manila"
				h.Attributes["share_type"] = pick(tier, "high-performance", "general", "backup")
			case hardware.StorageObject:
				h.Attributes["service"] = "swift"
				h.Attributes["storage_policy"] = pick(tier, "Policy-0", "Policy-0", "erasure-coded")
			}
		},
	}
}

func pick(tier allocation.TierPreference, hot, warm, cold string) string {
	switch tier {
	case allocation.TierHot:
		return hot
	case allocation.TierCold:
		return cold
	default:
		return warm
	}
}

// Set routes requests to the backend for their storage type and exposes
// the shared ledger as the engine's reservation view
type Set struct {
	ledger   *Ledger
	platform string
	backends map[hardware.StorageType]Backend
}

// NewSet builds block, file and object backends over one ledger, wrapped
// for platform ("", none, harvester or openstack)
func NewSet(platform string, ledger *Ledger) (*Set, error) {
	platform = strings.ToLower(strings.TrimSpace(platform))
	if platform == "" {
		platform = PlatformNone
	}

	base := []Backend{NewBlockBackend(ledger), NewFileBackend(ledger), NewObjectBackend(ledger)}
	s := &Set{
		ledger:   ledger,
		platform: platform,
		backends: make(map[hardware.StorageType]Backend, len(base)),
	}
	for _, b := range base {
		switch platform {
		case PlatformNone:
		case PlatformHarvester:
			b = Harvester(b, "")
		case PlatformOpenStack:
			b = OpenStack(b)
		default:
			return nil, fmt.Errorf("unknown platform: %s", platform)
		}
		s.backends[b.Kind()] = b
	}
	return s, nil
}

// Platform returns the configured platform name
func (s *Set) Platform() string {
	return s.platform
}

// For returns the backend serving st
func (s *Set) For(st hardware.StorageType) (Backend, error) {
	b, ok := s.backends[st]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, st)
	}
	return b, nil
}

// Reserved implements allocation.ReservationView
func (s *Set) Reserved(nodeID, driveID string) uint64 {
	return s.ledger.Reserved(nodeID, driveID)
}

// Ledger returns the shared ledger
func (s *Set) Ledger() *Ledger {
	return s.ledger
}
