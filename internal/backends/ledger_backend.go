package backends

import (
	"context"
	"strconv"

	"github.com/soltixdb/unistor/internal/allocation"
	"github.com/soltixdb/unistor/internal/hardware"
)

// ledgerBackend is the in-process provider for one storage type. It
// reserves against the shared Ledger and describes the reservation with
// the attributes its engine would need.
type ledgerBackend struct {
	name   string
	kind   hardware.StorageType
	prefix string
	ledger *Ledger
	attrs  func(res *allocation.Result, c Constraints) map[string]string
}

// NewBlockBackend reserves replicated block volumes, one replica per node
func NewBlockBackend(l *Ledger) Backend {
	return &ledgerBackend{
		name:   "mayastor",
		kind:   hardware.StorageBlock,
		prefix: "vol-",
		ledger: l,
		attrs: func(res *allocation.Result, c Constraints) map[string]string {
			return map[string]string{
				"replicas":   strconv.Itoa(len(res.Generations)),
				"pool_label": "tier=" + string(effectiveTier(res, c.Tier)),
				"thin":       "false",
			}
		},
	}
}

// NewFileBackend reserves filer collections spread over volume servers
func NewFileBackend(l *Ledger) Backend {
	return &ledgerBackend{
		name:   "seaweedfs",
		kind:   hardware.StorageFile,
		prefix: "col-",
		ledger: l,
		attrs: func(res *allocation.Result, c Constraints) map[string]string {
			return map[string]string{
				"collection":  c.Name,
				"replication": seaweedReplication(len(res.Generations)),
				"disk_type":   diskType(res),
			}
		},
	}
}

// NewObjectBackend reserves buckets backed by erasure sets
func NewObjectBackend(l *Ledger) Backend {
	return &ledgerBackend{
		name:   "rustfs",
		kind:   hardware.StorageObject,
		prefix: "bkt-",
		ledger: l,
		attrs: func(res *allocation.Result, c Constraints) map[string]string {
			return map[string]string{
				"bucket":       c.Name,
				"erasure_set":  strconv.Itoa(len(res.Placements)),
				"storage_tier": string(effectiveTier(res, c.Tier)),
			}
		},
	}
}

func (b *ledgerBackend) Name() string              { return b.name }
func (b *ledgerBackend) Kind() hardware.StorageType { return b.kind }

func (b *ledgerBackend) Reserve(ctx context.Context, res *allocation.Result, c Constraints) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	attrs := b.attrs(res, c)
	for k, v := range c.Labels {
		attrs["label."+k] = v
	}
	return b.ledger.commit(res, b, b.prefix, attrs)
}

func (b *ledgerBackend) Release(ctx context.Context, handleID string) error {
	return b.ledger.release(ctx, b, handleID)
}

func (b *ledgerBackend) Reserved(nodeID, driveID string) uint64 {
	return b.ledger.Reserved(nodeID, driveID)
}

// effectiveTier resolves auto to the tier class of the best placement
func effectiveTier(res *allocation.Result, pref allocation.TierPreference) allocation.TierPreference {
	if pref != "" && pref != allocation.TierAuto {
		return pref
	}
	if len(res.Placements) == 0 {
		return allocation.TierWarm
	}
	switch res.Placements[0].Tier {
	case hardware.TierUltraFast, hardware.TierFastNVMe:
		return allocation.TierHot
	case hardware.TierHDD:
		return allocation.TierCold
	default:
		return allocation.TierWarm
	}
}

// seaweedReplication encodes extra copies on other servers in the same
// rack, e.g. 3 nodes -> "002"
func seaweedReplication(nodes int) string {
	extra := nodes - 1
	if extra < 0 {
		extra = 0
	}
	if extra > 9 {
		extra = 9
	}
	return "00" + strconv.Itoa(extra)
}

func diskType(res *allocation.Result) string {
	if len(res.Placements) == 0 {
		return "hdd"
	}
	switch res.Placements[0].Tier {
	case hardware.TierHDD:
		return "hdd"
	default:
		return "ssd"
	}
}
