// Package classifier turns raw drive facts into a performance tier, a 0-100
// suitability score and the set of workloads the drive should serve.
//
// Classify is a pure, total function: it never fails and never touches shared
// state, so it is safe to call concurrently without synchronization.
package classifier

import (
	"fmt"

	"github.com/soltixdb/unistor/internal/hardware"
)

const (
	// SmallCapacityBytes is the upper bound (exclusive) of the Small bucket
	SmallCapacityBytes uint64 = 1_000_000_000_000
	// LargeCapacityBytes is the lower bound (inclusive) of the Large bucket
	LargeCapacityBytes uint64 = 10_000_000_000_000

	znsObjectBonus   = 10
	unhealthyPenalty = 30
	capacityAdjust   = 5
)

var tierBaseScore = map[hardware.Tier]int{
	hardware.TierUltraFast:   95,
	hardware.TierFastNVMe:    80,
	hardware.TierStandardSSD: 50,
	hardware.TierHDD:         20,
}

// CapacityBucket groups drives by raw size
type CapacityBucket string

const (
	CapacitySmall  CapacityBucket = "small"
	CapacityMedium CapacityBucket = "medium"
	CapacityLarge  CapacityBucket = "large"
)

// BucketFor returns the capacity bucket of a drive size
func BucketFor(capacityBytes uint64) CapacityBucket {
	switch {
	case capacityBytes < SmallCapacityBytes:
		return CapacitySmall
	case capacityBytes >= LargeCapacityBytes:
		return CapacityLarge
	default:
		return CapacityMedium
	}
}

// BaseTier maps a drive type to its tier before fingerprint upgrades
func BaseTier(dt hardware.DriveType) hardware.Tier {
	switch dt {
	case hardware.DriveTypeNVMe:
		return hardware.TierFastNVMe
	case hardware.DriveTypeHDD:
		return hardware.TierHDD
	default:
		// ssd and anything undecidable
		return hardware.TierStandardSSD
	}
}

// SuitableFor returns the workload set for a tier, widened by ZNS support
func SuitableFor(tier hardware.Tier, zns bool) hardware.StorageTypeSet {
	var set hardware.StorageTypeSet
	switch tier {
	case hardware.TierUltraFast, hardware.TierFastNVMe:
		set = hardware.NewStorageTypeSet(hardware.StorageBlock, hardware.StorageCache)
	case hardware.TierHDD:
		set = hardware.NewStorageTypeSet(hardware.StorageObject, hardware.StorageFile)
	default:
		set = hardware.NewStorageTypeSet(hardware.StorageBlock, hardware.StorageFile)
	}
	if zns {
		set = set.With(hardware.StorageObject)
	}
	return set
}

// Classify classifies a drive for a specific storage target. The ZNS bonus
// is applied only when target is object; pass "" for a target-neutral score.
func Classify(f hardware.DriveFacts, target hardware.StorageType) hardware.Classification {
	c := Evaluate(f)
	if target == hardware.StorageObject {
		c.Score = c.ObjectScore
	}
	return c
}

// Evaluate runs one classification and returns both the neutral score and the
// object-targeted score. The registry stores both so placement never has to
// reclassify.
func Evaluate(f hardware.DriveFacts) hardware.Classification {
	tier := BaseTier(f.DriveType)
	reason := fmt.Sprintf("%s drive", driveTypeLabel(f.DriveType))

	if IsUltraFastModel(f.ModelFingerprint) {
		tier = hardware.TierUltraFast
		reason = "persistent-memory class model"
	}

	fp, known := Lookup(f.ModelFingerprint)
	confidence := 70
	switch {
	case known:
		confidence = 90
		reason += ", matched " + fp.Vendor + " " + fp.Pattern
	case f.DriveType == hardware.DriveTypeUnknown:
		confidence = 40
	}

	score := tierBaseScore[tier]
	if f.SmartHealth != hardware.HealthHealthy {
		score -= unhealthyPenalty
	}
	switch BucketFor(f.CapacityBytes) {
	case CapacitySmall:
		score -= capacityAdjust
	case CapacityLarge:
		score += capacityAdjust
	}

	objectScore := score
	if f.ZNSSupported {
		objectScore += znsObjectBonus
	}

	return hardware.Classification{
		Tier:        tier,
		Score:       clamp(score),
		ObjectScore: clamp(objectScore),
		SuitableFor: SuitableFor(tier, f.ZNSSupported),
		Enterprise:  known && fp.Enterprise,
		Confidence:  confidence,
		Reason:      reason,
	}
}

// ScoreFor returns the score a classified drive should be ranked by for a
// given storage type.
func ScoreFor(d hardware.Drive, st hardware.StorageType) int {
	if st == hardware.StorageObject {
		return d.ObjectScore
	}
	return d.Score
}

func driveTypeLabel(dt hardware.DriveType) string {
	if dt == "" {
		return string(hardware.DriveTypeUnknown)
	}
	return string(dt)
}

func clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
