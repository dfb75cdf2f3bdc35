package utils

import (
	"fmt"

	"k8s.io/apimachinery/pkg/api/resource"
)

// ParseCapacity parses a Kubernetes quantity ("100Gi", "1T", "500000000")
// into bytes. Zero and negative values are rejected.
func ParseCapacity(s string) (uint64, error) {
	if s == "" {
		return 0, fmt.Errorf("capacity is required")
	}

	q, err := resource.ParseQuantity(s)
	if err != nil {
		return 0, fmt.Errorf("invalid capacity %q: %w", s, err)
	}

	if q.Sign() <= 0 {
		return 0, fmt.Errorf("capacity must be positive: %s", s)
	}

	v, ok := q.AsInt64()
	if !ok {
		return 0, fmt.Errorf("capacity %q overflows int64", s)
	}
	return uint64(v), nil
}

// FormatCapacity renders bytes as a binary-SI quantity, e.g. 107374182400 -> "100Gi"
func FormatCapacity(bytes uint64) string {
	if bytes > uint64(1<<63-1) {
		bytes = uint64(1<<63 - 1)
	}
	return resource.NewQuantity(int64(bytes), resource.BinarySI).String()
}
