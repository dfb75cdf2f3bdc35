package models

import (
	"fmt"
	"strings"

	"github.com/soltixdb/unistor/internal/hardware"
)

// CreateStorageRequest is the body of POST /v1/storage
type CreateStorageRequest struct {
	Name          string            `json:"name"`
	StorageType   string            `json:"storageType"`
	Capacity      string            `json:"capacity"`                // quantity, e.g. "100Gi"
	Tier          string            `json:"tier,omitempty"`          // hot, warm, cold, auto
	DriveType     string            `json:"driveType,omitempty"`     // nvme, ssd, hdd, auto
	Replication   int               `json:"replication,omitempty"`   // distinct nodes holding a replica
	MinDriveCount int               `json:"minDriveCount,omitempty"` // distinct nodes contributing drives
	PreferNodes   []string          `json:"preferNodes,omitempty"`
	ExcludeNodes  []string          `json:"excludeNodes,omitempty"`
	NodeSelector  map[string]string `json:"nodeSelector,omitempty"`
	Labels        map[string]string `json:"labels,omitempty"`

	MinFaultDomains  int    `json:"minFaultDomains,omitempty"`
	MinScore         int    `json:"minScore,omitempty"`         // 0-100
	MinDriveCapacity string `json:"minDriveCapacity,omitempty"` // quantity, per drive
	RequireZNS       bool   `json:"requireZns,omitempty"`
	PreferEnterprise bool   `json:"preferEnterprise,omitempty"`
}

// Validate checks presence and shape; value parsing is left to the service
func (r *CreateStorageRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(r.Name) > 253 {
		return fmt.Errorf("name must be at most 253 characters")
	}
	if r.StorageType == "" {
		return fmt.Errorf("storageType is required")
	}
	if r.Capacity == "" {
		return fmt.Errorf("capacity is required")
	}
	if r.Replication < 0 || r.MinDriveCount < 0 {
		return fmt.Errorf("replication and minDriveCount cannot be negative")
	}
	if r.MinFaultDomains < 0 {
		return fmt.Errorf("minFaultDomains cannot be negative")
	}
	if r.MinScore < 0 || r.MinScore > 100 {
		return fmt.Errorf("minScore must be between 0 and 100")
	}
	return nil
}

// IngestNodeRequest is the body of PUT /v1/nodes/:name, sent by node agents
// after a discovery scan
type IngestNodeRequest struct {
	Drives      []hardware.DriveFacts `json:"drives"`
	Labels      map[string]string     `json:"labels,omitempty"`
	FaultDomain string                `json:"fault_domain,omitempty"`
}

// MetricsRequest is the body of PUT /v1/nodes/:name/drives/:drive/metrics
type MetricsRequest struct {
	hardware.DriveMetrics
}
