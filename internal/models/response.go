package models

import (
	"time"

	"github.com/soltixdb/unistor/internal/allocation"
	"github.com/soltixdb/unistor/internal/hardware"
	"github.com/soltixdb/unistor/internal/metadata"
	"github.com/soltixdb/unistor/internal/registry"
	"github.com/soltixdb/unistor/internal/utils"
)

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// ReadyResponse represents readiness response
type ReadyResponse struct {
	Ready      bool `json:"ready"`
	ReadyNodes int  `json:"ready_nodes"`
	TotalNodes int  `json:"total_nodes"`
}

// ErrorResponse represents error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail represents error details
type ErrorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Path    string                 `json:"path,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// DriveResponse is one classified drive
type DriveResponse struct {
	DriveID          string                 `json:"drive_id"`
	DevicePath       string                 `json:"device_path,omitempty"`
	DriveType        hardware.DriveType     `json:"drive_type"`
	CapacityBytes    uint64                 `json:"capacity_bytes"`
	Capacity         string                 `json:"capacity"`
	ZNSSupported     bool                   `json:"zns_supported"`
	SmartHealth      hardware.SmartHealth   `json:"smart_health"`
	ModelFingerprint string                 `json:"model_fingerprint,omitempty"`
	Serial           string                 `json:"serial,omitempty"`
	Firmware         string                 `json:"firmware,omitempty"`
	Tier             hardware.Tier          `json:"tier"`
	Score            int                    `json:"score"`
	ObjectScore      int                    `json:"object_score"`
	SuitableFor      []string               `json:"suitable_for"`
	Enterprise       bool                   `json:"enterprise"`
	Confidence       int                    `json:"confidence"`
	Reason           string                 `json:"reason"`
	Metrics          *hardware.DriveMetrics `json:"metrics,omitempty"`
}

// NodeResponse is one registry node with its effective phase
type NodeResponse struct {
	NodeID        string             `json:"node_id"`
	Phase         hardware.NodePhase `json:"phase"`
	Shard         int                `json:"shard"`
	Generation    uint64             `json:"generation"`
	LastSeen      string             `json:"last_seen"`
	Labels        map[string]string  `json:"labels,omitempty"`
	FaultDomain   string             `json:"fault_domain,omitempty"`
	DriveCount    int                `json:"drive_count"`
	CapacityBytes uint64             `json:"capacity_bytes"`
	Drives        []DriveResponse    `json:"drives"`
}

// NodeListResponse represents GET /v1/nodes
type NodeListResponse struct {
	Nodes []NodeResponse `json:"nodes"`
	Count int            `json:"count"`
}

// NodeMutationResponse reports the generation produced by a write
type NodeMutationResponse struct {
	NodeID     string `json:"node_id"`
	Generation uint64 `json:"generation"`
}

// NewNodeResponse renders a node snapshot; drives are sorted by id
func NewNodeResponse(n *hardware.NodeState, now time.Time, staleness time.Duration) NodeResponse {
	resp := NodeResponse{
		NodeID:        n.NodeID,
		Phase:         n.EffectivePhase(now, staleness),
		Shard:         registry.ShardKey(n.NodeID),
		Generation:    n.Generation,
		LastSeen:      n.LastSeen.UTC().Format(time.RFC3339),
		Labels:        n.Labels,
		FaultDomain:   n.FaultDomain,
		DriveCount:    len(n.Drives),
		CapacityBytes: n.TotalCapacity(),
		Drives:        make([]DriveResponse, 0, len(n.Drives)),
	}
	for _, id := range n.SortedDriveIDs() {
		resp.Drives = append(resp.Drives, NewDriveResponse(n.Drives[id]))
	}
	return resp
}

// NewDriveResponse renders a drive
func NewDriveResponse(d hardware.Drive) DriveResponse {
	return DriveResponse{
		DriveID:          d.DriveID,
		DevicePath:       d.DevicePath,
		DriveType:        d.DriveType,
		CapacityBytes:    d.CapacityBytes,
		Capacity:         utils.FormatCapacity(d.CapacityBytes),
		ZNSSupported:     d.ZNSSupported,
		SmartHealth:      d.SmartHealth,
		ModelFingerprint: d.ModelFingerprint,
		Serial:           d.Serial,
		Firmware:         d.Firmware,
		Tier:             d.Tier,
		Score:            d.Score,
		ObjectScore:      d.ObjectScore,
		SuitableFor:      d.SuitableFor.Strings(),
		Enterprise:       d.Enterprise,
		Confidence:       d.Confidence,
		Reason:           d.Reason,
		Metrics:          d.Metrics,
	}
}

// PoolListResponse represents GET /v1/pools
type PoolListResponse struct {
	Pools []allocation.Pool `json:"pools"`
}

// CapacityResponse represents GET /v1/capacity
type CapacityResponse struct {
	allocation.CapacityReport
	Total     string `json:"total"`
	Available string `json:"available"`
}

// PlacementResponse is one reserved drive
type PlacementResponse struct {
	NodeID        string        `json:"nodeId"`
	DriveID       string        `json:"driveId"`
	BytesReserved uint64        `json:"bytesReserved"`
	Tier          hardware.Tier `json:"tier"`
	Score         int           `json:"score"`
}

// StorageResponse represents a provisioned storage resource
type StorageResponse struct {
	StorageID     string              `json:"storageId"`
	Name          string              `json:"name"`
	StorageType   string              `json:"storageType"`
	CapacityBytes uint64              `json:"capacityBytes"`
	Capacity      string              `json:"capacity"`
	Tier          string              `json:"tier"`
	DriveType     string              `json:"driveType"`
	Replication   int                 `json:"replication"`
	Backend       string              `json:"backend"`
	Status        string              `json:"status"`
	Attempts      int                 `json:"attempts"`
	Attributes    map[string]string   `json:"attributes,omitempty"`
	Labels        map[string]string   `json:"labels,omitempty"`
	Placements    []PlacementResponse `json:"placements"`
	CreatedAt     string              `json:"createdAt"`
}

// StorageListResponse represents GET /v1/storage
type StorageListResponse struct {
	Storage []StorageResponse `json:"storage"`
	Count   int               `json:"count"`
}

// NewStorageResponse renders a storage record
func NewStorageResponse(rec *metadata.StorageRecord) StorageResponse {
	resp := StorageResponse{
		StorageID:     rec.ID,
		Name:          rec.Name,
		StorageType:   string(rec.StorageType),
		CapacityBytes: rec.CapacityBytes,
		Capacity:      utils.FormatCapacity(rec.CapacityBytes),
		Tier:          rec.Tier,
		DriveType:     rec.DriveType,
		Replication:   rec.Replication,
		Status:        string(rec.Status),
		Attempts:      rec.Attempts,
		Labels:        rec.Labels,
		Placements:    []PlacementResponse{},
		CreatedAt:     rec.CreatedAt.UTC().Format(time.RFC3339),
	}
	if rec.Handle != nil {
		resp.Backend = rec.Handle.Backend
		resp.Attributes = rec.Handle.Attributes
		for _, p := range rec.Handle.Placements {
			resp.Placements = append(resp.Placements, PlacementResponse{
				NodeID:        p.NodeID,
				DriveID:       p.DriveID,
				BytesReserved: p.BytesReserved,
				Tier:          p.Tier,
				Score:         p.Score,
			})
		}
	}
	return resp
}
