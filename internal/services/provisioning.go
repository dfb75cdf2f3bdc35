package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/soltixdb/unistor/internal/allocation"
	"github.com/soltixdb/unistor/internal/backends"
	"github.com/soltixdb/unistor/internal/hardware"
	"github.com/soltixdb/unistor/internal/logging"
	"github.com/soltixdb/unistor/internal/metadata"
	"github.com/soltixdb/unistor/internal/models"
	"github.com/soltixdb/unistor/internal/utils"
)

// Allocator is the engine surface the service needs
type Allocator interface {
	Allocate(req allocation.Request) (*allocation.Result, error)
}

// ProvisioningService turns storage requests into committed reservations:
// allocate, reserve against the backend, persist the record. A reserve that
// loses a race with a registry update is retried from a fresh allocation.
type ProvisioningService struct {
	logger     *logging.Logger
	engine     Allocator
	backends   *backends.Set
	records    *metadata.Records
	maxRetries int
	onRetry    func()
	now        func() time.Time
}

// NewProvisioningService creates a new ProvisioningService
func NewProvisioningService(
	logger *logging.Logger,
	engine Allocator,
	set *backends.Set,
	records *metadata.Records,
	maxRetries int,
) *ProvisioningService {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &ProvisioningService{
		logger:     logger,
		engine:     engine,
		backends:   set,
		records:    records,
		maxRetries: maxRetries,
		now:        time.Now,
	}
}

// OnCommitRetry registers a hook called for every reservation conflict
func (s *ProvisioningService) OnCommitRetry(fn func()) {
	s.onRetry = fn
}

// BuildRequest converts an API body into an allocation request
func BuildRequest(input *models.CreateStorageRequest) (allocation.Request, error) {
	st, ok := hardware.ParseStorageType(input.StorageType)
	if !ok {
		return allocation.Request{}, fmt.Errorf("invalid storageType %q (want block, file or object)", input.StorageType)
	}
	capacity, err := utils.ParseCapacity(input.Capacity)
	if err != nil {
		return allocation.Request{}, err
	}
	tier, err := allocation.ParseTierPreference(input.Tier)
	if err != nil {
		return allocation.Request{}, err
	}
	driveType, err := allocation.ParseDriveTypePreference(input.DriveType)
	if err != nil {
		return allocation.Request{}, err
	}
	var minDrive uint64
	if input.MinDriveCapacity != "" {
		if minDrive, err = utils.ParseCapacity(input.MinDriveCapacity); err != nil {
			return allocation.Request{}, fmt.Errorf("minDriveCapacity: %w", err)
		}
	}

	return allocation.Request{
		StorageType:         st,
		CapacityBytes:       capacity,
		TierPreference:      tier,
		DriveTypePreference: driveType,
		MinDriveCount:       input.MinDriveCount,
		ReplicationFactor:   input.Replication,
		PreferNodes:         input.PreferNodes,
		ExcludeNodes:        input.ExcludeNodes,
		NodeSelector:        input.NodeSelector,
		MinFaultDomains:     input.MinFaultDomains,
		MinScore:            input.MinScore,
		MinDriveBytes:       minDrive,
		RequireZNS:          input.RequireZNS,
		PreferEnterprise:    input.PreferEnterprise,
	}, nil
}

// Provision allocates and commits storage for input
func (s *ProvisioningService) Provision(ctx context.Context, input *models.CreateStorageRequest) (*metadata.StorageRecord, error) {
	if err := input.Validate(); err != nil {
		return nil, NewServiceError(CodeInvalidRequest, err.Error())
	}
	req, err := BuildRequest(input)
	if err != nil {
		return nil, NewServiceError(CodeInvalidRequest, err.Error())
	}

	backend, err := s.backends.For(req.StorageType)
	if err != nil {
		return nil, NewServiceError(CodeUnsupported, err.Error())
	}
	constraints := backends.Constraints{
		Name:     input.Name,
		Tier:     req.TierPreference,
		Replicas: req.RequiredNodes(),
		Labels:   input.Labels,
	}

	startTime := time.Now()
	var (
		handle   *backends.Handle
		attempts int
		lastErr  error
	)
	for attempts < s.maxRetries+1 {
		attempts++
		if err := ctx.Err(); err != nil {
			return nil, NewServiceError(CodeInternal, err.Error())
		}

		res, err := s.engine.Allocate(req)
		if err != nil {
			s.logger.Info("Allocation rejected",
				"name", input.Name,
				"attempt", attempts,
				"error", err)
			return nil, FromAllocationError(err)
		}

		handle, err = backend.Reserve(ctx, res, constraints)
		if err == nil {
			break
		}
		if errors.Is(err, backends.ErrUnsupported) {
			return nil, NewServiceError(CodeUnsupported, err.Error())
		}
		if !backends.IsConflict(err) {
			return nil, NewServiceError(CodeInternal, fmt.Sprintf("reserve failed: %v", err))
		}
		lastErr = err
		if s.onRetry != nil {
			s.onRetry()
		}
		s.logger.Debug("Reservation conflict, retrying allocation",
			"name", input.Name,
			"attempt", attempts,
			"error", err)
	}
	if handle == nil {
		return nil, NewServiceErrorWithDetails(CodeCommitConflict,
			fmt.Sprintf("registry kept changing during commit: %v", lastErr),
			map[string]interface{}{"attempts": attempts})
	}

	rec := &metadata.StorageRecord{
		ID:            handle.ID,
		Name:          input.Name,
		StorageType:   req.StorageType,
		CapacityBytes: req.CapacityBytes,
		Tier:          string(req.TierPreference),
		DriveType:     string(req.DriveTypePreference),
		Replication:   req.RequiredNodes(),
		Labels:        input.Labels,
		Status:        metadata.StatusBound,
		Handle:        handle,
		Attempts:      attempts,
		CreatedAt:     s.now(),
	}
	if err := s.records.Save(ctx, rec); err != nil {
		if rerr := backend.Release(ctx, handle.ID); rerr != nil {
			s.logger.Error("Failed to release reservation after persist failure",
				"storage_id", handle.ID, "error", rerr)
		}
		return nil, NewServiceError(CodeInternal, err.Error())
	}

	s.logger.Info("Storage provisioned",
		"storage_id", rec.ID,
		"name", rec.Name,
		"storage_type", string(rec.StorageType),
		"capacity_bytes", rec.CapacityBytes,
		"placements", len(handle.Placements),
		"attempts", attempts,
		"latency_ms", time.Since(startTime).Milliseconds())
	return rec, nil
}

// Get returns one storage record
func (s *ProvisioningService) Get(ctx context.Context, id string) (*metadata.StorageRecord, error) {
	rec, err := s.records.Get(ctx, id)
	if err != nil {
		if errors.Is(err, metadata.ErrNotFound) {
			return nil, NewServiceError(CodeNotFound, err.Error())
		}
		return nil, NewServiceError(CodeInternal, err.Error())
	}
	return rec, nil
}

// List returns every storage record
func (s *ProvisioningService) List(ctx context.Context) ([]*metadata.StorageRecord, error) {
	recs, err := s.records.List(ctx)
	if err != nil {
		return nil, NewServiceError(CodeInternal, err.Error())
	}
	return recs, nil
}

// Delete releases the reservation and removes the record
func (s *ProvisioningService) Delete(ctx context.Context, id string) error {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if rec.Handle != nil {
		backend, err := s.backends.For(rec.StorageType)
		if err != nil {
			return NewServiceError(CodeUnsupported, err.Error())
		}
		if err := backend.Release(ctx, rec.Handle.ID); err != nil && !errors.Is(err, backends.ErrHandleNotFound) {
			return NewServiceError(CodeInternal, err.Error())
		}
	}
	if err := s.records.Delete(ctx, id); err != nil {
		return NewServiceError(CodeInternal, err.Error())
	}

	s.logger.Info("Storage deleted", "storage_id", id, "name", rec.Name)
	return nil
}

// Restore replays persisted reservations into the ledger after a restart
func (s *ProvisioningService) Restore(ctx context.Context) (int, error) {
	recs, err := s.records.List(ctx)
	if err != nil {
		return 0, err
	}
	restored := 0
	for _, rec := range recs {
		if rec.Status != metadata.StatusBound || rec.Handle == nil {
			continue
		}
		s.backends.Ledger().Restore(rec.Handle)
		restored++
	}
	if restored > 0 {
		s.logger.Info("Restored reservations", "count", restored)
	}
	return restored, nil
}
