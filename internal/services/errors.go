// Package services provides the business logic layer between handlers and
// the registry, allocation engine and backends.
package services

import (
	"errors"

	"github.com/soltixdb/unistor/internal/allocation"
	"github.com/soltixdb/unistor/internal/registry"
)

// Error codes surfaced to API clients
const (
	CodeInvalidRequest        = "INVALID_REQUEST"
	CodeNotFound              = "NOT_FOUND"
	CodeInsufficientCapacity  = "INSUFFICIENT_CAPACITY"
	CodeInsufficientDiversity = "INSUFFICIENT_DIVERSITY"
	CodeNoCandidates          = "NO_CANDIDATES"
	CodeCommitConflict        = "COMMIT_CONFLICT"
	CodeUnsupported           = "BACKEND_UNSUPPORTED"
	CodeInternal              = "INTERNAL_ERROR"
)

// ServiceError represents a service layer error
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}

// NewServiceError creates a new ServiceError
func NewServiceError(code, message string) *ServiceError {
	return &ServiceError{
		Code:    code,
		Message: message,
	}
}

// NewServiceErrorWithDetails creates a new ServiceError with details
func NewServiceErrorWithDetails(code, message string, details map[string]interface{}) *ServiceError {
	return &ServiceError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// FromAllocationError names the unmet constraint so clients can tell
// "add capacity" apart from "add nodes"
func FromAllocationError(err error) *ServiceError {
	var aerr *allocation.Error
	if !errors.As(err, &aerr) {
		return NewServiceError(CodeInternal, err.Error())
	}

	details := map[string]interface{}{
		"requested_bytes": aerr.RequestedBytes,
		"available_bytes": aerr.AvailableBytes,
		"required_nodes":  aerr.RequiredNodes,
		"available_nodes": aerr.AvailableNodes,
	}
	switch aerr.Kind {
	case allocation.KindInsufficientCapacity:
		details["constraint"] = "capacity"
		return NewServiceErrorWithDetails(CodeInsufficientCapacity, aerr.Error(), details)
	case allocation.KindInsufficientDiversity:
		details["constraint"] = "node_diversity"
		if aerr.RequiredDomains > aerr.AvailableDomains {
			details["constraint"] = "fault_domain_diversity"
			details["required_domains"] = aerr.RequiredDomains
			details["available_domains"] = aerr.AvailableDomains
		}
		return NewServiceErrorWithDetails(CodeInsufficientDiversity, aerr.Error(), details)
	case allocation.KindNoCandidates:
		details["constraint"] = "drive_filters"
		return NewServiceErrorWithDetails(CodeNoCandidates, aerr.Error(), details)
	default:
		return NewServiceError(CodeInvalidRequest, aerr.Error())
	}
}

// FromRegistryError maps registry failures
func FromRegistryError(err error) *ServiceError {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		return NewServiceError(CodeNotFound, err.Error())
	case errors.Is(err, registry.ErrInvalidFacts):
		return NewServiceError(CodeInvalidRequest, err.Error())
	default:
		return NewServiceError(CodeInternal, err.Error())
	}
}
