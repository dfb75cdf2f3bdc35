package handlers

import (
	"time"

	"github.com/soltixdb/unistor/internal/allocation"
	"github.com/soltixdb/unistor/internal/logging"
	"github.com/soltixdb/unistor/internal/registry"
	"github.com/soltixdb/unistor/internal/services"
)

// Version is reported by GET /health
const Version = "1.0.0"

// Handler contains all HTTP handlers
type Handler struct {
	logger       *logging.Logger
	registry     *registry.Registry
	engine       *allocation.Engine
	capacity     *allocation.CapacityCache
	provisioning *services.ProvisioningService
	now          func() time.Time
}

// New creates a new handler instance
func New(logger *logging.Logger, reg *registry.Registry, engine *allocation.Engine,
	capacity *allocation.CapacityCache, provisioning *services.ProvisioningService,
) *Handler {
	return &Handler{
		logger:       logger,
		registry:     reg,
		engine:       engine,
		capacity:     capacity,
		provisioning: provisioning,
		now:          time.Now,
	}
}
