package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/soltixdb/unistor/internal/models"
	"github.com/soltixdb/unistor/internal/services"
	"github.com/soltixdb/unistor/internal/utils"
)

// ListPools returns the built-in tier pools followed by configured pools
func (h *Handler) ListPools(c *fiber.Ctx) error {
	return c.JSON(models.PoolListResponse{Pools: h.engine.Pools()})
}

// GetPool returns one pool projection
func (h *Handler) GetPool(c *fiber.Ctx) error {
	name := c.Params("name")
	pool, ok := h.engine.Pool(name)
	if !ok {
		return h.respondError(c, services.NewServiceError(services.CodeNotFound, "pool "+name+" not found"))
	}
	return c.JSON(pool)
}

// GetCapacity returns cluster capacity tagged by tier
func (h *Handler) GetCapacity(c *fiber.Ctx) error {
	report := h.capacity.Capacity()
	return c.JSON(models.CapacityResponse{
		CapacityReport: report,
		Total:          utils.FormatCapacity(report.TotalBytes),
		Available:      utils.FormatCapacity(report.AvailableBytes),
	})
}
