package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/soltixdb/unistor/internal/models"
)

// CreateStorage allocates and reserves storage
func (h *Handler) CreateStorage(c *fiber.Ctx) error {
	var req models.CreateStorageRequest
	if err := c.BodyParser(&req); err != nil {
		return h.badRequest(c, "Invalid request body: "+err.Error())
	}

	rec, err := h.provisioning.Provision(c.UserContext(), &req)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(models.NewStorageResponse(rec))
}

// ListStorage returns every provisioned storage record
func (h *Handler) ListStorage(c *fiber.Ctx) error {
	recs, err := h.provisioning.List(c.UserContext())
	if err != nil {
		return h.respondError(c, err)
	}

	resp := models.StorageListResponse{Storage: make([]models.StorageResponse, 0, len(recs))}
	for _, rec := range recs {
		resp.Storage = append(resp.Storage, models.NewStorageResponse(rec))
	}
	resp.Count = len(resp.Storage)
	return c.JSON(resp)
}

// GetStorage returns one storage record
func (h *Handler) GetStorage(c *fiber.Ctx) error {
	rec, err := h.provisioning.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(models.NewStorageResponse(rec))
}

// DeleteStorage releases the reservation and removes the record
func (h *Handler) DeleteStorage(c *fiber.Ctx) error {
	if err := h.provisioning.Delete(c.UserContext(), c.Params("id")); err != nil {
		return h.respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
