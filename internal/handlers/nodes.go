package handlers

import (
	"sort"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/soltixdb/unistor/internal/hardware"
	"github.com/soltixdb/unistor/internal/models"
	"github.com/soltixdb/unistor/internal/registry"
	"github.com/soltixdb/unistor/internal/services"
)

// ListNodes returns every registered node, optionally filtered by
// ?phase= (effective phase) or ?shard=
func (h *Handler) ListNodes(c *fiber.Ctx) error {
	var nodes []hardware.NodeState
	if raw := c.Query("shard"); raw != "" {
		idx, err := strconv.Atoi(raw)
		if err != nil || idx < 0 || idx >= registry.ShardCount {
			return h.badRequest(c, "shard must be an integer within 0..255")
		}
		nodes = h.registry.ListShard(idx)
	} else {
		nodes = h.registry.List()
	}

	phase := hardware.NodePhase(c.Query("phase"))
	now := h.now()
	staleness := h.engine.Staleness()

	resp := models.NodeListResponse{Nodes: make([]models.NodeResponse, 0, len(nodes))}
	for i := range nodes {
		nr := models.NewNodeResponse(&nodes[i], now, staleness)
		if phase != "" && nr.Phase != phase {
			continue
		}
		resp.Nodes = append(resp.Nodes, nr)
	}
	sort.Slice(resp.Nodes, func(i, j int) bool {
		return resp.Nodes[i].NodeID < resp.Nodes[j].NodeID
	})
	resp.Count = len(resp.Nodes)
	return c.JSON(resp)
}

// GetNode returns one node snapshot
func (h *Handler) GetNode(c *fiber.Ctx) error {
	name := c.Params("name")
	n, ok := h.registry.Get(name)
	if !ok {
		return h.respondError(c, services.NewServiceError(services.CodeNotFound, "node "+name+" not found"))
	}
	return c.JSON(models.NewNodeResponse(&n, h.now(), h.engine.Staleness()))
}

// IngestNode replaces the node's drives with a fresh discovery scan
func (h *Handler) IngestNode(c *fiber.Ctx) error {
	name := c.Params("name")

	var req models.IngestNodeRequest
	if err := c.BodyParser(&req); err != nil {
		return h.badRequest(c, "Invalid request body: "+err.Error())
	}

	gen, err := h.registry.IngestWithMeta(name, req.Drives, &registry.NodeMeta{
		Labels:      req.Labels,
		FaultDomain: req.FaultDomain,
	})
	if err != nil {
		return h.respondError(c, services.FromRegistryError(err))
	}

	h.logger.Info("Node ingested via API", "node_id", name, "drives", len(req.Drives), "generation", gen)
	return c.JSON(models.NodeMutationResponse{NodeID: name, Generation: gen})
}

// DeleteNode deregisters a node
func (h *Handler) DeleteNode(c *fiber.Ctx) error {
	name := c.Params("name")
	if !h.registry.Deregister(name) {
		return h.respondError(c, services.NewServiceError(services.CodeNotFound, "node "+name+" not found"))
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// UpdateDriveMetrics stores a runtime sample for one drive
func (h *Handler) UpdateDriveMetrics(c *fiber.Ctx) error {
	name := c.Params("name")
	drive := c.Params("drive")

	var req models.MetricsRequest
	if err := c.BodyParser(&req); err != nil {
		return h.badRequest(c, "Invalid request body: "+err.Error())
	}

	gen, err := h.registry.UpdateMetrics(name, drive, req.DriveMetrics)
	if err != nil {
		return h.respondError(c, services.FromRegistryError(err))
	}
	return c.JSON(models.NodeMutationResponse{NodeID: name, Generation: gen})
}

// ClassifyNode re-runs the classifier over the node's stored drive facts
func (h *Handler) ClassifyNode(c *fiber.Ctx) error {
	name := c.Params("name")
	if _, err := h.registry.Reclassify(name); err != nil {
		return h.respondError(c, services.FromRegistryError(err))
	}

	n, ok := h.registry.Get(name)
	if !ok {
		// deregistered between the two calls
		return h.respondError(c, services.NewServiceError(services.CodeNotFound, "node "+name+" not found"))
	}
	return c.JSON(models.NewNodeResponse(&n, h.now(), h.engine.Staleness()))
}
