package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/soltixdb/unistor/internal/config"
	"github.com/soltixdb/unistor/internal/handlers"
	"github.com/soltixdb/unistor/internal/logging"
	"github.com/soltixdb/unistor/internal/metrics"
	"github.com/soltixdb/unistor/internal/middleware"
)

// Setup configures all routes and middlewares. m may be nil.
func Setup(app *fiber.App, logger *logging.Logger, h *handlers.Handler, m *metrics.Metrics, cfg config.Config) {
	// Global middlewares
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization,X-API-Key,X-Request-ID",
	}))
	app.Use(logging.FiberMiddleware(logger))
	if m != nil {
		app.Use(m.Middleware())
	}

	// Health and scrape (no auth required)
	app.Get("/health", h.Health)
	app.Get("/ready", h.Ready)
	if m != nil && cfg.Metrics.Enabled {
		app.Get(cfg.Metrics.Path, m.Handler())
	}

	authMiddleware := middleware.APIKeyAuth(logger, cfg.Auth)
	v1 := app.Group("/v1", authMiddleware)

	// Node registry
	v1.Get("/nodes", h.ListNodes)
	v1.Get("/nodes/:name", h.GetNode)
	v1.Put("/nodes/:name", h.IngestNode)
	v1.Delete("/nodes/:name", h.DeleteNode)
	v1.Post("/nodes/:name/classify", h.ClassifyNode)
	v1.Put("/nodes/:name/drives/:drive/metrics", h.UpdateDriveMetrics)

	// Pools and capacity
	v1.Get("/pools", h.ListPools)
	v1.Get("/pools/:name", h.GetPool)
	v1.Get("/capacity", h.GetCapacity)

	// Provisioning
	v1.Post("/storage", h.CreateStorage)
	v1.Get("/storage", h.ListStorage)
	v1.Get("/storage/:id", h.GetStorage)
	v1.Delete("/storage/:id", h.DeleteStorage)

	// 404 handler
	app.Use(h.NotFound)
}

// New creates a new Fiber app with configuration
func New(logger *logging.Logger, h *handlers.Handler, m *metrics.Metrics, cfg config.Config) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "Unistor Control Plane",
		DisableStartupMessage: true,
		ErrorHandler:          middleware.ErrorHandler(logger),
	})

	Setup(app, logger, h, m, cfg)

	return app
}
