package api

import (
	"errors"

	"github.com/Caia-Tech/caia-quizcheck/internal/storage"
	"github.com/Caia-Tech/caia-quizcheck/pkg/config"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// NewApp creates the Fiber app with the service middleware and error format
func NewApp(cfg *config.ServerConfig) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "quizcheck API",
		DisableStartupMessage: true,
		BodyLimit:             int(cfg.MaxRequestSize),
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	// Middleware
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${ip} | ${method} | ${path} | ${error}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "UTC",
	}))

	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, DELETE, OPTIONS",
	}))

	return app
}

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, h *Handlers, storageHandler *StorageHandler) {
	// Health check
	app.Get("/health", h.Health)

	// API v1 routes
	v1 := app.Group("/api/v1")
	v1.Get("/health", h.Health)

	// Validation routes
	v1.Post("/validate", h.Validate)
	v1.Post("/validate/upload", h.UploadDocument)
	v1.Post("/export", h.Export)

	// Question set routes
	v1.Post("/sets", h.CreateSet)

	// Batch routes
	batch := v1.Group("/batch")
	batch.Post("/", h.CreateBatch)
	batch.Get("/:id", h.GetBatch)

	// Storage monitoring routes
	if storageHandler != nil {
		storage := v1.Group("/storage")
		storage.Get("/metrics", storageHandler.GetStorageMetrics)
		storage.Get("/health", storageHandler.GetStorageHealth)
		storage.Delete("/metrics", storageHandler.ClearMetrics)
	}

	// Root
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"service": "quizcheck",
			"version": Version,
			"docs":    "https://github.com/Caia-Tech/caia-quizcheck",
		})
	})
}

// StorageHandler provides HTTP endpoints for storage monitoring
type StorageHandler struct {
	store   storage.Store
	metrics *storage.SimpleMetricsCollector
}

// NewStorageHandler creates a new storage handler
func NewStorageHandler(store storage.Store, metrics *storage.SimpleMetricsCollector) *StorageHandler {
	return &StorageHandler{
		store:   store,
		metrics: metrics,
	}
}

// GetStorageMetrics returns detailed performance metrics
func (h *StorageHandler) GetStorageMetrics(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"metrics_summary": h.metrics.GetMetricsSummary(),
	})
}

// GetStorageHealth checks the health of the store
func (h *StorageHandler) GetStorageHealth(c *fiber.Ctx) error {
	if err := h.store.Health(c.UserContext()); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"healthy": false,
			"error":   err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"healthy": true,
	})
}

// ClearMetrics clears all collected metrics
func (h *StorageHandler) ClearMetrics(c *fiber.Ctx) error {
	h.metrics.ClearMetrics()
	return c.JSON(fiber.Map{
		"message": "Metrics cleared successfully",
	})
}
