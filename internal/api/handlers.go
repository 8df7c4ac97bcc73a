// Package api serves the crawl status surface: health, checkpoint state,
// statistics and collected notices.
package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/nurimarket/bidwatch/internal/state"
	"github.com/nurimarket/bidwatch/internal/storage"
)

// Handlers contains the HTTP handlers for the status API
type Handlers struct {
	state *state.Manager
	repo  storage.Repository
}

// NewHandlers creates a new handlers instance
func NewHandlers(stateMgr *state.Manager, repo storage.Repository) *Handlers {
	return &Handlers{state: stateMgr, repo: repo}
}

// Health returns the service health status
func (h *Handlers) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"service":   "bidwatch",
		"version":   "1.0.0",
		"timestamp": time.Now().UTC(),
	})
}

// Status returns the current checkpoint state
func (h *Handlers) Status(c *fiber.Ctx) error {
	snapshot := h.state.Snapshot()
	if snapshot == nil {
		snapshot = h.state.Load()
	}
	if snapshot == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "no crawl state",
		})
	}
	return c.JSON(snapshot)
}

// Stats returns crawl statistics plus repository totals
func (h *Handlers) Stats(c *fiber.Ctx) error {
	snapshot := h.state.Snapshot()
	if snapshot == nil {
		snapshot = h.state.Load()
	}
	if snapshot == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "no crawl state",
		})
	}
	return c.JSON(fiber.Map{
		"run_id":       snapshot.RunID,
		"is_running":   snapshot.IsRunning,
		"is_completed": snapshot.IsCompleted,
		"statistics":   snapshot.Statistics,
		"success_rate": snapshot.Statistics.SuccessRate(),
		"stored_count": h.repo.Count(),
	})
}

// Notices returns collected notices, bounded by the limit query parameter
func (h *Handlers) Notices(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 100)
	notices, err := h.repo.FindAll(limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "repository query failed",
			"details": err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"count": len(notices),
		"items": notices,
	})
}

// NewServer builds the fiber app with all routes mounted
func NewServer(stateMgr *state.Manager, repo storage.Repository) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "bidwatch",
		DisableStartupMessage: true,
	})

	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Request-ID", uuid.New().String())
		return c.Next()
	})

	h := NewHandlers(stateMgr, repo)
	app.Get("/health", h.Health)

	v1 := app.Group("/api/v1")
	v1.Get("/status", h.Status)
	v1.Get("/stats", h.Stats)
	v1.Get("/notices", h.Notices)

	return app
}
