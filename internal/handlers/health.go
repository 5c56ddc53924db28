package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"pulseboard/internal/services"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	connManager *services.ConnectionManager
	pins        *services.PinService
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(connManager *services.ConnectionManager, pins *services.PinService) *HealthHandler {
	return &HealthHandler{connManager: connManager, pins: pins}
}

// Handle responds with server health status
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":      "healthy",
		"connections": h.connManager.Count(),
		"widgets":     len(h.pins.Widgets()),
		"timestamp":   time.Now().Format(time.RFC3339),
	})
}
