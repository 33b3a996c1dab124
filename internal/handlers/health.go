package handlers

import (
	"aria/internal/database"
	"aria/internal/services"

	"github.com/gofiber/fiber/v2"
)

// HealthHandler reports dependency liveness.
type HealthHandler struct {
	db    *database.MongoDB
	redis *services.RedisService
}

// NewHealthHandler creates the health handler.
func NewHealthHandler(db *database.MongoDB, redis *services.RedisService) *HealthHandler {
	return &HealthHandler{db: db, redis: redis}
}

// Health handles GET /health. Redis being down is reported but does not fail
// the check; MongoDB being down does.
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	status := fiber.Map{"status": "ok"}

	if err := h.db.Ping(c.Context()); err != nil {
		status["status"] = "degraded"
		status["mongodb"] = "down"
		return c.Status(fiber.StatusServiceUnavailable).JSON(status)
	}
	status["mongodb"] = "up"

	if err := h.redis.Ping(c.Context()); err != nil {
		status["redis"] = "down"
	} else {
		status["redis"] = "up"
	}

	return c.JSON(status)
}
