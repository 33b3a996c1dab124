package handlers

import (
	"aria/internal/services"

	"github.com/gofiber/fiber/v2"
)

// MemoryHandler exposes read/forget access to a user's stored facts.
type MemoryHandler struct {
	memory services.MemoryStore
}

// NewMemoryHandler creates the memory handler.
func NewMemoryHandler(memory services.MemoryStore) *MemoryHandler {
	return &MemoryHandler{memory: memory}
}

// GetProfile handles GET /api/memory/profile.
func (h *MemoryHandler) GetProfile(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	profile, err := h.memory.Profile(c.Context(), userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load profile",
		})
	}
	return c.JSON(profile)
}

// ForgetFact handles DELETE /api/memory/:bucket/:key.
func (h *MemoryHandler) ForgetFact(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	bucket := c.Params("bucket")
	key := c.Params("key")
	if bucket == "" || key == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Bucket and key are required",
		})
	}

	if err := h.memory.ForgetFact(c.Context(), userID, bucket, key); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to forget fact",
		})
	}
	return c.JSON(fiber.Map{"forgotten": true})
}
