package handlers

import (
	"errors"
	"log"
	"strings"

	"aria/internal/models"
	"aria/internal/services"

	"github.com/gofiber/fiber/v2"
)

// ChatHandler exposes the message-submission and history endpoints.
type ChatHandler struct {
	orchestrator  *services.OrchestratorService
	conversations *services.ConversationService
	claims        services.MessageClaimer
}

// NewChatHandler creates the chat handler.
func NewChatHandler(orchestrator *services.OrchestratorService, conversations *services.ConversationService, claims services.MessageClaimer) *ChatHandler {
	return &ChatHandler{orchestrator: orchestrator, conversations: conversations, claims: claims}
}

// SendMessage handles POST /api/chat/messages. One message in, one reply
// envelope out; internal faults degrade to an honest reply, never a broken
// turn.
func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	var req models.ChatRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Message is required",
		})
	}
	if len(req.Message) > 8000 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Message too long",
		})
	}

	// Redelivery of the same client message ID is dropped before it can
	// trigger a second model run or calendar write.
	if req.ClientMessageID != "" && h.claims != nil &&
		!h.claims.ClaimMessage(c.Context(), userID+":"+req.ClientMessageID) {
		log.Printf("⚠️ [CHAT] Dropping duplicate delivery of message %s for user %s", req.ClientMessageID, userID)
		return c.JSON(fiber.Map{
			"reply":     "I already received that message and handled it once.",
			"duplicate": true,
			"thread_id": req.ThreadID,
		})
	}

	response := h.orchestrator.HandleTurn(c.Context(), userID, &req)
	return c.JSON(response)
}

// GetThreadMessages handles GET /api/chat/threads/:id/messages.
func (h *ChatHandler) GetThreadMessages(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	threadID := c.Params("id")
	messages, err := h.conversations.ThreadMessages(c.Context(), userID, threadID, models.DefaultHistoryLimit)
	if err != nil {
		if errors.Is(err, services.ErrThreadNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Thread not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load messages",
		})
	}

	return c.JSON(fiber.Map{
		"thread_id": threadID,
		"messages":  messages,
	})
}
