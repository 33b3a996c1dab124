package handlers

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
)

// fakeClaimer scripts idempotency-claim outcomes and records the keys seen.
type fakeClaimer struct {
	allow bool
	seen  []string
}

func (f *fakeClaimer) ClaimMessage(ctx context.Context, messageID string) bool {
	f.seen = append(f.seen, messageID)
	return f.allow
}

func TestSendMessageDropsDuplicateDelivery(t *testing.T) {
	claims := &fakeClaimer{allow: false}
	// A nil orchestrator would panic if the duplicate slipped through to a
	// second turn; returning before HandleTurn is the point of the claim.
	handler := NewChatHandler(nil, nil, claims)

	app := fiber.New()
	app.Post("/api/chat/messages", func(c *fiber.Ctx) error {
		c.Locals("user_id", "user-1")
		return handler.SendMessage(c)
	})

	body := `{"message":"add pizza night friday","client_message_id":"cmid-1"}`
	req := httptest.NewRequest("POST", "/api/chat/messages", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var payload struct {
		Reply     string `json:"reply"`
		Duplicate bool   `json:"duplicate"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !payload.Duplicate {
		t.Error("response not flagged as a duplicate")
	}
	if payload.Reply == "" {
		t.Error("duplicate drop must still carry a reply")
	}

	if len(claims.seen) != 1 || claims.seen[0] != "user-1:cmid-1" {
		t.Errorf("claim keys = %v, want one user-scoped key user-1:cmid-1", claims.seen)
	}
}
