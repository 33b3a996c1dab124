package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
)

func testRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		GlobalMax:        2,
		GlobalExpiration: 1 * time.Minute,
		APIMax:           2,
		APIExpiration:    1 * time.Minute,
	}
}

func TestGlobalRateLimiterBlocksAfterMax(t *testing.T) {
	app := fiber.New()
	app.Use(GlobalRateLimiter(testRateLimitConfig()))
	app.Get("/ping", func(c *fiber.Ctx) error { return c.SendString("pong") })

	for i := 0; i < 2; i++ {
		resp, err := app.Test(httptest.NewRequest("GET", "/ping", nil))
		if err != nil {
			t.Fatalf("request %d failed: %v", i+1, err)
		}
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i+1, resp.StatusCode)
		}
	}

	resp, err := app.Test(httptest.NewRequest("GET", "/ping", nil))
	if err != nil {
		t.Fatalf("third request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusTooManyRequests {
		t.Errorf("third request status = %d, want 429", resp.StatusCode)
	}
}

func TestAPIRateLimiterKeysPerUser(t *testing.T) {
	app := fiber.New()
	// Simulated auth: the user ID travels in a header for the test.
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", c.Get("X-Test-User"))
		return c.Next()
	})
	app.Use(APIRateLimiter(testRateLimitConfig()))
	app.Get("/api/thing", func(c *fiber.Ctx) error { return c.SendString("ok") })

	get := func(user string) int {
		req := httptest.NewRequest("GET", "/api/thing", nil)
		req.Header.Set("X-Test-User", user)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("request for %s failed: %v", user, err)
		}
		return resp.StatusCode
	}

	for i := 0; i < 2; i++ {
		if status := get("user-a"); status != fiber.StatusOK {
			t.Fatalf("user-a request %d status = %d, want 200", i+1, status)
		}
	}
	if status := get("user-a"); status != fiber.StatusTooManyRequests {
		t.Errorf("user-a over limit status = %d, want 429", status)
	}

	// A different user has their own bucket.
	if status := get("user-b"); status != fiber.StatusOK {
		t.Errorf("user-b status = %d, want 200", status)
	}
}
