package middleware

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// RateLimitConfig holds inbound rate limiting settings.
type RateLimitConfig struct {
	// Global per-IP ceiling across all endpoints.
	GlobalMax        int
	GlobalExpiration time.Duration

	// Per-user ceiling on the authenticated API. Every chat turn costs at
	// least one model call, so this runs much lower than the global limit.
	APIMax        int
	APIExpiration time.Duration
}

// DefaultRateLimitConfig returns production-safe defaults.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		GlobalMax:        200,
		GlobalExpiration: 1 * time.Minute,
		APIMax:           30,
		APIExpiration:    1 * time.Minute,
	}
}

// LoadRateLimitConfig loads config from environment variables with defaults.
func LoadRateLimitConfig() *RateLimitConfig {
	config := DefaultRateLimitConfig()

	if v := os.Getenv("RATE_LIMIT_GLOBAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.GlobalMax = n
		}
	}
	if v := os.Getenv("RATE_LIMIT_API"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.APIMax = n
		}
	}

	if os.Getenv("ENVIRONMENT") == "development" {
		config.GlobalMax = 1000
		config.APIMax = 300
		log.Println("⚠️ [RATE-LIMIT] Development mode: using relaxed rate limits")
	}

	return config
}

// GlobalRateLimiter caps requests per IP across the whole app.
func GlobalRateLimiter(config *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        config.GlobalMax,
		Expiration: config.GlobalExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "global:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("🚫 [RATE-LIMIT] Global limit reached for IP: %s", c.IP())
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "Too many requests. Please slow down.",
				"retry_after": int(config.GlobalExpiration.Seconds()),
			})
		},
	})
}

// APIRateLimiter caps authenticated API requests per user, falling back to
// the caller's IP when no user is resolved yet.
func APIRateLimiter(config *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        config.APIMax,
		Expiration: config.APIExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			if userID, ok := c.Locals("user_id").(string); ok && userID != "" {
				return "api:" + userID
			}
			return "api-ip:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			userID, _ := c.Locals("user_id").(string)
			log.Printf("⚠️ [RATE-LIMIT] API limit reached for user: %s on %s", userID, c.Path())
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "Too many requests. Please wait before trying again.",
				"retry_after": int(config.APIExpiration.Seconds()),
			})
		},
	})
}
