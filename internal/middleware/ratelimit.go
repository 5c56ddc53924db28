package middleware

import (
	"os"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// RateLimitConfig holds rate limiting settings
type RateLimitConfig struct {
	// Global limits (per IP)
	GlobalAPIMax        int
	GlobalAPIExpiration time.Duration

	// Update-ingest limits (per IP) - the highest-volume endpoint
	IngestMax        int
	IngestExpiration time.Duration

	// WebSocket connection limits (per IP)
	WebSocketMax        int
	WebSocketExpiration time.Duration
}

// DefaultRateLimitConfig returns production-safe defaults
func DefaultRateLimitConfig() *RateLimitConfig {
	cfg := &RateLimitConfig{
		// Global: 200/min - generous for a single-user dashboard
		GlobalAPIMax:        200,
		GlobalAPIExpiration: time.Minute,

		// Ingest: 600/min = 10/sec, matching the queue's batch cadence
		IngestMax:        600,
		IngestExpiration: time.Minute,

		// WebSocket: 20 connections/min
		WebSocketMax:        20,
		WebSocketExpiration: time.Minute,
	}

	if v := os.Getenv("RATE_LIMIT_GLOBAL_MAX"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.GlobalAPIMax = parsed
		}
	}
	if v := os.Getenv("RATE_LIMIT_INGEST_MAX"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.IngestMax = parsed
		}
	}
	return cfg
}

// GlobalAPI limits all API endpoints per client IP.
func (c *RateLimitConfig) GlobalAPI() fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        c.GlobalAPIMax,
		Expiration: c.GlobalAPIExpiration,
		KeyGenerator: func(ctx *fiber.Ctx) string {
			return ctx.IP()
		},
		LimitReached: func(ctx *fiber.Ctx) error {
			return ctx.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "rate limit exceeded",
			})
		},
	})
}

// Ingest limits the update-ingest endpoint per client IP.
func (c *RateLimitConfig) Ingest() fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        c.IngestMax,
		Expiration: c.IngestExpiration,
		KeyGenerator: func(ctx *fiber.Ctx) string {
			return ctx.IP()
		},
		LimitReached: func(ctx *fiber.Ctx) error {
			return ctx.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "update rate limit exceeded",
			})
		},
	})
}

// WebSocket limits new websocket connections per client IP.
func (c *RateLimitConfig) WebSocket() fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        c.WebSocketMax,
		Expiration: c.WebSocketExpiration,
		KeyGenerator: func(ctx *fiber.Ctx) string {
			return ctx.IP()
		},
		LimitReached: func(ctx *fiber.Ctx) error {
			return ctx.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "too many connection attempts",
			})
		},
	})
}
