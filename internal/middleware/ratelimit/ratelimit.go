// Package ratelimit provides per-client rate limiting for the search API.
package ratelimit

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/abrahamahn/abe-stack-sub003/internal/pkg/log"
	"github.com/abrahamahn/abe-stack-sub003/internal/platform/config"
)

// Default search limits: 120 requests per minute per client.
const (
	DefaultMaxRequests    = 120
	DefaultWindowDuration = time.Minute
)

// Config holds the configuration for rate limiting middleware
type Config struct {
	// Name appears in log lines and the 429 body.
	Name string

	MaxRequests    int
	WindowDuration time.Duration

	// Next defines a function to skip this middleware when returned true
	Next func(c *fiber.Ctx) bool

	// Custom key generator (optional - uses default IP-based if not provided)
	KeyGenerator func(c *fiber.Ctx) string

	// LimitReached defines the response when rate limit is exceeded
	LimitReached func(c *fiber.Ctx) error
}

// configDefault sets default configuration values
func configDefault(config Config) Config {
	if config.Name == "" {
		config.Name = "search"
	}
	if config.MaxRequests <= 0 {
		config.MaxRequests = DefaultMaxRequests
	}
	if config.WindowDuration <= 0 {
		config.WindowDuration = DefaultWindowDuration
	}

	// Rate limit by IP + resource path
	if config.KeyGenerator == nil {
		config.KeyGenerator = func(c *fiber.Ctx) string {
			return c.IP() + ":" + c.Path()
		}
	}

	if config.LimitReached == nil {
		name := config.Name
		window := config.WindowDuration
		config.LimitReached = func(c *fiber.Ctx) error {
			log.Warn("[RateLimit] Rate limit exceeded for %s from IP: %s", name, c.IP())

			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"code":       "RATE_LIMIT_EXCEEDED",
				"message":    fmt.Sprintf("Too many %s requests. Please try again later.", name),
				"retryAfter": int(window.Seconds()),
			})
		}
	}

	return config
}

// New creates a new rate limiting middleware handler
func New(config Config) fiber.Handler {
	cfg := configDefault(config)

	return limiter.New(limiter.Config{
		Max:          cfg.MaxRequests,
		Expiration:   cfg.WindowDuration,
		KeyGenerator: cfg.KeyGenerator,
		LimitReached: cfg.LimitReached,
		Next:         cfg.Next,
	})
}

// NewSearchLimiter builds the search limiter from configuration. A disabled
// limit yields a pass-through handler.
func NewSearchLimiter(rl config.RateLimitConfig) fiber.Handler {
	if !rl.Enabled {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	return New(Config{
		Name:           "search",
		MaxRequests:    rl.Max,
		WindowDuration: rl.Duration,
	})
}
