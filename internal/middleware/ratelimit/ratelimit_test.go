package ratelimit

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abrahamahn/abe-stack-sub003/internal/platform/config"
)

func newApp(handler fiber.Handler) *fiber.App {
	app := fiber.New()
	app.Use(handler)
	app.Post("/search/users", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"success": true})
	})
	return app
}

func post(t *testing.T, app *fiber.App) int {
	t.Helper()
	req := httptest.NewRequest("POST", "/search/users", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}

func TestRateLimit_SuccessWithinLimits(t *testing.T) {
	app := newApp(New(Config{MaxRequests: 3, WindowDuration: time.Minute}))

	for i := 0; i < 3; i++ {
		assert.Equal(t, 200, post(t, app))
	}
}

func TestRateLimit_RejectsExcessiveRequests(t *testing.T) {
	app := newApp(New(Config{MaxRequests: 2, WindowDuration: time.Minute}))

	assert.Equal(t, 200, post(t, app))
	assert.Equal(t, 200, post(t, app))

	req := httptest.NewRequest("POST", "/search/users", strings.NewReader("{}"))
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 429, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "RATE_LIMIT_EXCEEDED")
	assert.Contains(t, string(body), "search")
	assert.Contains(t, string(body), `"retryAfter":60`)
}

func TestRateLimit_Defaults(t *testing.T) {
	cfg := configDefault(Config{})
	assert.Equal(t, "search", cfg.Name)
	assert.Equal(t, DefaultMaxRequests, cfg.MaxRequests)
	assert.Equal(t, DefaultWindowDuration, cfg.WindowDuration)
	assert.NotNil(t, cfg.KeyGenerator)
	assert.NotNil(t, cfg.LimitReached)
}

func TestRateLimit_SkipWithNext(t *testing.T) {
	app := newApp(New(Config{
		MaxRequests:    1,
		WindowDuration: time.Minute,
		Next:           func(c *fiber.Ctx) bool { return true },
	}))

	for i := 0; i < 3; i++ {
		assert.Equal(t, 200, post(t, app))
	}
}

func TestNewSearchLimiter(t *testing.T) {
	t.Run("enabled", func(t *testing.T) {
		app := newApp(NewSearchLimiter(config.RateLimitConfig{Enabled: true, Max: 1, Duration: time.Minute}))
		assert.Equal(t, 200, post(t, app))
		assert.Equal(t, 429, post(t, app))
	})

	t.Run("disabled", func(t *testing.T) {
		app := newApp(NewSearchLimiter(config.RateLimitConfig{Enabled: false, Max: 1, Duration: time.Minute}))
		for i := 0; i < 3; i++ {
			assert.Equal(t, 200, post(t, app))
		}
	})
}
