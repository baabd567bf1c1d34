package search

import (
	"github.com/gofiber/fiber/v2"

	"github.com/abrahamahn/abe-stack-sub003/internal/middleware/ratelimit"
	platformconfig "github.com/abrahamahn/abe-stack-sub003/internal/platform/config"
	"github.com/abrahamahn/abe-stack-sub003/search/handlers"
)

type Handlers struct {
	SearchHandler *handlers.SearchHandler
}

// RegisterRoutes wires search endpoints under the configured base route.
func RegisterRoutes(app *fiber.App, handlers *Handlers, cfg *platformconfig.Config) {
	group := app.Group(cfg.Server.BaseRoute + "/search")

	// Static routes first so they are not captured by :resource.
	group.Get("/capabilities", handlers.SearchHandler.Capabilities)
	group.Get("/health", handlers.SearchHandler.Health)
	group.Get("/stats", handlers.SearchHandler.Stats)

	limited := group.Group("", ratelimit.NewSearchLimiter(cfg.RateLimits.Search))
	limited.Post("/:resource", handlers.SearchHandler.Search)
	limited.Get("/:resource", handlers.SearchHandler.SearchQueryString)
	limited.Post("/:resource/cursor", handlers.SearchHandler.Cursor)
	limited.Post("/:resource/facets", handlers.SearchHandler.Facets)
	limited.Post("/:resource/count", handlers.SearchHandler.Count)
}
