package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/schema"

	"github.com/abrahamahn/abe-stack-sub003/internal/database/observability"
	"github.com/abrahamahn/abe-stack-sub003/internal/pkg/log"
	"github.com/abrahamahn/abe-stack-sub003/search/errors"
	"github.com/abrahamahn/abe-stack-sub003/search/models"
	"github.com/abrahamahn/abe-stack-sub003/search/services"
)

// StatsSource exposes a query metrics snapshot.
type StatsSource interface {
	GetGlobalStats() map[string]interface{}
	Operations() []observability.OperationMetrics
}

type SearchHandler struct {
	service services.Service
	stats   StatsSource
	decoder *schema.Decoder
}

func NewSearchHandler(service services.Service, stats StatsSource) *SearchHandler {
	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)
	return &SearchHandler{service: service, stats: stats, decoder: decoder}
}

// searchParams is the query-string form of a SearchQuery.
type searchParams struct {
	Page         int      `schema:"page"`
	Limit        int      `schema:"limit"`
	Cursor       string   `schema:"cursor"`
	IncludeCount bool     `schema:"includeCount"`
	Sort         []string `schema:"sort"`
	Filter       string   `schema:"filter"`
	Facet        []string `schema:"facet"`
}

func (p searchParams) query() (models.SearchQuery, error) {
	q := models.SearchQuery{
		Page:         p.Page,
		Limit:        p.Limit,
		Cursor:       p.Cursor,
		IncludeCount: p.IncludeCount,
	}
	for _, s := range p.Sort {
		field, order, _ := strings.Cut(s, ":")
		if field == "" {
			return q, fmt.Errorf("sort %q: field is required", s)
		}
		q.Sort = append(q.Sort, models.SortConfig{Field: field, Order: models.SortOrder(strings.ToLower(order))})
	}
	if p.Filter != "" {
		node, err := models.DecodeFilter([]byte(p.Filter))
		if err != nil {
			return q, fmt.Errorf("filter: %w", err)
		}
		q.Filters = node
	}
	for _, f := range p.Facet {
		q.Facets = append(q.Facets, models.FacetConfig{Field: f})
	}
	return q, nil
}

func (h *SearchHandler) parseBody(c *fiber.Ctx) (models.SearchQuery, error) {
	var q models.SearchQuery
	body := c.Body()
	if len(body) == 0 {
		return q, nil
	}
	if err := json.Unmarshal(body, &q); err != nil {
		return q, err
	}
	return q, nil
}

func (h *SearchHandler) resource(c *fiber.Ctx) (string, bool) {
	resource := c.Params("resource")
	return resource, resource != ""
}

// Search runs an offset-paginated search.
// Endpoint: POST /search/:resource
func (h *SearchHandler) Search(c *fiber.Ctx) error {
	resource, ok := h.resource(c)
	if !ok {
		return errors.HandleValidationError(c, "resource is required")
	}

	query, err := h.parseBody(c)
	if err != nil {
		return errors.HandleValidationError(c, fmt.Sprintf("invalid request body: %v", err))
	}

	result, err := h.service.Search(c.UserContext(), resource, query)
	if err != nil {
		return errors.HandleServiceError(c, err)
	}
	return c.Status(http.StatusOK).JSON(result)
}

// SearchQueryString runs a search described by query parameters. A cursor
// switches to keyset pagination; facet parameters add facet buckets.
// Endpoint: GET /search/:resource?filter=...&sort=age:desc&limit=...
func (h *SearchHandler) SearchQueryString(c *fiber.Ctx) error {
	resource, ok := h.resource(c)
	if !ok {
		return errors.HandleValidationError(c, "resource is required")
	}

	values, err := url.ParseQuery(string(c.Request().URI().QueryString()))
	if err != nil {
		return errors.HandleValidationError(c, fmt.Sprintf("invalid query string: %v", err))
	}
	var params searchParams
	if err := h.decoder.Decode(&params, values); err != nil {
		return errors.HandleValidationError(c, fmt.Sprintf("invalid query parameters: %v", err))
	}
	query, err := params.query()
	if err != nil {
		return errors.HandleValidationError(c, err.Error())
	}

	ctx := c.UserContext()
	var result interface{}
	switch {
	case query.Cursor != "":
		result, err = h.service.SearchWithCursor(ctx, resource, query)
	case len(query.Facets) > 0:
		result, err = h.service.SearchFaceted(ctx, resource, query)
	default:
		result, err = h.service.Search(ctx, resource, query)
	}
	if err != nil {
		return errors.HandleServiceError(c, err)
	}
	return c.Status(http.StatusOK).JSON(result)
}

// Cursor runs a keyset-paginated search.
// Endpoint: POST /search/:resource/cursor
func (h *SearchHandler) Cursor(c *fiber.Ctx) error {
	resource, ok := h.resource(c)
	if !ok {
		return errors.HandleValidationError(c, "resource is required")
	}

	query, err := h.parseBody(c)
	if err != nil {
		return errors.HandleValidationError(c, fmt.Sprintf("invalid request body: %v", err))
	}

	result, err := h.service.SearchWithCursor(c.UserContext(), resource, query)
	if err != nil {
		return errors.HandleServiceError(c, err)
	}
	return c.Status(http.StatusOK).JSON(result)
}

// Facets runs a search with facet buckets.
// Endpoint: POST /search/:resource/facets
func (h *SearchHandler) Facets(c *fiber.Ctx) error {
	resource, ok := h.resource(c)
	if !ok {
		return errors.HandleValidationError(c, "resource is required")
	}

	query, err := h.parseBody(c)
	if err != nil {
		return errors.HandleValidationError(c, fmt.Sprintf("invalid request body: %v", err))
	}

	result, err := h.service.SearchFaceted(c.UserContext(), resource, query)
	if err != nil {
		return errors.HandleServiceError(c, err)
	}
	return c.Status(http.StatusOK).JSON(result)
}

// Count returns the number of rows matching the filters.
// Endpoint: POST /search/:resource/count
func (h *SearchHandler) Count(c *fiber.Ctx) error {
	resource, ok := h.resource(c)
	if !ok {
		return errors.HandleValidationError(c, "resource is required")
	}

	query, err := h.parseBody(c)
	if err != nil {
		return errors.HandleValidationError(c, fmt.Sprintf("invalid request body: %v", err))
	}

	count, err := h.service.Count(c.UserContext(), resource, query)
	if err != nil {
		return errors.HandleServiceError(c, err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"count": count})
}

// Capabilities lists the capabilities of every resource.
// Endpoint: GET /search/capabilities
func (h *SearchHandler) Capabilities(c *fiber.Ctx) error {
	return c.Status(http.StatusOK).JSON(h.service.Capabilities())
}

// Health reports per-resource health.
// Endpoint: GET /search/health
func (h *SearchHandler) Health(c *fiber.Ctx) error {
	health := h.service.Health(c.UserContext())

	status := http.StatusOK
	for resource, ok := range health {
		if !ok {
			log.WarnWithContext(c.UserContext(), "Search resource %s is unhealthy", resource)
			status = http.StatusServiceUnavailable
		}
	}
	return c.Status(status).JSON(fiber.Map{
		"healthy":   status == http.StatusOK,
		"resources": health,
	})
}

// Stats returns the query metrics snapshot.
// Endpoint: GET /search/stats
func (h *SearchHandler) Stats(c *fiber.Ctx) error {
	if h.stats == nil {
		return c.Status(http.StatusOK).JSON(fiber.Map{})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"global":     h.stats.GetGlobalStats(),
		"operations": h.stats.Operations(),
	})
}
