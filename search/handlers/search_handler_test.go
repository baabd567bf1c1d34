package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/abrahamahn/abe-stack-sub003/internal/database/observability"
	searcherrors "github.com/abrahamahn/abe-stack-sub003/search/errors"
	"github.com/abrahamahn/abe-stack-sub003/search/models"
	"github.com/abrahamahn/abe-stack-sub003/search/services"
)

func setupApp(t *testing.T) (*fiber.App, *services.MockSearcher, *observability.MetricsCollector) {
	t.Helper()
	users := new(services.MockSearcher)
	metrics := observability.NewMetricsCollector()
	h := NewSearchHandler(services.NewService(map[string]services.Searcher{"users": users}), metrics)

	app := fiber.New()
	group := app.Group("/search")
	group.Get("/capabilities", h.Capabilities)
	group.Get("/health", h.Health)
	group.Get("/stats", h.Stats)
	group.Post("/:resource", h.Search)
	group.Get("/:resource", h.SearchQueryString)
	group.Post("/:resource/cursor", h.Cursor)
	group.Post("/:resource/facets", h.Facets)
	group.Post("/:resource/count", h.Count)
	return app, users, metrics
}

func do(t *testing.T, app *fiber.App, method, target, body string) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]interface{}{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func TestSearchHandler_Search(t *testing.T) {
	app, users, _ := setupApp(t)
	users.On("Search", mock.Anything, mock.MatchedBy(func(q models.SearchQuery) bool {
		c, ok := q.Filters.(*models.FilterCondition)
		return ok && c.Field == "age" && c.Operator == models.OpGte && q.Limit == 3
	})).Return(&models.SearchResult{Data: []models.Row{{"id": "1"}}, Page: 1, Limit: 3, HasNext: true}, nil)

	status, body := do(t, app, "POST", "/search/users", `{"filters":{"field":"age","operator":"gte","value":18},"limit":3}`)
	assert.Equal(t, 200, status)
	assert.Equal(t, true, body["hasNext"])
	assert.Len(t, body["data"], 1)
	users.AssertExpectations(t)
}

func TestSearchHandler_EmptyBody(t *testing.T) {
	app, users, _ := setupApp(t)
	users.On("Search", mock.Anything, models.SearchQuery{}).Return(&models.SearchResult{Data: []models.Row{}, Page: 1, Limit: 20}, nil)

	status, _ := do(t, app, "POST", "/search/users", "")
	assert.Equal(t, 200, status)
	users.AssertExpectations(t)
}

func TestSearchHandler_InvalidBody(t *testing.T) {
	app, users, _ := setupApp(t)

	status, body := do(t, app, "POST", "/search/users", `{"filters":`)
	assert.Equal(t, 400, status)
	assert.Equal(t, searcherrors.CodeInvalidRequest, body["code"])

	status, body = do(t, app, "POST", "/search/users", `{"filters":[1,2]}`)
	assert.Equal(t, 400, status)
	assert.Equal(t, searcherrors.CodeInvalidRequest, body["code"])
	users.AssertNotCalled(t, "Search", mock.Anything, mock.Anything)
}

func TestSearchHandler_UnknownResource(t *testing.T) {
	app, _, _ := setupApp(t)

	status, body := do(t, app, "POST", "/search/invoices", `{}`)
	assert.Equal(t, 404, status)
	assert.Equal(t, searcherrors.CodeResourceNotFound, body["code"])
}

func TestSearchHandler_ErrorMapping(t *testing.T) {
	app, users, _ := setupApp(t)
	timeout := searcherrors.NewProviderError("postgresql:users", "search", context.DeadlineExceeded)
	timeout.Code = searcherrors.CodeQueryTimeout
	users.On("Search", mock.Anything, mock.Anything).
		Return(nil, searcherrors.NewInvalidFilterError("password", "eq", "unknown field %q", "password")).Once()
	users.On("Search", mock.Anything, mock.Anything).
		Return(nil, timeout).Once()

	status, body := do(t, app, "POST", "/search/users", `{}`)
	assert.Equal(t, 400, status)
	assert.Equal(t, searcherrors.CodeInvalidFilter, body["code"])
	assert.Equal(t, "password", body["field"])

	status, body = do(t, app, "POST", "/search/users", `{}`)
	assert.Equal(t, 504, status)
	assert.Equal(t, searcherrors.CodeQueryTimeout, body["code"])
}

func TestSearchHandler_QueryString(t *testing.T) {
	app, users, _ := setupApp(t)
	users.On("Search", mock.Anything, mock.MatchedBy(func(q models.SearchQuery) bool {
		c, ok := q.Filters.(*models.FilterCondition)
		return ok && c.Field == "status" &&
			q.Page == 2 && q.Limit == 10 && q.IncludeCount &&
			len(q.Sort) == 2 &&
			q.Sort[0] == models.SortConfig{Field: "age", Order: models.SortDesc} &&
			q.Sort[1] == models.SortConfig{Field: "name"}
	})).Return(&models.SearchResult{Data: []models.Row{}, Page: 2, Limit: 10}, nil)

	params := url.Values{}
	params.Set("page", "2")
	params.Set("limit", "10")
	params.Set("includeCount", "true")
	params.Add("sort", "age:DESC")
	params.Add("sort", "name")
	params.Set("filter", `{"field":"status","operator":"eq","value":"active"}`)
	params.Set("unknown", "ignored")

	status, body := do(t, app, "GET", "/search/users?"+params.Encode(), "")
	assert.Equal(t, 200, status)
	assert.Equal(t, float64(2), body["page"])
	users.AssertExpectations(t)
}

func TestSearchHandler_QueryStringModes(t *testing.T) {
	app, users, _ := setupApp(t)
	users.On("SearchWithCursor", mock.Anything, mock.MatchedBy(func(q models.SearchQuery) bool {
		return q.Cursor == "abc"
	})).Return(&models.CursorSearchResult{Data: []models.Row{}, NextCursor: "def"}, nil)
	users.On("SearchFaceted", mock.Anything, mock.MatchedBy(func(q models.SearchQuery) bool {
		return len(q.Facets) == 1 && q.Facets[0].Field == "status"
	})).Return(&models.FacetedSearchResult{Facets: []models.FacetResult{{Field: "status", Buckets: []models.FacetBucket{}}}}, nil)

	status, body := do(t, app, "GET", "/search/users?cursor=abc", "")
	assert.Equal(t, 200, status)
	assert.Equal(t, "def", body["nextCursor"])

	status, body = do(t, app, "GET", "/search/users?facet=status", "")
	assert.Equal(t, 200, status)
	assert.Len(t, body["facets"], 1)
	users.AssertExpectations(t)
}

func TestSearchHandler_QueryStringRejects(t *testing.T) {
	app, _, _ := setupApp(t)

	status, _ := do(t, app, "GET", "/search/users?limit=many", "")
	assert.Equal(t, 400, status)

	status, _ = do(t, app, "GET", "/search/users?sort=:asc", "")
	assert.Equal(t, 400, status)

	status, body := do(t, app, "GET", "/search/users?filter="+url.QueryEscape(`[1]`), "")
	assert.Equal(t, 400, status)
	assert.Contains(t, body["message"], "filter")
}

func TestSearchHandler_CursorFacetsCount(t *testing.T) {
	app, users, _ := setupApp(t)
	users.On("SearchWithCursor", mock.Anything, mock.Anything).
		Return(&models.CursorSearchResult{Data: []models.Row{}, HasNext: true, NextCursor: "n1"}, nil)
	users.On("SearchFaceted", mock.Anything, mock.Anything).
		Return(&models.FacetedSearchResult{
			SearchResult: models.SearchResult{Data: []models.Row{}},
			Facets:       []models.FacetResult{{Field: "status", Buckets: []models.FacetBucket{{Value: "active", Count: 3}}}},
		}, nil)
	users.On("Count", mock.Anything, mock.Anything).Return(int64(7), nil)

	status, body := do(t, app, "POST", "/search/users/cursor", `{"limit":5}`)
	assert.Equal(t, 200, status)
	assert.Equal(t, "n1", body["nextCursor"])

	status, body = do(t, app, "POST", "/search/users/facets", `{"facets":[{"field":"status"}]}`)
	assert.Equal(t, 200, status)
	assert.Len(t, body["facets"], 1)

	status, body = do(t, app, "POST", "/search/users/count", `{}`)
	assert.Equal(t, 200, status)
	assert.Equal(t, float64(7), body["count"])
}

func TestSearchHandler_InvalidCursor(t *testing.T) {
	app, users, _ := setupApp(t)
	users.On("SearchWithCursor", mock.Anything, mock.Anything).
		Return(nil, searcherrors.NewInvalidCursorError(nil, "cursor does not match sort"))

	status, body := do(t, app, "POST", "/search/users/cursor", `{"cursor":"zzz"}`)
	assert.Equal(t, 400, status)
	assert.Equal(t, searcherrors.CodeInvalidCursor, body["code"])
	assert.Equal(t, searcherrors.CodeRestartPagination, body["details"])
}

func TestSearchHandler_Capabilities(t *testing.T) {
	app, users, _ := setupApp(t)
	users.On("Capabilities").Return(models.Capabilities{Provider: "postgresql:users", CursorPagination: true})

	status, body := do(t, app, "GET", "/search/capabilities", "")
	assert.Equal(t, 200, status)
	caps, ok := body["users"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "postgresql:users", caps["provider"])
	assert.Equal(t, true, caps["cursorPagination"])
}

func TestSearchHandler_Health(t *testing.T) {
	app, users, _ := setupApp(t)
	users.On("HealthCheck", mock.Anything).Return(true).Once()
	users.On("HealthCheck", mock.Anything).Return(false).Once()

	status, body := do(t, app, "GET", "/search/health", "")
	assert.Equal(t, 200, status)
	assert.Equal(t, true, body["healthy"])

	status, body = do(t, app, "GET", "/search/health", "")
	assert.Equal(t, 503, status)
	assert.Equal(t, false, body["healthy"])
	assert.Equal(t, map[string]interface{}{"users": false}, body["resources"])
}

func TestSearchHandler_Stats(t *testing.T) {
	app, _, metrics := setupApp(t)
	metrics.RecordQuery("search", "users", 2*time.Millisecond, nil)

	status, body := do(t, app, "GET", "/search/stats", "")
	assert.Equal(t, 200, status)
	global, ok := body["global"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(1), global["total_queries"])
	assert.Len(t, body["operations"], 1)
}
