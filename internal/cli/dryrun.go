package cli

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/abrahamahn/abe-stack-sub003/search/models"
)

// Statement is one compiled SQL statement and its bound values.
type Statement struct {
	SQL    string        `json:"sql"`
	Params []interface{} `json:"params"`
}

// dryRunExecutor records statements and answers with empty results.
type dryRunExecutor struct {
	mu         sync.Mutex
	statements []Statement
}

func (d *dryRunExecutor) Execute(ctx context.Context, query string, params []interface{}) ([]models.Row, error) {
	d.mu.Lock()
	d.statements = append(d.statements, Statement{SQL: query, Params: append([]interface{}{}, params...)})
	d.mu.Unlock()

	if strings.HasPrefix(query, "SELECT COUNT(*)") {
		return []models.Row{{"count": int64(0)}}, nil
	}
	return []models.Row{}, nil
}

// recorded returns the statements ordered by SQL text. Count and facet
// statements run concurrently, so arrival order is not stable.
func (d *dryRunExecutor) recorded() []Statement {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := append([]Statement(nil), d.statements...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].SQL < out[j].SQL })
	return out
}
