package services

import (
	"fmt"

	"github.com/abrahamahn/abe-stack-sub003/internal/catalog"
	platformconfig "github.com/abrahamahn/abe-stack-sub003/internal/platform/config"
	"github.com/abrahamahn/abe-stack-sub003/search/provider"
)

// NewProviders builds one provider per catalog resource, all sharing exec.
func NewProviders(cat *catalog.Catalog, cfg platformconfig.SearchConfig, exec provider.Executor, metrics provider.MetricsRecorder) (map[string]Searcher, error) {
	out := make(map[string]Searcher, len(cat.Tables))
	for _, r := range cat.Tables {
		p, err := provider.New(provider.Config{
			Table:           r.TableConfig,
			MaxPageSize:     cfg.MaxPageSize,
			DefaultPageSize: cfg.DefaultPageSize,
			MaxQueryDepth:   cfg.MaxQueryDepth,
			MaxConditions:   cfg.MaxConditions,
			Metrics:         metrics,
		}, exec)
		if err != nil {
			return nil, fmt.Errorf("resource %s: %w", r.Name, err)
		}
		out[r.Name] = p
	}
	return out, nil
}
