// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package provider

import (
	"context"
	"time"

	"github.com/abrahamahn/abe-stack-sub003/search/models"
)

// Executor runs one SQL statement with $1, $2, ... positional parameters and
// returns its rows. Timeouts and connection handling belong to the executor.
type Executor interface {
	Execute(ctx context.Context, query string, params []interface{}) ([]models.Row, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, query string, params []interface{}) ([]models.Row, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, query string, params []interface{}) ([]models.Row, error) {
	return f(ctx, query, params)
}

// MetricsRecorder receives one observation per public operation.
type MetricsRecorder interface {
	RecordQuery(operation, table string, duration time.Duration, err error)
}
