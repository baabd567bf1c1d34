// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package observability

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/abrahamahn/abe-stack-sub003/internal/pkg/log"
)

// DefaultSlowQueryThreshold is the duration above which a query is logged.
const DefaultSlowQueryThreshold = 500 * time.Millisecond

// OperationMetrics aggregates the observations of one operation on one table.
type OperationMetrics struct {
	Operation     string        `json:"operation"`
	Table         string        `json:"table"`
	Count         int64         `json:"count"`
	Failures      int64         `json:"failures"`
	TotalDuration time.Duration `json:"totalDuration"`
	MaxDuration   time.Duration `json:"maxDuration"`
	LastError     string        `json:"lastError,omitempty"`
	LastSeen      time.Time     `json:"lastSeen"`
}

// MetricsCollector handles search query metrics collection and reporting
type MetricsCollector struct {
	totalQueries  int64
	failedQueries int64
	slowQueries   int64
	totalDuration int64 // nanoseconds
	slowThreshold time.Duration
	mu            sync.RWMutex
	operations    map[string]*OperationMetrics
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		slowThreshold: DefaultSlowQueryThreshold,
		operations:    make(map[string]*OperationMetrics),
	}
}

// Global metrics collector instance
var globalMetrics = NewMetricsCollector()

// GetGlobalMetrics returns the global metrics collector
func GetGlobalMetrics() *MetricsCollector {
	return globalMetrics
}

// SetSlowQueryThreshold changes the slow query threshold. Zero disables slow query logging.
func (mc *MetricsCollector) SetSlowQueryThreshold(d time.Duration) {
	mc.mu.Lock()
	mc.slowThreshold = d
	mc.mu.Unlock()
}

func operationKey(operation, table string) string {
	return table + "/" + operation
}

// RecordQuery records one search operation.
func (mc *MetricsCollector) RecordQuery(operation, table string, duration time.Duration, err error) {
	atomic.AddInt64(&mc.totalQueries, 1)
	atomic.AddInt64(&mc.totalDuration, int64(duration))
	if err != nil {
		atomic.AddInt64(&mc.failedQueries, 1)
	}

	mc.mu.Lock()
	key := operationKey(operation, table)
	metrics, exists := mc.operations[key]
	if !exists {
		metrics = &OperationMetrics{Operation: operation, Table: table}
		mc.operations[key] = metrics
	}
	metrics.Count++
	metrics.TotalDuration += duration
	if duration > metrics.MaxDuration {
		metrics.MaxDuration = duration
	}
	metrics.LastSeen = time.Now()
	if err != nil {
		metrics.Failures++
		metrics.LastError = errorSummary(err)
	}
	threshold := mc.slowThreshold
	mc.mu.Unlock()

	if threshold > 0 && duration >= threshold {
		atomic.AddInt64(&mc.slowQueries, 1)
		log.Warn("Slow search query: %s on %s took %v", operation, table, duration)
	}
}

// errorSummary keeps the outermost message only; causes may carry SQL.
func errorSummary(err error) string {
	type coded interface{ ErrorCode() string }
	var ce coded
	if errors.As(err, &ce) && ce.ErrorCode() != "" {
		return ce.ErrorCode()
	}
	return err.Error()
}

// GetOperationMetrics returns metrics for one operation on one table
func (mc *MetricsCollector) GetOperationMetrics(operation, table string) *OperationMetrics {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	if metrics, exists := mc.operations[operationKey(operation, table)]; exists {
		// Return a copy to prevent concurrent access issues
		copy := *metrics
		return &copy
	}
	return nil
}

// Operations returns a copy of every per-operation aggregate.
func (mc *MetricsCollector) Operations() []OperationMetrics {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	out := make([]OperationMetrics, 0, len(mc.operations))
	for _, metrics := range mc.operations {
		out = append(out, *metrics)
	}
	return out
}

// GetGlobalStats returns global query statistics
func (mc *MetricsCollector) GetGlobalStats() map[string]interface{} {
	total := atomic.LoadInt64(&mc.totalQueries)
	failed := atomic.LoadInt64(&mc.failedQueries)
	slow := atomic.LoadInt64(&mc.slowQueries)
	totalDur := atomic.LoadInt64(&mc.totalDuration)

	var avgDuration time.Duration
	successRate := 100.0
	if total > 0 {
		avgDuration = time.Duration(totalDur / total)
		successRate = float64(total-failed) / float64(total) * 100
	}

	return map[string]interface{}{
		"total_queries":    total,
		"failed_queries":   failed,
		"slow_queries":     slow,
		"average_duration": avgDuration,
		"success_rate":     successRate,
	}
}

// CleanupIdleOperations removes aggregates not updated within olderThan
func (mc *MetricsCollector) CleanupIdleOperations(olderThan time.Duration) {
	cutoff := time.Now().Add(-olderThan)

	mc.mu.Lock()
	defer mc.mu.Unlock()

	for key, metrics := range mc.operations {
		if metrics.LastSeen.Before(cutoff) {
			delete(mc.operations, key)
		}
	}
}

// StartPeriodicCleanup starts a goroutine that periodically drops idle operation metrics
func (mc *MetricsCollector) StartPeriodicCleanup(ctx context.Context, interval, retentionPeriod time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				mc.CleanupIdleOperations(retentionPeriod)
			}
		}
	}()
}
