// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	dbi "github.com/abrahamahn/abe-stack-sub003/internal/database/interfaces"
	"github.com/abrahamahn/abe-stack-sub003/search/models"
)

// Error codes reported by QueryError.
const (
	CodeQueryTimeout = "QUERY_TIMEOUT"
	CodeQueryFailed  = "QUERY_FAILED"
)

// queryCanceled is SQLSTATE 57014, raised when statement_timeout fires or the
// statement is cancelled.
const queryCanceled pq.ErrorCode = "57014"

// QueryError is returned by Execute. Code is stable and safe to expose; the
// driver error stays available through Unwrap.
type QueryError struct {
	Code     string
	SQLState string
	Err      error
}

func (e *QueryError) Error() string {
	if e.SQLState != "" {
		return fmt.Sprintf("postgres query failed (%s): %v", e.SQLState, e.Err)
	}
	return fmt.Sprintf("postgres query failed: %v", e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// ErrorCode returns the stable error code.
func (e *QueryError) ErrorCode() string {
	return e.Code
}

// Client wraps sqlx.DB and provides connection pooling, health checks and raw query execution
type Client struct {
	db           *sqlx.DB
	queryTimeout time.Duration
}

// NewClient creates a new PostgreSQL client wrapper
func NewClient(ctx context.Context, config *dbi.PostgreSQLConfig, databaseName string) (*Client, error) {
	connStr := config.DSN
	if connStr == "" {
		connStr = buildConnectionString(config, databaseName)
	}

	db, err := sqlx.ConnectContext(ctx, "postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	// Configure connection pool
	if config.MaxOpenConnections > 0 {
		db.SetMaxOpenConns(config.MaxOpenConnections)
	}
	if config.MaxIdleConnections > 0 {
		db.SetMaxIdleConns(config.MaxIdleConnections)
	}
	if config.MaxLifetime > 0 {
		db.SetConnMaxLifetime(time.Duration(config.MaxLifetime) * time.Second)
	}

	// Test the connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	return NewClientFromDB(db, config.QueryTimeout), nil
}

// NewClientFromDB wraps an existing connection pool.
func NewClientFromDB(db *sqlx.DB, queryTimeout time.Duration) *Client {
	return &Client{db: db, queryTimeout: queryTimeout}
}

// buildConnectionString builds PostgreSQL connection string from config
func buildConnectionString(config *dbi.PostgreSQLConfig, databaseName string) string {
	var parts []string

	parts = append(parts, fmt.Sprintf("host=%s", config.Host))
	parts = append(parts, fmt.Sprintf("port=%d", config.Port))
	parts = append(parts, fmt.Sprintf("dbname=%s", databaseName))

	if config.Username != "" {
		parts = append(parts, fmt.Sprintf("user=%s", config.Username))
	}

	if config.Password != "" {
		parts = append(parts, fmt.Sprintf("password=%s", config.Password))
	}

	parts = append(parts, fmt.Sprintf("sslmode=%s", config.SSLMode))

	if config.ConnectTimeout > 0 {
		parts = append(parts, fmt.Sprintf("connect_timeout=%d", config.ConnectTimeout))
	}

	return strings.Join(parts, " ")
}

// DB returns the underlying *sqlx.DB connection
func (c *Client) DB() *sqlx.DB {
	return c.db
}

// Ping tests the database connection
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close closes the database connection
func (c *Client) Close() error {
	return c.db.Close()
}

// HealthCheck performs a health check on the database connection
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.Ping(ctx)
}

// Execute runs query with positional parameters and returns every row as a
// column-keyed map. Text columns scanned as []byte are returned as strings.
func (c *Client) Execute(ctx context.Context, query string, params []interface{}) ([]models.Row, error) {
	if c.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.queryTimeout)
		defer cancel()
	}

	rows, err := c.db.QueryxContext(ctx, query, params...)
	if err != nil {
		return nil, queryError(err)
	}
	defer rows.Close()

	out := make([]models.Row, 0)
	for rows.Next() {
		row := make(map[string]interface{})
		if err := rows.MapScan(row); err != nil {
			return nil, queryError(err)
		}
		for k, v := range row {
			if b, ok := v.([]byte); ok {
				row[k] = string(b)
			}
		}
		out = append(out, models.Row(row))
	}
	if err := rows.Err(); err != nil {
		return nil, queryError(err)
	}
	return out, nil
}

func queryError(err error) error {
	qe := &QueryError{Code: CodeQueryFailed, Err: err}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		qe.SQLState = string(pqErr.Code)
		if pqErr.Code == queryCanceled {
			qe.Code = CodeQueryTimeout
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		qe.Code = CodeQueryTimeout
	}
	return qe
}
