// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package interfaces

import "time"

// PostgreSQLConfig represents PostgreSQL specific configuration
type PostgreSQLConfig struct {
	Host               string
	Port               int
	Username           string
	Password           string
	Database           string
	DSN                string
	SSLMode            string
	ConnectTimeout     int
	MaxOpenConnections int
	MaxIdleConnections int
	MaxLifetime        int
	// QueryTimeout bounds every statement run through Execute. Zero disables it.
	QueryTimeout time.Duration
}
