package models

import (
	"fmt"
	"regexp"
)

// ColumnType is the logical type of a searchable column.
type ColumnType string

const (
	ColumnString  ColumnType = "string"
	ColumnNumber  ColumnType = "number"
	ColumnBoolean ColumnType = "boolean"
	ColumnDate    ColumnType = "date"
	ColumnUUID    ColumnType = "uuid"
)

// ColumnConfig maps a client-facing field name to a physical column.
type ColumnConfig struct {
	Field  string     `json:"field" yaml:"field"`
	Column string     `json:"column" yaml:"column"`
	Type   ColumnType `json:"type,omitempty" yaml:"type,omitempty"`
}

// TableConfig is the allow-list for one searchable table. An empty Columns
// list puts the provider in bootstrap mode where field names are used as
// column names verbatim; production deployments must list every column.
type TableConfig struct {
	Table      string         `json:"table" yaml:"table"`
	PrimaryKey string         `json:"primaryKey" yaml:"primaryKey"`
	Columns    []ColumnConfig `json:"columns" yaml:"columns"`
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// IsIdentifier reports whether name is a plain or schema-qualified SQL identifier.
func IsIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}

// Validate checks that every identifier the provider will write into SQL text
// is a plain identifier.
func (t *TableConfig) Validate() error {
	if !IsIdentifier(t.Table) {
		return fmt.Errorf("invalid table name %q", t.Table)
	}
	if !IsIdentifier(t.PrimaryKey) {
		return fmt.Errorf("invalid primary key %q for table %s", t.PrimaryKey, t.Table)
	}
	seen := make(map[string]bool, len(t.Columns))
	for i, col := range t.Columns {
		if col.Field == "" {
			return fmt.Errorf("columns[%d] of table %s has no field name", i, t.Table)
		}
		if !IsIdentifier(col.Column) {
			return fmt.Errorf("invalid column %q for field %q in table %s", col.Column, col.Field, t.Table)
		}
		if seen[col.Field] {
			return fmt.Errorf("duplicate field %q in table %s", col.Field, t.Table)
		}
		seen[col.Field] = true
	}
	return nil
}
