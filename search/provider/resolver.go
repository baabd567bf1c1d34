// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package provider

import (
	searcherrors "github.com/abrahamahn/abe-stack-sub003/search/errors"
	"github.com/abrahamahn/abe-stack-sub003/search/models"
)

// columnResolver turns client field names into physical column names using
// the table allow-list. It is the identifier-injection boundary: nothing but
// its output is ever written into SQL text as a column.
type columnResolver struct {
	byField   map[string]models.ColumnConfig
	byColumn  map[string]models.ColumnConfig
	bootstrap bool
}

func newColumnResolver(table *models.TableConfig) *columnResolver {
	r := &columnResolver{
		byField:   make(map[string]models.ColumnConfig, len(table.Columns)),
		byColumn:  make(map[string]models.ColumnConfig, len(table.Columns)),
		bootstrap: len(table.Columns) == 0,
	}
	for _, col := range table.Columns {
		r.byField[col.Field] = col
		r.byColumn[col.Column] = col
	}
	return r
}

// resolve returns the column for field. A field that is neither a configured
// field nor a configured column is rejected, except in bootstrap mode where
// the field is used as the column name verbatim.
func (r *columnResolver) resolve(field string) (string, error) {
	if field == "" {
		return "", searcherrors.NewInvalidFilterError(field, "", "field name is required")
	}
	if col, ok := r.byField[field]; ok {
		return col.Column, nil
	}
	if col, ok := r.byColumn[field]; ok {
		return col.Column, nil
	}
	if r.bootstrap {
		if !models.IsIdentifier(field) {
			return "", searcherrors.NewInvalidFilterError(field, "", "invalid field name %q", field)
		}
		return field, nil
	}
	return "", searcherrors.NewInvalidFilterError(field, "", "unknown field %q", field)
}

