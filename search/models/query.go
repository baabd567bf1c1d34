package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Operator is the comparison applied by a FilterCondition.
type Operator string

const (
	OpEq         Operator = "eq"
	OpNeq        Operator = "neq"
	OpGt         Operator = "gt"
	OpGte        Operator = "gte"
	OpLt         Operator = "lt"
	OpLte        Operator = "lte"
	OpContains   Operator = "contains"
	OpStartsWith Operator = "startsWith"
	OpEndsWith   Operator = "endsWith"
	OpLike       Operator = "like"
	OpILike      Operator = "ilike"
	OpIn         Operator = "in"
	OpNotIn      Operator = "notIn"
	OpIsNull     Operator = "isNull"
	OpIsNotNull  Operator = "isNotNull"
	OpBetween    Operator = "between"

	// Recognized but not handled by the relational provider.
	OpArrayContains    Operator = "arrayContains"
	OpArrayContainsAny Operator = "arrayContainsAny"
	OpFullText         Operator = "fullText"
)

// SupportedOperators lists the operators the relational provider compiles.
var SupportedOperators = []Operator{
	OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte,
	OpContains, OpStartsWith, OpEndsWith, OpLike, OpILike,
	OpIn, OpNotIn, OpIsNull, OpIsNotNull, OpBetween,
}

// LogicalOperator combines the children of a CompoundFilter.
type LogicalOperator string

const (
	LogicalAnd LogicalOperator = "AND"
	LogicalOr  LogicalOperator = "OR"
	LogicalNot LogicalOperator = "NOT"
)

func isLogicalOperator(op string) bool {
	switch LogicalOperator(strings.ToUpper(op)) {
	case LogicalAnd, LogicalOr, LogicalNot:
		return true
	}
	return false
}

// FilterNode is either a *FilterCondition or a *CompoundFilter.
// The set is closed: no other package can implement it.
type FilterNode interface {
	filterNode()
}

// FilterCondition is a leaf predicate.
type FilterCondition struct {
	Field         string      `json:"field"`
	Operator      Operator    `json:"operator"`
	Value         interface{} `json:"value,omitempty"`
	CaseSensitive bool        `json:"caseSensitive,omitempty"`
}

func (*FilterCondition) filterNode() {}

// CompoundFilter combines child nodes with AND, OR or NOT.
type CompoundFilter struct {
	Operator   LogicalOperator `json:"operator"`
	Conditions []FilterNode    `json:"conditions"`
}

func (*CompoundFilter) filterNode() {}

// Range is the payload of the between operator.
type Range struct {
	Min interface{} `json:"min"`
	Max interface{} `json:"max"`
}

// Cond builds a leaf condition.
func Cond(field string, op Operator, value interface{}) *FilterCondition {
	return &FilterCondition{Field: field, Operator: op, Value: value}
}

// And builds an AND compound.
func And(nodes ...FilterNode) *CompoundFilter {
	return &CompoundFilter{Operator: LogicalAnd, Conditions: nodes}
}

// Or builds an OR compound.
func Or(nodes ...FilterNode) *CompoundFilter {
	return &CompoundFilter{Operator: LogicalOr, Conditions: nodes}
}

// Not builds a NOT compound over the AND of nodes.
func Not(nodes ...FilterNode) *CompoundFilter {
	return &CompoundFilter{Operator: LogicalNot, Conditions: nodes}
}

// UnmarshalJSON decodes children through DecodeFilter.
func (c *CompoundFilter) UnmarshalJSON(data []byte) error {
	var raw struct {
		Operator   string            `json:"operator"`
		Conditions []json.RawMessage `json:"conditions"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.Operator = LogicalOperator(strings.ToUpper(raw.Operator))
	c.Conditions = make([]FilterNode, 0, len(raw.Conditions))
	for i, child := range raw.Conditions {
		node, err := DecodeFilter(child)
		if err != nil {
			return fmt.Errorf("conditions[%d]: %w", i, err)
		}
		if node != nil {
			c.Conditions = append(c.Conditions, node)
		}
	}
	return nil
}

// UnmarshalJSON keeps integral numbers as int64 instead of float64.
func (f *FilterCondition) UnmarshalJSON(data []byte) error {
	var raw struct {
		Field         string          `json:"field"`
		Operator      string          `json:"operator"`
		Value         json.RawMessage `json:"value"`
		CaseSensitive bool            `json:"caseSensitive"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	f.Field = raw.Field
	f.Operator = Operator(raw.Operator)
	f.CaseSensitive = raw.CaseSensitive
	f.Value = nil
	if len(raw.Value) > 0 {
		value, err := decodeValue(raw.Value)
		if err != nil {
			return fmt.Errorf("value of %q: %w", raw.Field, err)
		}
		f.Value = value
	}
	return nil
}

// DecodeFilter decodes one filter node. An object whose operator is AND, OR
// or NOT and which carries a conditions array is a compound; anything else is
// a condition. null decodes to a nil node.
func DecodeFilter(data []byte) (FilterNode, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	var probe struct {
		Operator   string          `json:"operator"`
		Conditions json.RawMessage `json:"conditions"`
	}
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		return nil, fmt.Errorf("invalid filter node: %w", err)
	}

	if isLogicalOperator(probe.Operator) && probe.Conditions != nil {
		compound := &CompoundFilter{}
		if err := json.Unmarshal(trimmed, compound); err != nil {
			return nil, err
		}
		return compound, nil
	}

	condition := &FilterCondition{}
	if err := json.Unmarshal(trimmed, condition); err != nil {
		return nil, err
	}
	return condition, nil
}

func decodeValue(data []byte) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return normalizeNumbers(v), nil
}

func normalizeNumbers(v interface{}) interface{} {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case []interface{}:
		for i := range t {
			t[i] = normalizeNumbers(t[i])
		}
		return t
	case map[string]interface{}:
		for k := range t {
			t[k] = normalizeNumbers(t[k])
		}
		return t
	default:
		return v
	}
}

// SortOrder is asc or desc.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// SortConfig orders results by one field. The first entry of a sort list is
// the primary key of the ordering.
type SortConfig struct {
	Field string    `json:"field"`
	Order SortOrder `json:"order,omitempty"`
}

// SearchQuery is the structured, storage-agnostic description of one search.
type SearchQuery struct {
	Filters      FilterNode    `json:"filters,omitempty"`
	Sort         []SortConfig  `json:"sort,omitempty"`
	Page         int           `json:"page,omitempty"`
	Limit        int           `json:"limit,omitempty"`
	Cursor       string        `json:"cursor,omitempty"`
	IncludeCount bool          `json:"includeCount,omitempty"`
	Facets       []FacetConfig `json:"facets,omitempty"`
}

// UnmarshalJSON decodes the filter tree through DecodeFilter.
func (q *SearchQuery) UnmarshalJSON(data []byte) error {
	type alias SearchQuery
	aux := struct {
		*alias
		Filters json.RawMessage `json:"filters"`
	}{alias: (*alias)(q)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	node, err := DecodeFilter(aux.Filters)
	if err != nil {
		return fmt.Errorf("filters: %w", err)
	}
	q.Filters = node
	return nil
}
