// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package provider

import (
	"fmt"
	"reflect"
	"strings"

	searcherrors "github.com/abrahamahn/abe-stack-sub003/search/errors"
	"github.com/abrahamahn/abe-stack-sub003/search/models"
)

// translator compiles filter trees into SQL boolean expressions.
type translator struct {
	resolver      *columnResolver
	provider      string
	maxDepth      int
	maxConditions int
}

var comparisonOperators = map[models.Operator]string{
	models.OpEq:  "=",
	models.OpNeq: "<>",
	models.OpGt:  ">",
	models.OpGte: ">=",
	models.OpLt:  "<",
	models.OpLte: "<=",
}

// translate compiles node. depth is the nesting level of node when it is a
// compound, the root compound being level 1. A nil fragment means the node
// contributes no condition.
func (t *translator) translate(node models.FilterNode, depth int, st *compileState) (*sqlFragment, error) {
	switch n := node.(type) {
	case nil:
		return nil, nil
	case *models.FilterCondition:
		if n == nil {
			return nil, nil
		}
		return t.translateCondition(n, st)
	case *models.CompoundFilter:
		if n == nil {
			return nil, nil
		}
		return t.translateCompound(n, depth, st)
	default:
		return nil, searcherrors.NewInvalidFilterError("", "", "unsupported filter node %T", node)
	}
}

func (t *translator) translateCompound(c *models.CompoundFilter, depth int, st *compileState) (*sqlFragment, error) {
	if depth > t.maxDepth {
		return nil, searcherrors.NewQueryTooComplexError("filter nesting depth %d exceeds the maximum of %d", depth, t.maxDepth)
	}

	op := models.LogicalOperator(strings.ToUpper(string(c.Operator)))
	var joiner string
	switch op {
	case models.LogicalAnd, models.LogicalNot:
		joiner = " AND "
	case models.LogicalOr:
		joiner = " OR "
	default:
		return nil, searcherrors.NewInvalidFilterError("", string(c.Operator), "unknown logical operator %q", c.Operator)
	}

	mark := st.binder.mark()
	parts := make([]string, 0, len(c.Conditions))
	for _, child := range c.Conditions {
		frag, err := t.translate(child, depth+1, st)
		if err != nil {
			return nil, err
		}
		if frag == nil {
			continue
		}
		parts = append(parts, "("+frag.text+")")
	}

	if len(parts) == 0 {
		return nil, nil
	}

	text := strings.Join(parts, joiner)
	if op == models.LogicalNot {
		text = "NOT (" + text + ")"
	}
	return &sqlFragment{text: text, values: st.binder.since(mark)}, nil
}

func (t *translator) translateCondition(c *models.FilterCondition, st *compileState) (*sqlFragment, error) {
	st.conditions++
	if st.conditions > t.maxConditions {
		return nil, searcherrors.NewQueryTooComplexError("filter has more than %d conditions", t.maxConditions)
	}

	column, err := t.resolver.resolve(c.Field)
	if err != nil {
		return nil, err
	}

	mark := st.binder.mark()
	b := st.binder
	var text string

	switch c.Operator {
	case models.OpEq, models.OpNeq, models.OpGt, models.OpGte, models.OpLt, models.OpLte:
		if c.Value == nil {
			return nil, searcherrors.NewInvalidFilterError(c.Field, string(c.Operator), "operator %s on %q requires a value; use isNull or isNotNull", c.Operator, c.Field)
		}
		if !scalarValue(c.Value) {
			return nil, searcherrors.NewInvalidFilterError(c.Field, string(c.Operator), "operator %s on %q requires a scalar value", c.Operator, c.Field)
		}
		text = fmt.Sprintf("%s %s %s", column, comparisonOperators[c.Operator], b.bind(c.Value))

	case models.OpContains, models.OpStartsWith, models.OpEndsWith:
		s, ok := patternValue(c.Value)
		if !ok {
			return nil, searcherrors.NewInvalidFilterError(c.Field, string(c.Operator), "operator %s on %q requires a string value", c.Operator, c.Field)
		}
		s = escapeLike(s)
		switch c.Operator {
		case models.OpContains:
			s = "%" + s + "%"
		case models.OpStartsWith:
			s = s + "%"
		case models.OpEndsWith:
			s = "%" + s
		}
		text = fmt.Sprintf("%s ILIKE %s", column, b.bind(s))

	case models.OpLike, models.OpILike:
		s, ok := patternValue(c.Value)
		if !ok {
			return nil, searcherrors.NewInvalidFilterError(c.Field, string(c.Operator), "operator %s on %q requires a string value", c.Operator, c.Field)
		}
		keyword := "ILIKE"
		if c.Operator == models.OpLike && c.CaseSensitive {
			keyword = "LIKE"
		}
		text = fmt.Sprintf("%s %s %s", column, keyword, b.bind(s))

	case models.OpIn, models.OpNotIn:
		items, ok := sliceValue(c.Value)
		if !ok {
			return nil, searcherrors.NewInvalidFilterError(c.Field, string(c.Operator), "operator %s on %q requires an array value", c.Operator, c.Field)
		}
		if len(items) == 0 {
			if c.Operator == models.OpIn {
				// Empty allow-set matches nothing.
				return &sqlFragment{text: "false"}, nil
			}
			// Empty deny-set excludes nothing.
			return nil, nil
		}
		placeholders := make([]string, len(items))
		for i, item := range items {
			if !scalarValue(item) {
				return nil, searcherrors.NewInvalidFilterError(c.Field, string(c.Operator), "operator %s on %q requires an array of scalar values", c.Operator, c.Field)
			}
			placeholders[i] = b.bind(item)
		}
		keyword := "IN"
		if c.Operator == models.OpNotIn {
			keyword = "NOT IN"
		}
		text = fmt.Sprintf("%s %s (%s)", column, keyword, strings.Join(placeholders, ","))

	case models.OpIsNull:
		text = column + " IS NULL"

	case models.OpIsNotNull:
		text = column + " IS NOT NULL"

	case models.OpBetween:
		lo, hi, ok := rangeValue(c.Value)
		if !ok || !scalarValue(lo) || !scalarValue(hi) {
			return nil, searcherrors.NewInvalidFilterError(c.Field, string(c.Operator), "operator between on %q requires a {min, max} value", c.Field)
		}
		text = fmt.Sprintf("%s BETWEEN %s AND %s", column, b.bind(lo), b.bind(hi))

	case models.OpArrayContains, models.OpArrayContainsAny, models.OpFullText:
		return nil, searcherrors.NewInvalidFilterError(c.Field, string(c.Operator), "operator %s is not supported by the %s provider", c.Operator, t.provider)

	default:
		return nil, searcherrors.NewInvalidFilterError(c.Field, string(c.Operator), "unknown operator %q", c.Operator)
	}

	return &sqlFragment{text: text, values: b.since(mark)}, nil
}

// escapeLike escapes the LIKE metacharacters. Backslash goes first so the
// escapes added for % and _ are not escaped again.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

func patternValue(v interface{}) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case fmt.Stringer:
		return s.String(), true
	case nil, bool:
		return "", false
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return fmt.Sprint(v), true
	}
	return "", false
}

// scalarValue reports whether v can be bound as a single parameter. Byte
// slices are bytea values; other slices, arrays and maps are not.
func scalarValue(v interface{}) bool {
	if v == nil {
		return true
	}
	if _, ok := v.([]byte); ok {
		return true
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return false
	}
	return true
}

func sliceValue(v interface{}) ([]interface{}, bool) {
	if v == nil {
		return nil, false
	}
	if items, ok := v.([]interface{}); ok {
		return items, true
	}
	if _, ok := v.([]byte); ok {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	items := make([]interface{}, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items, true
}

func rangeValue(v interface{}) (interface{}, interface{}, bool) {
	switch r := v.(type) {
	case models.Range:
		return r.Min, r.Max, r.Min != nil && r.Max != nil
	case *models.Range:
		if r == nil {
			return nil, nil, false
		}
		return r.Min, r.Max, r.Min != nil && r.Max != nil
	case map[string]interface{}:
		lo, okLo := r["min"]
		hi, okHi := r["max"]
		return lo, hi, okLo && okHi && lo != nil && hi != nil
	}
	return nil, nil, false
}
