package models

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"
)

// CursorValueType tags the wire encoding of a cursor value.
type CursorValueType string

const (
	CursorValueString CursorValueType = "string"
	CursorValueNumber CursorValueType = "number"
	CursorValueDate   CursorValueType = "date"
)

// CursorDirection says which way a cursor resumes.
type CursorDirection string

const (
	CursorNext CursorDirection = "next"
	CursorPrev CursorDirection = "prev"
)

// CursorData is the decoded content of a pagination token.
type CursorData struct {
	Field          string          `json:"f"`
	Value          interface{}     `json:"v"`
	ValueType      CursorValueType `json:"t"`
	TieBreaker     interface{}     `json:"tb,omitempty"`
	TieBreakerType CursorValueType `json:"tbt,omitempty"`
	SortOrder      SortOrder       `json:"o"`
	Direction      CursorDirection `json:"d,omitempty"`
}

// Validate checks the fields required to rebuild a keyset predicate.
func (c *CursorData) Validate() error {
	if c.Field == "" {
		return errors.New("cursor sort field is required")
	}
	if c.Value == nil {
		return errors.New("cursor sort value is required")
	}
	if c.SortOrder != SortAsc && c.SortOrder != SortDesc {
		return fmt.Errorf("invalid cursor sort order %q", c.SortOrder)
	}
	switch c.Direction {
	case "", CursorNext, CursorPrev:
	default:
		return fmt.Errorf("invalid cursor direction %q", c.Direction)
	}
	return nil
}

// IsPrev reports whether the cursor pages backwards.
func (c *CursorData) IsPrev() bool {
	return c.Direction == CursorPrev
}

// NewCursorData builds cursor data from raw row values, tagging their types.
func NewCursorData(field string, value, tieBreaker interface{}, order SortOrder, direction CursorDirection) (*CursorData, error) {
	v, vt, err := encodeCursorValue(value)
	if err != nil {
		return nil, fmt.Errorf("sort value: %w", err)
	}
	data := &CursorData{
		Field:     field,
		Value:     v,
		ValueType: vt,
		SortOrder: order,
		Direction: direction,
	}
	if tieBreaker != nil {
		tb, tbt, err := encodeCursorValue(tieBreaker)
		if err != nil {
			return nil, fmt.Errorf("tie-breaker: %w", err)
		}
		data.TieBreaker = tb
		data.TieBreakerType = tbt
	}
	return data, nil
}

// EncodeCursor encodes cursor data into an opaque base64 string.
func EncodeCursor(data *CursorData) (string, error) {
	if data == nil {
		return "", nil
	}

	if err := data.Validate(); err != nil {
		return "", fmt.Errorf("invalid cursor data: %w", err)
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal cursor data: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(jsonData), nil
}

// DecodeCursor decodes an opaque cursor string. Typed values are restored:
// numbers become int64 or float64 and dates become time.Time.
func DecodeCursor(cursor string) (*CursorData, error) {
	if cursor == "" {
		return nil, nil
	}

	decoded, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, fmt.Errorf("failed to decode cursor: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(decoded))
	dec.UseNumber()
	var data CursorData
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cursor data: %w", err)
	}

	if err := data.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cursor data: %w", err)
	}

	if data.Value, err = decodeCursorValue(data.Value, data.ValueType); err != nil {
		return nil, fmt.Errorf("invalid cursor value: %w", err)
	}
	if data.TieBreaker != nil {
		if data.TieBreaker, err = decodeCursorValue(data.TieBreaker, data.TieBreakerType); err != nil {
			return nil, fmt.Errorf("invalid cursor tie-breaker: %w", err)
		}
	}

	return &data, nil
}

func encodeCursorValue(value interface{}) (interface{}, CursorValueType, error) {
	switch v := value.(type) {
	case nil:
		return nil, "", errors.New("value is null")
	case string:
		return v, CursorValueString, nil
	case []byte:
		return string(v), CursorValueString, nil
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano), CursorValueDate, nil
	case *time.Time:
		if v == nil {
			return nil, "", errors.New("value is null")
		}
		return v.UTC().Format(time.RFC3339Nano), CursorValueDate, nil
	case json.Number:
		return v, CursorValueNumber, nil
	case fmt.Stringer:
		return v.String(), CursorValueString, nil
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), CursorValueNumber, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint(), CursorValueNumber, nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), CursorValueNumber, nil
	}
	return nil, "", fmt.Errorf("unsupported cursor value type %T", value)
}

func decodeCursorValue(raw interface{}, valueType CursorValueType) (interface{}, error) {
	switch valueType {
	case CursorValueString:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", raw)
		}
		return s, nil
	case CursorValueNumber:
		n, ok := raw.(json.Number)
		if !ok {
			return nil, fmt.Errorf("expected number, got %T", raw)
		}
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		return n.Float64()
	case CursorValueDate:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected date string, got %T", raw)
		}
		return time.Parse(time.RFC3339Nano, s)
	default:
		return nil, fmt.Errorf("unknown value type %q", valueType)
	}
}
