package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Kind is the closed set of search failure classes.
type Kind int

const (
	// KindQueryTooComplex: filter depth or condition count over the limit.
	KindQueryTooComplex Kind = iota + 1
	// KindInvalidFilter: unknown field, unsupported operator or malformed payload.
	KindInvalidFilter
	// KindInvalidCursor: undecodable cursor or cursor for another sort.
	KindInvalidCursor
	// KindProvider: any executor failure, wrapped.
	KindProvider
)

func (k Kind) String() string {
	switch k {
	case KindQueryTooComplex:
		return "query_too_complex"
	case KindInvalidFilter:
		return "invalid_filter"
	case KindInvalidCursor:
		return "invalid_cursor"
	case KindProvider:
		return "provider"
	default:
		return "unknown"
	}
}

// Error codes
const (
	CodeQueryTooComplex   = "QUERY_TOO_COMPLEX"
	CodeInvalidFilter     = "INVALID_FILTER"
	CodeInvalidCursor     = "INVALID_CURSOR"
	CodeProviderError     = "SEARCH_PROVIDER_ERROR"
	CodeQueryTimeout      = "QUERY_TIMEOUT"
	CodeResourceNotFound  = "RESOURCE_NOT_FOUND"
	CodeInvalidRequest    = "INVALID_REQUEST"
	CodeInternalError     = "INTERNAL_ERROR"
	CodeRestartPagination = "RESTART_PAGINATION"
)

// Sentinels for errors.Is. They match any SearchError of the same kind.
var (
	ErrQueryTooComplex = &SearchError{Kind: KindQueryTooComplex, Code: CodeQueryTooComplex, Message: "query too complex"}
	ErrInvalidFilter   = &SearchError{Kind: KindInvalidFilter, Code: CodeInvalidFilter, Message: "invalid filter"}
	ErrInvalidCursor   = &SearchError{Kind: KindInvalidCursor, Code: CodeInvalidCursor, Message: "invalid cursor"}
	ErrProvider        = &SearchError{Kind: KindProvider, Code: CodeProviderError, Message: "search provider failure"}

	ErrResourceNotFound = errors.New("search resource not found")
	ErrInvalidRequest   = errors.New("invalid request")
)

// SearchError is the single error type returned by search providers.
type SearchError struct {
	Kind      Kind
	Code      string
	Message   string
	Field     string
	Operator  string
	Provider  string
	Operation string
	Cause     error
}

func (e *SearchError) Error() string {
	if e.Kind == KindProvider {
		if e.Cause != nil {
			return fmt.Sprintf("%s provider: %s failed: %v", e.Provider, e.Operation, e.Cause)
		}
		return fmt.Sprintf("%s provider: %s failed", e.Provider, e.Operation)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *SearchError) Unwrap() error {
	return e.Cause
}

// Is matches sentinels by kind.
func (e *SearchError) Is(target error) bool {
	t, ok := target.(*SearchError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// NewQueryTooComplexError reports a tree over the depth or condition limit.
func NewQueryTooComplexError(format string, a ...interface{}) *SearchError {
	return &SearchError{
		Kind:    KindQueryTooComplex,
		Code:    CodeQueryTooComplex,
		Message: fmt.Sprintf(format, a...),
	}
}

// NewInvalidFilterError reports a bad field, operator or payload.
func NewInvalidFilterError(field, operator, format string, a ...interface{}) *SearchError {
	return &SearchError{
		Kind:     KindInvalidFilter,
		Code:     CodeInvalidFilter,
		Message:  fmt.Sprintf(format, a...),
		Field:    field,
		Operator: operator,
	}
}

// NewInvalidCursorError reports a cursor that cannot resume this query.
func NewInvalidCursorError(cause error, format string, a ...interface{}) *SearchError {
	return &SearchError{
		Kind:    KindInvalidCursor,
		Code:    CodeInvalidCursor,
		Message: fmt.Sprintf(format, a...),
		Cause:   cause,
	}
}

// NewProviderError wraps an executor failure.
func NewProviderError(provider, operation string, cause error) *SearchError {
	return &SearchError{
		Kind:      KindProvider,
		Code:      CodeProviderError,
		Message:   "search provider failure",
		Provider:  provider,
		Operation: operation,
		Cause:     cause,
	}
}

// KindOf returns the kind of err, or 0 when err is not a SearchError.
func KindOf(err error) Kind {
	var se *SearchError
	if errors.As(err, &se) {
		return se.Kind
	}
	return 0
}

// IsDomainError reports whether err means the request itself is invalid.
func IsDomainError(err error) bool {
	switch KindOf(err) {
	case KindQueryTooComplex, KindInvalidFilter, KindInvalidCursor:
		return true
	}
	return false
}

// Wrap passes domain errors and already wrapped provider errors through and
// wraps everything else as a provider error.
func Wrap(provider, operation string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != 0 {
		return err
	}
	return NewProviderError(provider, operation, err)
}

// ErrorResponse is the JSON error body of the search API.
type ErrorResponse struct {
	Code     string      `json:"code"`
	Message  string      `json:"message"`
	Field    string      `json:"field,omitempty"`
	Operator string      `json:"operator,omitempty"`
	Details  interface{} `json:"details,omitempty"`
}

// HandleServiceError maps a search error onto an HTTP response. Provider
// causes are never echoed to clients.
func HandleServiceError(c *fiber.Ctx, err error) error {
	if err == nil {
		return nil
	}

	var se *SearchError
	if errors.As(err, &se) {
		switch se.Kind {
		case KindQueryTooComplex, KindInvalidFilter:
			return c.Status(http.StatusBadRequest).JSON(ErrorResponse{Code: se.Code, Message: se.Message, Field: se.Field, Operator: se.Operator})
		case KindInvalidCursor:
			return c.Status(http.StatusBadRequest).JSON(ErrorResponse{Code: se.Code, Message: se.Message, Details: CodeRestartPagination})
		case KindProvider:
			status := http.StatusServiceUnavailable
			if se.Code == CodeQueryTimeout {
				status = http.StatusGatewayTimeout
			}
			return c.Status(status).JSON(ErrorResponse{Code: se.Code, Message: "Search is temporarily unavailable"})
		}
	}

	switch {
	case errors.Is(err, ErrResourceNotFound):
		return c.Status(http.StatusNotFound).JSON(ErrorResponse{Code: CodeResourceNotFound, Message: err.Error()})
	case errors.Is(err, ErrInvalidRequest):
		return c.Status(http.StatusBadRequest).JSON(ErrorResponse{Code: CodeInvalidRequest, Message: err.Error()})
	default:
		return c.Status(http.StatusInternalServerError).JSON(ErrorResponse{Code: CodeInternalError, Message: "An unexpected error occurred"})
	}
}

// HandleValidationError responds 400 with a plain message.
func HandleValidationError(c *fiber.Ctx, message string) error {
	return c.Status(http.StatusBadRequest).JSON(ErrorResponse{Code: CodeInvalidRequest, Message: message})
}
