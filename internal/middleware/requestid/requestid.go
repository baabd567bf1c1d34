package requestid

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofrs/uuid"

	"github.com/abrahamahn/abe-stack-sub003/internal/pkg/log"
)

const (
	// HeaderRequestID is the HTTP header name for request ID
	HeaderRequestID = "X-Request-ID"
	// ContextKeyRequestID is the key used to store request ID in Fiber context
	ContextKeyRequestID = "request_id"
)

// New creates a middleware that generates or uses an existing X-Request-ID header.
// The ID is also attached to the request's user context for logging.
func New() fiber.Handler {
	return func(c *fiber.Ctx) error {
		requestID := c.Get(HeaderRequestID)

		if requestID == "" {
			id, err := uuid.NewV4()
			if err != nil {
				id, _ = uuid.NewV4()
			}
			requestID = id.String()
		}

		c.Locals(ContextKeyRequestID, requestID)
		c.SetUserContext(log.WithRequestID(c.UserContext(), requestID))

		// Set response header so client can track the request
		c.Set(HeaderRequestID, requestID)

		return c.Next()
	}
}

// GetRequestID retrieves the request ID from Fiber context
func GetRequestID(c *fiber.Ctx) string {
	if id, ok := c.Locals(ContextKeyRequestID).(string); ok {
		return id
	}
	return ""
}
