// Package middleware contains Gin middleware shared by the HTTP-facing
// binaries.
package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fieldops/watchtower/internal/logging"
)

const HeaderXCorrelationID = "X-Correlation-ID"

// CorrelationID assigns (or propagates) a correlation id and stores it both
// on the Gin context and on the request's context.Context, so downstream
// logging calls pick it up automatically.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderXCorrelationID)
		if id == "" {
			id = uuid.New().String()
		}
		c.Header(HeaderXCorrelationID, id)
		c.Set(string(logging.CorrelationIDKey), id)
		ctx := context.WithValue(c.Request.Context(), logging.CorrelationIDKey, id)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
