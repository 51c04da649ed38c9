package handlers

import (
	"github.com/gin-gonic/gin"

	"social-realtime/internal/observability"
)

const requestIDContextKey = "request_id"

// requestIDFromContext resolves the request id once per request and caches it on the gin context.
func requestIDFromContext(c *gin.Context) string {
	if id := c.GetString(requestIDContextKey); id != "" {
		return id
	}
	requestID := observability.RequestIDFromRequest(c.Request)
	c.Set(requestIDContextKey, requestID)
	return requestID
}

// userIDFromContext returns the authenticated user, or nil on unauthenticated routes.
func userIDFromContext(c *gin.Context) *string {
	if userID := c.GetString("userID"); userID != "" {
		return &userID
	}
	return nil
}
