package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RenderIDKey is the gin context key holding the request's render ID.
const RenderIDKey = "render_id"

// RequestID assigns every request a render ID, echoed in X-Request-ID.
// A caller-supplied X-Request-ID is kept.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(RenderIDKey, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}
