package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/moweilong/tokenservice/internal/pkg/contextx"
	"github.com/moweilong/tokenservice/internal/pkg/known"
)

// RequestID reuses the incoming X-Request-ID header or generates a new id, echoes it back
// and stores it in the request context for log.W.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Request.Header.Get(known.XRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(known.ContextRequestIDKey, id)
		c.Request = c.Request.WithContext(contextx.WithRequestID(c.Request.Context(), id))
		c.Writer.Header().Set(known.XRequestID, id)
		c.Next()
	}
}

// RequestIDFrom returns the id stored by RequestID.
func RequestIDFrom(c *gin.Context) string {
	v, ok := c.Get(known.ContextRequestIDKey)
	if !ok {
		return ""
	}
	id, _ := v.(string)
	return id
}
