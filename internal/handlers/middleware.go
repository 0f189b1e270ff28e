package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

// requestIDMiddleware tags every request with an id for log correlation.
// A caller-supplied X-Request-ID is kept; otherwise one is generated.
func (h *Handler) requestIDMiddleware(c *gin.Context) {
	id := c.GetHeader(requestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	c.Set("requestId", id)
	c.Header(requestIDHeader, id)
	c.Next()
}

// requestID returns the id assigned by requestIDMiddleware, if any.
func requestID(c *gin.Context) string {
	return c.GetString("requestId")
}
