package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/use-agent/tokscrape/scraper"
)

// RequestIDHeader carries the per-request correlation ID.
const RequestIDHeader = "X-Request-ID"

// RequestID tags every request with an ID taken from the incoming
// X-Request-ID header or freshly generated. The ID is echoed in the response
// header and stored in the request context so scraper logs carry it.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.New().String()
		}

		c.Set("request_id", id)
		c.Header(RequestIDHeader, id)
		c.Request = c.Request.WithContext(scraper.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}
