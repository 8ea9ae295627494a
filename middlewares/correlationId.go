package middlewares

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sevacare/facility_backend/utils"
)

const CorrelationIdHeader = "x-correlation-id"

// CorrelationIdMiddleware carries the caller's x-correlation-id (or a new uuid)
// into the request context and echoes it on the response.
func CorrelationIdMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		cid := c.GetHeader(CorrelationIdHeader)
		if cid == "" {
			cid = uuid.NewString()
		}
		ctx := utils.SetCorrelationIdInContext(c.Request.Context(), cid)
		ctx = utils.SetRequestSourceInContext(ctx, "http")
		c.Request = c.Request.WithContext(ctx)
		c.Header(CorrelationIdHeader, cid)
		c.Next()
	}
}
