package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ReadinessGate answers /healthz immediately and returns 503 for everything
// else until ready reports true. The HTTP server starts listening before the
// database and Redis connections are up.
func ReadinessGate(ready func() bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if !ready() {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	}
}
