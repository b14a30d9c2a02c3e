package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GinProtect adapts the net/http guard middleware to Gin. The guard's
// decision logic stays transport-agnostic; this only bridges the two
// handler models.
func GinProtect(m *GuardMiddleware) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Bridge handler to allow net/http middleware execution
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c.Request = r
			c.Next()
		})

		// Wrap Gin request with the net/http guard middleware
		handler := m.Protect(next)

		// Execute middleware chain
		handler.ServeHTTP(c.Writer, c.Request)

		// If the guard already handled the response, stop Gin chain
		if c.Writer.Written() {
			c.Abort()
			return
		}
	}
}
