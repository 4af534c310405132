package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/shared/response"
)

// AdminMiddleware gates routes to admin accounts. Runs after
// AuthMiddleware, which puts the requester in the context.
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requester := GetRequester(c)
		if requester == nil || !requester.IsAdmin {
			response.Forbidden(c, "admin access required")
			c.Abort()
			return
		}

		c.Next()
	}
}
