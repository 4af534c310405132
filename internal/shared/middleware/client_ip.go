package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/shared/utils"
)

type contextKey string

const clientIPContextKey contextKey = "client_ip"

// ClientIPMiddleware extracts the client IP address from the request
// and injects it into the context for downstream handlers to use.
// Registered early in the chain so every handler sees it. Internal
// traffic (health probes, office ranges) is flagged so download stats
// can filter it out.
func ClientIPMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := utils.ExtractClientIP(c)

		// Inject IP into gin context (gin-specific)
		c.Set("client_ip", clientIP)
		c.Set("is_internal", utils.IsPrivateIP(clientIP))

		// Inject IP into request context (for passing to services)
		ctx := context.WithValue(c.Request.Context(), clientIPContextKey, clientIP)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// GetClientIPFromContext retrieves the client IP from a request
// context. Returns empty string if not found.
func GetClientIPFromContext(ctx context.Context) string {
	if ip := ctx.Value(clientIPContextKey); ip != nil {
		if ipStr, ok := ip.(string); ok {
			return ipStr
		}
	}
	return ""
}
