package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/shared/authz"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/shared/response"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/pkg/jwt"
)

// Context keys set by the auth middlewares
const (
	ContextKeyCustomerID = "customer_id"
	ContextKeyEmail      = "email"
	ContextKeyIsAdmin    = "is_admin"
	ContextKeyRequester  = "requester"
)

// AuthMiddleware requires a valid access token on the request
func AuthMiddleware(manager *jwt.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 1. Read the Authorization header
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}

		// 2. Extract the token from "Bearer <token>"
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, "invalid authorization header format")
			c.Abort()
			return
		}

		// 3. Validate and parse the access token
		claims, err := manager.ValidateAccessToken(parts[1])
		if err != nil {
			response.Unauthorized(c, "invalid token")
			c.Abort()
			return
		}

		// 4. Attach the identity to the request context
		setRequester(c, claims)

		c.Next()
	}
}

// OptionalAuthMiddleware lets anonymous requests through while still
// rejecting requests that present a broken token. Public mod reads
// and downloads run behind this.
func OptionalAuthMiddleware(manager *jwt.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			// No token → anonymous request
			c.Next()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, "invalid authorization header format")
			c.Abort()
			return
		}

		// A presented-but-invalid token is an error, not an
		// anonymous request
		claims, err := manager.ValidateAccessToken(parts[1])
		if err != nil {
			response.Unauthorized(c, "invalid token")
			c.Abort()
			return
		}

		setRequester(c, claims)
		c.Next()
	}
}

func setRequester(c *gin.Context, claims *jwt.Claims) {
	c.Set(ContextKeyCustomerID, claims.CustomerID)
	c.Set(ContextKeyEmail, claims.Email)
	c.Set(ContextKeyIsAdmin, claims.IsAdmin)
	c.Set(ContextKeyRequester, &authz.Requester{
		CustomerID: claims.CustomerID,
		Email:      claims.Email,
		IsAdmin:    claims.IsAdmin,
	})
}

// GetRequester returns the authenticated requester, or nil when the
// request is anonymous.
func GetRequester(c *gin.Context) *authz.Requester {
	value, exists := c.Get(ContextKeyRequester)
	if !exists {
		return nil
	}

	requester, ok := value.(*authz.Requester)
	if !ok {
		return nil
	}
	return requester
}
