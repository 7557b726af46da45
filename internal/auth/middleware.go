package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// Context keys for user data
	ContextKeyUserID  = "user_id"
	ContextKeyEmail   = "user_email"
	ContextKeyIsAdmin = "user_is_admin"
)

// Middleware creates a JWT authentication middleware
func Middleware(jwtManager *JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   ErrUnauthorized.Code,
				"message": "missing authorization header",
			})
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   ErrUnauthorized.Code,
				"message": "invalid authorization header format",
			})
			return
		}

		claims, err := jwtManager.ValidateAccessToken(parts[1])
		if err != nil {
			authErr, ok := err.(AuthError)
			if !ok {
				authErr = ErrInvalidToken
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   authErr.Code,
				"message": authErr.Message,
			})
			return
		}

		c.Set(ContextKeyUserID, claims.UserID)
		c.Set(ContextKeyEmail, claims.Email)
		c.Set(ContextKeyIsAdmin, claims.IsAdmin)

		c.Next()
	}
}

// AdminOnly rejects requests whose token lacks the admin flag. Must run
// after Middleware.
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !c.GetBool(ContextKeyIsAdmin) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   ErrForbidden.Code,
				"message": "admin privileges required",
			})
			return
		}
		c.Next()
	}
}

// UserID returns the authenticated user's id from the request context.
func UserID(c *gin.Context) string {
	return c.GetString(ContextKeyUserID)
}
