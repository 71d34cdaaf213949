package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/edutrack/edutrack/internal/tenancy"
)

// Gin context keys.
const (
	ContextKeyUserID = "authUserID"
	ContextKeyRole   = "authRole"
)

// Middleware parses a bearer token if present and attaches the
// principal's identity and tenancy scope. It never rejects; RequireAuth
// does that on the routes that need it.
func Middleware(issuer *TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if token, ok := strings.CutPrefix(header, "Bearer "); ok && token != "" {
			if claims, err := issuer.Parse(token); err == nil {
				c.Set(ContextKeyUserID, claims.Subject)
				c.Set(ContextKeyRole, Role(claims.Role))

				scope := tenancy.ForSchool(claims.SchoolID)
				if Role(claims.Role) == RoleOperator {
					scope = tenancy.OperatorScope()
				}
				c.Request = c.Request.WithContext(
					tenancy.WithScope(c.Request.Context(), scope))
			}
		}
		c.Next()
	}
}

// RequireAuth rejects requests that did not present a valid token.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, exists := c.Get(ContextKeyUserID); !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Authentication required. Include 'Authorization: Bearer <token>' header.",
			})
			return
		}
		c.Next()
	}
}

// RequireCan rejects authenticated principals whose role lacks the
// action. Must run after RequireAuth.
func RequireCan(action Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := c.Get(ContextKeyRole)
		if !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if !Can(role.(Role), action) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "Your role does not permit this action",
			})
			return
		}
		c.Next()
	}
}
