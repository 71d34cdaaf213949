package subscription

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edutrack/edutrack/internal/tenancy"
)

// RequireActive blocks product routes for schools without an active
// subscription. Operators pass unconditionally; demo schools pass via
// the service's demo bypass. Runs after auth middleware has attached
// the tenancy scope.
func RequireActive(service *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		scope, ok := tenancy.FromContext(c.Request.Context())
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		if scope.Operator {
			c.Next()
			return
		}
		schoolID, ok := scope.School()
		if !ok {
			c.JSON(http.StatusForbidden, gin.H{"error": "no_school"})
			c.Abort()
			return
		}

		active, err := service.IsActive(c.Request.Context(), schoolID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
			c.Abort()
			return
		}
		if !active {
			c.JSON(http.StatusPaymentRequired, gin.H{
				"error":   "subscription_required",
				"message": "An active subscription is required to access this resource",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
