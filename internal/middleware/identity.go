package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// IdentityMiddleware reads the current user identity the surrounding
// shell authenticated. Authentication itself happens outside this
// service; an absent identity is rejected.
func IdentityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		username := strings.TrimSpace(c.GetHeader("X-Username"))
		if username == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing user identity"})
			return
		}
		c.Set("username", username)
		c.Next()
	}
}
