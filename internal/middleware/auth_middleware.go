package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/superhero-manager/backend/internal/models"
	"github.com/superhero-manager/backend/internal/utils"
)

// ClaimsKey is the gin context key holding *utils.Claims
const ClaimsKey = "claims"

// RequireAuth is the presence gate: a valid, unexpired bearer token
func RequireAuth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header required",
			})
			return
		}

		tokenString, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || strings.TrimSpace(tokenString) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid authorization format. Use: Bearer <token>",
			})
			return
		}

		claims, err := utils.ValidateToken(strings.TrimSpace(tokenString), jwtSecret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired token",
			})
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("user_role", claims.Role)
		c.Set(ClaimsKey, claims)

		c.Next()
	}
}

// RequireRole is the role gate; it must run after RequireAuth
func RequireRole(allowed ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := GetClaims(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Unauthorized",
			})
			return
		}

		if !models.IsAllowed(claims.Role, allowed...) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":         "insufficient role",
				"requiredRoles": allowed,
				"yourRole":      claims.Role,
			})
			return
		}

		c.Next()
	}
}

// GetClaims returns the claims stored by RequireAuth
func GetClaims(c *gin.Context) (*utils.Claims, bool) {
	v, exists := c.Get(ClaimsKey)
	if !exists {
		return nil, false
	}
	claims, ok := v.(*utils.Claims)
	return claims, ok && claims != nil
}
