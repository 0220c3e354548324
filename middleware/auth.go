package middleware

import (
	"net/http"
	"strings"

	"campus-eats-api/auth"
	"campus-eats-api/models"

	"github.com/gin-gonic/gin"
)

// Context keys set by AuthRequired.
const (
	ctxUserID   = "userID"
	ctxUsername = "username"
	ctxRole     = "role"
)

// AuthRequired validates the JWT and injects claims into context. Browsers
// cannot set headers on EventSource or WebSocket requests, so a "token"
// query parameter is accepted as well.
func AuthRequired(tokens *auth.TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := bearerToken(c)
		if tokenStr == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required (Bearer <token>)"})
			c.Abort()
			return
		}
		claims, err := tokens.Validate(tokenStr)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}
		c.Set(ctxUserID, claims.UserID)
		c.Set(ctxUsername, claims.Subject)
		c.Set(ctxRole, string(claims.Role))
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return c.Query("token")
}

// RoleRequired enforces that caller has one of the allowed roles
func RoleRequired(roles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		callerRole := GetRole(c)
		if callerRole == "" {
			c.JSON(http.StatusForbidden, gin.H{"error": "Role not found in context"})
			c.Abort()
			return
		}
		for _, r := range roles {
			if callerRole == r {
				c.Next()
				return
			}
		}
		c.JSON(http.StatusForbidden, gin.H{
			"error": "Access denied. Required role(s): " + rolesString(roles),
		})
		c.Abort()
	}
}

// StaffRequired admits kitchen and admin users.
func StaffRequired() gin.HandlerFunc {
	return RoleRequired(models.RoleKitchen, models.RoleAdmin)
}

func rolesString(roles []models.UserRole) string {
	parts := make([]string, len(roles))
	for i, r := range roles {
		parts[i] = string(r)
	}
	return strings.Join(parts, ", ")
}

// GetUserID extracts caller user ID from context, 0 when anonymous.
func GetUserID(c *gin.Context) uint {
	val, ok := c.Get(ctxUserID)
	if !ok {
		return 0
	}
	id, _ := val.(uint)
	return id
}

// GetUsername extracts the caller's username from context
func GetUsername(c *gin.Context) string {
	return c.GetString(ctxUsername)
}

// GetRole extracts caller role from context
func GetRole(c *gin.Context) models.UserRole {
	return models.UserRole(c.GetString(ctxRole))
}
