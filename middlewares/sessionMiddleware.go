package middlewares

import (
	"net/http"
	"strings"

	"github.com/dlvery/dlvery_backend/config"
	"github.com/dlvery/dlvery_backend/utils"
	"github.com/gin-gonic/gin"
)

// SessionMiddleware validates the bearer token and loads the session user
// into the request context. Requests without a token pass through; the
// role guards reject them later where auth is required.
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Request.Header.Get("token")
		if token == "" {
			auth := c.Request.Header.Get("Authorization")
			if strings.HasPrefix(auth, "Bearer ") {
				token = strings.TrimPrefix(auth, "Bearer ")
			}
		}
		if token == "" {
			c.Next()
			return
		}

		validated, err := utils.JwtValidate(token)
		if err != nil || !validated.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		claims, ok := validated.Claims.(*utils.JwtCustomClaim)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		// Logout removes the Redis entry, so a valid JWT alone is not enough.
		username, exists, err := config.GetRedisValue("Token:" + token)
		if err != nil || !exists || username != claims.Username {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		ctx := utils.SetTokenInContext(c.Request.Context(), token)
		ctx = utils.SetUsernameInContext(ctx, claims.Username)
		ctx = utils.SetUserIdInContext(ctx, claims.ID)
		ctx = utils.SetUserNameInContext(ctx, claims.Username)
		ctx = utils.SetRoleInContext(ctx, claims.Role)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireRole rejects requests whose session is missing or carries a
// different role.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionRole, ok := utils.GetRoleFromContext(c.Request.Context())
		if !ok || sessionRole == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		if sessionRole != role {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			c.Abort()
			return
		}
		c.Next()
	}
}
