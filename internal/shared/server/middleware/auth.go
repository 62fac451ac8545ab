package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"dealroom-backend/internal/shared/auth"
	"dealroom-backend/internal/shared/server/respond"
)

const (
	userIDKey    = "userId"
	orgIDKey     = "orgId"
	userEmailKey = "userEmail"
)

// Auth validates bearer tokens and stores caller identity and tenant in
// context. In non-production environments the X-Org-Id / X-User-Id headers
// are accepted as a fallback so local clients do not need to mint tokens.
func Auth(env string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			return
		}

		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))

		if authHeader != "" {
			if !strings.HasPrefix(authHeader, "Bearer ") {
				respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
				return
			}

			token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer"))
			if token == "" {
				respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
				return
			}

			claims, err := auth.VerifyJWT(token)
			if err != nil {
				respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
				return
			}

			c.Set(userIDKey, claims.Sub)
			c.Set(orgIDKey, claims.Org)
			if claims.Email != "" {
				c.Set(userEmailKey, claims.Email)
			}
			c.Next()
			return
		}

		if env == "production" {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "Missing identity", nil)
			return
		}

		orgID := strings.TrimSpace(c.GetHeader("X-Org-Id"))
		if orgID == "" {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "Missing identity", nil)
			return
		}
		userID := strings.TrimSpace(c.GetHeader("X-User-Id"))
		if userID == "" {
			userID = "dev:" + orgID
		}

		c.Set(userIDKey, userID)
		c.Set(orgIDKey, orgID)
		c.Next()
	}
}

// UserIDFromContext fetches the user ID set by the auth middleware.
func UserIDFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	val, _ := c.Get(userIDKey)
	if id, ok := val.(string); ok {
		return id
	}
	return ""
}

// OrgIDFromContext fetches the organization ID set by the auth middleware.
func OrgIDFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	val, _ := c.Get(orgIDKey)
	if id, ok := val.(string); ok {
		return id
	}
	return ""
}
