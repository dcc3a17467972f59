package middleware

import (
	"context"

	apperrors "github.com/ShepherdHQ/shepherd-backend/errors"
	"github.com/ShepherdHQ/shepherd-backend/logger"
	"github.com/gin-gonic/gin"
)

const (
	userIDHeader   = "X-User-ID"
	tenantIDHeader = "X-Tenant-ID"
)

// IdentityMiddleware extracts the caller's identity from headers set by the
// authenticating reverse proxy in front of this service. The proxy has
// already verified the session; this service trusts the headers and only
// checks they are present.
//
// Both the user ID and the tenant (community) ID are stored on the gin
// context and on the request context, so handlers and services can read them
// either way.
func IdentityMiddleware() gin.HandlerFunc {
	log := logger.GetLogger().Named("identity-middleware")

	return func(c *gin.Context) {
		userID := c.GetHeader(userIDHeader)
		tenantID := c.GetHeader(tenantIDHeader)

		if userID == "" || tenantID == "" {
			log.Warnw("Request missing identity headers",
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
				"has_user", userID != "",
				"has_tenant", tenantID != "")
			if err := c.Error(apperrors.AuthenticationFailed("Missing identity headers")); err != nil {
				log.Debugw("Error attaching authentication error to context", "error", err)
			}
			c.Abort()
			return
		}

		c.Set(string(UserIDKey), userID)
		c.Set(string(TenantIDKey), tenantID)

		ctx := context.WithValue(c.Request.Context(), UserIDKey, userID)
		ctx = context.WithValue(ctx, TenantIDKey, tenantID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// GetUserID returns the authenticated user ID from the gin context, or empty
// if the identity middleware did not run.
func GetUserID(c *gin.Context) string {
	return c.GetString(string(UserIDKey))
}

// GetTenantID returns the caller's community ID from the gin context, or
// empty if the identity middleware did not run.
func GetTenantID(c *gin.Context) string {
	return c.GetString(string(TenantIDKey))
}
