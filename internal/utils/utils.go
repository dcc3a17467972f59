package utils

import (
	"context"

	apperrors "github.com/ShepherdHQ/shepherd-backend/errors"
	"github.com/ShepherdHQ/shepherd-backend/middleware"
)

// GetUserIDFromContext extracts the authenticated user ID from the context.
// Shared utility function for all services.
func GetUserIDFromContext(ctx context.Context) (string, error) {
	if userID, ok := ctx.Value(middleware.UserIDKey).(string); ok && userID != "" {
		return userID, nil
	}
	return "", apperrors.AuthenticationFailed("User not authenticated")
}

// GetTenantIDFromContext extracts the caller's community ID from the context.
func GetTenantIDFromContext(ctx context.Context) (string, error) {
	if tenantID, ok := ctx.Value(middleware.TenantIDKey).(string); ok && tenantID != "" {
		return tenantID, nil
	}
	return "", apperrors.AuthenticationFailed("Request is not scoped to a community")
}
