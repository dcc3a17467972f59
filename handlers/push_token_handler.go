package handlers

import (
	"net/http"

	"github.com/ShepherdHQ/shepherd-backend/internal/store"
	"github.com/ShepherdHQ/shepherd-backend/internal/utils"
	"github.com/ShepherdHQ/shepherd-backend/logger"
	"github.com/ShepherdHQ/shepherd-backend/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// PushTokenHandler handles HTTP requests related to push notification tokens.
type PushTokenHandler struct {
	pushTokenStore store.PushTokenStore
	logger         *zap.Logger
}

// NewPushTokenHandler creates a new PushTokenHandler.
func NewPushTokenHandler(pts store.PushTokenStore, logger *zap.Logger) *PushTokenHandler {
	return &PushTokenHandler{
		pushTokenStore: pts,
		logger:         logger.Named("PushTokenHandler"),
	}
}

// identity pulls the caller's user and tenant ID out of the request context.
func (h *PushTokenHandler) identity(c *gin.Context) (userID, tenantID string, ok bool) {
	userID, err := utils.GetUserIDFromContext(c.Request.Context())
	if err != nil {
		h.logger.Warn("Unauthenticated push token request", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return "", "", false
	}
	tenantID, err = utils.GetTenantIDFromContext(c.Request.Context())
	if err != nil {
		h.logger.Warn("Push token request without community scope", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return "", "", false
	}
	return userID, tenantID, true
}

// RegisterDeviceToken godoc
// @Summary Register a device push token
// @Description Registers or reactivates a push token for the authenticated user's device
// @Tags push-tokens
// @Accept json
// @Produce json
// @Param body body types.RegisterDeviceTokenRequest true "Device token registration request"
// @Success 200 {object} map[string]string "Token registered successfully"
// @Failure 400 {object} map[string]string "Invalid request body"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Internal Server Error"
// @Router /users/push-token [post]
func (h *PushTokenHandler) RegisterDeviceToken(c *gin.Context) {
	userID, tenantID, ok := h.identity(c)
	if !ok {
		return
	}

	var req types.RegisterDeviceTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid device token registration request",
			zap.String("userID", userID),
			zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	platform := types.DevicePlatform(req.Platform)
	if !platform.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid platform. Must be 'ios' or 'android'"})
		return
	}

	id, err := h.pushTokenStore.Upsert(c.Request.Context(), &types.DeviceToken{
		TenantID: tenantID,
		UserID:   userID,
		Token:    req.Token,
		Platform: platform,
	})
	if err != nil {
		h.logger.Error("Failed to register device token",
			zap.String("userID", userID),
			zap.String("platform", req.Platform),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to register device token"})
		return
	}

	h.logger.Info("Successfully registered device token",
		zap.String("userID", userID),
		zap.String("platform", req.Platform),
		zap.String("token", logger.MaskDeviceToken(req.Token)))

	c.JSON(http.StatusOK, gin.H{"id": id})
}

// RevokeDeviceToken godoc
// @Summary Revoke a device push token
// @Description Marks a push token inactive for the authenticated user (typically on logout)
// @Tags push-tokens
// @Accept json
// @Produce json
// @Param body body types.RevokeDeviceTokenRequest true "Device token revocation request"
// @Success 204 "Token revoked successfully"
// @Failure 400 {object} map[string]string "Invalid request body"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Internal Server Error"
// @Router /users/push-token [delete]
func (h *PushTokenHandler) RevokeDeviceToken(c *gin.Context) {
	userID, tenantID, ok := h.identity(c)
	if !ok {
		return
	}

	var req types.RevokeDeviceTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid device token revocation request",
			zap.String("userID", userID),
			zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	if err := h.pushTokenStore.Revoke(c.Request.Context(), tenantID, userID, req.Token); err != nil {
		h.logger.Error("Failed to revoke device token",
			zap.String("userID", userID),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to revoke device token"})
		return
	}

	h.logger.Info("Successfully revoked device token",
		zap.String("userID", userID),
		zap.String("token", logger.MaskDeviceToken(req.Token)))

	c.Status(http.StatusNoContent)
}

// RevokeAllDeviceTokens godoc
// @Summary Revoke all device push tokens
// @Description Marks every push token of the authenticated user inactive (e.g., logout from all devices)
// @Tags push-tokens
// @Produce json
// @Success 204 "All tokens revoked successfully"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Internal Server Error"
// @Router /users/push-tokens [delete]
func (h *PushTokenHandler) RevokeAllDeviceTokens(c *gin.Context) {
	userID, tenantID, ok := h.identity(c)
	if !ok {
		return
	}

	revoked, err := h.pushTokenStore.RevokeAll(c.Request.Context(), tenantID, userID)
	if err != nil {
		h.logger.Error("Failed to revoke all device tokens",
			zap.String("userID", userID),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to revoke all device tokens"})
		return
	}

	h.logger.Info("Successfully revoked all device tokens",
		zap.String("userID", userID),
		zap.Int64("revoked", revoked))

	c.Status(http.StatusNoContent)
}
