package types

import "time"

// DevicePlatform represents the mobile platform a push token belongs to
type DevicePlatform string

const (
	PlatformIOS     DevicePlatform = "ios"
	PlatformAndroid DevicePlatform = "android"
	// PlatformOther covers clients outside the two first-class mobile
	// platforms, such as web or desktop shells.
	PlatformOther DevicePlatform = "other"
)

// Valid reports whether the platform is one of the supported values.
func (p DevicePlatform) Valid() bool {
	return p == PlatformIOS || p == PlatformAndroid || p == PlatformOther
}

// DeviceToken represents a user's push notification token within a community.
// A token is active while RevokedAt is nil; revocation keeps the row for audit.
type DeviceToken struct {
	ID         string         `json:"id"`
	TenantID   string         `json:"tenantId"`
	UserID     string         `json:"userId"`
	Token      string         `json:"token"`
	Platform   DevicePlatform `json:"platform"`
	RevokedAt  *time.Time     `json:"revokedAt,omitempty"`
	LastUsedAt *time.Time     `json:"lastUsedAt,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// Active reports whether the token may still be dispatched to.
func (t *DeviceToken) Active() bool {
	return t.RevokedAt == nil
}

// RegisterDeviceTokenRequest is the request body for registering a push token
type RegisterDeviceTokenRequest struct {
	Token    string `json:"token" binding:"required"`
	Platform string `json:"platform" binding:"required,oneof=ios android other"`
}

// RevokeDeviceTokenRequest is the request body for revoking a push token
type RevokeDeviceTokenRequest struct {
	Token string `json:"token" binding:"required"`
}
