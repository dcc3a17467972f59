package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDevicePlatformValid(t *testing.T) {
	assert.True(t, PlatformIOS.Valid())
	assert.True(t, PlatformAndroid.Valid())
	assert.True(t, PlatformOther.Valid())

	assert.False(t, DevicePlatform("").Valid())
	assert.False(t, DevicePlatform("blackberry").Valid())
}

func TestDeviceTokenActive(t *testing.T) {
	token := &DeviceToken{Token: "ExponentPushToken[abc]"}
	assert.True(t, token.Active())

	now := time.Now()
	token.RevokedAt = &now
	assert.False(t, token.Active())
}
