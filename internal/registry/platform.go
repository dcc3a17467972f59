// Package registry owns the device-session push-token lifecycle: acquiring a
// token from the platform, persisting it, rotating it when the platform hands
// out a new one, and revoking it on logout.
package registry

import (
	"context"

	"github.com/ShepherdHQ/shepherd-backend/types"
)

// Platform abstracts the mobile push capabilities of the device a session
// runs on. One implementation exists per platform and is chosen by the
// embedding application at construction time; the registry never branches on
// platform kind itself.
type Platform interface {
	// Kind reports which platform this is.
	Kind() types.DevicePlatform

	// EnsureChannel creates the notification channel if the platform requires
	// one (Android). A no-op elsewhere.
	EnsureChannel(ctx context.Context) error

	// RequestPermission asks the user for notification permission, returning
	// whether it is granted. Implementations short-circuit when permission
	// was already granted.
	RequestPermission(ctx context.Context) (bool, error)

	// Token fetches the current push token for this installation.
	Token(ctx context.Context) (string, error)
}
