package registry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ShepherdHQ/shepherd-backend/config"
	apperrors "github.com/ShepherdHQ/shepherd-backend/errors"
	"github.com/ShepherdHQ/shepherd-backend/internal/store"
	"github.com/ShepherdHQ/shepherd-backend/logger"
	"github.com/ShepherdHQ/shepherd-backend/types"
	"go.uber.org/zap"
)

// Registry drives token registration for one device session. Register is
// serialized by an in-progress flag: a second call while one runs is a no-op,
// not a queue. Revoke may run concurrently with a pending Register; the two
// target disjoint intents and last writer wins at the store.
type Registry struct {
	tokenStore store.PushTokenStore
	platform   Platform
	cfg        config.RegistryConfig
	log        *zap.SugaredLogger

	inProgress atomic.Bool
	// foregroundGen invalidates stale foreground checks: a check that is no
	// longer the latest discards its result instead of acting on it.
	foregroundGen atomic.Int64

	mu        sync.Mutex
	state     RegistrationState
	lastToken string

	// sleep is injectable so retry tests do not wait out real backoff.
	sleep func(ctx context.Context, d time.Duration) error
}

func New(tokenStore store.PushTokenStore, platform Platform, cfg config.RegistryConfig) *Registry {
	return &Registry{
		tokenStore: tokenStore,
		platform:   platform,
		cfg:        cfg,
		log:        logger.GetLogger().Named("token-registry"),
		state:      RegistrationState{Status: StatusIdle},
		sleep:      sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// State returns a snapshot of the session's registration state.
func (r *Registry) State() RegistrationState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// LastToken returns the most recently registered platform token, or empty if
// none has been registered this session.
func (r *Registry) LastToken() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastToken
}

func (r *Registry) setState(s RegistrationState) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// Register acquires a platform token and persists it. Idempotent entry
// point: if a registration is already in flight the call returns nil
// immediately. Permission denial is terminal; every other failure retries the
// whole sequence with exponential backoff up to the configured attempt cap.
func (r *Registry) Register(ctx context.Context, tenantID, userID string) error {
	if !r.inProgress.CompareAndSwap(false, true) {
		r.log.Debugw("Registration already in progress, ignoring call",
			"tenantId", tenantID,
			"userId", userID)
		return nil
	}
	defer r.inProgress.Store(false)

	var lastErr error
	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		token, err := r.attempt(ctx, tenantID, userID)
		if err == nil {
			r.mu.Lock()
			r.state = RegistrationState{Status: StatusRegistered}
			r.lastToken = token
			r.mu.Unlock()
			r.log.Infow("Device token registered",
				"tenantId", tenantID,
				"userId", userID,
				"platform", r.platform.Kind(),
				"token", logger.MaskDeviceToken(token),
				"attempt", attempt)
			return nil
		}

		if apperrors.IsType(err, apperrors.PermissionError) {
			r.setState(RegistrationState{Status: StatusFailed, LastError: err})
			r.log.Infow("Notification permission denied, giving up",
				"tenantId", tenantID,
				"userId", userID)
			return err
		}

		lastErr = err
		r.setState(RegistrationState{Status: StatusFailed, RetryCount: attempt - 1, LastError: err})

		if attempt == r.cfg.MaxAttempts {
			break
		}

		delay := backoffDelay(time.Duration(r.cfg.RetryBaseMs)*time.Millisecond, attempt)
		r.log.Warnw("Registration attempt failed, retrying",
			"tenantId", tenantID,
			"userId", userID,
			"attempt", attempt,
			"delay", delay,
			"error", err)
		if err := r.sleep(ctx, delay); err != nil {
			r.setState(RegistrationState{Status: StatusFailed, RetryCount: attempt - 1, LastError: err})
			return err
		}
		r.bumpRetryCount(attempt)
	}

	r.setState(RegistrationState{Status: StatusFailed, RetryCount: r.cfg.MaxAttempts - 1, LastError: lastErr})
	r.log.Errorw("Registration exhausted all attempts",
		"tenantId", tenantID,
		"userId", userID,
		"attempts", r.cfg.MaxAttempts,
		"error", lastErr)
	return lastErr
}

func (r *Registry) bumpRetryCount(n int) {
	r.mu.Lock()
	r.state.RetryCount = n
	r.mu.Unlock()
}

// attempt runs one pass of the full registration sequence.
func (r *Registry) attempt(ctx context.Context, tenantID, userID string) (string, error) {
	r.setState(RegistrationState{Status: StatusRequesting, RetryCount: r.State().RetryCount})

	if err := r.platform.EnsureChannel(ctx); err != nil {
		return "", apperrors.Wrap(err, apperrors.ServerError, "failed to ensure notification channel")
	}

	granted, err := r.platform.RequestPermission(ctx)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ServerError, "permission request failed")
	}
	if !granted {
		return "", apperrors.PermissionDenied(string(r.platform.Kind()))
	}

	r.setState(RegistrationState{Status: StatusRegistering, RetryCount: r.State().RetryCount})

	token, err := r.platform.Token(ctx)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ServerError, "failed to fetch platform token")
	}

	_, err = r.tokenStore.Upsert(ctx, &types.DeviceToken{
		TenantID: tenantID,
		UserID:   userID,
		Token:    token,
		Platform: r.platform.Kind(),
	})
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.DatabaseError, "failed to persist device token")
	}

	return token, nil
}

// Revoke marks the token inactive in the store. Revoking an absent or
// already-revoked token is a silent no-op, so logout can always call this.
// A store failure is recorded in the session state and returned for the
// caller to observe, but callers (the logout flow) proceed regardless.
func (r *Registry) Revoke(ctx context.Context, tenantID, userID, token string) error {
	if err := r.tokenStore.Revoke(ctx, tenantID, userID, token); err != nil {
		wrapped := apperrors.Wrap(err, apperrors.DatabaseError, "failed to revoke device token")
		r.setState(RegistrationState{Status: r.State().Status, RetryCount: r.State().RetryCount, LastError: wrapped})
		r.log.Errorw("Token revocation failed, logout proceeds anyway",
			"tenantId", tenantID,
			"userId", userID,
			"token", logger.MaskDeviceToken(token),
			"error", err)
		return wrapped
	}

	r.mu.Lock()
	r.state = RegistrationState{Status: StatusIdle}
	r.lastToken = ""
	r.mu.Unlock()

	r.log.Infow("Device token revoked",
		"tenantId", tenantID,
		"userId", userID,
		"token", logger.MaskDeviceToken(token))
	return nil
}

// RefreshPermissions re-requests notification permission and, if granted,
// runs the registration sequence. Also the first-time registration path.
func (r *Registry) RefreshPermissions(ctx context.Context, tenantID, userID string) error {
	granted, err := r.platform.RequestPermission(ctx)
	if err != nil {
		wrapped := apperrors.Wrap(err, apperrors.ServerError, "permission request failed")
		r.setState(RegistrationState{Status: StatusFailed, LastError: wrapped})
		return wrapped
	}
	if !granted {
		denied := apperrors.PermissionDenied(string(r.platform.Kind()))
		r.setState(RegistrationState{Status: StatusFailed, LastError: denied})
		return denied
	}
	return r.Register(ctx, tenantID, userID)
}

// OnForeground handles the app returning to the foreground: it fetches the
// current platform token and re-registers if it differs from the last known
// one (token rotation). A check that has been superseded by a newer one
// discards its result; the comparison happens against the token known at
// completion time, not at start time.
func (r *Registry) OnForeground(ctx context.Context, tenantID, userID string) error {
	gen := r.foregroundGen.Add(1)

	token, err := r.platform.Token(ctx)
	if err != nil {
		r.log.Warnw("Foreground token check failed",
			"tenantId", tenantID,
			"userId", userID,
			"error", err)
		return nil
	}

	if r.foregroundGen.Load() != gen {
		r.log.Debugw("Discarding stale foreground check",
			"tenantId", tenantID,
			"userId", userID)
		return nil
	}

	r.mu.Lock()
	unchanged := token == r.lastToken
	r.mu.Unlock()
	if unchanged {
		return nil
	}

	r.log.Infow("Platform token rotated, re-registering",
		"tenantId", tenantID,
		"userId", userID,
		"token", logger.MaskDeviceToken(token))
	return r.Register(ctx, tenantID, userID)
}
