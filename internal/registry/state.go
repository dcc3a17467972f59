package registry

import "time"

// Status is the registration state of one device session.
type Status string

const (
	StatusIdle        Status = "idle"
	StatusRequesting  Status = "requesting"
	StatusRegistering Status = "registering"
	StatusRegistered  Status = "registered"
	StatusFailed      Status = "failed"
)

// RegistrationState is the caller-visible snapshot of a device session's
// registration. It lives only for the session and is never persisted.
type RegistrationState struct {
	Status     Status
	RetryCount int
	LastError  error
}

// backoffDelay returns the wait before retrying after the given attempt
// (1-based): base × 2^(attempt−1).
func backoffDelay(base time.Duration, attempt int) time.Duration {
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	return delay
}
