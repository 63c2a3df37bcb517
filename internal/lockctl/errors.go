package lockctl

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrCapabilityUnavailable means the platform lacks the function entirely; no retry
	ErrCapabilityUnavailable = errors.New("device lock functionality is not available")
	// ErrPermissionNotActive means the admin capability is not granted; recoverable via a grant
	ErrPermissionNotActive = errors.New("device administrator permission is not active")
	// ErrInvalidDuration rejects schedules that are not strictly positive
	ErrInvalidDuration = errors.New("select at least one minute before scheduling a lock")
	// ErrControllerClosed is returned after teardown
	ErrControllerClosed = errors.New("lock controller is closed")
)

// PlatformFailure is an opaque platform error surfaced to the user verbatim
type PlatformFailure struct {
	Message string
	Err     error
}

func (e *PlatformFailure) Error() string {
	return e.Message
}

func (e *PlatformFailure) Unwrap() error {
	return e.Err
}

// PermissionError reports that a lock failed because admin is not active.
// It carries the grant action the caller may offer the user.
type PermissionError struct {
	Cause error

	grant   func(ctx context.Context) (bool, error)
	once    sync.Once
	granted bool
	err     error
}

func (e *PermissionError) Error() string {
	return ErrPermissionNotActive.Error()
}

// Is matches ErrPermissionNotActive
func (e *PermissionError) Is(target error) bool {
	return target == ErrPermissionNotActive
}

func (e *PermissionError) Unwrap() error {
	return e.Cause
}

// Grant runs the admin grant flow. The flow is started at most once per error;
// later calls return the first result.
func (e *PermissionError) Grant(ctx context.Context) (bool, error) {
	e.once.Do(func() {
		if e.grant == nil {
			e.err = ErrCapabilityUnavailable
			return
		}
		e.granted, e.err = e.grant(ctx)
	})
	return e.granted, e.err
}

// ErrorCode maps an error to the stable code used by the control API
func ErrorCode(err error) string {
	var failure *PlatformFailure
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCapabilityUnavailable):
		return "CAPABILITY_UNAVAILABLE"
	case errors.Is(err, ErrPermissionNotActive):
		return "PERMISSION_NOT_ACTIVE"
	case errors.Is(err, ErrInvalidDuration):
		return "INVALID_DURATION"
	case errors.Is(err, ErrControllerClosed):
		return "CONTROLLER_CLOSED"
	case errors.As(err, &failure):
		return "PLATFORM_FAILURE"
	default:
		return "INTERNAL_ERROR"
	}
}
