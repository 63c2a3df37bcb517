// Package platform describes the privileged device capabilities the lock
// controller depends on and provides per-OS implementations of them.
package platform

import (
	"context"
	"errors"
	"io"
	"sort"
)

// Capability names one optional platform function
type Capability string

const (
	CapAdminStatus    Capability = "is_admin_active"
	CapAdminRequest   Capability = "request_admin_permission"
	CapLock           Capability = "lock_now"
	CapOverlayStatus  Capability = "can_draw_overlays"
	CapOverlayRequest Capability = "request_overlay_permission"
	CapToast          Capability = "show_toast"
)

// AllCapabilities lists every known capability in a stable order
var AllCapabilities = []Capability{
	CapAdminStatus,
	CapAdminRequest,
	CapLock,
	CapOverlayStatus,
	CapOverlayRequest,
	CapToast,
}

var (
	// ErrAdminNotActive classifies failures caused by the admin capability not being granted
	ErrAdminNotActive = errors.New("device admin not active")
	// ErrServiceUnavailable is returned when the OS service backing a capability cannot be reached
	ErrServiceUnavailable = errors.New("platform service unavailable")
)

// ToastStyle selects how a toast is presented
type ToastStyle int

const (
	// ToastTransient is a short-lived notification that needs no extra permission
	ToastTransient ToastStyle = iota
	// ToastOverlay is drawn over other applications and needs the overlay capability
	ToastOverlay
)

func (s ToastStyle) String() string {
	if s == ToastOverlay {
		return "overlay"
	}
	return "transient"
}

// AdminStatus reports whether the privileged admin capability is granted
type AdminStatus interface {
	IsAdminActive(ctx context.Context) (bool, error)
}

// AdminRequester starts the interactive admin grant flow. A false result with a
// nil error means the flow continues outside the process (e.g. a settings screen).
type AdminRequester interface {
	RequestAdminPermission(ctx context.Context) (bool, error)
}

// Locker performs the privileged lock action
type Locker interface {
	LockNow(ctx context.Context) error
}

// OverlayStatus reports whether the app may draw over other applications
type OverlayStatus interface {
	CanDrawOverlays(ctx context.Context) (bool, error)
}

// OverlayRequester opens the overlay permission flow
type OverlayRequester interface {
	RequestOverlayPermission(ctx context.Context) error
}

// Toaster shows a short message to the user
type Toaster interface {
	ShowToast(ctx context.Context, message string, style ToastStyle) error
}

// Capabilities is the set of functions a platform provides. A nil field means
// the capability is absent on this device; callers query Has instead of probing.
type Capabilities struct {
	Admin          AdminStatus
	AdminRequest   AdminRequester
	Lock           Locker
	Overlay        OverlayStatus
	OverlayRequest OverlayRequester
	Toast          Toaster

	// Logs carries diagnostic lines emitted by the platform layer. Optional.
	Logs <-chan string

	closers []io.Closer
}

// Has reports whether the capability is present
func (c Capabilities) Has(capability Capability) bool {
	switch capability {
	case CapAdminStatus:
		return c.Admin != nil
	case CapAdminRequest:
		return c.AdminRequest != nil
	case CapLock:
		return c.Lock != nil
	case CapOverlayStatus:
		return c.Overlay != nil
	case CapOverlayRequest:
		return c.OverlayRequest != nil
	case CapToast:
		return c.Toast != nil
	}
	return false
}

// Present returns the names of the capabilities that are available, sorted
func (c Capabilities) Present() []string {
	names := make([]string, 0, len(AllCapabilities))
	for _, capability := range AllCapabilities {
		if c.Has(capability) {
			names = append(names, string(capability))
		}
	}
	sort.Strings(names)
	return names
}

// Missing returns the capabilities that are absent
func (c Capabilities) Missing() []Capability {
	var missing []Capability
	for _, capability := range AllCapabilities {
		if !c.Has(capability) {
			missing = append(missing, capability)
		}
	}
	return missing
}

// Close releases OS resources held by the platform implementation
func (c Capabilities) Close() error {
	var errs []error
	for _, closer := range c.closers {
		if err := closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// withCloser registers a resource to release on Close
func (c *Capabilities) withCloser(closer io.Closer) {
	c.closers = append(c.closers, closer)
}
