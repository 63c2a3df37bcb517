//go:build linux

package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	logindDest        = "org.freedesktop.login1"
	logindPath        = "/org/freedesktop/login1"
	logindManager     = "org.freedesktop.login1.Manager"
	logindSession     = "org.freedesktop.login1.Session"
	errNoSessionByPID = "org.freedesktop.login1.NoSessionForPID"
	errNoSuchSession  = "org.freedesktop.login1.NoSuchSession"

	notifyDest  = "org.freedesktop.Notifications"
	notifyPath  = "/org/freedesktop/Notifications"
	notifyIface = "org.freedesktop.Notifications"

	appName = "nosleep"

	urgencyNormal   byte = 1
	urgencyCritical byte = 2
)

// LogindPlatform locks the current graphical session through systemd-logind and
// shows warnings through the freedesktop notification service.
type LogindPlatform struct {
	system  *dbus.Conn
	session *dbus.Conn
	logs    chan string
	logger  *slog.Logger

	mu          sync.Mutex
	sessionPath dbus.ObjectPath
}

// NewLogindPlatform connects to the system and session buses. Either connection
// may fail; the matching capabilities are then reported absent.
func NewLogindPlatform(logger *slog.Logger) *LogindPlatform {
	p := &LogindPlatform{
		logs:   make(chan string, 64),
		logger: logger.With("component", "platform-logind"),
	}

	system, err := dbus.ConnectSystemBus()
	if err != nil {
		p.logger.Debug("cannot connect to D-Bus system bus", "error", err)
	} else {
		p.system = system
	}

	session, err := dbus.ConnectSessionBus()
	if err != nil {
		p.logger.Debug("cannot connect to D-Bus session bus", "error", err)
	} else {
		p.session = session
	}

	return p
}

// Capabilities exposes what this platform can do
func (p *LogindPlatform) Capabilities() Capabilities {
	caps := Capabilities{Logs: p.logs}
	if p.system != nil {
		caps.Admin = p
		caps.Lock = p
		caps.withCloser(p.system)
	}
	if p.session != nil {
		caps.Overlay = p
		caps.Toast = p
		caps.withCloser(p.session)
	}
	return caps
}

func (p *LogindPlatform) emitLog(message string) {
	p.logger.Debug(message)
	select {
	case p.logs <- message:
	default:
	}
}

// resolveSession finds the logind session this process belongs to
func (p *LogindPlatform) resolveSession(ctx context.Context) (dbus.ObjectPath, error) {
	p.mu.Lock()
	cached := p.sessionPath
	p.mu.Unlock()
	if cached != "" {
		return cached, nil
	}

	manager := p.system.Object(logindDest, logindPath)

	var path dbus.ObjectPath
	err := manager.CallWithContext(ctx, logindManager+".GetSessionByPID", 0, uint32(os.Getpid())).Store(&path)
	if err != nil && isDBusError(err, errNoSessionByPID) {
		if id := os.Getenv("XDG_SESSION_ID"); id != "" {
			err = manager.CallWithContext(ctx, logindManager+".GetSession", 0, id).Store(&path)
		}
	}
	if err != nil {
		if isDBusError(err, errNoSessionByPID) || isDBusError(err, errNoSuchSession) {
			return "", fmt.Errorf("%w: no login session for this process", ErrAdminNotActive)
		}
		return "", fmt.Errorf("%w: logind: %v", ErrServiceUnavailable, err)
	}

	p.mu.Lock()
	p.sessionPath = path
	p.mu.Unlock()
	return path, nil
}

// IsAdminActive reports whether a logind session is available to lock
func (p *LogindPlatform) IsAdminActive(ctx context.Context) (bool, error) {
	_, err := p.resolveSession(ctx)
	if errors.Is(err, ErrAdminNotActive) {
		p.emitLog("isAdminActive: inactive")
		return false, nil
	}
	if err != nil {
		p.emitLog("isAdminActive: error - " + err.Error())
		return false, err
	}
	p.emitLog("isAdminActive: active")
	return true, nil
}

// LockNow asks logind to lock the current session
func (p *LogindPlatform) LockNow(ctx context.Context) error {
	path, err := p.resolveSession(ctx)
	if err != nil {
		p.emitLog("lockNow: " + err.Error())
		return err
	}

	call := p.system.Object(logindDest, path).CallWithContext(ctx, logindSession+".Lock", 0)
	if call.Err != nil {
		p.emitLog("lockNow: lock failed - " + call.Err.Error())
		return fmt.Errorf("device lock failed: %w", call.Err)
	}

	p.emitLog("lockNow: device locked successfully")
	return nil
}

// CanDrawOverlays reports whether a notification server is running
func (p *LogindPlatform) CanDrawOverlays(ctx context.Context) (bool, error) {
	var owned bool
	err := p.session.BusObject().CallWithContext(ctx, "org.freedesktop.DBus.NameHasOwner", 0, notifyDest).Store(&owned)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	return owned, nil
}

// ShowToast sends a desktop notification. Overlay toasts are critical and stay
// until dismissed; transient ones expire after five seconds.
func (p *LogindPlatform) ShowToast(ctx context.Context, message string, style ToastStyle) error {
	urgency := urgencyNormal
	expire := int32(5000)
	if style == ToastOverlay {
		urgency = urgencyCritical
		expire = 0
	}

	hints := map[string]dbus.Variant{
		"urgency": dbus.MakeVariant(urgency),
	}

	obj := p.session.Object(notifyDest, notifyPath)
	call := obj.CallWithContext(ctx, notifyIface+".Notify", 0,
		appName,    // app_name
		uint32(0),  // replaces_id
		"",         // app_icon
		"nosleep",  // summary
		message,    // body
		[]string{}, // actions
		hints,
		expire,
	)
	if call.Err != nil {
		p.emitLog("showToast error: " + call.Err.Error())
		return fmt.Errorf("notify: %w", call.Err)
	}

	p.emitLog(fmt.Sprintf("showToast (%s): %s", style, message))
	return nil
}

func isDBusError(err error, name string) bool {
	var dbusErr dbus.Error
	if errors.As(err, &dbusErr) {
		return dbusErr.Name == name
	}
	var dbusErrPtr *dbus.Error
	if errors.As(err, &dbusErrPtr) && dbusErrPtr != nil {
		return dbusErrPtr.Name == name
	}
	return false
}

// New creates the capability set for the current OS
func New(logger *slog.Logger) Capabilities {
	return NewLogindPlatform(logger).Capabilities()
}

var (
	_ AdminStatus   = (*LogindPlatform)(nil)
	_ Locker        = (*LogindPlatform)(nil)
	_ OverlayStatus = (*LogindPlatform)(nil)
	_ Toaster       = (*LogindPlatform)(nil)
)
