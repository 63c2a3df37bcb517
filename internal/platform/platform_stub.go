//go:build !linux && !windows && !darwin

package platform

import "log/slog"

// New returns an empty capability set: no lock primitives exist on this OS,
// so every lock and schedule request reports the capability as unavailable.
func New(logger *slog.Logger) Capabilities {
	logger.With("component", "platform-stub").Warn("device lock is not supported on this platform")
	return Capabilities{}
}
