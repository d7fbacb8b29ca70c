// Package debug provides global debug logging switches
package debug

import (
	"log/slog"
	"sync/atomic"
)

var (
	enabled  atomic.Bool
	tracking atomic.Bool
)

// SetEnabled turns general debug logging on or off.
func SetEnabled(on bool) { enabled.Store(on) }

// SetTracking turns the very verbose per-detection framing logs on or off.
// Use --debug-tracking to enable them.
func SetTracking(on bool) { tracking.Store(on) }

// Enabled reports whether debug logging is active.
func Enabled() bool { return enabled.Load() }

// Tracking reports whether tracking logs are active.
func Tracking() bool { return tracking.Load() }

// Log emits a message only if debug mode is enabled
func Log(msg string, args ...any) {
	if enabled.Load() {
		slog.Default().Info(msg, append(args, "debug", true)...)
	}
}

// TrackLog emits a message only if tracking debug mode is enabled
func TrackLog(msg string, args ...any) {
	if tracking.Load() {
		slog.Default().Info(msg, append(args, "debug", "tracking")...)
	}
}
