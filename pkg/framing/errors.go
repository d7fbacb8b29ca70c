package framing

import "errors"

// Sentinel errors for the framing engine.
var (
	// ErrNotStarted is returned when the engine is used before Start succeeded.
	ErrNotStarted = errors.New("framing: engine not started")

	// ErrAlreadyStarted is returned when Start is called twice without Stop.
	ErrAlreadyStarted = errors.New("framing: engine already started")

	// ErrInvalidConfig is returned when the configuration fails validation.
	ErrInvalidConfig = errors.New("framing: invalid config")

	// ErrNoDetector is returned when the detector factory yields no detector.
	ErrNoDetector = errors.New("framing: detector factory returned nil")

	// ErrNoSink is returned when Autoframe is called without a sink.
	ErrNoSink = errors.New("framing: sink required")

	// ErrStopped is returned by a session tick once the session has stopped.
	ErrStopped = errors.New("framing: session stopped")

	// ErrNoFrame is returned by tracks that have no frame to hand out yet.
	ErrNoFrame = errors.New("framing: no frame available")
)
