package video

import "errors"

// Sentinel errors for video sources.
var (
	// ErrClosed is returned when a source is used after Close.
	ErrClosed = errors.New("video: source closed")

	// ErrOpen is returned when a capture device or file cannot be opened.
	ErrOpen = errors.New("video: cannot open source")

	// ErrReadFrame is returned when the capture yields no frame.
	ErrReadFrame = errors.New("video: read frame failed")

	// ErrTimeout is returned when the source produced no frame in time.
	ErrTimeout = errors.New("video: timeout waiting for frame")
)
