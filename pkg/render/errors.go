package render

import "errors"

var (
	// ErrClosed is returned when the canvas is used after Close.
	ErrClosed = errors.New("render: canvas closed")

	// ErrDecode is returned when a source frame is not a decodable image.
	ErrDecode = errors.New("render: decode frame failed")

	// ErrEmptyCrop is returned when the crop does not overlap the frame.
	ErrEmptyCrop = errors.New("render: empty crop")
)
