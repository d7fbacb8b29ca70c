// Package render turns source frames plus a crop rectangle into the framed
// output stream.
package render

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-autoframe/pkg/framing"
)

// DefaultQuality is the JPEG quality of rendered frames.
const DefaultQuality = 85

// Canvas is a framing.Sink backed by OpenCV. Every Render crops the source
// frame, scales it to the destination size and keeps the JPEG result as the
// latest output frame. The canvas is itself a stream whose single track
// hands out rendered frames.
type Canvas struct {
	quality int
	logger  *slog.Logger

	// OnFrame, when set, receives every rendered JPEG.
	OnFrame func(jpeg []byte)

	mu      sync.Mutex
	latest  framing.Frame
	size    framing.Size
	fps     float64
	seq     uint64
	updated chan struct{}
	closed  bool
}

// NewCanvas creates a canvas for the given output size. A zero size takes
// the size of the first rendered frame.
func NewCanvas(size framing.Size, fps float64) *Canvas {
	return &Canvas{
		quality: DefaultQuality,
		logger:  slog.Default().With("component", "render"),
		size:    size,
		fps:     fps,
		updated: make(chan struct{}),
	}
}

// SetQuality sets the JPEG quality, 1-100.
func (c *Canvas) SetQuality(q int) {
	c.mu.Lock()
	c.quality = max(1, min(q, 100))
	c.mu.Unlock()
}

// Render implements framing.Sink.
func (c *Canvas) Render(ctx context.Context, frame framing.Frame, crop framing.CropRect, dst framing.Size) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	closed, quality := c.closed, c.quality
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}

	if dst.Width <= 0 || dst.Height <= 0 {
		dst = framing.Size{Width: frame.Width, Height: frame.Height}
	}

	out, err := CropAndScale(frame, crop, dst, quality)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.seq++
	c.size = dst
	c.latest = framing.Frame{
		Data:     out,
		Width:    dst.Width,
		Height:   dst.Height,
		Seq:      c.seq,
		Captured: frame.Captured,
	}
	close(c.updated)
	c.updated = make(chan struct{})
	onFrame := c.OnFrame
	c.mu.Unlock()

	if onFrame != nil {
		onFrame(out)
	}
	return nil
}

// CropAndScale crops a JPEG frame to crop, resizes it to dst and returns the
// result as JPEG.
func CropAndScale(frame framing.Frame, crop framing.CropRect, dst framing.Size, quality int) ([]byte, error) {
	if len(frame.Data) == 0 {
		return nil, ErrDecode
	}

	src, err := gocv.IMDecode(frame.Data, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	defer src.Close()
	if src.Empty() {
		return nil, ErrDecode
	}

	dims := framing.FrameDimensions{Width: src.Cols(), Height: src.Rows()}
	rect := crop.Rectangle(dims)
	if rect.Empty() {
		return nil, ErrEmptyCrop
	}

	region := src.Region(rect)
	defer region.Close()

	if dst.Width <= 0 || dst.Height <= 0 {
		dst = framing.Size{Width: dims.Width, Height: dims.Height}
	}

	scaled := gocv.NewMat()
	defer scaled.Close()
	gocv.Resize(region, &scaled, image.Pt(dst.Width, dst.Height), 0, 0, gocv.InterpolationLinear)

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, scaled, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return nil, fmt.Errorf("render: encode: %w", err)
	}
	defer buf.Close()

	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}

// VideoTrack implements framing.Stream. The canvas is its own track.
func (c *Canvas) VideoTrack() (framing.Track, bool) {
	return c, true
}

// Settings implements framing.Track.
func (c *Canvas) Settings() framing.TrackSettings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return framing.TrackSettings{Width: c.size.Width, Height: c.size.Height, FrameRate: c.fps}
}

// Grab implements framing.Track. It waits for a frame newer than the one
// returned by the previous Grab.
func (c *Canvas) Grab(ctx context.Context) (framing.Frame, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return framing.Frame{}, ErrClosed
	}
	wait := c.updated
	c.mu.Unlock()

	select {
	case <-wait:
	case <-ctx.Done():
		return framing.Frame{}, ctx.Err()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return framing.Frame{}, ErrClosed
	}
	f := c.latest
	f.Data = append([]byte(nil), f.Data...)
	return f, nil
}

// Latest returns the most recent output frame without waiting.
func (c *Canvas) Latest() (framing.Frame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seq == 0 {
		return framing.Frame{}, false
	}
	f := c.latest
	f.Data = append([]byte(nil), f.Data...)
	return f, true
}

// Close stops the canvas and wakes pending Grab calls.
func (c *Canvas) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.updated)
	c.logger.Debug("canvas closed", "frames", c.seq)
	return nil
}
