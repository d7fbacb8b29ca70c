package video

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"os/exec"
	"sync"
	"time"
)

// minAccessUnit is the smallest H264 payload worth handing to ffmpeg.
const minAccessUnit = 100

// Decoder turns H264 access units into JPEG frames with a short-lived
// ffmpeg process per call, using pipes instead of temp files.
type Decoder struct {
	timeout time.Duration
	quality int // ffmpeg -q:v, 1-31, lower is better

	mu          sync.RWMutex
	latestFrame []byte
}

// NewDecoder creates a decoder whose ffmpeg calls are bounded by timeout.
func NewDecoder(timeout time.Duration) *Decoder {
	return &Decoder{timeout: timeout, quality: 3}
}

// Decode decodes the first picture of the H264 data. It returns the latest
// good frame when the data is too short, undecodable or blank.
func (d *Decoder) Decode(ctx context.Context, h264 []byte) ([]byte, error) {
	if len(h264) < minAccessUnit {
		return d.Latest(), nil
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-loglevel", "error",
		"-f", "h264",
		"-i", "pipe:0",
		"-vframes", "1",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", fmt.Sprint(d.quality),
		"pipe:1",
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(h264)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return d.Latest(), ErrTimeout
		}
		// ffmpeg exits non-zero when the buffer holds no full picture yet
		return d.Latest(), nil
	}

	data := stdout.Bytes()
	if isBlankJPEG(data) {
		return d.Latest(), nil
	}

	d.mu.Lock()
	d.latestFrame = data
	d.mu.Unlock()
	return data, nil
}

// Latest returns a copy of the most recently decoded frame, or nil.
func (d *Decoder) Latest() []byte {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.latestFrame == nil {
		return nil
	}
	frame := make([]byte, len(d.latestFrame))
	copy(frame, d.latestFrame)
	return frame
}

// isBlankJPEG reports whether a JPEG is likely a gray or corrupt frame, as
// decoders emit while waiting for a keyframe.
func isBlankJPEG(data []byte) bool {
	if len(data) < 1000 {
		return true
	}

	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return true
	}

	bounds := img.Bounds()
	if bounds.Dx() < 100 || bounds.Dy() < 100 {
		return true
	}

	r, g, b := averageColor(img, 10)

	// Nearly black
	if r < 30 && g < 30 && b < 30 {
		return true
	}

	// Uniform mid gray
	diff := absInt(r-g) + absInt(g-b) + absInt(r-b)
	return diff < 15 && r > 100 && r < 150
}

// averageColor samples a steps x steps grid and returns the mean 8-bit RGB.
func averageColor(img image.Image, steps int) (r, g, b int) {
	bounds := img.Bounds()
	dx := max(bounds.Dx()/steps, 1)
	dy := max(bounds.Dy()/steps, 1)

	samples := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y += dy {
		for x := bounds.Min.X; x < bounds.Max.X; x += dx {
			cr, cg, cb, _ := img.At(x, y).RGBA()
			r += int(cr >> 8)
			g += int(cg >> 8)
			b += int(cb >> 8)
			samples++
		}
	}
	if samples == 0 {
		return 0, 0, 0
	}
	return r / samples, g / samples, b / samples
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// jpegSize returns the dimensions of a JPEG without decoding pixels.
func jpegSize(data []byte) (int, int, error) {
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}
