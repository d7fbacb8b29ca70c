package video

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-autoframe/pkg/framing"
)

// DefaultJPEGQuality is used when a source is created with quality 0.
const DefaultJPEGQuality = 85

// Capture reads frames from a local camera or video file through OpenCV.
type Capture struct {
	cap      *gocv.VideoCapture
	mat      gocv.Mat
	quality  int
	settings framing.TrackSettings

	mu     sync.Mutex
	seq    uint64
	closed bool
}

// OpenCapture opens a capture device by index ("0") or a file/URL path.
func OpenCapture(source string, quality int) (*Capture, error) {
	var device interface{} = source
	if id, err := strconv.Atoi(source); err == nil {
		device = id
	}

	vc, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrOpen, source, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w %q", ErrOpen, source)
	}

	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}

	return &Capture{
		cap:     vc,
		mat:     gocv.NewMat(),
		quality: quality,
		settings: framing.TrackSettings{
			Width:     int(vc.Get(gocv.VideoCaptureFrameWidth)),
			Height:    int(vc.Get(gocv.VideoCaptureFrameHeight)),
			FrameRate: vc.Get(gocv.VideoCaptureFPS),
		},
	}, nil
}

// Settings implements framing.Track with the values reported at open time.
func (c *Capture) Settings() framing.TrackSettings {
	return c.settings
}

// Grab reads the next frame and encodes it as JPEG. The read itself cannot
// be interrupted; it is bounded by the device frame interval.
func (c *Capture) Grab(ctx context.Context) (framing.Frame, error) {
	if err := ctx.Err(); err != nil {
		return framing.Frame{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return framing.Frame{}, ErrClosed
	}

	if ok := c.cap.Read(&c.mat); !ok || c.mat.Empty() {
		return framing.Frame{}, ErrReadFrame
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, c.mat, []int{gocv.IMWriteJpegQuality, c.quality})
	if err != nil {
		return framing.Frame{}, fmt.Errorf("video: encode frame: %w", err)
	}
	defer buf.Close()

	data := make([]byte, buf.Len())
	copy(data, buf.GetBytes())

	c.seq++
	return framing.Frame{
		Data:     data,
		Width:    c.mat.Cols(),
		Height:   c.mat.Rows(),
		Seq:      c.seq,
		Captured: time.Now(),
	}, nil
}

// Close releases the device.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.mat.Close()
	return c.cap.Close()
}
