package detection

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-autoframe/pkg/debug"
	"github.com/teslashibe/go-autoframe/pkg/framing"
)

// YuNetDetector uses OpenCV's FaceDetectorYN for face detection
type YuNetDetector struct {
	detector gocv.FaceDetectorYN
	config   Config
	mu       sync.Mutex // Protects inference and Close
	closed   bool
}

// NewYuNet creates a new YuNet face detector using GoCV's built-in FaceDetectorYN
func NewYuNet(cfg Config) (*YuNetDetector, error) {
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, cfg.ModelPath)
	}

	// Input size is updated per frame
	detector := gocv.NewFaceDetectorYNWithParams(
		cfg.ModelPath,
		"", // No config file needed for ONNX
		image.Pt(cfg.InputWidth, cfg.InputHeight),
		float32(cfg.ConfidenceThresh),
		float32(cfg.NMSThresh),
		cfg.TopK,
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)

	return &YuNetDetector{
		detector: detector,
		config:   cfg,
	}, nil
}

// Detect finds faces in the JPEG frame, highest score first.
func (d *YuNetDetector) Detect(ctx context.Context, frame framing.Frame, timestampMs int64) (framing.DetectionResult, error) {
	if err := ctx.Err(); err != nil {
		return framing.DetectionResult{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return framing.DetectionResult{}, ErrClosed
	}

	if len(frame.Data) == 0 {
		return framing.DetectionResult{}, ErrEmptyImage
	}

	img, err := gocv.IMDecode(frame.Data, gocv.IMReadColor)
	if err != nil {
		return framing.DetectionResult{}, fmt.Errorf("detection: decode frame %d: %w", frame.Seq, err)
	}
	defer img.Close()

	if img.Empty() {
		return framing.DetectionResult{}, ErrEmptyImage
	}

	d.detector.SetInputSize(image.Pt(img.Cols(), img.Rows()))

	faces := gocv.NewMat()
	defer faces.Close()

	d.detector.Detect(img, &faces)

	rows := make([][]float32, faces.Rows())
	for r := range rows {
		row := make([]float32, yunetColumns)
		for c := 0; c < yunetColumns && c < faces.Cols(); c++ {
			row[c] = faces.GetFloatAt(r, c)
		}
		rows[r] = row
	}

	result := parseRows(rows, timestampMs)
	if n := len(result.Faces); n > 0 {
		debug.TrackLog("yunet detections", "faces", n, "top_score", result.Faces[0].Score)
	}
	return result, nil
}

// Close releases the detector resources. Calling it twice is a no-op.
func (d *YuNetDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.detector.Close()
	return nil
}
