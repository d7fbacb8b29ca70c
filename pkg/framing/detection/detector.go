// Package detection provides face detection backends for the framing engine.
package detection

import (
	"cmp"
	"context"
	"errors"
	"slices"

	"github.com/teslashibe/go-autoframe/pkg/framing"
)

// Sentinel errors for detector failures.
var (
	// ErrModelNotFound is returned when the model file does not exist.
	ErrModelNotFound = errors.New("detection: model file not found")

	// ErrClosed is returned when Detect is called after Close.
	ErrClosed = errors.New("detection: detector closed")

	// ErrEmptyImage is returned when a frame decodes to nothing.
	ErrEmptyImage = errors.New("detection: empty image")
)

// Config holds detector configuration
type Config struct {
	ModelPath        string  `json:"model_path"`               // Path to ONNX model
	ConfidenceThresh float64 `json:"min_detection_confidence"` // Minimum score (default 0.7)
	NMSThresh        float64 `json:"nms_threshold"`            // Non-maximum suppression overlap
	TopK             int     `json:"top_k"`                    // Candidates kept before NMS
	InputWidth       int     `json:"input_width"`              // Initial model input width
	InputHeight      int     `json:"input_height"`             // Initial model input height
}

// DefaultModelURL is where the YuNet model is fetched from when the model
// file is missing.
const DefaultModelURL = "https://github.com/opencv/opencv_zoo/raw/main/models/face_detection_yunet/face_detection_yunet_2023mar.onnx"

// DefaultConfig returns production defaults for YuNet
func DefaultConfig() Config {
	return Config{
		ModelPath:        "models/face_detection_yunet.onnx",
		ConfidenceThresh: 0.7,
		NMSThresh:        0.3,
		TopK:             5000,
		InputWidth:       320,
		InputHeight:      320,
	}
}

// Factory returns a framing.DetectorFactory that loads a YuNet model.
func Factory(cfg Config) framing.DetectorFactory {
	return func(ctx context.Context) (framing.Detector, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return NewYuNet(cfg)
	}
}

// yunetColumns is the row width of FaceDetectorYN output:
// 0-3 box (x, y, w, h), 4-13 five landmarks (x, y), 14 score.
const yunetColumns = 15

// parseRows converts raw detector rows into a result ordered by score,
// highest first. Rows that are too short are skipped.
func parseRows(rows [][]float32, timestampMs int64) framing.DetectionResult {
	faces := make([]framing.Face, 0, len(rows))
	for _, r := range rows {
		if len(r) < yunetColumns {
			continue
		}
		face := framing.Face{
			Box: framing.FaceBox{
				X:      float64(r[0]),
				Y:      float64(r[1]),
				Width:  float64(r[2]),
				Height: float64(r[3]),
			},
			Score:     float64(r[14]),
			Keypoints: make([]framing.Point, 0, 5),
		}
		for k := 4; k < 14; k += 2 {
			face.Keypoints = append(face.Keypoints, framing.Point{X: float64(r[k]), Y: float64(r[k+1])})
		}
		faces = append(faces, face)
	}

	slices.SortStableFunc(faces, func(a, b framing.Face) int {
		return cmp.Compare(b.Score, a.Score)
	})

	return framing.DetectionResult{Faces: faces, TimestampMs: timestampMs}
}
