package framing

import (
	"context"
	"time"
)

// Frame is a single still from a video track, JPEG encoded.
type Frame struct {
	Data     []byte
	Width    int
	Height   int
	Seq      uint64
	Captured time.Time
}

// Face is one detected face.
type Face struct {
	Box       FaceBox `json:"box"`
	Score     float64 `json:"score"`
	Keypoints []Point `json:"keypoints,omitempty"`
}

// DetectionResult holds the faces found in one frame, highest score first.
type DetectionResult struct {
	Faces       []Face `json:"faces"`
	TimestampMs int64  `json:"timestamp_ms"`
}

// Top returns the most confident face.
func (r DetectionResult) Top() (FaceBox, bool) {
	if len(r.Faces) == 0 {
		return FaceBox{}, false
	}
	return r.Faces[0].Box, true
}

// Sanitize drops faces with malformed boxes and keeps the order of the rest.
func (r DetectionResult) Sanitize() DetectionResult {
	faces := r.Faces[:0:0]
	for _, f := range r.Faces {
		if f.Box.Valid() {
			faces = append(faces, f)
		}
	}
	return DetectionResult{Faces: faces, TimestampMs: r.TimestampMs}
}

// Detector finds faces in a frame.
type Detector interface {
	// Detect returns the faces in the frame ordered by confidence.
	Detect(ctx context.Context, frame Frame, timestampMs int64) (DetectionResult, error)

	// Close releases the model.
	Close() error
}

// DetectorFactory creates the detector when the engine starts.
type DetectorFactory func(ctx context.Context) (Detector, error)

// TrackSettings are the live settings of a video track.
type TrackSettings struct {
	Width     int
	Height    int
	FrameRate float64
}

// Track is a live video track that hands out one frame per request.
type Track interface {
	Settings() TrackSettings
	Grab(ctx context.Context) (Frame, error)
}

// Stream is a media stream that may carry a video track.
type Stream interface {
	VideoTrack() (Track, bool)
}

// Sink renders the cropped frames and exposes them as a stream.
type Sink interface {
	Stream
	Render(ctx context.Context, frame Frame, crop CropRect, dst Size) error
}

// Overlay receives the raw detections for debug drawing.
type Overlay interface {
	ShowDetections(frame Frame, result DetectionResult)
}

// Observer receives a snapshot after every detection tick.
type Observer interface {
	Observe(s Snapshot)
}

// Clock is a monotonic time source.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
