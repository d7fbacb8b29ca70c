package framing

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds the framing parameters for a session.
// A session reads it once at start; changes apply to the next session.
type Config struct {
	// TargetFaceRatio is the face width the framing aims for, as a fraction
	// of the frame height.
	TargetFaceRatio float64 `json:"target_face_ratio" validate:"gt=0,lte=1"`

	// SmoothingFactor is the EMA alpha (higher = more weight on new data).
	SmoothingFactor float64 `json:"smoothing_factor" validate:"gt=0,lte=1"`

	// Re-anchor thresholds. X and Y are fractions of the frame width and
	// height, Zoom is a fraction of the anchor width.
	ThresholdX    float64 `json:"threshold_x" validate:"gte=0,lte=1"`
	ThresholdY    float64 `json:"threshold_y" validate:"gte=0,lte=1"`
	ZoomThreshold float64 `json:"zoom_threshold" validate:"gte=0"`

	// PredictionInterval is the minimum time between detector calls.
	PredictionInterval time.Duration `json:"prediction_interval" validate:"gte=0"`

	// KeepZoomReset eases back to the full frame when no face is detected.
	KeepZoomReset bool `json:"keep_zoom_reset"`
}

// DefaultConfig returns the recommended configuration for a webcam feed.
func DefaultConfig() Config {
	return Config{
		TargetFaceRatio:    0.3,
		SmoothingFactor:    0.2, // 20% new, 80% old
		ThresholdX:         0.07,
		ThresholdY:         0.07,
		ZoomThreshold:      0.1, // allow 10% size change before reacting
		PredictionInterval: 100 * time.Millisecond,
		KeepZoomReset:      true,
	}
}

// ResponsiveConfig trades stability for faster reaction.
func ResponsiveConfig() Config {
	cfg := DefaultConfig()
	cfg.SmoothingFactor = 0.5
	cfg.ThresholdX = 0.04
	cfg.ThresholdY = 0.04
	cfg.PredictionInterval = 50 * time.Millisecond
	return cfg
}

// SteadyConfig is tuned for presentations where the speaker barely moves.
func SteadyConfig() Config {
	cfg := DefaultConfig()
	cfg.SmoothingFactor = 0.1
	cfg.ThresholdX = 0.12
	cfg.ThresholdY = 0.12
	cfg.ZoomThreshold = 0.2
	cfg.PredictionInterval = 250 * time.Millisecond
	return cfg
}

var validate = validator.New()

// Validate checks that every field is within range.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Thresholds returns the re-anchor thresholds in pixels for the given frame.
func (c Config) Thresholds(dims FrameDimensions) Thresholds {
	return Thresholds{
		X:    float64(dims.Width) * c.ThresholdX,
		Y:    float64(dims.Height) * c.ThresholdY,
		Zoom: c.ZoomThreshold,
	}
}
