package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/teslashibe/go-autoframe/pkg/framing"
	"github.com/teslashibe/go-autoframe/pkg/framing/detection"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// File mirrors config.json. Every field is optional; absent fields keep
// their defaults. Thresholds are fractions of the frame size.
type File struct {
	Framing *struct {
		TargetFaceRatio      *float64 `json:"TARGET_FACE_RATIO"`
		SmoothingFactor      *float64 `json:"SMOOTHING_FACTOR"`
		KeepZoomReset        *bool    `json:"keepZoomReset"`
		PercentThresholdX    *float64 `json:"percentThresholdX"`
		PercentThresholdY    *float64 `json:"percentThresholdY"`
		PercentZoomThreshold *float64 `json:"percentZoomThreshold"`

		// Older spellings, used when the percent keys are absent.
		ThresholdX    *float64 `json:"THRESHOLD_X"`
		ThresholdY    *float64 `json:"THRESHOLD_Y"`
		ZoomThreshold *float64 `json:"ZOOM_THRESHOLD"`
	} `json:"framing"`

	// PredictionInterval is in milliseconds.
	PredictionInterval *int `json:"predictionInterval"`

	Detector *struct {
		ModelAssetPath         *string  `json:"modelAssetPath"`
		MinDetectionConfidence *float64 `json:"minDetectionConfidence"`
		NMSThreshold           *float64 `json:"nmsThreshold"`
	} `json:"detector"`

	Canvas *struct {
		Width     *int     `json:"width"`
		Height    *int     `json:"height"`
		FrameRate *float64 `json:"frameRate"`
	} `json:"canvas"`
}

// Settings is the effective configuration of a run.
type Settings struct {
	Framing  framing.Config   `json:"framing"`
	Detector detection.Config `json:"detector"`

	// Canvas is the output size; zero means the source size.
	Canvas    framing.Size `json:"canvas"`
	CanvasFPS float64      `json:"canvas_fps"`

	Source     string `json:"source"`
	Port       string `json:"port"`
	MQTTBroker string `json:"mqtt_broker,omitempty"`
	LogLevel   string `json:"log_level"`
	LogFile    string `json:"log_file,omitempty"`
}

// Defaults returns settings with no file and no environment applied.
func Defaults() Settings {
	return Settings{
		Framing:  framing.DefaultConfig(),
		Detector: detection.DefaultConfig(),
		Source:   DefaultSource,
		Port:     DefaultPort,
		LogLevel: DefaultLevel,
	}
}

// Load builds settings from defaults, the config file at path and the
// environment. A missing file is not an error; a malformed one is. The
// framing section is validated.
func Load(path string) (Settings, error) {
	s := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return s, fmt.Errorf("config: read %s: %w", path, err)
		default:
			var f File
			if err := json.Unmarshal(data, &f); err != nil {
				return s, fmt.Errorf("config: parse %s: %w", path, err)
			}
			f.apply(&s)
		}
	}

	s.applyEnv()

	if err := s.Framing.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

func (f *File) apply(s *Settings) {
	if fr := f.Framing; fr != nil {
		setFloat(&s.Framing.TargetFaceRatio, fr.TargetFaceRatio)
		setFloat(&s.Framing.SmoothingFactor, fr.SmoothingFactor)
		setFloat(&s.Framing.ThresholdX, fr.ThresholdX)
		setFloat(&s.Framing.ThresholdY, fr.ThresholdY)
		setFloat(&s.Framing.ZoomThreshold, fr.ZoomThreshold)
		setFloat(&s.Framing.ThresholdX, fr.PercentThresholdX)
		setFloat(&s.Framing.ThresholdY, fr.PercentThresholdY)
		setFloat(&s.Framing.ZoomThreshold, fr.PercentZoomThreshold)
		if fr.KeepZoomReset != nil {
			s.Framing.KeepZoomReset = *fr.KeepZoomReset
		}
	}

	if f.PredictionInterval != nil {
		s.Framing.PredictionInterval = time.Duration(*f.PredictionInterval) * time.Millisecond
	}

	if d := f.Detector; d != nil {
		if d.ModelAssetPath != nil {
			s.Detector.ModelPath = *d.ModelAssetPath
		}
		setFloat(&s.Detector.ConfidenceThresh, d.MinDetectionConfidence)
		setFloat(&s.Detector.NMSThresh, d.NMSThreshold)
	}

	if c := f.Canvas; c != nil {
		if c.Width != nil {
			s.Canvas.Width = *c.Width
		}
		if c.Height != nil {
			s.Canvas.Height = *c.Height
		}
		setFloat(&s.CanvasFPS, c.FrameRate)
	}
}

func (s *Settings) applyEnv() {
	s.Source = Source(s.Source)
	s.Port = envOr(EnvPort, s.Port)
	s.Detector.ModelPath = Model(s.Detector.ModelPath)
	s.MQTTBroker = envOr(EnvMQTTBroker, s.MQTTBroker)
	s.LogLevel = envOr(EnvLogLevel, s.LogLevel)
	s.LogFile = envOr(EnvLogFile, s.LogFile)
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}
