package framing

import (
	"errors"
	"testing"
	"time"
)

func TestConfigs_Valid(t *testing.T) {
	configs := []struct {
		name string
		cfg  Config
	}{
		{"Default", DefaultConfig()},
		{"Responsive", ResponsiveConfig()},
		{"Steady", SteadyConfig()},
	}

	for _, tc := range configs {
		if err := tc.cfg.Validate(); err != nil {
			t.Errorf("%s: %v", tc.name, err)
		}
	}
}

func TestDefaultConfig_Values(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.ThresholdX != 0.07 || cfg.ThresholdY != 0.07 {
		t.Errorf("expected 7%% position thresholds, got %v/%v", cfg.ThresholdX, cfg.ThresholdY)
	}
	if cfg.ZoomThreshold != 0.1 {
		t.Errorf("expected 10%% zoom threshold, got %v", cfg.ZoomThreshold)
	}
	if !cfg.KeepZoomReset {
		t.Error("expected zoom reset on by default")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero smoothing", func(c *Config) { c.SmoothingFactor = 0 }},
		{"smoothing above 1", func(c *Config) { c.SmoothingFactor = 1.5 }},
		{"zero target ratio", func(c *Config) { c.TargetFaceRatio = 0 }},
		{"negative threshold", func(c *Config) { c.ThresholdX = -0.1 }},
		{"threshold above 1", func(c *Config) { c.ThresholdY = 2 }},
		{"negative zoom threshold", func(c *Config) { c.ZoomThreshold = -1 }},
		{"negative interval", func(c *Config) { c.PredictionInterval = -time.Millisecond }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestConfig_SmoothingOneIsValid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SmoothingFactor = 1
	if err := cfg.Validate(); err != nil {
		t.Errorf("alpha 1 should be valid: %v", err)
	}
}

func TestDetectionResult_Top(t *testing.T) {
	if _, ok := (DetectionResult{}).Top(); ok {
		t.Error("empty result should have no top face")
	}

	r := DetectionResult{Faces: []Face{
		{Box: FaceBox{X: 1, Width: 10, Height: 10}, Score: 0.9},
		{Box: FaceBox{X: 2, Width: 10, Height: 10}, Score: 0.5},
	}}
	box, ok := r.Top()
	if !ok || box.X != 1 {
		t.Errorf("Top = %+v, %v", box, ok)
	}
}
