package detection

import (
	"context"
	"errors"
	"testing"
)

func row(x, y, w, h, score float32) []float32 {
	r := make([]float32, yunetColumns)
	r[0], r[1], r[2], r[3] = x, y, w, h
	for k := 4; k < 14; k += 2 {
		r[k] = x + w/2
		r[k+1] = y + h/2
	}
	r[14] = score
	return r
}

func TestParseRows_OrdersByScore(t *testing.T) {
	rows := [][]float32{
		row(10, 10, 50, 50, 0.72),
		row(200, 100, 80, 80, 0.97),
		row(400, 50, 30, 30, 0.85),
	}

	result := parseRows(rows, 1234)

	if result.TimestampMs != 1234 {
		t.Errorf("TimestampMs = %d, want 1234", result.TimestampMs)
	}
	if len(result.Faces) != 3 {
		t.Fatalf("got %d faces, want 3", len(result.Faces))
	}
	wantX := []float64{200, 400, 10}
	for i, f := range result.Faces {
		if f.Box.X != wantX[i] {
			t.Errorf("face %d: X = %v, want %v", i, f.Box.X, wantX[i])
		}
	}
	for i := 1; i < len(result.Faces); i++ {
		if result.Faces[i].Score > result.Faces[i-1].Score {
			t.Errorf("faces not ordered by score: %v after %v", result.Faces[i].Score, result.Faces[i-1].Score)
		}
	}
}

func TestParseRows_Keypoints(t *testing.T) {
	result := parseRows([][]float32{row(100, 100, 40, 40, 0.9)}, 0)

	kps := result.Faces[0].Keypoints
	if len(kps) != 5 {
		t.Fatalf("got %d keypoints, want 5", len(kps))
	}
	for _, kp := range kps {
		if kp.X != 120 || kp.Y != 120 {
			t.Errorf("keypoint = %+v, want (120,120)", kp)
		}
	}
}

func TestParseRows_SkipsShortRows(t *testing.T) {
	rows := [][]float32{
		{1, 2, 3},
		row(10, 10, 50, 50, 0.9),
	}

	result := parseRows(rows, 0)
	if len(result.Faces) != 1 {
		t.Errorf("got %d faces, want 1", len(result.Faces))
	}
}

func TestParseRows_Empty(t *testing.T) {
	result := parseRows(nil, 7)
	if len(result.Faces) != 0 {
		t.Errorf("expected no faces, got %d", len(result.Faces))
	}
	if _, ok := result.Top(); ok {
		t.Error("empty result should have no top face")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.ModelPath == "" {
		t.Error("DefaultConfig: ModelPath should not be empty")
	}
	if cfg.ConfidenceThresh <= 0 || cfg.ConfidenceThresh > 1 {
		t.Errorf("DefaultConfig: ConfidenceThresh should be 0-1, got %f", cfg.ConfidenceThresh)
	}
	if cfg.InputWidth <= 0 || cfg.InputHeight <= 0 {
		t.Errorf("DefaultConfig: input size should be positive, got %dx%d", cfg.InputWidth, cfg.InputHeight)
	}
}

func TestFactory_MissingModel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ModelPath = "/nonexistent/path/model.onnx"

	_, err := Factory(cfg)(context.Background())
	if !errors.Is(err, ErrModelNotFound) {
		t.Errorf("Factory = %v, want ErrModelNotFound", err)
	}
}

func TestFactory_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := Factory(DefaultConfig())(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Factory = %v, want context.Canceled", err)
	}
}
