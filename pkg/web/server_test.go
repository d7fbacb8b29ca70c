package web

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-autoframe/pkg/framing"
)

func TestStatusEndpoint(t *testing.T) {
	s := NewServer("0", "")

	resp, err := s.App().Test(httptest.NewRequest("GET", "/api/status", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Errorf("status before session = %d, want 404", resp.StatusCode)
	}

	s.Observe(framing.Snapshot{
		SessionID: "abc",
		State:     framing.TrackingState{SmoothedX: 320, SmoothedY: 240, SmoothedZoom: 1.22, Initialized: true},
		Ticks:     7,
	})

	resp, err = s.App().Test(httptest.NewRequest("GET", "/api/status", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	var got framing.Snapshot
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v (%s)", err, body)
	}
	if got.SessionID != "abc" || got.Ticks != 7 || got.State.SmoothedZoom != 1.22 {
		t.Errorf("snapshot = %+v", got)
	}
}

func TestConfigEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		configFunc func() any
		wantStatus int
	}{
		{"not configured", nil, fiber.StatusNotFound},
		{"configured", func() any { return framing.DefaultConfig() }, fiber.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer("0", "")
			s.ConfigFunc = tt.configFunc

			resp, err := s.App().Test(httptest.NewRequest("GET", "/api/config", nil))
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestHealthEndpoint(t *testing.T) {
	s := NewServer("0", "")

	resp, err := s.App().Test(httptest.NewRequest("GET", "/api/health", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)

	var got struct {
		Status  string         `json:"status"`
		Clients map[string]int `json:"clients"`
	}
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Status != "ok" || len(got.Clients) != 4 {
		t.Errorf("health = %+v", got)
	}
}

func TestWebSocketRequiresUpgrade(t *testing.T) {
	s := NewServer("0", "")

	for _, path := range []string{"/ws/framed", "/ws/raw", "/ws/detections", "/ws/status"} {
		t.Run(path, func(t *testing.T) {
			resp, err := s.App().Test(httptest.NewRequest("GET", path, nil))
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			if resp.StatusCode != fiber.StatusUpgradeRequired {
				t.Errorf("status = %d, want 426", resp.StatusCode)
			}
		})
	}
}

func TestShowDetectionsKeepsLatest(t *testing.T) {
	s := NewServer("0", "")

	result := framing.DetectionResult{
		Faces:       []framing.Face{{Box: framing.FaceBox{X: 1, Y: 2, Width: 30, Height: 40}, Score: 0.9}},
		TimestampMs: 100,
	}
	s.ShowDetections(framing.Frame{Seq: 3}, result)

	s.detMu.RLock()
	got := s.detections
	s.detMu.RUnlock()
	if got.TimestampMs != 100 || len(got.Faces) != 1 {
		t.Errorf("detections = %+v", got)
	}
}

func TestTapTrack(t *testing.T) {
	s := NewServer("0", "")

	annotated := 0
	s.Annotate = func(framing.Frame, framing.DetectionResult, framing.CropRect) ([]byte, error) {
		annotated++
		return []byte{1}, nil
	}

	src := framing.NewMockTrack(640, 480, 30)
	tapped := s.TapTrack(src)

	if got := tapped.Settings(); got.Width != 640 || got.Height != 480 {
		t.Errorf("Settings() = %+v", got)
	}

	f, err := tapped.Grab(context.Background())
	if err != nil {
		t.Fatalf("Grab() error = %v", err)
	}
	if f.Width != 640 {
		t.Errorf("Grab() width = %d", f.Width)
	}

	// No raw viewers connected, so nothing is annotated.
	if annotated != 0 {
		t.Errorf("annotate calls = %d, want 0", annotated)
	}
}
