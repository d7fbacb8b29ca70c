package framing

import (
	"context"
	"sync"
	"time"
)

// MockDetector implements Detector for testing.
type MockDetector struct {
	// DetectFunc is called when Detect is invoked.
	DetectFunc func(ctx context.Context, frame Frame, timestampMs int64) (DetectionResult, error)

	// CloseFunc is called when Close is invoked.
	CloseFunc func() error

	mu     sync.Mutex
	calls  int
	closed bool
}

// NewMockDetector creates a detector that always returns the given boxes.
func NewMockDetector(boxes ...FaceBox) *MockDetector {
	return &MockDetector{
		DetectFunc: func(ctx context.Context, frame Frame, timestampMs int64) (DetectionResult, error) {
			faces := make([]Face, len(boxes))
			for i, b := range boxes {
				faces[i] = Face{Box: b, Score: 0.9}
			}
			return DetectionResult{Faces: faces, TimestampMs: timestampMs}, nil
		},
	}
}

// Detect implements Detector.
func (m *MockDetector) Detect(ctx context.Context, frame Frame, timestampMs int64) (DetectionResult, error) {
	m.mu.Lock()
	m.calls++
	fn := m.DetectFunc
	m.mu.Unlock()

	if fn == nil {
		return DetectionResult{TimestampMs: timestampMs}, nil
	}
	return fn(ctx, frame, timestampMs)
}

// Close implements Detector.
func (m *MockDetector) Close() error {
	m.mu.Lock()
	m.closed = true
	fn := m.CloseFunc
	m.mu.Unlock()

	if fn != nil {
		return fn()
	}
	return nil
}

// Calls returns how many times Detect was invoked.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Closed reports whether Close was invoked.
func (m *MockDetector) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// MockTrack implements Track with a blank frame of fixed size.
type MockTrack struct {
	TrackSettings TrackSettings

	// GrabFunc, if set, replaces the default frame.
	GrabFunc func(ctx context.Context) (Frame, error)

	mu  sync.Mutex
	seq uint64
}

// NewMockTrack creates a track of the given size.
func NewMockTrack(width, height int, fps float64) *MockTrack {
	return &MockTrack{TrackSettings: TrackSettings{Width: width, Height: height, FrameRate: fps}}
}

// Settings implements Track.
func (t *MockTrack) Settings() TrackSettings {
	return t.TrackSettings
}

// Grab implements Track.
func (t *MockTrack) Grab(ctx context.Context) (Frame, error) {
	if t.GrabFunc != nil {
		return t.GrabFunc(ctx)
	}
	t.mu.Lock()
	t.seq++
	seq := t.seq
	t.mu.Unlock()
	return Frame{
		Width:    t.TrackSettings.Width,
		Height:   t.TrackSettings.Height,
		Seq:      seq,
		Captured: time.Now(),
	}, nil
}

// MockStream implements Stream. A nil Track means no video track.
type MockStream struct {
	Track Track
}

// VideoTrack implements Stream.
func (s *MockStream) VideoTrack() (Track, bool) {
	return s.Track, s.Track != nil
}

// RenderCall records one Render invocation.
type RenderCall struct {
	Frame Frame
	Crop  CropRect
	Dst   Size
}

// MockSink implements Sink and records every render.
type MockSink struct {
	// RenderFunc, if set, is called after the render is recorded.
	RenderFunc func(ctx context.Context, frame Frame, crop CropRect, dst Size) error

	mu      sync.Mutex
	renders []RenderCall
}

// VideoTrack implements Stream. The mock has no output track.
func (s *MockSink) VideoTrack() (Track, bool) {
	return nil, false
}

// Render implements Sink.
func (s *MockSink) Render(ctx context.Context, frame Frame, crop CropRect, dst Size) error {
	s.mu.Lock()
	s.renders = append(s.renders, RenderCall{Frame: frame, Crop: crop, Dst: dst})
	fn := s.RenderFunc
	s.mu.Unlock()

	if fn != nil {
		return fn(ctx, frame, crop, dst)
	}
	return nil
}

// Renders returns a copy of the recorded renders.
func (s *MockSink) Renders() []RenderCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RenderCall, len(s.renders))
	copy(out, s.renders)
	return out
}

// FakeClock is a manually advanced Clock.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock creates a clock at an arbitrary fixed instant.
func NewFakeClock() *FakeClock {
	return &FakeClock{now: time.Unix(1_700_000_000, 0)}
}

// Now implements Clock.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
