package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-autoframe/pkg/framing"
)

type recorder struct {
	mu       sync.Mutex
	topics   []string
	payloads [][]byte
	got      chan struct{}
	err      error
}

func newRecorder() *recorder {
	return &recorder{got: make(chan struct{}, 64)}
}

func (r *recorder) publish(topic string, payload []byte) error {
	r.mu.Lock()
	r.topics = append(r.topics, topic)
	r.payloads = append(r.payloads, payload)
	r.mu.Unlock()
	r.got <- struct{}{}
	return r.err
}

func (r *recorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.got:
	case <-time.After(2 * time.Second):
		t.Fatal("no publish")
	}
}

func testSnapshot() framing.Snapshot {
	return framing.Snapshot{
		SessionID:   "s1",
		State:       framing.TrackingState{SmoothedX: 480, SmoothedY: 120, SmoothedZoom: 1.5, Initialized: true},
		Dims:        framing.FrameDimensions{Width: 640, Height: 480, FrameRate: 30},
		FacePresent: true,
		Detections:  4,
		Time:        time.UnixMilli(1700000000000),
	}
}

func TestNewStatus(t *testing.T) {
	s := NewStatus(testSnapshot())

	if s.Mode != "tracking" {
		t.Errorf("Mode = %q, want tracking", s.Mode)
	}
	if math.Abs(s.PanX-0.5) > 1e-9 || math.Abs(s.PanY+0.5) > 1e-9 {
		t.Errorf("Pan = (%v, %v), want (0.5, -0.5)", s.PanX, s.PanY)
	}
	if s.Zoom != 1.5 || s.Time != 1700000000000 || s.Detections != 4 {
		t.Errorf("status = %+v", s)
	}

	empty := NewStatus(framing.Snapshot{})
	if empty.Mode != "searching" || empty.PanX != 0 {
		t.Errorf("empty status = %+v", empty)
	}
}

func TestPublisherPublishes(t *testing.T) {
	rec := newRecorder()
	cfg := DefaultConfig("tcp://localhost:1883")
	p := newPublisher(cfg, rec.publish, slog.Default())
	defer p.Close()

	p.Observe(testSnapshot())
	rec.wait(t)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.topics[0] != "autoframe/status" {
		t.Errorf("topic = %q", rec.topics[0])
	}

	var got Status
	if err := json.Unmarshal(rec.payloads[0], &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.SessionID != "s1" || got.Zoom != 1.5 {
		t.Errorf("payload = %+v", got)
	}
}

func TestPublisherSurvivesErrors(t *testing.T) {
	rec := newRecorder()
	rec.err = errors.New("broker down")
	p := newPublisher(DefaultConfig("tcp://x:1883"), rec.publish, slog.Default())
	defer p.Close()

	p.Observe(testSnapshot())
	rec.wait(t)
	p.Observe(testSnapshot())
	rec.wait(t)
}

func TestPublisherObserveNeverBlocks(t *testing.T) {
	block := make(chan struct{})
	p := newPublisher(DefaultConfig("tcp://x:1883"), func(string, []byte) error {
		<-block
		return nil
	}, slog.Default())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			p.Observe(testSnapshot())
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Observe blocked on a slow broker")
	}

	close(block)
	if err := p.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	// Observing after close is a no-op.
	p.Observe(testSnapshot())
}

func TestConnectValidation(t *testing.T) {
	if _, err := Connect(context.Background(), Config{}); err == nil {
		t.Error("Connect() expected error without broker")
	}
}
