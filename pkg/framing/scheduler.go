package framing

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/teslashibe/go-autoframe/pkg/debug"
)

// State is the lifecycle state of a session's scheduler.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// DefaultFrameRate is used when the input track does not report one.
const DefaultFrameRate = 30.0

// Snapshot is a read-only copy of a session after a detection tick.
type Snapshot struct {
	SessionID    string          `json:"session_id"`
	State        TrackingState   `json:"state"`
	Crop         CropRect        `json:"crop"`
	Dims         FrameDimensions `json:"dims"`
	FacePresent  bool            `json:"face_present"`
	Reanchored   bool            `json:"reanchored"`
	Ticks        uint64          `json:"ticks"`
	Detections   uint64          `json:"detections"`
	DetectErrors uint64          `json:"detect_errors"`
	Time         time.Time       `json:"time"`
}

// Session is one autoframing run bound to an input track.
//
// All tracking work happens on a single goroutine: ticks are strictly
// sequential and the detection update of a tick completes before its render.
type Session struct {
	id           string
	cfg          Config
	dims         FrameDimensions
	dst          Size
	track        Track
	detector     Detector
	sink         Sink
	overlay      Overlay
	observers    []Observer
	clock        Clock
	frameTimeout time.Duration
	logger       *slog.Logger

	smoother *Smoother
	anchors  *AnchorTracker

	// Owned by the tick goroutine.
	tracking      TrackingState
	started       time.Time
	lastDetection time.Time
	sampled       bool
	ticks         uint64
	detections    uint64
	detectErrors  uint64

	grabWarn   rate.Sometimes
	detectWarn rate.Sometimes
	renderWarn rate.Sometimes

	stopped atomic.Bool
	state   atomic.Int32
	cancel  context.CancelFunc
	done    chan struct{}

	mu       sync.RWMutex
	snapshot Snapshot
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Dimensions returns the frame dimensions captured at session start.
func (s *Session) Dimensions() FrameDimensions {
	return s.dims
}

// Status returns the scheduler state.
func (s *Session) Status() State {
	return State(s.state.Load())
}

// Done is closed once the tick loop has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Snapshot returns the state published after the latest detection tick.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// tick runs one render tick: grab a frame, run detection if due, render.
// It returns ErrStopped once the session has been stopped. Only the run
// goroutine calls it for a live session.
func (s *Session) tick(ctx context.Context) error {
	if s.halted(ctx) {
		return ErrStopped
	}
	s.state.CompareAndSwap(int32(StateIdle), int32(StateRunning))
	s.ticks++

	grabCtx, cancel := context.WithTimeout(ctx, s.frameTimeout)
	frame, err := s.track.Grab(grabCtx)
	cancel()
	if err != nil {
		if s.halted(ctx) {
			return ErrStopped
		}
		s.grabWarn.Do(func() {
			s.logger.Warn("frame grab failed, skipping tick", "error", err, "tick", s.ticks)
		})
		return nil
	}

	if s.halted(ctx) {
		return ErrStopped
	}

	now := s.clock.Now()
	sampled := false
	var out detectOutcome
	if !s.sampled || now.Sub(s.lastDetection) >= s.cfg.PredictionInterval {
		s.sampled = true
		s.lastDetection = now
		out, sampled = s.detect(ctx, frame, now)
	}

	crop := CropWindow(s.tracking.Center(), s.tracking.SmoothedZoom, s.dims)
	if err := s.sink.Render(ctx, frame, crop, s.dst); err != nil {
		s.renderWarn.Do(func() {
			s.logger.Warn("render failed", "error", err, "tick", s.ticks)
		})
	}

	if sampled {
		s.publish(crop, out, now)
	}
	return nil
}

type detectOutcome struct {
	facePresent bool
	reanchored  bool
}

// detect runs the detector and feeds the result through the anchor tracker
// and smoother. A failed detection leaves the state untouched.
func (s *Session) detect(ctx context.Context, frame Frame, now time.Time) (detectOutcome, bool) {
	result, err := s.detector.Detect(ctx, frame, now.Sub(s.started).Milliseconds())
	if err != nil {
		s.detectErrors++
		s.detectWarn.Do(func() {
			s.logger.Warn("detection failed, keeping previous state",
				"error", err, "tick", s.ticks, "failures", s.detectErrors)
		})
		return detectOutcome{}, false
	}
	result = result.Sanitize()
	s.detections++

	if s.overlay != nil {
		s.overlay.ShowDetections(frame, result)
	}

	var out detectOutcome
	if box, ok := result.Top(); ok {
		out.facePresent = true
		target, reanchored := s.anchors.Update(&s.tracking, box)
		out.reanchored = reanchored
		if reanchored {
			debug.TrackLog("re-anchor",
				"session", s.id, "x", box.X, "y", box.Y, "width", box.Width)
		}
		s.smoother.Observe(&s.tracking, target)
	} else if s.cfg.KeepZoomReset {
		s.smoother.Reset(&s.tracking)
	}

	debug.TrackLog("framing",
		"session", s.id,
		"faces", len(result.Faces),
		"x", s.tracking.SmoothedX,
		"y", s.tracking.SmoothedY,
		"zoom", s.tracking.SmoothedZoom)

	return out, true
}

func (s *Session) publish(crop CropRect, out detectOutcome, now time.Time) {
	state := s.tracking
	if state.Anchor != nil {
		anchor := *state.Anchor
		state.Anchor = &anchor
	}

	snap := Snapshot{
		SessionID:    s.id,
		State:        state,
		Crop:         crop,
		Dims:         s.dims,
		FacePresent:  out.facePresent,
		Reanchored:   out.reanchored,
		Ticks:        s.ticks,
		Detections:   s.detections,
		DetectErrors: s.detectErrors,
		Time:         now,
	}

	s.mu.Lock()
	s.snapshot = snap
	s.mu.Unlock()

	for _, o := range s.observers {
		o.Observe(snap)
	}
}

// halted reports whether the session must stop, and records the transition.
func (s *Session) halted(ctx context.Context) bool {
	if s.stopped.Load() || ctx.Err() != nil {
		s.state.Store(int32(StateStopped))
		return true
	}
	return false
}

// run drives ticks at the session frame rate until stopped.
func (s *Session) run(ctx context.Context) {
	defer close(s.done)

	interval := time.Duration(float64(time.Second) / s.dims.FrameRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("autoframe session started",
		"width", s.dims.Width,
		"height", s.dims.Height,
		"fps", s.dims.FrameRate,
		"prediction_interval", s.cfg.PredictionInterval)

	for {
		if err := s.tick(ctx); err != nil {
			s.logger.Info("autoframe session stopped",
				"ticks", s.ticks, "detections", s.detections, "detect_errors", s.detectErrors)
			return
		}

		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
	}
}

// stop flips the stop flag and waits for the tick loop to exit if it runs.
func (s *Session) stop(wait bool) {
	s.stopped.Store(true)
	if s.cancel != nil {
		s.cancel()
	}
	if wait {
		<-s.done
	}
	s.state.Store(int32(StateStopped))
}
