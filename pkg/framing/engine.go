package framing

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// DefaultFrameTimeout bounds how long a tick waits for a frame.
const DefaultFrameTimeout = time.Second

// Options configure one autoframe session.
type Options struct {
	// Sink renders the cropped frames and becomes the output stream.
	Sink Sink

	// Destination is the output size. Zero means the source frame size.
	Destination Size

	// Overlay, if set, receives every raw detection result.
	Overlay Overlay

	// Observers are notified after every detection tick, in addition to the
	// engine-wide observers.
	Observers []Observer
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithClock replaces the monotonic clock used for detection pacing.
func WithClock(clock Clock) EngineOption {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithFrameTimeout sets how long a tick waits for a frame.
func WithFrameTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.frameTimeout = d
	}
}

// WithObserver adds an observer to every session of the engine.
func WithObserver(o Observer) EngineOption {
	return func(e *Engine) {
		e.observers = append(e.observers, o)
	}
}

// Engine owns the detector and runs at most one autoframe session at a time.
type Engine struct {
	factory      DetectorFactory
	clock        Clock
	frameTimeout time.Duration
	logger       *slog.Logger
	observers    []Observer

	mu       sync.Mutex
	cfg      Config
	detector Detector
	session  *Session
}

// NewEngine creates an engine that builds its detector with factory on Start.
func NewEngine(factory DetectorFactory, opts ...EngineOption) *Engine {
	e := &Engine{
		factory:      factory,
		clock:        systemClock{},
		frameTimeout: DefaultFrameTimeout,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "framing")
	return e
}

// Start validates the configuration and loads the detector. On failure the
// engine stays unusable until a later Start succeeds.
func (e *Engine) Start(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.detector != nil {
		return ErrAlreadyStarted
	}

	detector, err := e.factory(ctx)
	if err != nil {
		return fmt.Errorf("framing: load detector: %w", err)
	}
	if detector == nil {
		return ErrNoDetector
	}

	e.cfg = cfg
	e.detector = detector
	e.logger.Info("engine started",
		"target_face_ratio", cfg.TargetFaceRatio,
		"smoothing", cfg.SmoothingFactor,
		"prediction_interval", cfg.PredictionInterval,
		"keep_zoom_reset", cfg.KeepZoomReset)
	return nil
}

// Autoframe starts a session on the input's video track and returns the
// sink as the framed output stream. An input without a video track is
// returned unchanged. A running session is stopped first.
//
// The frame dimensions are read from the track settings once and stay fixed
// for the session.
func (e *Engine) Autoframe(ctx context.Context, input Stream, opts Options) (Stream, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.detector == nil {
		return nil, ErrNotStarted
	}

	track, ok := input.VideoTrack()
	if !ok || track == nil {
		e.logger.Warn("input has no video track, passing through")
		return input, nil
	}
	if opts.Sink == nil {
		return nil, ErrNoSink
	}

	settings := track.Settings()
	if settings.Width <= 0 || settings.Height <= 0 {
		e.logger.Warn("video track reports no size, passing through",
			"width", settings.Width, "height", settings.Height)
		return input, nil
	}

	if e.session != nil {
		e.session.stop(true)
		e.session = nil
	}

	s := e.newSession(track, settings, opts)
	sctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	e.session = s

	go s.run(sctx)
	return opts.Sink, nil
}

func (e *Engine) newSession(track Track, settings TrackSettings, opts Options) *Session {
	dims := FrameDimensions{
		Width:     settings.Width,
		Height:    settings.Height,
		FrameRate: settings.FrameRate,
	}
	if dims.FrameRate <= 0 {
		dims.FrameRate = DefaultFrameRate
	}

	dst := opts.Destination
	if dst.Width <= 0 || dst.Height <= 0 {
		dst = Size{Width: dims.Width, Height: dims.Height}
	}

	observers := make([]Observer, 0, len(e.observers)+len(opts.Observers))
	observers = append(observers, e.observers...)
	observers = append(observers, opts.Observers...)

	id := uuid.NewString()
	s := &Session{
		id:           id,
		cfg:          e.cfg,
		dims:         dims,
		dst:          dst,
		track:        track,
		detector:     e.detector,
		sink:         opts.Sink,
		overlay:      opts.Overlay,
		observers:    observers,
		clock:        e.clock,
		frameTimeout: e.frameTimeout,
		logger:       e.logger.With("session", id),
		smoother:     NewSmoother(e.cfg, dims),
		anchors:      NewAnchorTracker(e.cfg.Thresholds(dims)),
		tracking:     NewTrackingState(dims),
		started:      e.clock.Now(),
		grabWarn:     rate.Sometimes{Interval: 5 * time.Second},
		detectWarn:   rate.Sometimes{Interval: 5 * time.Second},
		renderWarn:   rate.Sometimes{Interval: 5 * time.Second},
		done:         make(chan struct{}),
	}
	s.snapshot = Snapshot{
		SessionID: id,
		State:     s.tracking,
		Crop:      CropWindow(s.tracking.Center(), s.tracking.SmoothedZoom, dims),
		Dims:      dims,
	}
	return s
}

// Stop halts the active session and releases the detector. It must not be
// called from an Observer or Overlay callback.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.detector == nil {
		return ErrNotStarted
	}

	if e.session != nil {
		e.session.stop(true)
		e.session = nil
	}

	err := e.detector.Close()
	e.detector = nil
	if err != nil {
		return fmt.Errorf("framing: close detector: %w", err)
	}

	e.logger.Info("engine stopped")
	return nil
}

// Session returns the active session, or nil.
func (e *Engine) Session() *Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session
}

// Config returns the configuration bound by Start.
func (e *Engine) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// Running reports whether Start has succeeded and Stop has not been called.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.detector != nil
}
