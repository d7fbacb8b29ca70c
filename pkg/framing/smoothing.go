package framing

// TrackingState is the smoothed pan/zoom state of a session.
type TrackingState struct {
	// Anchor is the face box treated as the still reference. Nil until the
	// first face is seen, never cleared afterwards.
	Anchor *FaceBox `json:"anchor,omitempty"`

	SmoothedX    float64 `json:"smoothed_x"`
	SmoothedY    float64 `json:"smoothed_y"`
	SmoothedZoom float64 `json:"smoothed_zoom"`
	Initialized  bool    `json:"initialized"`
}

// NewTrackingState returns the state of a fresh session: frame center, zoom 1.
func NewTrackingState(dims FrameDimensions) TrackingState {
	c := dims.Center()
	return TrackingState{SmoothedX: c.X, SmoothedY: c.Y, SmoothedZoom: 1}
}

// Center returns the smoothed crop center.
func (s TrackingState) Center() Point {
	return Point{X: s.SmoothedX, Y: s.SmoothedY}
}

// EMA blends a raw sample into a smoothed value.
func EMA(raw, smoothed, alpha float64) float64 {
	return raw*alpha + smoothed*(1-alpha)
}

// Smoother applies the exponential moving average to a TrackingState.
type Smoother struct {
	alpha           float64
	targetFaceRatio float64
	dims            FrameDimensions
}

// NewSmoother creates a smoother for frames of the given size.
func NewSmoother(cfg Config, dims FrameDimensions) *Smoother {
	return &Smoother{
		alpha:           cfg.SmoothingFactor,
		targetFaceRatio: cfg.TargetFaceRatio,
		dims:            dims,
	}
}

// ZoomScale returns the zoom that makes the box the target size.
func (s *Smoother) ZoomScale(box FaceBox) float64 {
	targetFacePixels := s.targetFaceRatio * float64(s.dims.Height)
	return targetFacePixels / box.Width
}

// Observe moves the state toward the given face.
//
// The first face of a session snaps to frame center and zoom 1. A face too
// far away to fill the target (zoom scale < 1) takes the reset path, so the
// zoom never eases below 1.
func (s *Smoother) Observe(state *TrackingState, box FaceBox) {
	if !state.Initialized {
		c := s.dims.Center()
		state.SmoothedX = c.X
		state.SmoothedY = c.Y
		state.SmoothedZoom = 1
		state.Initialized = true
		return
	}

	zoomScale := s.ZoomScale(box)
	if zoomScale < 1 {
		s.Reset(state)
		return
	}

	c := box.Center()
	state.SmoothedX = EMA(c.X, state.SmoothedX, s.alpha)
	state.SmoothedY = EMA(c.Y, state.SmoothedY, s.alpha)
	state.SmoothedZoom = EMA(zoomScale, state.SmoothedZoom, s.alpha)
}

// Reset eases the state toward frame center and zoom 1.
func (s *Smoother) Reset(state *TrackingState) {
	c := s.dims.Center()
	state.SmoothedX = EMA(c.X, state.SmoothedX, s.alpha)
	state.SmoothedY = EMA(c.Y, state.SmoothedY, s.alpha)
	state.SmoothedZoom = EMA(1, state.SmoothedZoom, s.alpha)
}
