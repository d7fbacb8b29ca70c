package framing

import "math"

// Thresholds are the re-anchor limits. X and Y are in pixels, Zoom is a
// fraction of the anchor width.
type Thresholds struct {
	X    float64
	Y    float64
	Zoom float64
}

// reanchorEpsilon absorbs float rounding in the offset and threshold, so a
// box placed exactly on the threshold compares equal to it.
const reanchorEpsilon = 1e-9

// ShouldReanchor reports whether the new box moved or resized past the
// thresholds. The comparison is strict: a change equal to a threshold keeps
// the anchor.
func ShouldReanchor(newBox, anchor FaceBox, th Thresholds) bool {
	zoomRatio := newBox.Width / anchor.Width
	return exceeds(newBox.X-anchor.X, th.X) ||
		exceeds(newBox.Y-anchor.Y, th.Y) ||
		exceeds(1-zoomRatio, th.Zoom)
}

func exceeds(delta, limit float64) bool {
	return math.Abs(delta)-limit > reanchorEpsilon
}

// AnchorTracker holds the reference box that suppresses detection jitter.
type AnchorTracker struct {
	thresholds Thresholds
}

// NewAnchorTracker creates a tracker with the given thresholds.
func NewAnchorTracker(th Thresholds) *AnchorTracker {
	return &AnchorTracker{thresholds: th}
}

// Update feeds a newly observed box. It returns the box to frame and whether
// the anchor was replaced. The first box of a session becomes the anchor.
func (a *AnchorTracker) Update(state *TrackingState, box FaceBox) (FaceBox, bool) {
	if state.Anchor == nil {
		anchor := box
		state.Anchor = &anchor
		return anchor, false
	}

	if ShouldReanchor(box, *state.Anchor, a.thresholds) {
		anchor := box
		state.Anchor = &anchor
		return anchor, true
	}

	return *state.Anchor, false
}
