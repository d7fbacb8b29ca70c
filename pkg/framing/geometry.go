// Package framing keeps a detected face centered and consistently sized in a
// live video feed by computing a smoothed crop window per frame.
package framing

import (
	"image"
	"math"
)

// Point is a position in source-frame pixels.
type Point struct {
	X, Y float64
}

// FaceBox is an axis-aligned face bounding box in source-frame pixels,
// origin at the top-left corner.
type FaceBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the center point of the box.
func (b FaceBox) Center() Point {
	return Point{X: b.X + b.Width/2, Y: b.Y + b.Height/2}
}

// Valid reports whether the box has finite coordinates and a positive size.
func (b FaceBox) Valid() bool {
	for _, v := range [...]float64{b.X, b.Y, b.Width, b.Height} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.Width > 0 && b.Height > 0
}

// FrameDimensions describes the source frames of a session.
type FrameDimensions struct {
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	FrameRate float64 `json:"frame_rate"`
}

// Center returns the center of the frame.
func (d FrameDimensions) Center() Point {
	return Point{X: float64(d.Width) / 2, Y: float64(d.Height) / 2}
}

// Size is a destination size in pixels.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// CropRect is the region of the source frame that gets rendered.
type CropRect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// CropWindow returns the crop for the given center and zoom.
//
// Each axis is clamped on its own to [0, frame-crop]. When the crop is larger
// than the frame the origin is pinned to 0 and the caller shows as much of
// the frame as there is.
func CropWindow(center Point, zoom float64, dims FrameDimensions) CropRect {
	w := float64(dims.Width) / zoom
	h := float64(dims.Height) / zoom

	x := center.X - w/2
	y := center.Y - h/2

	x = math.Max(0, math.Min(x, float64(dims.Width)-w))
	y = math.Max(0, math.Min(y, float64(dims.Height)-h))

	return CropRect{X: x, Y: y, Width: w, Height: h}
}

// Rectangle converts the crop to whole pixels within the frame bounds.
// An oversized crop yields the full frame.
func (r CropRect) Rectangle(dims FrameDimensions) image.Rectangle {
	rect := image.Rect(
		int(math.Round(r.X)),
		int(math.Round(r.Y)),
		int(math.Round(r.X+r.Width)),
		int(math.Round(r.Y+r.Height)),
	)
	return rect.Intersect(image.Rect(0, 0, dims.Width, dims.Height))
}
