package render

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-autoframe/pkg/framing"
)

var (
	boxColor      = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	keypointColor = color.RGBA{R: 255, G: 0, B: 0, A: 255}
	cropColor     = color.RGBA{R: 255, G: 200, B: 0, A: 255}
)

// Annotate draws the detections onto a copy of the frame: each face box,
// its score as a percentage and its keypoints. A non-empty crop is outlined
// as well. The result is JPEG encoded.
func Annotate(frame framing.Frame, result framing.DetectionResult, crop framing.CropRect) ([]byte, error) {
	if len(frame.Data) == 0 {
		return nil, ErrDecode
	}

	img, err := gocv.IMDecode(frame.Data, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	defer img.Close()
	if img.Empty() {
		return nil, ErrDecode
	}

	for _, face := range result.Faces {
		b := face.Box
		rect := image.Rect(int(b.X), int(b.Y), int(b.X+b.Width), int(b.Y+b.Height))
		gocv.Rectangle(&img, rect, boxColor, 2)

		label := fmt.Sprintf("%.0f%%", face.Score*100)
		gocv.PutText(&img, label, image.Pt(rect.Min.X, max(rect.Min.Y-6, 12)),
			gocv.FontHersheySimplex, 0.5, boxColor, 1)

		for _, kp := range face.Keypoints {
			gocv.Circle(&img, image.Pt(int(kp.X), int(kp.Y)), 3, keypointColor, -1)
		}
	}

	if crop.Width > 0 && crop.Height > 0 {
		dims := framing.FrameDimensions{Width: img.Cols(), Height: img.Rows()}
		gocv.Rectangle(&img, crop.Rectangle(dims), cropColor, 1)
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
	if err != nil {
		return nil, fmt.Errorf("render: encode: %w", err)
	}
	defer buf.Close()

	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}
