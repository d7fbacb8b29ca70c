package video

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
	"time"

	"github.com/teslashibe/go-autoframe/pkg/framing"
)

// makeJPEG encodes a w x h image filled by fill.
func makeJPEG(t *testing.T, w, h int, fill func(x, y int) color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, fill(x, y))
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func solid(c color.RGBA) func(x, y int) color.RGBA {
	return func(int, int) color.RGBA { return c }
}

func gradient(x, y int) color.RGBA {
	return color.RGBA{R: uint8(x), G: uint8(255 - y%256), B: 60, A: 255}
}

func TestStream(t *testing.T) {
	t.Run("with track", func(t *testing.T) {
		track := framing.NewMockTrack(640, 480, 30)
		got, ok := NewStream(track).VideoTrack()
		if !ok || got != track {
			t.Errorf("VideoTrack() = %v, %v; want track, true", got, ok)
		}
	})

	t.Run("without track", func(t *testing.T) {
		if _, ok := NewStream(nil).VideoTrack(); ok {
			t.Error("VideoTrack() ok = true for nil track")
		}
	})
}

func TestIsBlankJPEG(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want bool
	}{
		{"too short", []byte{0xFF, 0xD8}, true},
		{"not a jpeg", bytes.Repeat([]byte{1}, 2000), true},
		{"black", makeJPEG(t, 200, 200, solid(color.RGBA{A: 255})), true},
		{"mid gray", makeJPEG(t, 200, 200, solid(color.RGBA{R: 128, G: 128, B: 128, A: 255})), true},
		{"too small", makeJPEG(t, 50, 50, gradient), true},
		{"picture", makeJPEG(t, 256, 256, gradient), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isBlankJPEG(tt.data); got != tt.want {
				t.Errorf("isBlankJPEG() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAverageColor(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 20, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 20; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}

	r, g, b := averageColor(img, 10)
	if r != 200 || g != 100 || b != 50 {
		t.Errorf("averageColor() = %d,%d,%d; want 200,100,50", r, g, b)
	}
}

func TestJPEGSize(t *testing.T) {
	w, h, err := jpegSize(makeJPEG(t, 320, 240, gradient))
	if err != nil {
		t.Fatalf("jpegSize() error = %v", err)
	}
	if w != 320 || h != 240 {
		t.Errorf("jpegSize() = %dx%d, want 320x240", w, h)
	}

	if _, _, err := jpegSize([]byte("nope")); err == nil {
		t.Error("jpegSize() expected error for garbage")
	}
}

func TestDecoderShortInput(t *testing.T) {
	d := NewDecoder(time.Second)

	got, err := d.Decode(context.Background(), []byte{0, 0, 0, 1, 0x67})
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got != nil {
		t.Errorf("Decode() = %d bytes, want nil before any frame", len(got))
	}
	if d.Latest() != nil {
		t.Error("Latest() should be nil before any frame")
	}
}

func TestNALType(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want byte
	}{
		{"4 byte start code sps", []byte{0, 0, 0, 1, 0x67, 0x42}, 7},
		{"3 byte start code pps", []byte{0, 0, 1, 0x68, 0xCE}, 8},
		{"idr", []byte{0, 0, 0, 1, 0x65, 0x88}, 5},
		{"raw nal", []byte{0x41, 0x9A}, 1},
		{"empty", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := nalType(tt.data); got != tt.want {
				t.Errorf("nalType() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestWebRTCSourceFrames(t *testing.T) {
	src := NewWebRTCSource(DefaultWebRTCConfig("ws://127.0.0.1:1"))
	defer src.Close()

	t.Run("grab before first frame honours context", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		if _, err := src.Grab(ctx); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Grab() error = %v, want deadline exceeded", err)
		}
		if s := src.Settings(); s.Width != 0 || s.Height != 0 {
			t.Errorf("Settings() = %+v, want zero size", s)
		}
	})

	t.Run("stored frame is returned", func(t *testing.T) {
		src.storeFrame(makeJPEG(t, 320, 240, gradient))
		src.storeFrame(makeJPEG(t, 320, 240, gradient))

		f, err := src.Grab(context.Background())
		if err != nil {
			t.Fatalf("Grab() error = %v", err)
		}
		if f.Width != 320 || f.Height != 240 || f.Seq != 2 {
			t.Errorf("Grab() = %dx%d seq %d; want 320x240 seq 2", f.Width, f.Height, f.Seq)
		}

		s := src.Settings()
		if s.Width != 320 || s.Height != 240 || s.FrameRate != 10 {
			t.Errorf("Settings() = %+v", s)
		}
	})

	t.Run("garbage is ignored", func(t *testing.T) {
		src.storeFrame([]byte("nope"))
		f, _ := src.Grab(context.Background())
		if f.Seq != 2 {
			t.Errorf("Seq = %d, want 2", f.Seq)
		}
	})
}

func TestWebRTCSourceClosed(t *testing.T) {
	src := NewWebRTCSource(WebRTCConfig{SignallingURL: "ws://127.0.0.1:1"})
	if err := src.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if _, err := src.Grab(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Grab() error = %v, want ErrClosed", err)
	}
}

func TestWebRTCConnectFails(t *testing.T) {
	cfg := DefaultWebRTCConfig("ws://127.0.0.1:1")
	cfg.ConnectTimeout = 200 * time.Millisecond
	src := NewWebRTCSource(cfg)
	defer src.Close()

	if err := src.Connect(context.Background()); err == nil {
		t.Error("Connect() expected error with no signalling server")
	}
}
