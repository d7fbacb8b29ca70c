// Package video provides live frame sources for the framing engine:
// local capture devices and files through OpenCV, and WebRTC producers.
package video

import "github.com/teslashibe/go-autoframe/pkg/framing"

// Stream wraps a single video track as a framing.Stream.
type Stream struct {
	track framing.Track
}

// NewStream returns a stream carrying track. A nil track yields a stream
// without video, which the engine passes through untouched.
func NewStream(track framing.Track) *Stream {
	return &Stream{track: track}
}

// VideoTrack implements framing.Stream.
func (s *Stream) VideoTrack() (framing.Track, bool) {
	return s.track, s.track != nil
}
