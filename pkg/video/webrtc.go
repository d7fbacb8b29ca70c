package video

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v3"

	"github.com/teslashibe/go-autoframe/pkg/framing"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// WebRTCConfig configures a WebRTC ingest source.
type WebRTCConfig struct {
	// SignallingURL is the GStreamer webrtcsink signalling server,
	// e.g. ws://192.168.1.20:8443.
	SignallingURL string

	// ProducerName selects the producer by its "name" meta field.
	// Empty means the first producer listed.
	ProducerName string

	// FrameRate is reported as the track frame rate.
	FrameRate float64

	// DecodeInterval is how often buffered H264 is decoded to a frame.
	DecodeInterval time.Duration

	// ConnectTimeout bounds the signalling handshake and the first frame.
	ConnectTimeout time.Duration

	Logger *slog.Logger
}

// DefaultWebRTCConfig returns defaults for a signalling server URL.
func DefaultWebRTCConfig(url string) WebRTCConfig {
	return WebRTCConfig{
		SignallingURL:  url,
		FrameRate:      10,
		DecodeInterval: 100 * time.Millisecond,
		ConnectTimeout: 15 * time.Second,
		Logger:         slog.Default(),
	}
}

// WebRTCSource receives H264 video from a webrtcsink producer and exposes
// the decoded frames as a framing.Track.
type WebRTCSource struct {
	cfg     WebRTCConfig
	logger  *slog.Logger
	decoder *Decoder

	ws      *websocket.Conn
	wsMutex sync.Mutex
	pc      *webrtc.PeerConnection

	myPeerID   string
	producerID string
	sessionID  string

	frameMu     sync.RWMutex
	latestFrame framing.Frame
	width       int
	height      int
	seq         uint64
	frameReady  chan struct{}
	firstFrame  sync.Once

	ctx    context.Context
	cancel context.CancelFunc
}

// NewWebRTCSource creates an unconnected source.
func NewWebRTCSource(cfg WebRTCConfig) *WebRTCSource {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.DecodeInterval <= 0 {
		cfg.DecodeInterval = 100 * time.Millisecond
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 15 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WebRTCSource{
		cfg:        cfg,
		logger:     cfg.Logger.With("component", "video.webrtc"),
		decoder:    NewDecoder(time.Second),
		frameReady: make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Connect runs the signalling handshake and waits for the first decoded
// frame, so that Settings reports the real frame size afterwards.
func (c *WebRTCSource) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.ConnectTimeout}

	ws, _, err := dialer.DialContext(ctx, c.cfg.SignallingURL, nil)
	if err != nil {
		return fmt.Errorf("video: signalling connect: %w", err)
	}
	c.ws = ws

	if err := c.waitForWelcome(); err != nil {
		return fmt.Errorf("video: welcome: %w", err)
	}
	if err := c.findProducer(); err != nil {
		return fmt.Errorf("video: find producer: %w", err)
	}
	if err := c.createPeerConnection(); err != nil {
		return fmt.Errorf("video: peer connection: %w", err)
	}
	if err := c.writeJSON(map[string]string{"type": "startSession", "peerId": c.producerID}); err != nil {
		return fmt.Errorf("video: start session: %w", err)
	}

	go c.handleSignalling()

	c.logger.Info("waiting for video track", "producer", c.producerID)
	select {
	case <-c.frameReady:
	case <-time.After(c.cfg.ConnectTimeout):
		return ErrTimeout
	case <-ctx.Done():
		return ctx.Err()
	}

	settings := c.Settings()
	c.logger.Info("video connected", "width", settings.Width, "height", settings.Height)
	return nil
}

func (c *WebRTCSource) readJSON(v any) error {
	c.ws.SetReadDeadline(time.Now().Add(c.cfg.ConnectTimeout))
	defer c.ws.SetReadDeadline(time.Time{})

	_, msg, err := c.ws.ReadMessage()
	if err != nil {
		return err
	}
	return json.Unmarshal(msg, v)
}

func (c *WebRTCSource) writeJSON(v any) error {
	c.wsMutex.Lock()
	defer c.wsMutex.Unlock()
	return c.ws.WriteJSON(v)
}

func (c *WebRTCSource) waitForWelcome() error {
	var welcome struct {
		Type   string `json:"type"`
		PeerID string `json:"peerId"`
	}
	if err := c.readJSON(&welcome); err != nil {
		return err
	}
	if welcome.Type != "welcome" {
		return fmt.Errorf("expected welcome, got %s", welcome.Type)
	}
	c.myPeerID = welcome.PeerID
	return nil
}

func (c *WebRTCSource) findProducer() error {
	if err := c.writeJSON(map[string]string{"type": "list"}); err != nil {
		return err
	}

	var list struct {
		Type      string `json:"type"`
		Producers []struct {
			ID   string            `json:"id"`
			Meta map[string]string `json:"meta"`
		} `json:"producers"`
	}
	if err := c.readJSON(&list); err != nil {
		return err
	}

	for _, p := range list.Producers {
		if c.cfg.ProducerName == "" || p.Meta["name"] == c.cfg.ProducerName {
			c.producerID = p.ID
			return nil
		}
	}
	return fmt.Errorf("producer %q not found in %d producers", c.cfg.ProducerName, len(list.Producers))
}

func (c *WebRTCSource) createPeerConnection() error {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return err
	}
	c.pc = pc

	if _, err = pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		return err
	}

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		c.logger.Info("got track", "kind", track.Kind().String(), "codec", track.Codec().MimeType)
		if track.Kind() == webrtc.RTPCodecTypeVideo {
			go c.handleVideoTrack(track)
		}
	})

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate != nil {
			c.sendICECandidate(candidate)
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		c.logger.Debug("connection state", "state", state.String())
	})

	return nil
}

func (c *WebRTCSource) handleSignalling() {
	for c.ctx.Err() == nil {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil {
				c.logger.Warn("signalling closed", "error", err)
			}
			return
		}

		var base struct {
			Type      string `json:"type"`
			SessionID string `json:"sessionId"`
		}
		if err := json.Unmarshal(msg, &base); err != nil {
			continue
		}

		switch base.Type {
		case "sessionStarted":
			c.sessionID = base.SessionID
		case "peer":
			c.handlePeerMessage(msg)
		case "endSession":
			return
		}
	}
}

type peerMessage struct {
	SDP *struct {
		Type string `json:"type"`
		SDP  string `json:"sdp"`
	} `json:"sdp"`
	ICE *struct {
		Candidate     string  `json:"candidate"`
		SDPMid        *string `json:"sdpMid"`
		SDPMLineIndex *uint16 `json:"sdpMLineIndex"`
	} `json:"ice"`
}

func (c *WebRTCSource) handlePeerMessage(msg []byte) {
	var peer peerMessage
	if err := json.Unmarshal(msg, &peer); err != nil {
		c.logger.Warn("bad peer message", "error", err)
		return
	}

	if peer.SDP != nil && peer.SDP.Type == "offer" {
		offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: peer.SDP.SDP}
		if err := c.pc.SetRemoteDescription(offer); err != nil {
			c.logger.Warn("set remote description", "error", err)
			return
		}
		answer, err := c.pc.CreateAnswer(nil)
		if err != nil {
			c.logger.Warn("create answer", "error", err)
			return
		}
		if err := c.pc.SetLocalDescription(answer); err != nil {
			c.logger.Warn("set local description", "error", err)
			return
		}
		c.writeJSON(map[string]any{
			"type":      "peer",
			"sessionId": c.sessionID,
			"sdp":       map[string]string{"type": answer.Type.String(), "sdp": answer.SDP},
		})
	}

	if peer.ICE != nil {
		if err := c.pc.AddICECandidate(webrtc.ICECandidateInit{
			Candidate:     peer.ICE.Candidate,
			SDPMid:        peer.ICE.SDPMid,
			SDPMLineIndex: peer.ICE.SDPMLineIndex,
		}); err != nil {
			c.logger.Debug("add ICE candidate", "error", err)
		}
	}
}

func (c *WebRTCSource) sendICECandidate(candidate *webrtc.ICECandidate) {
	if c.sessionID == "" {
		return
	}
	init := candidate.ToJSON()
	c.writeJSON(map[string]any{
		"type":      "peer",
		"sessionId": c.sessionID,
		"ice": map[string]any{
			"candidate":     init.Candidate,
			"sdpMid":        init.SDPMid,
			"sdpMLineIndex": init.SDPMLineIndex,
		},
	})
}

// handleVideoTrack depacketizes H264 and decodes it periodically. Parameter
// sets are kept so every decode batch starts decodable.
func (c *WebRTCSource) handleVideoTrack(track *webrtc.TrackRemote) {
	var (
		depacketizer codecs.H264Packet
		paramSets    bytes.Buffer
		pending      bytes.Buffer
		lastDecode   = time.Now()
	)

	for c.ctx.Err() == nil {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			return
		}

		nal, err := depacketizer.Unmarshal(pkt.Payload)
		if err != nil || len(nal) == 0 {
			continue
		}

		switch nalType(nal) {
		case 7: // SPS starts a new parameter set
			paramSets.Reset()
			paramSets.Write(nal)
		case 8: // PPS
			paramSets.Write(nal)
		default:
			pending.Write(nal)
		}

		if !pkt.Marker || time.Since(lastDecode) < c.cfg.DecodeInterval {
			continue
		}

		unit := make([]byte, 0, paramSets.Len()+pending.Len())
		unit = append(unit, paramSets.Bytes()...)
		unit = append(unit, pending.Bytes()...)
		pending.Reset()
		lastDecode = time.Now()

		jpegData, err := c.decoder.Decode(c.ctx, unit)
		if err != nil {
			c.logger.Debug("decode failed", "error", err)
			continue
		}
		if jpegData != nil {
			c.storeFrame(jpegData)
		}
	}
}

// nalType returns the type of the first NAL unit in Annex-B data.
func nalType(annexB []byte) byte {
	switch {
	case len(annexB) > 4 && bytes.HasPrefix(annexB, []byte{0, 0, 0, 1}):
		return annexB[4] & 0x1F
	case len(annexB) > 3 && bytes.HasPrefix(annexB, []byte{0, 0, 1}):
		return annexB[3] & 0x1F
	case len(annexB) > 0:
		return annexB[0] & 0x1F
	}
	return 0
}

func (c *WebRTCSource) storeFrame(jpegData []byte) {
	w, h, err := jpegSize(jpegData)
	if err != nil {
		return
	}

	c.frameMu.Lock()
	c.seq++
	c.width, c.height = w, h
	c.latestFrame = framing.Frame{
		Data:     jpegData,
		Width:    w,
		Height:   h,
		Seq:      c.seq,
		Captured: time.Now(),
	}
	c.frameMu.Unlock()

	c.firstFrame.Do(func() { close(c.frameReady) })
}

// Settings implements framing.Track. Width and height are zero until the
// first frame has been decoded.
func (c *WebRTCSource) Settings() framing.TrackSettings {
	c.frameMu.RLock()
	defer c.frameMu.RUnlock()
	return framing.TrackSettings{Width: c.width, Height: c.height, FrameRate: c.cfg.FrameRate}
}

// Grab implements framing.Track. It returns the latest decoded frame and
// waits for the first one if none has arrived yet.
func (c *WebRTCSource) Grab(ctx context.Context) (framing.Frame, error) {
	select {
	case <-c.frameReady:
	case <-ctx.Done():
		return framing.Frame{}, ctx.Err()
	case <-c.ctx.Done():
		return framing.Frame{}, ErrClosed
	}

	c.frameMu.RLock()
	defer c.frameMu.RUnlock()

	f := c.latestFrame
	f.Data = append([]byte(nil), f.Data...)
	return f, nil
}

// Close closes the WebRTC connection
func (c *WebRTCSource) Close() error {
	c.cancel()
	var firstErr error
	if c.pc != nil {
		if err := c.pc.Close(); err != nil {
			firstErr = err
		}
	}
	if c.ws != nil {
		if err := c.ws.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
