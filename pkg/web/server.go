// Package web provides the live autoframing dashboard: the framed output,
// the raw input with an optional detection overlay, and session status.
package web

import (
	"context"
	"log/slog"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-autoframe/pkg/framing"
	"github.com/teslashibe/go-autoframe/pkg/hub"
)

// AnnotateFunc draws detections and the crop onto a raw frame.
type AnnotateFunc func(frame framing.Frame, result framing.DetectionResult, crop framing.CropRect) ([]byte, error)

// DetectionEvent is the payload of the /ws/detections stream.
type DetectionEvent struct {
	TimestampMs int64          `json:"timestamp_ms"`
	Seq         uint64         `json:"seq"`
	Faces       []framing.Face `json:"faces"`
}

// Server is the web dashboard server
type Server struct {
	app    *fiber.App
	port   string
	logger *slog.Logger

	// Latest session snapshot
	snapshot    framing.Snapshot
	hasSnapshot bool
	snapshotMu  sync.RWMutex

	// Latest detections, for the raw view overlay
	detections framing.DetectionResult
	detMu      sync.RWMutex

	// Hubs for websocket broadcast
	framedHub     *hub.Hub
	rawHub        *hub.Hub
	detectionsHub *hub.Hub
	statusHub     *hub.Hub

	// Annotate, when set, draws the latest detections onto raw frames.
	Annotate AnnotateFunc

	// ConfigFunc returns the effective configuration for /api/config.
	ConfigFunc func() any
}

// NewServer creates a new dashboard server. staticDir is served at / when
// not empty.
func NewServer(port, staticDir string) *Server {
	s := &Server{
		port:          port,
		logger:        slog.Default().With("component", "web"),
		framedHub:     hub.New("framed"),
		rawHub:        hub.New("raw"),
		detectionsHub: hub.New("detections"),
		statusHub:     hub.New("status"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "Autoframe Dashboard",
		DisableStartupMessage: true,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
	})

	// CORS for local development
	app.Use(cors.New())

	if staticDir != "" {
		app.Static("/", staticDir)
	}

	api := app.Group("/api")
	api.Get("/health", s.handleHealth)
	api.Get("/status", s.handleStatus)
	api.Get("/config", s.handleConfig)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/framed", websocket.New(s.handleStreamWS(s.framedHub)))
	app.Get("/ws/raw", websocket.New(s.handleStreamWS(s.rawHub)))
	app.Get("/ws/detections", websocket.New(s.handleStreamWS(s.detectionsHub)))
	app.Get("/ws/status", websocket.New(s.handleStatusWS))

	s.app = app
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start runs the hubs and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("web dashboard", "url", "http://localhost:"+s.port)

	for _, h := range s.hubs() {
		go h.Run(ctx)
	}

	go func() {
		<-ctx.Done()
		if err := s.app.Shutdown(); err != nil {
			s.logger.Warn("shutdown", "error", err)
		}
	}()

	return s.app.Listen(":" + s.port)
}

// StartAsync starts the web server in a goroutine
func (s *Server) StartAsync(ctx context.Context) {
	go func() {
		if err := s.Start(ctx); err != nil {
			s.logger.Error("web server", "error", err)
		}
	}()
}

func (s *Server) hubs() []*hub.Hub {
	return []*hub.Hub{s.framedHub, s.rawHub, s.detectionsHub, s.statusHub}
}

// Observe implements framing.Observer. The snapshot is kept for
// /api/status and pushed to /ws/status.
func (s *Server) Observe(snap framing.Snapshot) {
	s.snapshotMu.Lock()
	s.snapshot = snap
	s.hasSnapshot = true
	s.snapshotMu.Unlock()

	if err := s.statusHub.BroadcastJSON(snap); err != nil {
		s.logger.Warn("encode status", "error", err)
	}
}

// Snapshot returns the latest observed snapshot.
func (s *Server) Snapshot() (framing.Snapshot, bool) {
	s.snapshotMu.RLock()
	defer s.snapshotMu.RUnlock()
	return s.snapshot, s.hasSnapshot
}

// ShowDetections implements framing.Overlay.
func (s *Server) ShowDetections(frame framing.Frame, result framing.DetectionResult) {
	s.detMu.Lock()
	s.detections = result
	s.detMu.Unlock()

	event := DetectionEvent{TimestampMs: result.TimestampMs, Seq: frame.Seq, Faces: result.Faces}
	if event.Faces == nil {
		event.Faces = []framing.Face{}
	}
	if err := s.detectionsHub.BroadcastJSON(event); err != nil {
		s.logger.Warn("encode detections", "error", err)
	}
}

// SendFramedFrame sends an output frame to /ws/framed clients.
func (s *Server) SendFramedFrame(jpegData []byte) {
	s.framedHub.BroadcastBinary(jpegData)
}

// SendRawFrame sends a source frame to /ws/raw clients, annotated when an
// AnnotateFunc is set.
func (s *Server) SendRawFrame(frame framing.Frame) {
	if s.rawHub.ClientCount() == 0 {
		return
	}

	data := frame.Data
	if s.Annotate != nil {
		s.detMu.RLock()
		result := s.detections
		s.detMu.RUnlock()

		snap, _ := s.Snapshot()
		annotated, err := s.Annotate(frame, result, snap.Crop)
		if err == nil {
			data = annotated
		}
	}
	s.rawHub.BroadcastBinary(data)
}

// TapTrack returns a track that forwards every grabbed frame to the raw
// view before handing it to the caller.
func (s *Server) TapTrack(track framing.Track) framing.Track {
	return &tappedTrack{Track: track, server: s}
}

type tappedTrack struct {
	framing.Track
	server *Server
}

func (t *tappedTrack) Grab(ctx context.Context) (framing.Frame, error) {
	frame, err := t.Track.Grab(ctx)
	if err == nil {
		t.server.SendRawFrame(frame)
	}
	return frame, err
}
