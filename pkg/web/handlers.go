package web

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	jsoniter "github.com/json-iterator/go"

	"github.com/teslashibe/go-autoframe/pkg/hub"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// handleHealth reports liveness and connected viewers
func (s *Server) handleHealth(c *fiber.Ctx) error {
	clients := fiber.Map{}
	for _, h := range s.hubs() {
		clients[h.Name()] = h.ClientCount()
	}
	return c.JSON(fiber.Map{"status": "ok", "clients": clients})
}

// handleStatus returns the latest session snapshot
func (s *Server) handleStatus(c *fiber.Ctx) error {
	snap, ok := s.Snapshot()
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "no active session",
		})
	}
	return c.JSON(snap)
}

// handleConfig returns the effective configuration
func (s *Server) handleConfig(c *fiber.Ctx) error {
	if s.ConfigFunc == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "config not available",
		})
	}
	return c.JSON(s.ConfigFunc())
}

// handleStreamWS attaches a viewer to a broadcast hub
func (s *Server) handleStreamWS(h *hub.Hub) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		hub.NewClient(h, c).Run()
	}
}

// handleStatusWS sends the current snapshot first, then live updates
func (s *Server) handleStatusWS(c *websocket.Conn) {
	var initial []hub.Message
	if snap, ok := s.Snapshot(); ok {
		if data, err := json.Marshal(snap); err == nil {
			initial = append(initial, hub.NewJSONMessage(data))
		}
	}
	hub.NewClient(s.statusHub, c, initial...).Run()
}
