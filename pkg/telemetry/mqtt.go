// Package telemetry publishes framing snapshots to an MQTT broker so other
// devices can follow where the framed subject is.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/teslashibe/go-autoframe/pkg/framing"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrClosed is returned when publishing after Close.
var ErrClosed = errors.New("telemetry: publisher closed")

// Config configures the MQTT publisher.
type Config struct {
	Broker         string        `json:"broker"`
	ClientID       string        `json:"client_id"`
	Topic          string        `json:"topic"`
	QoS            byte          `json:"qos"`
	Retained       bool          `json:"retained"`
	ConnectTimeout time.Duration `json:"connect_timeout"`
	PublishTimeout time.Duration `json:"publish_timeout"`
}

// DefaultConfig returns defaults for the given broker URL,
// e.g. tcp://localhost:1883.
func DefaultConfig(broker string) Config {
	return Config{
		Broker:         broker,
		ClientID:       "autoframe-" + uuid.NewString()[:8],
		Topic:          "autoframe/status",
		QoS:            0,
		Retained:       true,
		ConnectTimeout: 10 * time.Second,
		PublishTimeout: 2 * time.Second,
	}
}

// Status is the published payload.
type Status struct {
	SessionID string `json:"session_id"`

	// Mode is "tracking" while a face is present and "searching" otherwise.
	Mode        string  `json:"mode"`
	FacePresent bool    `json:"face_present"`
	CenterX     float64 `json:"center_x"`
	CenterY     float64 `json:"center_y"`
	Zoom        float64 `json:"zoom"`

	// Pan is the crop center relative to the frame center, in [-1, 1].
	PanX float64 `json:"pan_x"`
	PanY float64 `json:"pan_y"`

	Crop       framing.CropRect `json:"crop"`
	Reanchored bool             `json:"reanchored"`
	Detections uint64           `json:"detections"`
	Errors     uint64           `json:"detect_errors"`
	Time       int64            `json:"time_ms"`
}

// NewStatus converts a snapshot into the published payload.
func NewStatus(snap framing.Snapshot) Status {
	s := Status{
		SessionID:   snap.SessionID,
		FacePresent: snap.FacePresent,
		CenterX:     snap.State.SmoothedX,
		CenterY:     snap.State.SmoothedY,
		Zoom:        snap.State.SmoothedZoom,
		Crop:        snap.Crop,
		Reanchored:  snap.Reanchored,
		Detections:  snap.Detections,
		Errors:      snap.DetectErrors,
		Time:        snap.Time.UnixMilli(),
	}
	s.Mode = "searching"
	if snap.FacePresent {
		s.Mode = "tracking"
	}
	if snap.Dims.Width > 0 && snap.Dims.Height > 0 {
		c := snap.Dims.Center()
		s.PanX = (snap.State.SmoothedX - c.X) / c.X
		s.PanY = (snap.State.SmoothedY - c.Y) / c.Y
	}
	return s
}

type publishFunc func(topic string, payload []byte) error

// Publisher is a framing.Observer that publishes every snapshot. Publishing
// happens on its own goroutine; when the broker falls behind the oldest
// queued snapshot is dropped.
type Publisher struct {
	cfg     Config
	client  mqtt.Client
	publish publishFunc
	logger  *slog.Logger

	queue chan framing.Snapshot
	done  chan struct{}
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// Connect dials the broker and starts the publish loop.
func Connect(ctx context.Context, cfg Config) (*Publisher, error) {
	if cfg.Broker == "" {
		return nil, errors.New("telemetry: broker required")
	}
	if cfg.Topic == "" {
		cfg.Topic = "autoframe/status"
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "autoframe-" + uuid.NewString()[:8]
	}

	logger := slog.Default().With("component", "telemetry")

	opts := mqtt.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetConnectTimeout(cfg.ConnectTimeout)
	opts.SetAutoReconnect(true)
	opts.OnConnect = func(mqtt.Client) {
		logger.Info("connected to MQTT", "broker", cfg.Broker, "client_id", cfg.ClientID)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", "error", err)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()

	waitDone := make(chan struct{})
	go func() {
		token.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-ctx.Done():
		client.Disconnect(0)
		return nil, ctx.Err()
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("telemetry: connect %s: %w", cfg.Broker, err)
	}

	p := newPublisher(cfg, func(topic string, payload []byte) error {
		t := client.Publish(topic, cfg.QoS, cfg.Retained, payload)
		if !t.WaitTimeout(cfg.PublishTimeout) {
			return fmt.Errorf("telemetry: publish to %s timed out", topic)
		}
		return t.Error()
	}, logger)
	p.client = client
	return p, nil
}

func newPublisher(cfg Config, publish publishFunc, logger *slog.Logger) *Publisher {
	p := &Publisher{
		cfg:     cfg,
		publish: publish,
		logger:  logger,
		queue:   make(chan framing.Snapshot, 16),
		done:    make(chan struct{}),
	}
	p.wg.Add(1)
	go p.loop()
	return p
}

// Observe implements framing.Observer. It never blocks.
func (p *Publisher) Observe(snap framing.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}

	for {
		select {
		case p.queue <- snap:
			return
		default:
		}
		// Full: drop the oldest and retry.
		select {
		case <-p.queue:
		default:
		}
	}
}

func (p *Publisher) loop() {
	defer p.wg.Done()
	for {
		select {
		case snap := <-p.queue:
			if err := p.send(snap); err != nil {
				p.logger.Warn("publish failed", "error", err)
			}
		case <-p.done:
			return
		}
	}
}

func (p *Publisher) send(snap framing.Snapshot) error {
	payload, err := json.Marshal(NewStatus(snap))
	if err != nil {
		return fmt.Errorf("telemetry: encode: %w", err)
	}
	return p.publish(p.cfg.Topic, payload)
}

// Close stops publishing and disconnects from the broker.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.done)
	p.mu.Unlock()

	p.wg.Wait()
	if p.client != nil {
		p.client.Disconnect(250)
	}
	return nil
}
