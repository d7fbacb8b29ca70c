package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-autoframe/internal/httpc"
	"github.com/teslashibe/go-autoframe/internal/log"
	"github.com/teslashibe/go-autoframe/pkg/framing"
	"github.com/teslashibe/go-autoframe/pkg/framing/detection"
	"github.com/teslashibe/go-autoframe/pkg/render"
	"github.com/teslashibe/go-autoframe/pkg/telemetry"
	"github.com/teslashibe/go-autoframe/pkg/video"
	"github.com/teslashibe/go-autoframe/pkg/web"
)

// RunOptions holds the flags of the run command.
type RunOptions struct {
	Source    string
	Producer  string
	Model     string
	ModelURL  string
	Port      string
	MQTT      string
	Width     int
	Height    int
	Overlay   bool
	StaticDir string
}

var runOpts RunOptions

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Autoframe a live video source and serve the dashboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		applyRunFlags(cmd)
		return run(cmd.Context(), runOpts)
	},
}

func init() {
	f := runCmd.Flags()
	f.StringVarP(&runOpts.Source, "source", "s", "", "Device index, video file, or ws:// signalling URL (overrides AUTOFRAME_SOURCE)")
	f.StringVar(&runOpts.Producer, "producer", "", "WebRTC producer name; empty picks the first")
	f.StringVarP(&runOpts.Model, "model", "m", "", "YuNet ONNX model path (overrides AUTOFRAME_MODEL)")
	f.StringVar(&runOpts.ModelURL, "model-url", detection.DefaultModelURL, "Download the model from here when missing; empty disables")
	f.StringVarP(&runOpts.Port, "port", "p", "", "Dashboard port (overrides AUTOFRAME_PORT)")
	f.StringVar(&runOpts.MQTT, "mqtt", "", "MQTT broker for telemetry, e.g. tcp://localhost:1883")
	f.IntVar(&runOpts.Width, "width", 0, "Output width; 0 keeps the source width")
	f.IntVar(&runOpts.Height, "height", 0, "Output height; 0 keeps the source height")
	f.BoolVar(&runOpts.Overlay, "overlay", false, "Draw detections on the raw view")
	f.StringVar(&runOpts.StaticDir, "static", "./web", "Dashboard static files")

	rootCmd.AddCommand(runCmd)
}

// applyRunFlags lets explicit flags win over file and environment.
func applyRunFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	if f.Changed("source") {
		settings.Source = runOpts.Source
	}
	if f.Changed("model") {
		settings.Detector.ModelPath = runOpts.Model
	}
	if f.Changed("port") {
		settings.Port = runOpts.Port
	}
	if f.Changed("mqtt") {
		settings.MQTTBroker = runOpts.MQTT
	}
	if f.Changed("width") {
		settings.Canvas.Width = runOpts.Width
	}
	if f.Changed("height") {
		settings.Canvas.Height = runOpts.Height
	}
}

func run(ctx context.Context, opts RunOptions) error {
	logger := log.With("component", "autoframe")

	if err := ensureModel(ctx, settings.Detector.ModelPath, opts.ModelURL); err != nil {
		return err
	}

	source, err := openSource(ctx, settings.Source, opts.Producer)
	if err != nil {
		return err
	}
	defer source.Close()

	server := web.NewServer(settings.Port, opts.StaticDir)
	server.ConfigFunc = func() any { return settings }
	if opts.Overlay {
		server.Annotate = render.Annotate
	}

	fps := settings.CanvasFPS
	if fps <= 0 {
		fps = source.Settings().FrameRate
	}
	canvas := render.NewCanvas(settings.Canvas, fps)
	canvas.OnFrame = server.SendFramedFrame
	defer canvas.Close()

	observers := []framing.Observer{server}
	if settings.MQTTBroker != "" {
		pub, err := telemetry.Connect(ctx, telemetry.DefaultConfig(settings.MQTTBroker))
		if err != nil {
			logger.Warn("telemetry disabled", "error", err)
		} else {
			defer pub.Close()
			observers = append(observers, pub)
		}
	}

	// Stopped before the source, canvas and publisher are released.
	engine := framing.NewEngine(detection.Factory(settings.Detector), framing.WithLogger(log.L()))
	if err := engine.Start(ctx, settings.Framing); err != nil {
		return err
	}
	defer func() {
		if err := engine.Stop(); err != nil && !errors.Is(err, framing.ErrNotStarted) {
			logger.Warn("engine stop", "error", err)
		}
	}()

	out, err := engine.Autoframe(ctx, video.NewStream(server.TapTrack(source)), framing.Options{
		Sink:        canvas,
		Destination: settings.Canvas,
		Overlay:     server,
		Observers:   observers,
	})
	if err != nil {
		return err
	}
	if out != framing.Stream(canvas) {
		logger.Warn("source has no usable video track, passing through")
	}

	server.StartAsync(ctx)

	session := engine.Session()
	if session == nil {
		<-ctx.Done()
		return nil
	}

	logger.Info("autoframing",
		"session", session.ID(),
		"source", settings.Source,
		"dims", fmt.Sprintf("%dx%d", session.Dimensions().Width, session.Dimensions().Height),
		"dashboard", "http://localhost:"+settings.Port,
	)

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case <-session.Done():
		logger.Warn("session ended")
	}
	return nil
}

// frameSource is a track that owns a device or connection.
type frameSource interface {
	framing.Track
	io.Closer
}

func openSource(ctx context.Context, source, producer string) (frameSource, error) {
	if strings.HasPrefix(source, "ws://") || strings.HasPrefix(source, "wss://") {
		cfg := video.DefaultWebRTCConfig(source)
		cfg.ProducerName = producer
		cfg.Logger = log.L()

		src := video.NewWebRTCSource(cfg)
		if err := src.Connect(ctx); err != nil {
			src.Close()
			return nil, fmt.Errorf("connect %s: %w", source, err)
		}
		return src, nil
	}
	return video.OpenCapture(source, video.DefaultJPEGQuality)
}

// ensureModel downloads the detector model when it is missing and a URL
// is configured.
func ensureModel(ctx context.Context, path, url string) error {
	if _, err := os.Stat(path); err == nil || url == "" {
		return nil
	}

	log.Info("downloading face detection model", "url", url, "path", path)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	if err := httpc.Download(ctx, httpc.NewClient(2*time.Minute), url, path); err != nil {
		return fmt.Errorf("download model: %w", err)
	}
	return nil
}
