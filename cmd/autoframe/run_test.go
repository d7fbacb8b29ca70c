package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-autoframe/internal/config"
)

func TestEnsureModel(t *testing.T) {
	dir := t.TempDir()

	t.Run("existing file is kept", func(t *testing.T) {
		path := filepath.Join(dir, "model.onnx")
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := ensureModel(context.Background(), path, "http://127.0.0.1:1/never"); err != nil {
			t.Errorf("ensureModel() error = %v", err)
		}
	})

	t.Run("missing file without url", func(t *testing.T) {
		if err := ensureModel(context.Background(), filepath.Join(dir, "none.onnx"), ""); err != nil {
			t.Errorf("ensureModel() error = %v", err)
		}
	})

	t.Run("missing file with unreachable url", func(t *testing.T) {
		if err := ensureModel(context.Background(), filepath.Join(dir, "none.onnx"), "http://127.0.0.1:1/model"); err == nil {
			t.Error("ensureModel() expected error")
		}
	})
}

func TestApplyRunFlags(t *testing.T) {
	settings = config.Defaults()
	defer func() { settings = config.Settings{} }()

	cmd := &cobra.Command{}
	cmd.Flags().AddFlagSet(runCmd.Flags())
	if err := cmd.Flags().Parse([]string{"--source", "clip.mp4", "--width", "320", "--height", "200"}); err != nil {
		t.Fatalf("parse: %v", err)
	}

	applyRunFlags(cmd)

	if settings.Source != "clip.mp4" {
		t.Errorf("Source = %q", settings.Source)
	}
	if settings.Canvas.Width != 320 || settings.Canvas.Height != 200 {
		t.Errorf("Canvas = %+v", settings.Canvas)
	}
	if settings.Port != config.DefaultPort {
		t.Errorf("Port = %q, unchanged flag must keep the loaded value", settings.Port)
	}
}

func TestCommandsRegistered(t *testing.T) {
	want := map[string]bool{"run": false, "config": false}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("command %q not registered", name)
		}
	}
}
