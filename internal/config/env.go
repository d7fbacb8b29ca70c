// Package config loads go-autoframe settings from defaults, an optional
// JSON config file, a .env file and environment variables, in that order.
package config

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// Defaults for settings that have no config file section.
const (
	DefaultSource = "0"
	DefaultPort   = "8080"
	DefaultLevel  = "info"
)

// Environment variables.
const (
	EnvSource     = "AUTOFRAME_SOURCE"
	EnvPort       = "AUTOFRAME_PORT"
	EnvModel      = "AUTOFRAME_MODEL"
	EnvMQTTBroker = "AUTOFRAME_MQTT_BROKER"
	EnvLogLevel   = "LOG_LEVEL"
	EnvLogFile    = "LOG_FILE"
)

// LoadDotEnv loads variables from the given .env files, or ./.env when none
// are named. Missing files are ignored and existing variables win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Source returns the video source from AUTOFRAME_SOURCE: a device index,
// a file path, or a ws:// signalling URL.
// Falls back to the provided default if not set.
func Source(def string) string {
	return envOr(EnvSource, def)
}

// Port returns the dashboard port from AUTOFRAME_PORT or the default.
func Port() string {
	return envOr(EnvPort, DefaultPort)
}

// Model returns the detector model path from AUTOFRAME_MODEL.
// Falls back to the provided default if not set.
func Model(def string) string {
	return envOr(EnvModel, def)
}

// MQTTBroker returns the telemetry broker URL from AUTOFRAME_MQTT_BROKER.
// Empty means telemetry is off.
func MQTTBroker() string {
	return os.Getenv(EnvMQTTBroker)
}

// LogLevel returns the log level from LOG_LEVEL or info.
func LogLevel() string {
	return envOr(EnvLogLevel, DefaultLevel)
}

// LogFile returns the rotating log file path from LOG_FILE, if any.
func LogFile() string {
	return os.Getenv(EnvLogFile)
}
