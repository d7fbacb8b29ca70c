package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-autoframe/internal/config"
	"github.com/teslashibe/go-autoframe/internal/log"
	"github.com/teslashibe/go-autoframe/pkg/debug"
)

// Version is the application version.
const Version = "0.1.0"

var (
	configPath    string
	logLevel      string
	logFile       string
	debugTracking bool

	// settings is loaded once in the root pre-run and refined by subcommands
	settings config.Settings
)

var rootCmd = &cobra.Command{
	Use:           "autoframe",
	Short:         "Live face autoframing for video streams",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadDotEnv(); err != nil {
			return fmt.Errorf("load .env: %w", err)
		}

		s, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			s.LogLevel = logLevel
		}
		if cmd.Flags().Changed("log-file") {
			s.LogFile = logFile
		}
		settings = s

		log.InitWithOptions(log.Options{Level: s.LogLevel, File: s.LogFile})
		debug.SetEnabled(s.LogLevel == "debug")
		debug.SetTracking(debugTracking)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		log.Close()
	},
}

// Execute runs the root command with a context cancelled on SIGINT/SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.json", "JSON config file (missing file means defaults)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", config.DefaultLevel, "Log level: debug, info, warn, error (overrides LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write logs to this rotating file (overrides LOG_FILE)")
	rootCmd.PersistentFlags().BoolVar(&debugTracking, "debug-tracking", false, "Log every detection, anchor and smoothing step")
}
