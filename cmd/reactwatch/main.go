// CLAUDE:SUMMARY CLI entry point for reactwatch — the React DevTools bridge daemon.
// Command reactwatch is the DevTools bridge daemon. Runtime backends
// connect over WebSocket; local clients talk to it over the IPC socket in
// the state directory.
//
// Usage:
//
//	reactwatch                              # defaults: port 8097, ~/.agent-react-devtools
//	reactwatch -port 9000 -state-dir /tmp/rw
//	reactwatch -config reactwatch.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/reactwatch/daemon"
)

func main() {
	configPath := flag.String("config", "", "path to reactwatch.yaml config file")
	port := flag.Int("port", 0, "WebSocket listen port (default 8097)")
	stateDir := flag.String("state-dir", "", "state directory override")
	observability := flag.Bool("observability", true, "record connection/audit history in the state dir")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	obsSet := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "observability" {
			obsSet = true
		}
	})

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *port, *stateDir, *observability, obsSet); err != nil {
		logger.Error("reactwatch: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath string, port int, stateDir string, obs, obsSet bool) error {
	cfg := daemon.DefaultConfig()
	if configPath != "" {
		loaded, err := daemon.LoadConfigFile(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	// Flags override file values.
	if port > 0 {
		cfg.Port = port
	}
	if stateDir != "" {
		cfg.StateDir = stateDir
	}
	// Without a config file the -observability flag (default on) decides.
	if obsSet || configPath == "" {
		cfg.Observability.Enabled = obs
	}

	d := daemon.New(cfg, daemon.WithLogger(logger))
	if err := d.Start(ctx); err != nil {
		if errors.Is(err, daemon.ErrAlreadyRunning) {
			return err
		}
		return fmt.Errorf("start: %w", err)
	}

	d.Run(ctx)
	return nil
}
