// Command codescand runs the live code scanner as a service: it captures frames
// from a camera (or replays a directory), scans the target window and emits
// decoded payloads to logs, a msgpack stream, Redis and websocket clients.
//
// Signals:
//
//	SIGINT, SIGTERM  graceful shutdown
//	SIGUSR1          pause scanning (host view hidden / app backgrounded)
//	SIGUSR2          resume scanning
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/e7canasta/orion-codescan/internal/config"
	"github.com/e7canasta/orion-codescan/internal/logging"
)

const defaultConfigPath = "config/codescan.yaml"

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	envPath := flag.String("env", ".env", "Optional .env file with CODESCAN_* overrides")
	debug := flag.Bool("debug", false, "Enable debug logging")
	watch := flag.Bool("watch", true, "Reload the viewport when the configuration file changes")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("codescand", version)
		return
	}

	// Bootstrap logger until the configured one is installed
	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	if err := config.LoadDotEnv(*envPath); err != nil {
		slog.Error("failed to load env file", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "config", *configPath, "error", err)
		os.Exit(1)
	}

	if *debug {
		cfg.Log.Level = "debug"
	}
	logCloser, err := logging.Setup(cfg.Log)
	if err != nil {
		slog.Error("failed to set up logging", "error", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	slog.Info("starting codescan service",
		"version", version,
		"config", *configPath,
		"instance_id", cfg.InstanceID,
		"debug", *debug,
	)

	// Create context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)

	watchPath := ""
	if *watch {
		watchPath = *configPath
	}
	d, err := newDaemon(ctx, watchPath, cfg)
	if err != nil {
		slog.Error("failed to create codescan service", "error", err)
		os.Exit(1)
	}

	// Run service in goroutine
	errChan := make(chan error, 1)
	go func() {
		errChan <- d.Run(ctx) // Always send, even if nil
	}()

	// Wait for shutdown signal or error
	var runErr error
wait:
	for {
		select {
		case sig := <-sigChan:
			switch sig {
			case syscall.SIGUSR1:
				if err := d.Pause(); err != nil {
					slog.Error("pause failed", "error", err)
				}
				continue
			case syscall.SIGUSR2:
				if err := d.Resume(); err != nil {
					slog.Error("resume failed", "error", err)
				}
				continue
			}
			slog.Info("received shutdown signal", "signal", sig)
			cancel()
			break wait
		case runErr = <-errChan:
			if runErr != nil {
				slog.Error("service error", "error", runErr)
			} else {
				slog.Info("service stopped")
			}
			break wait
		}
	}

	// Graceful shutdown
	shutdownTimeout := cfg.ShutdownTimeout()
	slog.Info("shutting down gracefully", "timeout", shutdownTimeout)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := d.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown failed", "error", err)
		os.Exit(1)
	}
	if runErr != nil {
		os.Exit(1)
	}

	slog.Info("codescan service stopped successfully")
}
