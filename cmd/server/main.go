// Package main is the entry point for the NearMe merchant discovery API, which
// ranks crypto-accepting merchants by distance and serves search results to the
// NearMe app.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/yourorg/nearme-discovery/internal/logging"
	"github.com/yourorg/nearme-discovery/internal/otel"
	"github.com/yourorg/nearme-discovery/internal/server"
)

func main() {
	// Load configuration
	cfg, err := loadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	// Configure logging
	closer := logging.Setup(logging.Options{
		Format: cfg.LogFormat,
		Level:  cfg.LogLevel,
		File:   cfg.LogFile,
	})
	defer closer.Close()

	shutdownTracer := otel.InitTracer(cfg)
	defer shutdownTracer()

	source, err := buildSource(cfg)
	if err != nil {
		logrus.Fatalf("Failed to configure merchant sources: %v", err)
	}

	srv, err := server.New(cfg, source)
	if err != nil {
		logrus.Fatalf("Failed to initialize server: %v", err)
	}

	// Wait for interrupt signal to gracefully shut down the server
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		logrus.Errorf("Server exited: %v", err)
		os.Exit(1)
	}
}
