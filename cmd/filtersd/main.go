// Package main is the entry point for the wf-filters compositor daemon.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/Faultbox/wf-filters/internal/config"
	"github.com/Faultbox/wf-filters/internal/daemon"
	"github.com/Faultbox/wf-filters/internal/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Parse CLI flags first
	config.ParseFlags()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		return 1
	}

	// Initialize logger
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	logger.Info("=== wf-filters ===")
	logger.Sugar.Debugf("Config: %+v", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := daemon.New(cfg)
	if err != nil {
		logger.Error("failed to create daemon", zap.Error(err))
		return 1
	}
	defer d.Close()

	if err := d.Run(ctx); err != nil {
		logger.Error("daemon error", zap.Error(err))
		return 1
	}

	logger.Info("daemon stopped normally")
	return 0
}
