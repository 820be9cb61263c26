package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-voss/devcell/internal/api"
	"github.com/m-voss/devcell/internal/config"
	"github.com/m-voss/devcell/internal/lifecycle"
	"github.com/m-voss/devcell/internal/runtime"
	"github.com/m-voss/devcell/internal/runtime/dockerdrv"
	"github.com/m-voss/devcell/internal/runtime/localdrv"
	"github.com/m-voss/devcell/internal/store"
	"github.com/m-voss/devcell/internal/watchdog"
)

func main() {
	cfgPath := flag.String("config", "", "path to devcell.yaml")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}

	if cfg.APIKey == "" {
		logger.Warn("no API key configured, running in open access mode")
	}

	st, err := store.New(cfg.DBPath)
	if err != nil {
		logger.Error("open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	driver, err := newDriver(cfg, logger)
	if err != nil {
		logger.Error("create runtime driver", "driver", cfg.Driver, "error", err)
		os.Exit(1)
	}
	defer driver.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ctrl := lifecycle.New(cfg, driver, nil, st, logger)
	if err := ctrl.Initialize(ctx); err != nil {
		logger.Error("runtime environment check failed", "driver", cfg.Driver, "error", err)
		os.Exit(1)
	}
	logger.Info("runtime environment OK", "driver", cfg.Driver)

	wd := watchdog.New(ctrl, time.Duration(cfg.WatchdogIntervalMs)*time.Millisecond, logger)
	go wd.Run(ctx)

	srv := api.NewServer(cfg, ctrl, st, logger)

	httpServer := &http.Server{
		Addr:         cfg.Listen,
		Handler:      srv.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // start can stream for a while
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		<-sigCh
		logger.Info("shutting down...")
		cancel()

		cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cleanupCancel()
		if err := ctrl.Cleanup(cleanupCtx, nil); err != nil {
			logger.Warn("runtime cleanup on shutdown", "error", err)
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("listening", "addr", cfg.Listen)
	fmt.Fprintf(os.Stderr, "\n  devcell daemon ready at http://%s\n\n", cfg.Listen)

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func newDriver(cfg *config.Config, logger *slog.Logger) (runtime.Driver, error) {
	switch cfg.Driver {
	case "docker":
		return dockerdrv.New(cfg.Docker, cfg.Run, logger)
	case "local":
		return localdrv.New(cfg.Local, cfg.Run, logger), nil
	default:
		return nil, fmt.Errorf("unknown driver %q (want docker or local)", cfg.Driver)
	}
}
