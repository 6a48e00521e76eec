// Command urlexecd is the demo entry point for urlexec. It loads
// configuration, wires an in-memory Store (or a Redis-backed memoization
// accelerator in front of one) and the example handler set into the
// Handler Registry, constructs the Execution Engine, and starts the demo
// HTTP front-end, with graceful shutdown on SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jgavinray/urlexec/internal/config"
	"github.com/jgavinray/urlexec/internal/engine"
	"github.com/jgavinray/urlexec/internal/handlers"
	"github.com/jgavinray/urlexec/internal/httpserver"
	"github.com/jgavinray/urlexec/internal/logging"
	"github.com/jgavinray/urlexec/internal/registry"
	"github.com/jgavinray/urlexec/internal/store"
	"github.com/jgavinray/urlexec/internal/store/memstore"
	"github.com/jgavinray/urlexec/internal/store/rediscache"

	goredis "github.com/redis/go-redis/v9"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfgPath := flag.String("config", "config/urlexec.yaml", "path to urlexec.yaml")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("loading config %q: %w", *cfgPath, err)
	}

	logger, err := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	if err != nil {
		return fmt.Errorf("initialising logger: %w", err)
	}

	var errLogger *logging.ErrorLogger
	if cfg.Logging.ErrorLogDir != "" && cfg.Logging.ErrorLogFilename != "" {
		errLogger = logging.NewErrorLogger(cfg.Logging.ErrorLogDir, cfg.Logging.ErrorLogFilename)
	}

	st, err := buildStore(cfg)
	if err != nil {
		return fmt.Errorf("building store: %w", err)
	}

	reg := registry.New()
	handlers.Register(reg, st)

	eng := engine.New(reg, st)

	logger.Info("configuration loaded",
		slog.String("config", *cfgPath),
		slog.String("store_backend", cfg.Store.Backend),
		slog.Int("default_depth_limit", cfg.Engine.DefaultDepthLimit),
		slog.Int("http_port", cfg.HTTPServer.Port),
	)

	srv := httpserver.New(cfg, eng, st, logger)
	if errLogger != nil {
		srv = srv.WithErrorLogger(errLogger)
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("signal received, shutting down", slog.String("signal", sig.String()))
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}

	if err := srv.Shutdown(context.Background()); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// buildStore constructs the configured Store backend: a bare in-memory
// store, or an in-memory store fronted by a Redis memoization cache (spec
// §4.13).
func buildStore(cfg *config.Config) (store.Store, error) {
	base := memstore.New()

	switch cfg.Store.Backend {
	case "memory":
		return base, nil
	case "redis_cache":
		rdb := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Store.RedisAddr,
			Password: cfg.Store.RedisPassword,
			DB:       cfg.Store.RedisDB,
		})
		ttl := time.Duration(cfg.Store.CacheTTLSeconds) * time.Second
		return rediscache.New(base, rdb, ttl), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
