// Package main runs the premia HTTP server, which stores insurance premium
// predictions and user profiles in a key-value backend.
//
// Architecture:
//
//	┌──────────────────────────────────────────┐
//	│              premia-server               │
//	├──────────────────────────────────────────┤
//	│  HTTP API (internal/api):                │
//	│    /health, /ready, /stats               │
//	│    /predictions/{userId}                 │
//	│    /profile/{userId}                     │
//	├──────────────────────────────────────────┤
//	│  records.Service  - key layout, codecs   │
//	│  storage.Store    - memory|bolt|sqlite   │
//	│  health.Monitor   - storage probe        │
//	└──────────────────────────────────────────┘
//
// Configuration comes from an optional YAML file (-config or PREMIA_CONFIG)
// overridden by PREMIA_* environment variables; see internal/config.
//
// Example usage:
//
//	PREMIA_STORAGE_DRIVER=bolt \
//	PREMIA_STORAGE_PATH=/var/lib/premia/kv.bolt \
//	PREMIA_BASE_PATH=/make-server-201dba08 \
//	./premia-server
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/dreamware/premia/internal/api"
	"github.com/dreamware/premia/internal/config"
	"github.com/dreamware/premia/internal/health"
	"github.com/dreamware/premia/internal/logging"
	"github.com/dreamware/premia/internal/records"
	"github.com/dreamware/premia/internal/storage"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config (default $PREMIA_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		log.WithError(err).Fatal("listen")
	}
	if err := run(ctx, cfg, log, ln); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
	log.Info("server stopped")
}

// run serves on ln until ctx is cancelled, then shuts down gracefully
func run(ctx context.Context, cfg config.Config, log *logrus.Logger, ln net.Listener) error {
	backend, err := storage.Open(cfg.Storage)
	if err != nil {
		ln.Close()
		return fmt.Errorf("open storage: %w", err)
	}
	store := storage.NewInstrumented(backend, driverName(cfg.Storage.Driver))
	defer func() {
		if err := store.Close(); err != nil {
			log.WithError(err).Warn("close storage")
		}
	}()

	monitor := health.NewMonitor(store.Ping, cfg.Health.Interval, cfg.Health.MaxFailures, log)
	monitor.SetOnUnhealthy(func(r health.Report) {
		log.WithFields(logrus.Fields{
			"consecutive_fails": r.ConsecutiveFails,
			"last_error":        r.LastError,
		}).Error("storage marked unhealthy")
	})

	srv := api.NewServer(records.NewService(store, log), api.Options{
		BasePath: cfg.BasePath,
		Stats:    store,
		Ready:    monitor,
		Log:      log,
	})
	httpServer := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		monitor.Start(gctx)
		return nil
	})
	g.Go(func() error {
		log.WithFields(logrus.Fields{
			"addr":      ln.Addr().String(),
			"driver":    driverName(cfg.Storage.Driver),
			"base_path": cfg.BasePath,
		}).Info("listening")
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func driverName(d string) string {
	if d == "" {
		return storage.DriverMemory
	}
	return d
}
