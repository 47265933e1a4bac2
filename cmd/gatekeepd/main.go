// Package main is the entry point for the gatekeepd server.
//
// The bootstrap sequence is:
//  1. Load configuration from environment variables.
//  2. Create the structured logger and optional OTLP tracing.
//  3. Create Prometheus metrics and the namespace service wired to them.
//  4. Load boot snapshots from SNAPSHOT_DIR, one <namespace>.json each.
//  5. Start the HTTP server and wait for SIGINT/SIGTERM, then shut down
//     gracefully.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/gatekeep/gatekeep/internal/config"
	"github.com/gatekeep/gatekeep/internal/logging"
	"github.com/gatekeep/gatekeep/internal/metrics"
	"github.com/gatekeep/gatekeep/internal/middleware"
	"github.com/gatekeep/gatekeep/internal/server"
	"github.com/gatekeep/gatekeep/internal/service"
	"github.com/gatekeep/gatekeep/internal/tracing"
)

const (
	shutdownTimeout       = 10 * time.Second
	httpReadHeaderTimeout = 5 * time.Second
	httpReadTimeout       = 30 * time.Second
	httpIdleTimeout       = 2 * time.Minute
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)

	shutdownTracer, err := tracing.Init(context.Background())
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(ctx); err != nil {
			log.Error("tracer shutdown error", "err", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	svc := service.New(
		service.WithLogger(log),
		service.WithHook(m),
		service.WithHistoryDepth(cfg.HistoryDepth),
	)

	if cfg.SnapshotDir != "" {
		if err := loadBootSnapshots(svc, cfg.SnapshotDir, log); err != nil {
			return fmt.Errorf("load boot snapshots: %w", err)
		}
	}

	limiter := middleware.NewRateLimiter(ctx, cfg.AuthRateLimit)
	defer limiter.Stop()

	apiHandler := server.NewHTTPHandler(svc,
		server.WithMaxJSONBodySize(cfg.MaxJSONBodySize),
		server.WithMetrics(m),
	)
	handler := middleware.HTTPRequestLogging(log)(
		newHTTPHandler(apiHandler, cfg.APIToken, middleware.AuthOptions{
			OnFailure: m.AuthFailuresTotal.Inc,
			Limiter:   limiter,
		}),
	)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           otelhttp.NewHandler(handler, "gatekeepd-http"),
		ReadHeaderTimeout: httpReadHeaderTimeout,
		ReadTimeout:       httpReadTimeout,
		IdleTimeout:       httpIdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", slog.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	return nil
}

// newHTTPHandler puts the API routes behind bearer auth while leaving
// /healthz and /metrics open for load-balancer probes and scrapers.
func newHTTPHandler(apiHandler http.Handler, token string, opts middleware.AuthOptions) http.Handler {
	protected := middleware.BearerAuth(token, opts)(apiHandler)

	mux := http.NewServeMux()
	mux.Handle("/v1/", protected)
	mux.Handle("GET /healthz", apiHandler)
	mux.Handle("GET /metrics", apiHandler)

	return mux
}

// loadBootSnapshots installs every <namespace>.json file in dir as that
// namespace's initial configuration. Non-JSON files are skipped.
func loadBootSnapshots(svc *service.Service, dir string, log *slog.Logger) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		namespace := strings.TrimSuffix(entry.Name(), ".json")
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("read %s: %w", entry.Name(), err)
		}

		count, err := svc.LoadSnapshot(namespace, data)
		if err != nil {
			return fmt.Errorf("snapshot %s: %w", entry.Name(), err)
		}
		log.Info("boot snapshot installed",
			slog.String("namespace", namespace),
			slog.Int("flags", count),
		)
	}

	return nil
}
