// Command sentineld runs the local multi-camera video analytics daemon:
// it loads cameras.json, starts one capture pipeline per enabled camera,
// feeds their analytic events into a single Alert Log, and serves both
// the HTTP query API and the Prometheus metrics endpoint until it
// receives SIGINT or SIGTERM.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sentineld/videosentry/internal/alertlog"
	"github.com/sentineld/videosentry/internal/httpapi"
	"github.com/sentineld/videosentry/internal/logger"
	"github.com/sentineld/videosentry/internal/metrics"
	"github.com/sentineld/videosentry/internal/supervisor"
)

var (
	configPath  = flag.String("config", "cameras.json", "Path to the camera configuration file")
	httpAddr    = flag.String("http", ":8080", "HTTP query API address")
	metricsAddr = flag.String("metrics", ":9090", "Prometheus metrics address")
	logLevel    = flag.String("log-level", "info", "Log level (debug, info, warn, error, silent)")
	logColor    = flag.Bool("log-color", true, "Enable colored log output")
	snapshotDir = flag.String("snapshot-dir", "./snapshots", "Directory alert snapshot PNGs are written to")
)

func main() {
	flag.Parse()

	level, err := logger.ParseLevel(*logLevel)
	if err != nil {
		log.Fatalf("invalid log level: %v", err)
	}
	logger.Init(level, os.Stderr, *logColor)

	main := logger.Module("main")
	main.Info("sentineld starting")

	if err := os.MkdirAll(*snapshotDir, 0o755); err != nil {
		log.Fatalf("failed to create snapshot directory: %v", err)
	}

	stats := metrics.New()

	sup, err := supervisor.New(*configPath, stats)
	if err != nil {
		log.Fatalf("failed to load %s: %v", *configPath, err)
	}

	alerts := alertlog.New(stats)

	ctx, cancel := context.WithCancel(context.Background())

	sup.Start(ctx)
	main.Info("camera supervisor started (%d slots)", len(sup.Slots()))

	alertsDone := make(chan struct{})
	go func() {
		alerts.Run(ctx, sup.Events())
		close(alertsDone)
	}()

	metricsServer := &http.Server{Addr: *metricsAddr, Handler: metricsMux(stats)}
	go func() {
		main.Info("metrics server listening on %s", *metricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			main.Error("metrics server error: %v", err)
		}
	}()

	api := httpapi.New(alerts, sup, stats)
	httpServer := &http.Server{Addr: *httpAddr, Handler: api.Handler()}
	go func() {
		main.Info("query API listening on %s", *httpAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			main.Error("query API server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	main.Info("shutdown signal received")
	cancel()
	sup.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	metricsServer.Shutdown(shutdownCtx)

	<-alertsDone
	main.Info("sentineld stopped")
}

func metricsMux(stats *metrics.Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", stats.Handler())
	return mux
}
