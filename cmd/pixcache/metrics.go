package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var metricsAddress = flag.String("metrics_address", "127.0.0.1:9190",
	"Address serving Prometheus metrics on /metrics; empty disables the endpoint.")

// newMetricsServer returns the HTTP server exposing the default Prometheus registry.
func newMetricsServer(address string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{Addr: address, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}

// serveMetrics blocks until ctx is done or the server fails.
func serveMetrics(ctx context.Context) error {
	if *metricsAddress == "" {
		slog.Info("Metrics endpoint is disabled.")
		return nil
	}
	server := newMetricsServer(*metricsAddress)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	slog.Info("Serving metrics.", "address", *metricsAddress)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
