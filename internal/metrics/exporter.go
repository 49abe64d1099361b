package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wemix/nhm/pkg/logger"
)

// Exporter serves the collector's registry over HTTP for Prometheus to
// scrape.
type Exporter struct {
	collector *Collector
	log       *logger.Logger
	server    *http.Server
	port      int
	path      string
}

// NewExporter builds an Exporter. path defaults to "/metrics", port to 9190.
func NewExporter(collector *Collector, port int, path string, log *logger.Logger) *Exporter {
	if path == "" {
		path = "/metrics"
	}
	if port == 0 {
		port = 9190
	}
	return &Exporter{collector: collector, log: log, port: port, path: path}
}

// Start launches the HTTP server in the background.
func (e *Exporter) Start() error {
	mux := http.NewServeMux()
	mux.Handle(e.path, promhttp.HandlerFor(e.collector.GetRegistry(), promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		Timeout:           10 * time.Second,
	}))
	mux.HandleFunc("/healthz", e.healthHandler)

	e.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", e.port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if e.log != nil {
			e.log.Info("metrics: exporter listening", "port", e.port, "path", e.path)
		}
		if err := e.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if e.log != nil {
				e.log.Error("metrics: exporter stopped", "error", err.Error())
			}
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (e *Exporter) Stop() error {
	if e.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return e.server.Shutdown(ctx)
}

func (e *Exporter) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}

// URL returns the scrape URL for operator-facing output.
func (e *Exporter) URL() string {
	return fmt.Sprintf("http://localhost:%d%s", e.port, e.path)
}
