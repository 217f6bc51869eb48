package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// defaultMetricsAddr is used when the daemon config leaves
// Daemon.MetricsAddr unset.
const defaultMetricsAddr = ":9090"

// Server exposes the scan/clean counters and gauges registered by the
// rest of the package as a Prometheus scrape endpoint, separate from
// the daemon's own API server so metrics collection survives an API
// outage.
type Server struct {
	addr   string
	server *http.Server
}

// NewServer creates a metrics server listening on addr, or
// defaultMetricsAddr if addr is empty.
func NewServer(addr string) *Server {
	if addr == "" {
		addr = defaultMetricsAddr
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintln(w, "ok")
	})

	return &Server{
		addr: addr,
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start begins serving metrics. It blocks until the server stops.
// Returns nil if stopped via Shutdown, otherwise returns the error.
func (s *Server) Start() error {
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the metrics server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Addr returns the address the server is configured to listen on.
func (s *Server) Addr() string {
	return s.addr
}
