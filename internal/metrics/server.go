package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server serves /metrics over HTTP for the optional Prometheus scrape
// endpoint (Config.Metrics.Addr). Separate from the stream socket cachefsd
// serves clients on.
type Server struct {
	http *http.Server
}

// NewServer builds (but does not start) a metrics HTTP server bound to addr,
// exposing the collectors registered against reg.
func NewServer(addr string, reg *prometheus.Registry) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &Server{http: &http.Server{Addr: addr, Handler: mux}}
}

// ListenAndServe blocks serving /metrics until the server is shut down.
// Returns http.ErrServerClosed on a clean Shutdown, never nil.
func (s *Server) ListenAndServe() error {
	return s.http.ListenAndServe()
}

// Shutdown gracefully stops the metrics server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
