package metrics

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is the listener of the items service scraped by Prometheus, kept apart from the public
// items listener so that /metrics is never exposed to API clients.
type Server struct {
	httpServer *http.Server
	addr       atomic.Pointer[net.Addr]
}

// Config is where the metrics listener binds.
type Config struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// NewServer returns the metrics listener of reg.
//
// Scrapes are themselves counted in reg, and collection errors are logged without failing the
// scrape, so one faulty collector does not hide the items and CMS metrics.
func NewServer(cfg Config, reg *prometheus.Registry) *Server {
	scrape := promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		ErrorLog:      slog.NewLogLogger(slog.Default().Handler(), slog.LevelWarn),
		ErrorHandling: promhttp.ContinueOnError,
	})

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.InstrumentMetricHandler(reg, scrape))

	return &Server{
		httpServer: &http.Server{
			Addr:         net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
			Handler:      mux,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
	}
}

// ListenAndServe binds the listener and serves scrapes until Shutdown or Close.
func (s *Server) ListenAndServe() error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	addr := listener.Addr()
	s.addr.Store(&addr)

	return s.httpServer.Serve(listener)
}

// Shutdown waits for in-flight scrapes before stopping.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Close drops in-flight scrapes.
func (s *Server) Close() error {
	return s.httpServer.Close()
}

// Addr is the bound address, empty until ListenAndServe binds. A port of 0 is resolved here.
func (s *Server) Addr() string {
	addr := s.addr.Load()
	if addr == nil {
		return ""
	}
	return (*addr).String()
}
