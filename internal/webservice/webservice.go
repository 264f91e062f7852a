// Package webservice provides the HTTP server serving the items endpoint and the version information.
package webservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/reearth/cms-items-api/internal/config"
	"github.com/reearth/cms-items-api/internal/webservice/handlers"
	"github.com/reearth/cms-items-api/internal/webservice/metrics"
	"github.com/reearth/cms-items-api/internal/webservice/middleware"
	"golang.org/x/time/rate"
)

// Server holds the HTTP servers of the service and their configuration.
type Server struct {
	httpServer    *http.Server
	metricsServer *metrics.Server
	sm            settingsManager
	watch         bool

	mu          sync.RWMutex
	primaryAddr net.Addr

	// This context is used to interrupt any action.
	// It must be the parent of gracefulCtx.
	ctx    context.Context
	cancel context.CancelFunc

	// This context waits until the next blocking Recv to interrupt.
	gracefulCtx    context.Context
	gracefulCancel context.CancelFunc
}

// StaticConfig holds the static configuration for the server.
type StaticConfig struct {
	SettingsPath  string `mapstructure:"settings" yaml:"settings,omitempty"`
	WatchSettings bool   `mapstructure:"watch-settings" yaml:"watch-settings,omitempty"`

	ReadTimeout    time.Duration `mapstructure:"read-timeout" yaml:"read-timeout,omitempty"`
	WriteTimeout   time.Duration `mapstructure:"write-timeout" yaml:"write-timeout,omitempty"`
	MaxHeaderBytes int           `mapstructure:"max-header-bytes" yaml:"max-header-bytes,omitempty"`

	Handler HandlerConfig `mapstructure:",squash" yaml:",inline"`

	ListenHost  string `mapstructure:"listen-host" yaml:"listen-host,omitempty"`
	ListenPort  int    `mapstructure:"listen-port" yaml:"listen-port,omitempty"`
	MetricsHost string `mapstructure:"metrics-host" yaml:"metrics-host,omitempty"`
	MetricsPort int    `mapstructure:"metrics-port" yaml:"metrics-port,omitempty"`
}

// HandlerConfig holds the settings of the request handling chain.
type HandlerConfig struct {
	RequestTimeout  time.Duration `mapstructure:"request-timeout" yaml:"request-timeout,omitempty"`
	CMSTimeout      time.Duration `mapstructure:"cms-timeout" yaml:"cms-timeout,omitempty"`
	PageConcurrency int           `mapstructure:"page-concurrency" yaml:"page-concurrency,omitempty"`

	// RateLimit is the number of requests per second allowed to each client IP. 0 disables limiting.
	RateLimit float64 `mapstructure:"rate-limit" yaml:"rate-limit,omitempty"`
	RateBurst int     `mapstructure:"rate-burst" yaml:"rate-burst,omitempty"`
}

type settingsManager interface {
	Load() error
	Snapshot() config.Conf
	Watch(context.Context) (<-chan struct{}, <-chan error, error)
}

// New creates a new Server serving the settings of sm.
func New(ctx context.Context, sm settingsManager, sc StaticConfig) (*Server, error) {
	if err := sm.Load(); err != nil {
		return nil, fmt.Errorf("failed to load settings: %v", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	gCtx, gCancel := context.WithCancel(ctx)

	s := Server{
		sm:    sm,
		watch: sc.WatchSettings,

		ctx:    ctx,
		cancel: cancel,

		gracefulCtx:    gCtx,
		gracefulCancel: gCancel,
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s.httpServer = &http.Server{
		Addr:           net.JoinHostPort(sc.ListenHost, strconv.Itoa(sc.ListenPort)),
		ReadTimeout:    sc.ReadTimeout,
		WriteTimeout:   sc.WriteTimeout,
		Handler:        NewHandler(sm, registry, sc.Handler),
		MaxHeaderBytes: sc.MaxHeaderBytes,
	}
	s.metricsServer = metrics.NewServer(metrics.Config{
		Host:         sc.MetricsHost,
		Port:         sc.MetricsPort,
		ReadTimeout:  sc.ReadTimeout,
		WriteTimeout: sc.WriteTimeout,
	}, registry)

	return &s, nil
}

// NewHandler returns the request handling chain of the service, registering its metrics in reg.
// A nil reg leaves the metrics unregistered.
//
// The items endpoint is wrapped, from the outside in, with endpoint metrics, panic recovery,
// per-IP rate limiting and CORS. Every request gets a deadline of the request timeout, which the
// items endpoint reports as a fetch failure.
func NewHandler(sp handlers.SettingsProvider, reg prometheus.Registerer, hc HandlerConfig) http.Handler {
	httpClient := &http.Client{
		Transport: metrics.InstrumentCMSTransport(reg, nil),
		Timeout:   hc.CMSTimeout,
	}

	var items http.Handler = handlers.NewItems(sp,
		handlers.WithHTTPClient(httpClient),
		handlers.WithPageConcurrency(hc.PageConcurrency))
	items = middleware.CORS(func() string { return sp.Snapshot().CORSOrigin }, items)
	if hc.RateLimit > 0 {
		items = middleware.NewIPLimiter(rate.Limit(hc.RateLimit), max(hc.RateBurst, 1)).Wrap(items)
	}
	items = middleware.Recover(items)

	endpoints := metrics.NewEndpointMiddleware(reg)
	mux := http.NewServeMux()
	mux.Handle("/items", endpoints.Wrap("items", items))
	mux.Handle("GET /version", endpoints.Wrap("version", http.HandlerFunc(handlers.VersionHandler)))

	return middleware.Timeout(hc.RequestTimeout, mux)
}

// Run starts the HTTP servers and blocks until they stop.
func (s *Server) Run() error {
	// already asked to quit?
	select {
	case <-s.gracefulCtx.Done():
		return errors.New("server is already shutting down")
	default:
	}

	var watchErr <-chan error
	if s.watch {
		var err error
		if _, watchErr, err = s.sm.Watch(s.gracefulCtx); err != nil {
			s.cancel()
			return fmt.Errorf("failed to start watching settings: %v", err)
		}
	}

	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("failed to listen on %s: %v", s.httpServer.Addr, err)
	}
	s.mu.Lock()
	s.primaryAddr = listener.Addr()
	s.mu.Unlock()
	slog.Info("Starting server", "addr", listener.Addr().String())

	serverErr := make(chan error, 2)
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()
	go func() {
		if err := s.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- fmt.Errorf("metrics server: %v", err)
		}
	}()

	select {
	case <-s.gracefulCtx.Done():
		slog.Info("Graceful shutdown initiated")
		if err := s.shutdown(); err != nil {
			slog.Error("Graceful shutdown failed", "err", err)
			return err
		}
		slog.Info("Server shut down gracefully")
		return nil

	case err := <-serverErr:
		slog.Error("Server encountered error", "err", err)
		s.closeAll()
		return err

	case err, ok := <-watchErr:
		if !ok {
			// The watcher stopped without error: we are shutting down.
			<-s.gracefulCtx.Done()
			return s.shutdown()
		}
		slog.Error("Settings watcher encountered unrecoverable error", "err", err)
		return errors.Join(err, s.closeAll())
	}
}

// shutdown waits for in-flight requests, unless s.ctx is canceled first.
func (s *Server) shutdown() error {
	defer s.cancel()
	return errors.Join(s.httpServer.Shutdown(s.ctx), s.metricsServer.Shutdown(s.ctx))
}

func (s *Server) closeAll() error {
	defer s.cancel()
	return errors.Join(s.httpServer.Close(), s.metricsServer.Close())
}

// Quit shuts down the HTTP servers, gracefully unless force is set.
func (s *Server) Quit(force bool) {
	if force {
		if err := s.closeAll(); err != nil {
			slog.Warn("Error closing servers", "err", err)
		}
	} else {
		s.gracefulCancel()
	}
	slog.Info("Server quit")
}

// Addr returns the address the items server listens on, or an empty string before it listens.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.primaryAddr == nil {
		return ""
	}
	return s.primaryAddr.String()
}

// MetricsAddr returns the address the metrics server listens on, or an empty string before it listens.
func (s *Server) MetricsAddr() string {
	return s.metricsServer.Addr()
}
