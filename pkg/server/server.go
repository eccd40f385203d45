package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/vango-dev/srasm/pkg/explain"
	"github.com/vango-dev/srasm/pkg/middleware"
	"github.com/vango-dev/srasm/pkg/store"
)

// Server is the explanation proxy. It serves:
//
//	POST /explain-error  explanation of an error and state snapshot
//	GET  /state          snapshot of the attached store
//	GET  /inspect        WebSocket feed of slice commits
//	GET  /metrics        Prometheus metrics
//	GET  /healthz        liveness
type Server struct {
	config    *Config
	explainer explain.Explainer
	store     *store.Store
	logger    *slog.Logger

	metrics  *middleware.Metrics
	gatherer prometheus.Gatherer
	tracing  *middleware.Tracing

	limiter  *rate.Limiter
	inflight singleflight.Group
	upgrader websocket.Upgrader

	// inspectors tracks open /inspect connections for shutdown.
	inspectMu  sync.Mutex
	inspectors map[*inspector]struct{}

	httpServer *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithStore attaches the store exposed by /state and /inspect.
func WithStore(s *store.Store) Option {
	return func(srv *Server) {
		srv.store = s
	}
}

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(srv *Server) {
		if logger != nil {
			srv.logger = logger
		}
	}
}

// WithMetrics records request metrics into m and serves g on /metrics.
func WithMetrics(m *middleware.Metrics, g prometheus.Gatherer) Option {
	return func(srv *Server) {
		srv.metrics = m
		srv.gatherer = g
	}
}

// WithTracing traces every request.
func WithTracing(t *middleware.Tracing) Option {
	return func(srv *Server) {
		srv.tracing = t
	}
}

// New creates a Server. A nil explainer answers every request with
// explain.Unavailable.
func New(config *Config, explainer explain.Explainer, opts ...Option) *Server {
	config = config.withDefaults()
	if explainer == nil {
		explainer = explain.Static{}
	}

	s := &Server{
		config:     config,
		explainer:  explainer,
		logger:     slog.Default().With("component", "server"),
		gatherer:   prometheus.DefaultGatherer,
		inspectors: make(map[*inspector]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     config.CheckOrigin,
		},
	}
	if config.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(config.RateLimit), config.RateBurst)
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := config.Validate(); err != nil {
		s.logger.Error("config validation failed", "error", err)
	}
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(s.cors)
	r.Use(middleware.RequestLogger(s.logger))
	if s.metrics != nil {
		r.Use(s.metrics.Handler)
	}
	if s.tracing != nil {
		r.Use(s.tracing.Handler)
	}

	r.Options("/*", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Post(explain.EndpointPath, s.handleExplain)
	r.Get("/state", s.handleState)
	r.Get("/inspect", s.handleInspect)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	notFound := func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	}
	r.NotFound(notFound)
	r.MethodNotAllowed(notFound)

	return r
}

// cors adds the CORS headers to every response.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", s.config.AllowedOrigin)
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		next.ServeHTTP(w, r)
	})
}

// Run serves on the configured address until SIGINT or SIGTERM.
func (s *Server) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return s.ListenAndServe(ctx)
}

// ListenAndServe serves on the configured address until ctx is done, then
// shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if err := s.config.Validate(); err != nil {
		ln.Close()
		return err
	}

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.config.ReadHeaderTimeout,
		ReadTimeout:       s.config.ReadTimeout,
		WriteTimeout:      s.config.WriteTimeout,
		IdleTimeout:       s.config.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "address", ln.Addr().String())
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down...")
		return s.Shutdown(context.Background())
	}
}

// Shutdown closes inspector connections and gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	s.inspectMu.Lock()
	for in := range s.inspectors {
		in.close()
	}
	s.inspectMu.Unlock()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	s.logger.Info("server shutdown complete")
	return nil
}

// Config returns the effective configuration.
func (s *Server) Config() *Config {
	return s.config
}

// Logger returns the server logger.
func (s *Server) Logger() *slog.Logger {
	return s.logger
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, explain.ErrorResponse{Error: msg})
}
