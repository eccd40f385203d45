package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vango-dev/srasm/pkg/store"
)

// MetricsConfig configures the Prometheus store observer.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "srasm").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for update and request duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus store observer.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "srasm",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics records store updates and HTTP requests as Prometheus metrics.
// It implements store.Observer.
//
// Metrics collected:
//   - srasm_updates_total: Counter of updates by slice and outcome
//   - srasm_update_duration_seconds: Histogram of update duration by slice
//   - srasm_update_errors_total: Counter of failed updates by slice and error type
//   - srasm_listener_notifications_total: Counter of listener calls by slice
//   - srasm_subscribers: Gauge of registered listeners by slice
//   - srasm_http_requests_total: Counter of requests by route and status
//   - srasm_http_request_duration_seconds: Histogram of request duration by route
//
// Example:
//
//	m := middleware.Prometheus(middleware.WithNamespace("myapp"))
//	s, err := store.New(decls, store.WithObserver(m))
//
//	// Expose metrics endpoint
//	http.Handle("/metrics", promhttp.Handler())
type Metrics struct {
	updatesTotal    *prometheus.CounterVec
	updateDuration  *prometheus.HistogramVec
	updateErrors    *prometheus.CounterVec
	notifications   *prometheus.CounterVec
	subscribers     *prometheus.GaugeVec
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// Prometheus creates the metrics observer and registers its collectors.
// Register one instance per registry; a second registration on the same
// registry panics, as promauto does.
func Prometheus(opts ...MetricsOption) *Metrics {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}

	factory := promauto.With(config.Registry)

	return &Metrics{
		updatesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "updates_total",
			Help:        "Total number of slice updates by outcome",
			ConstLabels: config.ConstLabels,
		}, []string{"slice", "outcome"}),

		updateDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "update_duration_seconds",
			Help:        "Slice update duration in seconds, listeners included",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"slice"}),

		updateErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "update_errors_total",
			Help:        "Total number of slice update errors",
			ConstLabels: config.ConstLabels,
		}, []string{"slice", "error_type"}),

		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "listener_notifications_total",
			Help:        "Total number of listener invocations",
			ConstLabels: config.ConstLabels,
		}, []string{"slice"}),

		subscribers: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "subscribers",
			Help:        "Number of listeners registered per slice",
			ConstLabels: config.ConstLabels,
		}, []string{"slice"}),

		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "http_requests_total",
			Help:        "Total number of HTTP requests",
			ConstLabels: config.ConstLabels,
		}, []string{"route", "status"}),

		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "http_request_duration_seconds",
			Help:        "HTTP request duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"route"}),
	}
}

// ObserveUpdate implements store.Observer.
func (m *Metrics) ObserveUpdate(_ context.Context, ev store.UpdateEvent) {
	m.updateDuration.WithLabelValues(ev.Slice).Observe(ev.Duration.Seconds())
	m.updatesTotal.WithLabelValues(ev.Slice, ev.Outcome.String()).Inc()
	if ev.Listeners > 0 {
		m.notifications.WithLabelValues(ev.Slice).Add(float64(ev.Listeners))
	}
	if ev.Err != nil {
		m.updateErrors.WithLabelValues(ev.Slice, categorizeError(ev.Err)).Inc()
	}
}

// ObserveSubscribers implements store.Observer.
func (m *Metrics) ObserveSubscribers(slice string, delta int) {
	m.subscribers.WithLabelValues(slice).Add(float64(delta))
}

// Handler records request count and duration, labelled by the chi route
// pattern to keep label cardinality bounded.
func (m *Metrics) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		route := routePattern(r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// categorizeError returns a low-cardinality category for an update error.
func categorizeError(err error) string {
	switch {
	case errors.Is(err, store.ErrListener):
		return "listener"
	case errors.Is(err, store.ErrUpdateFunction):
		return "update_function"
	case errors.Is(err, store.ErrInvalidDescriptor):
		return "invalid_descriptor"
	case errors.Is(err, store.ErrSliceNotFound):
		return "not_found"
	}

	var me *store.MergeError
	if errors.As(err, &me) {
		return "merge"
	}
	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "timeout") {
		return "timeout"
	}
	return "internal"
}
