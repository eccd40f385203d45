package middleware

import (
	"context"
	"fmt"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/srasm/pkg/store"
)

// Default tracer name for SRASM components.
const defaultTracerName = "srasm"

// OTelConfig configures the OpenTelemetry observer.
type OTelConfig struct {
	// TracerName is the name of the tracer (default: "srasm").
	TracerName string

	// Provider is the tracer provider. If nil, the global provider is used.
	Provider trace.TracerProvider

	// Filter determines which updates to trace.
	// Return true to trace the update, false to skip.
	// If nil, all updates are traced.
	Filter func(ev store.UpdateEvent) bool

	// AttributeExtractor adds custom attributes to each update span.
	AttributeExtractor func(ev store.UpdateEvent) []attribute.KeyValue

	tracer trace.Tracer
}

// OTelOption configures the OpenTelemetry observer.
type OTelOption func(*OTelConfig)

// WithTracerName sets the tracer name.
func WithTracerName(name string) OTelOption {
	return func(c *OTelConfig) {
		c.TracerName = name
	}
}

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(tp trace.TracerProvider) OTelOption {
	return func(c *OTelConfig) {
		c.Provider = tp
	}
}

// WithUpdateFilter sets a filter function for updates.
func WithUpdateFilter(filter func(ev store.UpdateEvent) bool) OTelOption {
	return func(c *OTelConfig) {
		c.Filter = filter
	}
}

// WithAttributeExtractor sets a custom attribute extractor.
func WithAttributeExtractor(extractor func(ev store.UpdateEvent) []attribute.KeyValue) OTelOption {
	return func(c *OTelConfig) {
		c.AttributeExtractor = extractor
	}
}

func defaultOTelConfig() OTelConfig {
	return OTelConfig{
		TracerName: defaultTracerName,
	}
}

// Tracing emits one span per store update and per HTTP request.
// It implements store.Observer.
type Tracing struct {
	config OTelConfig
}

// OpenTelemetry creates the tracing observer.
//
// Update spans are named "srasm.update <slice>" and carry the slice, the
// descriptor kind, the equality mode, the outcome and the listener count.
// Spans are parented on the context passed with store.WithContext.
//
// The tracer uses the global OpenTelemetry tracer provider unless
// WithTracerProvider is given. Configure it in main() before building the
// store:
//
//	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
//	otel.SetTracerProvider(tp)
func OpenTelemetry(opts ...OTelOption) *Tracing {
	config := defaultOTelConfig()
	for _, opt := range opts {
		opt(&config)
	}

	if config.Provider != nil {
		config.tracer = config.Provider.Tracer(config.TracerName)
	} else {
		config.tracer = otel.Tracer(config.TracerName)
	}
	return &Tracing{config: config}
}

// ObserveUpdate implements store.Observer. The span covers the update as
// measured by the store, listeners included.
func (t *Tracing) ObserveUpdate(ctx context.Context, ev store.UpdateEvent) {
	if t.config.Filter != nil && !t.config.Filter(ev) {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("srasm.slice", ev.Slice),
		attribute.String("srasm.update_kind", ev.Kind),
		attribute.String("srasm.equality", ev.Mode.String()),
		attribute.String("srasm.outcome", ev.Outcome.String()),
		attribute.Int("srasm.listeners", ev.Listeners),
	}
	if t.config.AttributeExtractor != nil {
		attrs = append(attrs, t.config.AttributeExtractor(ev)...)
	}

	_, span := t.config.tracer.Start(ctx,
		fmt.Sprintf("srasm.update %s", ev.Slice),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
		trace.WithTimestamp(ev.Start),
	)

	if ev.Err != nil {
		span.RecordError(ev.Err)
		span.SetStatus(codes.Error, ev.Err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End(trace.WithTimestamp(ev.Start.Add(ev.Duration)))
}

// ObserveSubscribers implements store.Observer. Subscriber churn is not
// traced.
func (t *Tracing) ObserveSubscribers(string, int) {}

// Handler starts a server span for each request and makes it the parent of
// any update made with store.WithContext(r.Context()).
func (t *Tracing) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := t.config.tracer.Start(r.Context(),
			fmt.Sprintf("%s %s", r.Method, r.URL.Path),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.target", r.URL.Path),
			),
		)
		defer span.End()

		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		span.SetAttributes(
			attribute.Int("http.status_code", status),
			attribute.String("http.route", routePattern(r)),
		)
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	})
}

// SpanFromContext returns the current span, or nil if ctx carries none.
func SpanFromContext(ctx context.Context) trace.Span {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return nil
	}
	return span
}
