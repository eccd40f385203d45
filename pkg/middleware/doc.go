// Package middleware provides production-grade instrumentation for SRASM.
//
// This package includes:
//   - A Prometheus store observer and HTTP metrics middleware
//   - An OpenTelemetry store observer and HTTP tracing middleware
//   - A slog store observer and request logger
//
// Every observer implements store.Observer. Combine them with
// store.Observers:
//
//	s, err := store.New(decls, store.WithObserver(store.Observers(
//	    middleware.Prometheus(),
//	    middleware.OpenTelemetry(middleware.WithTracerName("my-app")),
//	    middleware.Slog(logger),
//	)))
//
// # Prometheus Metrics
//
// Prometheus counts updates per slice and outcome, records update duration
// and listener fan-out, and tracks the number of subscribers per slice.
// Expose the metrics with promhttp:
//
//	http.Handle("/metrics", promhttp.Handler())
//
// # OpenTelemetry
//
// OpenTelemetry emits one span per update. Pass a request context with
// store.WithContext to parent update spans on the request span:
//
//	router.Use(tracing.Handler)
//	store.Update(s, key, d, store.WithContext(r.Context()))
package middleware
