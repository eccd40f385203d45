package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/vango-dev/srasm/pkg/store"
)

func metricCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("counter Write() error: %v", err)
	}
	if m.Counter == nil {
		t.Fatal("expected counter metric to have Counter field")
	}
	return m.GetCounter().GetValue()
}

func metricGaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("gauge Write() error: %v", err)
	}
	if m.Gauge == nil {
		t.Fatal("expected gauge metric to have Gauge field")
	}
	return m.GetGauge().GetValue()
}

func metricHistogramCount(t *testing.T, o prometheus.Observer) uint64 {
	t.Helper()
	metric, ok := o.(prometheus.Metric)
	if !ok {
		t.Fatalf("observer %T does not implement prometheus.Metric", o)
	}
	var m dto.Metric
	if err := metric.Write(&m); err != nil {
		t.Fatalf("histogram Write() error: %v", err)
	}
	if m.Histogram == nil {
		t.Fatal("expected histogram metric to have Histogram field")
	}
	return m.GetHistogram().GetSampleCount()
}

var countKey = store.NewKey[int]("count")

func newObservedStore(t *testing.T, obs store.Observer) *store.Store {
	t.Helper()
	s, err := store.New([]store.Declaration{store.Declare(countKey, 0)}, store.WithObserver(obs))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	return s
}

func TestPrometheus_RecordsUpdates(t *testing.T) {
	m := Prometheus(WithRegistry(prometheus.NewRegistry()))
	s := newObservedStore(t, m)

	unsub, err := store.Subscribe(s, countKey, func() {})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	_ = store.Set(s, countKey, 1)
	_ = store.Set(s, countKey, 1)
	_ = store.Update(s, countKey, store.Try(func(int) (int, error) { return 0, errors.New("nope") }))

	if got := metricCounterValue(t, m.updatesTotal.WithLabelValues("count", "committed")); got != 1 {
		t.Errorf("updates_total(committed)=%v, want 1", got)
	}
	if got := metricCounterValue(t, m.updatesTotal.WithLabelValues("count", "skipped")); got != 1 {
		t.Errorf("updates_total(skipped)=%v, want 1", got)
	}
	if got := metricCounterValue(t, m.updatesTotal.WithLabelValues("count", "failed")); got != 1 {
		t.Errorf("updates_total(failed)=%v, want 1", got)
	}
	if got := metricCounterValue(t, m.updateErrors.WithLabelValues("count", "update_function")); got != 1 {
		t.Errorf("update_errors_total(update_function)=%v, want 1", got)
	}
	if got := metricCounterValue(t, m.notifications.WithLabelValues("count")); got != 1 {
		t.Errorf("listener_notifications_total=%v, want 1", got)
	}
	if got := metricHistogramCount(t, m.updateDuration.WithLabelValues("count")); got != 3 {
		t.Errorf("update_duration_seconds count=%v, want 3", got)
	}

	if got := metricGaugeValue(t, m.subscribers.WithLabelValues("count")); got != 1 {
		t.Errorf("subscribers=%v, want 1", got)
	}
	unsub()
	if got := metricGaugeValue(t, m.subscribers.WithLabelValues("count")); got != 0 {
		t.Errorf("subscribers after unsubscribe=%v, want 0", got)
	}
}

func TestPrometheus_Handler(t *testing.T) {
	m := Prometheus(WithRegistry(prometheus.NewRegistry()))

	r := chi.NewRouter()
	r.Use(m.Handler)
	r.Get("/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/items/%d", i), nil))
	}

	if got := metricCounterValue(t, m.requestsTotal.WithLabelValues("/items/{id}", "418")); got != 2 {
		t.Errorf("http_requests_total=%v, want 2", got)
	}
	if got := metricHistogramCount(t, m.requestDuration.WithLabelValues("/items/{id}")); got != 2 {
		t.Errorf("http_request_duration_seconds count=%v, want 2", got)
	}
}

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&store.ListenerError{Slice: "x", Panic: "p"}, "listener"},
		{&store.UpdateFunctionError{Slice: "x", Err: errors.New("e")}, "update_function"},
		{&store.SliceNotFoundError{Key: "x"}, "not_found"},
		{&store.MergeError{Slice: "x", Reason: "r"}, "merge"},
		{fmt.Errorf("wrapped: %w", context.DeadlineExceeded), "timeout"},
		{errors.New("boom"), "internal"},
	}
	for _, tc := range tests {
		if got := categorizeError(tc.err); got != tc.want {
			t.Errorf("categorizeError(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestObserversFanOut(t *testing.T) {
	m := Prometheus(WithRegistry(prometheus.NewRegistry()))
	logs := Slog(nil)
	s := newObservedStore(t, store.Observers(m, logs, nil))

	start := time.Now()
	_ = store.Set(s, countKey, 2)
	if time.Since(start) > time.Second {
		t.Fatal("update took too long")
	}
	if got := metricCounterValue(t, m.updatesTotal.WithLabelValues("count", "committed")); got != 1 {
		t.Errorf("updates_total(committed)=%v, want 1", got)
	}
}
