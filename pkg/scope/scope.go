package scope

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/vango-dev/srasm/pkg/explain"
	"github.com/vango-dev/srasm/pkg/reports"
	"github.com/vango-dev/srasm/pkg/store"
)

// Hints narrow an explanation to the slices involved in a failure.
type Hints struct {
	SliceName        string
	AdditionalSlices []string
}

// Failure is a failure caught by a Scope. It is diagnostic only: the store
// is never rolled back from it.
type Failure struct {
	// Err is the returned error, or a wrapper around the recovered panic.
	Err error

	// Panic is the recovered panic value, nil when fn returned an error.
	Panic any
	Stack []byte

	// Slice is the slice named by the hints or by the store error.
	Slice string

	// State is the snapshot of every slice taken when the failure was caught.
	State map[string]any

	// Explanation is never empty; it degrades to explain.Unavailable.
	Explanation string

	// ReportID is set when the failure was archived.
	ReportID string
}

func (f *Failure) Error() string {
	return f.Err.Error()
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Response is the body written by Middleware for a caught panic.
type Response struct {
	Error       string `json:"error"`
	Explanation string `json:"explanation"`
	ReportID    string `json:"reportId,omitempty"`
}

// Option configures a Scope.
type Option func(*Scope)

// WithExplainer sets the explanation backend. The default answers
// explain.Unavailable.
func WithExplainer(e explain.Explainer) Option {
	return func(s *Scope) {
		if e != nil {
			s.explainer = e
		}
	}
}

// WithCodeSnippets forwards source excerpts with every failure.
func WithCodeSnippets(snippets ...explain.CodeSnippet) Option {
	return func(s *Scope) {
		s.snippets = append(s.snippets, snippets...)
	}
}

// WithHints names the slices a failure most likely involves.
func WithHints(h Hints) Option {
	return func(s *Scope) {
		s.hints = h
	}
}

// WithSink archives every failure as a report.
func WithSink(sink reports.Sink) Option {
	return func(s *Scope) {
		s.sink = sink
	}
}

// WithTimeout bounds the explanation call.
func WithTimeout(d time.Duration) Option {
	return func(s *Scope) {
		s.timeout = d
	}
}

// WithLogger sets the scope logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scope) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithOnFailure is called with every caught failure.
func WithOnFailure(fn func(*Failure)) Option {
	return func(s *Scope) {
		s.onFailure = fn
	}
}

// Scope is the root error boundary of a store. It is the one place that
// catches store errors: it snapshots the store, asks the explainer for a
// diagnosis and optionally archives a report.
type Scope struct {
	store     *store.Store
	explainer explain.Explainer
	snippets  []explain.CodeSnippet
	hints     Hints
	sink      reports.Sink
	timeout   time.Duration
	logger    *slog.Logger
	onFailure func(*Failure)
}

// New creates the root scope of s.
func New(s *store.Store, opts ...Option) *Scope {
	sc := &Scope{
		store:     s,
		explainer: explain.Static{},
		timeout:   explain.DefaultTimeout,
		logger:    slog.Default().With("component", "scope"),
	}
	for _, opt := range opts {
		opt(sc)
	}
	return sc
}

// Guard runs fn. A panic or returned error becomes a *Failure; nil means fn
// succeeded.
func (sc *Scope) Guard(ctx context.Context, fn func() error) (f *Failure) {
	defer func() {
		if r := recover(); r != nil {
			f = sc.catch(ctx, panicErr(r), r, debug.Stack())
		}
	}()
	if err := fn(); err != nil {
		return sc.catch(ctx, err, nil, nil)
	}
	return nil
}

// Catch records err as a failure of the scope.
func (sc *Scope) Catch(ctx context.Context, err error) *Failure {
	if err == nil {
		return nil
	}
	return sc.catch(ctx, err, nil, nil)
}

func (sc *Scope) catch(ctx context.Context, err error, panicVal any, stack []byte) *Failure {
	f := &Failure{
		Err:   err,
		Panic: panicVal,
		Stack: stack,
		Slice: sc.hints.SliceName,
	}
	if f.Slice == "" {
		f.Slice = sliceOf(err)
	}
	if sc.store != nil {
		f.State = sc.store.Snapshot()
	}

	f.Explanation = explain.Safe(ctx, sc.explainer, explain.Request{
		ErrorMessage:     err.Error(),
		StateSnapshot:    f.State,
		SliceName:        f.Slice,
		AdditionalSlices: sc.hints.AdditionalSlices,
		RelevantCode:     sc.snippets,
	}, sc.timeout)

	sc.logger.Error("scope caught failure",
		"error", err,
		"slice", f.Slice,
		"panic", panicVal != nil,
	)

	if sc.sink != nil {
		r := reports.New(err.Error(), f.State)
		r.Slice = f.Slice
		r.Stack = string(stack)
		r.Explanation = f.Explanation
		r.Snippets = sc.snippets
		r.Hints = sc.hints.AdditionalSlices
		// Archive even when the caller's context is already done.
		id, serr := sc.sink.Save(context.WithoutCancel(ctx), r)
		if serr != nil {
			sc.logger.Warn("failure report not archived", "error", serr)
		} else {
			f.ReportID = id
		}
	}

	if sc.onFailure != nil {
		sc.onFailure(f)
	}
	return f
}

// Middleware wraps next with the scope: a panicking handler is answered with
// 500 and a JSON body carrying the explanation.
func (sc *Scope) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			f := sc.catch(r.Context(), panicErr(rec), rec, debug.Stack())
			if ww.Status() != 0 {
				// Headers are gone; the failure is logged and archived only.
				return
			}
			ww.Header().Set("Content-Type", "application/json")
			ww.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(ww).Encode(Response{
				Error:       f.Error(),
				Explanation: f.Explanation,
				ReportID:    f.ReportID,
			})
		}()
		next.ServeHTTP(ww, r)
	})
}

func panicErr(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", r)
}

// sliceOf returns the slice named by a store error.
func sliceOf(err error) string {
	var (
		notFound *store.SliceNotFoundError
		mistyped *store.SliceTypeError
		update   *store.UpdateFunctionError
		listener *store.ListenerError
		merge    *store.MergeError
	)
	switch {
	case errors.As(err, &update):
		return update.Slice
	case errors.As(err, &listener):
		return listener.Slice
	case errors.As(err, &merge):
		return merge.Slice
	case errors.As(err, &notFound):
		return notFound.Key
	case errors.As(err, &mistyped):
		return mistyped.Key
	}
	return ""
}
