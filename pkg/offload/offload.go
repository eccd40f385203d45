package offload

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/vango-dev/srasm/pkg/store"
)

// DefaultThreshold is the JSON size in bytes above which a payload is heavy.
const DefaultThreshold = 5000

// DefaultTimeout bounds one offloaded computation.
const DefaultTimeout = 2 * time.Second

// Config configures a Dispatcher.
type Config struct {
	// Threshold is the JSON size in bytes above which a payload is heavy.
	// Default: 5000.
	Threshold int

	// Timeout bounds one offloaded computation. On expiry the update falls
	// back to the caller's goroutine.
	// Default: 2 seconds.
	Timeout time.Duration

	// Workers is the number of computations that may run off the caller's
	// goroutine at once.
	// Default: runtime.NumCPU().
	Workers int64
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Threshold: DefaultThreshold,
		Timeout:   DefaultTimeout,
		Workers:   int64(runtime.NumCPU()),
	}
}

// Stats counts how updates were dispatched.
type Stats struct {
	Inline    uint64
	Offloaded uint64
	Fallbacks uint64
	Stale     uint64
}

// Dispatcher runs heavy compute updates on a bounded set of worker
// goroutines. It is never required for correctness: every path that cannot
// offload runs the update synchronously.
type Dispatcher struct {
	config Config
	sem    *semaphore.Weighted
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	once   sync.Once
	wg     sync.WaitGroup

	inline    atomic.Uint64
	offloaded atomic.Uint64
	fallbacks atomic.Uint64
	stale     atomic.Uint64
}

// New creates a Dispatcher. Zero fields of config take their defaults.
func New(config Config, logger *slog.Logger) *Dispatcher {
	d := DefaultConfig()
	if config.Threshold <= 0 {
		config.Threshold = d.Threshold
	}
	if config.Timeout <= 0 {
		config.Timeout = d.Timeout
	}
	if config.Workers <= 0 {
		config.Workers = d.Workers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		config: config,
		sem:    semaphore.NewWeighted(config.Workers),
		logger: logger.With("component", "offload"),
	}
}

// Predict reports whether payload is heavy enough to offload. A payload that
// cannot be encoded is treated as heavy.
func (d *Dispatcher) Predict(slice string, payload any) bool {
	raw, err := json.Marshal(payload)
	if err != nil {
		d.logger.Debug("heavy prediction fell back to true", "slice", slice, "error", err)
		return true
	}
	return len(raw) > d.config.Threshold
}

// Stats returns dispatch counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Inline:    d.inline.Load(),
		Offloaded: d.offloaded.Load(),
		Fallbacks: d.fallbacks.Load(),
		Stale:     d.stale.Load(),
	}
}

// Close stops accepting offloaded work and waits for running computations.
// Calling Close more than once is safe.
func (d *Dispatcher) Close() error {
	d.once.Do(func() {
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()
		d.wg.Wait()
		d.logger.Debug("dispatcher closed")
	})
	return nil
}

// acquire reserves a worker. It fails when all workers are busy or the
// dispatcher is closed.
func (d *Dispatcher) acquire() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed || !d.sem.TryAcquire(1) {
		return false
	}
	d.wg.Add(1)
	return true
}

type result[T any] struct {
	value T
	err   error
}

// Apply updates the slice at key with fn. A light current value is updated
// synchronously. A heavy one is computed on a worker goroutine and committed
// if the slice did not change meanwhile; otherwise fn runs again against the
// latest value. When no worker is free, the dispatcher is closed, or the
// computation exceeds the timeout, Apply runs fn synchronously.
//
// fn must not mutate its argument.
func Apply[T any](ctx context.Context, d *Dispatcher, s *store.Store, key store.Key[T], fn func(prev T) T, opts ...store.UpdateOption) error {
	opts = append([]store.UpdateOption{store.WithContext(ctx)}, opts...)
	inline := func() error {
		return store.Update(s, key, store.Compute(fn), opts...)
	}

	if d == nil {
		return inline()
	}

	// Read the revision first: a commit racing with Get then shows up as a
	// stale result rather than being overwritten.
	rev, err := s.Revision(key.Name())
	if err != nil {
		return err
	}
	current, err := store.Get(s, key)
	if err != nil {
		return err
	}
	if !d.Predict(key.Name(), current) {
		d.inline.Add(1)
		return inline()
	}
	if !d.acquire() {
		d.fallbacks.Add(1)
		d.logger.Debug("no worker available, updating inline", "slice", key.Name())
		return inline()
	}

	done := make(chan result[T], 1)
	go func() {
		defer d.wg.Done()
		defer d.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("offloaded update panic", "slice", key.Name(), "panic", r, "stack", string(debug.Stack()))
				done <- result[T]{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		done <- result[T]{value: fn(current)}
	}()

	timer := time.NewTimer(d.config.Timeout)
	defer timer.Stop()

	select {
	case res := <-done:
		d.offloaded.Add(1)
		return store.Update(s, key, store.Try(func(prev T) (T, error) {
			if res.err != nil {
				var zero T
				return zero, res.err
			}
			// Revision cannot move while the descriptor runs.
			if now, _ := s.Revision(key.Name()); now != rev {
				d.stale.Add(1)
				return fn(prev), nil
			}
			return res.value, nil
		}), opts...)
	case <-timer.C:
		d.fallbacks.Add(1)
		d.logger.Warn("offloaded update timed out, updating inline", "slice", key.Name(), "timeout", d.config.Timeout)
		return inline()
	case <-ctx.Done():
		return ctx.Err()
	}
}
