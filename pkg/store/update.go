package store

import (
	"context"
	"fmt"
	"time"
)

type descriptorKind uint8

const (
	kindReplace descriptorKind = iota + 1
	kindMerge
	kindCompute
	kindComputePatch
	kindTry
)

// Descriptor says how an update derives the next slice value. Build one with
// Replace, Merge, Compute, ComputePatch or Try; the zero Descriptor is
// rejected with ErrInvalidDescriptor.
type Descriptor[T any] struct {
	kind         descriptorKind
	value        T
	patch        Patch
	compute      func(T) T
	computePatch func(T) Patch
	try          func(T) (T, error)
}

// Replace sets the slice to v. Use it for nil, zero and empty values too.
// A value carrying a non-nil func never equals the committed one in either
// equality mode, so replacing it with itself still notifies.
func Replace[T any](v T) Descriptor[T] {
	return Descriptor[T]{kind: kindReplace, value: v}
}

// Merge shallow-merges patch into a struct, struct pointer or map value,
// producing a new value. The current value is never mutated.
func Merge[T any](patch Patch) Descriptor[T] {
	return Descriptor[T]{kind: kindMerge, patch: patch}
}

// Compute derives the next value from the committed one. fn must be pure and
// must not write to the store: it runs while the slice's writer lock is held.
func Compute[T any](fn func(prev T) T) Descriptor[T] {
	return Descriptor[T]{kind: kindCompute, compute: fn}
}

// ComputePatch derives a patch from the committed value and merges it.
func ComputePatch[T any](fn func(prev T) Patch) Descriptor[T] {
	return Descriptor[T]{kind: kindComputePatch, computePatch: fn}
}

// Try is Compute for functions that can fail. A returned error aborts the
// update and is wrapped in *UpdateFunctionError.
func Try[T any](fn func(prev T) (T, error)) Descriptor[T] {
	return Descriptor[T]{kind: kindTry, try: fn}
}

// Kind returns the descriptor variant name.
func (d Descriptor[T]) Kind() string {
	switch d.kind {
	case kindReplace:
		return "replace"
	case kindMerge:
		return "merge"
	case kindCompute:
		return "compute"
	case kindComputePatch:
		return "compute_patch"
	case kindTry:
		return "try"
	default:
		return "invalid"
	}
}

// UpdateOption configures one Update call.
type UpdateOption func(*updateConfig)

type updateConfig struct {
	equality EqualityMode
	ctx      context.Context
}

// WithEquality overrides the equality mode for this call.
func WithEquality(mode EqualityMode) UpdateOption {
	return func(c *updateConfig) {
		c.equality = mode
	}
}

// WithContext attaches a context passed to the store Observer, for tracing.
// The update itself never blocks on it.
func WithContext(ctx context.Context) UpdateOption {
	return func(c *updateConfig) {
		if ctx != nil {
			c.ctx = ctx
		}
	}
}

// Update resolves d against the committed value of key and commits the
// result unless the equality mode finds it a no-op. Listeners run after the
// commit, on the calling goroutine, before Update returns.
//
// Errors: *SliceNotFoundError or *SliceTypeError for a bad key,
// *UpdateFunctionError or *MergeError when d cannot be resolved (nothing is
// committed), *ListenerError when a listener panicked (the update is
// committed).
func Update[T any](s *Store, key Key[T], d Descriptor[T], opts ...UpdateOption) error {
	sl, err := lookup(s, key)
	if err != nil {
		return err
	}

	cfg := updateConfig{ctx: context.Background()}
	for _, opt := range opts {
		opt(&cfg)
	}

	ev := UpdateEvent{
		Slice: sl.name,
		Kind:  d.Kind(),
		Mode:  resolveMode(cfg.equality, sl.equality, s.defaultEquality),
		Start: time.Now(),
	}
	defer func() {
		ev.Duration = time.Since(ev.Start)
		s.observer.ObserveUpdate(cfg.ctx, ev)
	}()

	committed, err := apply(sl, d, ev.Mode)
	if err != nil {
		ev.Outcome, ev.Err = OutcomeFailed, err
		s.logger.Debug("slice update failed", "slice", sl.name, "kind", ev.Kind, "error", err)
		return err
	}
	if !committed {
		ev.Outcome = OutcomeSkipped
		return nil
	}

	ev.Outcome = OutcomeCommitted
	ev.Listeners, err = sl.emit()
	if err != nil {
		ev.Err = err
		s.logger.Warn("slice listener failed", "slice", sl.name, "error", err)
	}
	return err
}

// apply runs read-resolve-commit under the slice's writer lock, so updates
// of one slice are linearizable.
func apply[T any](sl *slot, d Descriptor[T], mode EqualityMode) (bool, error) {
	sl.writeMu.Lock()
	defer sl.writeMu.Unlock()

	current := sl.load()
	next, err := resolve(sl.name, as[T](current), d)
	if err != nil {
		return false, err
	}
	if mode.unchanged(current, any(next)) {
		return false, nil
	}
	sl.commit(any(next))
	return true, nil
}

// resolve computes the next value for d. Function descriptors are called
// exactly once.
func resolve[T any](slice string, current T, d Descriptor[T]) (T, error) {
	switch d.kind {
	case kindReplace:
		return d.value, nil

	case kindMerge:
		return mergeInto(slice, current, d.patch)

	case kindCompute:
		var next T
		err := guard(slice, func() error {
			next = d.compute(current)
			return nil
		})
		return next, err

	case kindComputePatch:
		var patch Patch
		if err := guard(slice, func() error {
			patch = d.computePatch(current)
			return nil
		}); err != nil {
			return current, err
		}
		return mergeInto(slice, current, patch)

	case kindTry:
		var next T
		err := guard(slice, func() error {
			var err error
			next, err = d.try(current)
			return err
		})
		return next, err

	default:
		return current, fmt.Errorf("%w for slice %q", ErrInvalidDescriptor, slice)
	}
}

// guard runs fn, converting a returned error or a panic into
// *UpdateFunctionError.
func guard(slice string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &UpdateFunctionError{Slice: slice, Err: asError(r), Panic: r}
		}
	}()
	if ferr := fn(); ferr != nil {
		return &UpdateFunctionError{Slice: slice, Err: ferr}
	}
	return nil
}

// Set replaces the slice value. It is Update with Replace.
func Set[T any](s *Store, key Key[T], v T, opts ...UpdateOption) error {
	return Update(s, key, Replace(v), opts...)
}

// Reset replaces the slice value with its declared initial value.
func Reset[T any](s *Store, key Key[T], opts ...UpdateOption) error {
	initial, err := Initial(s, key)
	if err != nil {
		return err
	}
	return Update(s, key, Replace(initial), opts...)
}
