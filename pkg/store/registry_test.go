package store

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func newTestRegistry(t *testing.T) *registry {
	t.Helper()
	r, err := newRegistry([]Declaration{
		Declare(NewKey[int]("a"), 1),
		Declare(NewKey[string]("b"), "x"),
	})
	if err != nil {
		t.Fatalf("newRegistry: %v", err)
	}
	return r
}

func TestRegistryGet(t *testing.T) {
	r := newTestRegistry(t)

	v, err := r.get("a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if v != 1 {
		t.Errorf("expected 1, got %v", v)
	}

	_, err = r.get("missing")
	var nf *SliceNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected *SliceNotFoundError, got %T", err)
	}
	if nf.Key != "missing" {
		t.Errorf("expected key missing, got %q", nf.Key)
	}
	if len(nf.Declared) != 2 || nf.Declared[0] != "a" || nf.Declared[1] != "b" {
		t.Errorf("expected declared [a b], got %v", nf.Declared)
	}
	if !errors.Is(err, ErrSliceNotFound) {
		t.Error("expected errors.Is(err, ErrSliceNotFound)")
	}
}

func TestRegistryDuplicate(t *testing.T) {
	_, err := newRegistry([]Declaration{
		Declare(NewKey[int]("a"), 1),
		Declare(NewKey[int]("a"), 2),
	})
	var dup *DuplicateSliceError
	if !errors.As(err, &dup) || dup.Key != "a" {
		t.Fatalf("expected duplicate error for a, got %v", err)
	}
}

func TestRegistryEmit(t *testing.T) {
	r := newTestRegistry(t)

	var calls atomic.Int32
	unsub, err := r.subscribe("a", func() { calls.Add(1) })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if _, err := r.subscribe("a", func() { calls.Add(1) }); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := r.emit("a"); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", calls.Load())
	}

	unsub()
	unsub() // idempotent

	if err := r.emit("a"); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 calls after unsubscribe, got %d", calls.Load())
	}

	if err := r.emit("b"); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("emit on b should not reach a's listeners, got %d", calls.Load())
	}
}

func TestRegistryEmitPanics(t *testing.T) {
	r := newTestRegistry(t)
	sl := r.slots["a"]

	var ran atomic.Int32
	sl.subscribe(func() { panic("boom") })
	sl.subscribe(func() { ran.Add(1) })
	sl.subscribe(func() { panic(errors.New("bang")) })

	n, err := sl.emit()
	if n != 3 {
		t.Errorf("expected 3 listeners, got %d", n)
	}
	if ran.Load() != 1 {
		t.Errorf("healthy listener should still run, ran %d times", ran.Load())
	}
	if !errors.Is(err, ErrListener) {
		t.Fatalf("expected ErrListener, got %v", err)
	}

	var le *ListenerError
	if !errors.As(err, &le) {
		t.Fatalf("expected *ListenerError, got %T", err)
	}
	if le.Slice != "a" || len(le.Stack) == 0 {
		t.Errorf("unexpected listener error: %+v", le)
	}
}

func TestRegistryEmitReentrantSubscribe(t *testing.T) {
	r := newTestRegistry(t)
	sl := r.slots["a"]

	var inner atomic.Int32
	sl.subscribe(func() {
		sl.subscribe(func() { inner.Add(1) })
	})

	if _, err := sl.emit(); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if inner.Load() != 0 {
		t.Errorf("listener added during emit should not run in the same cycle")
	}
	if sl.listenerCount() != 2 {
		t.Errorf("expected 2 listeners, got %d", sl.listenerCount())
	}
}

func TestRegistryConcurrentSubscribe(t *testing.T) {
	r := newTestRegistry(t)
	sl := r.slots["a"]

	var wg sync.WaitGroup
	unsubs := make([]Unsubscribe, 50)
	for i := range unsubs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			unsubs[i] = sl.subscribe(func() {})
		}(i)
	}
	wg.Wait()

	if sl.listenerCount() != 50 {
		t.Fatalf("expected 50 listeners, got %d", sl.listenerCount())
	}

	for _, u := range unsubs {
		wg.Add(1)
		go func(u Unsubscribe) {
			defer wg.Done()
			u()
		}(u)
	}
	wg.Wait()

	if sl.listenerCount() != 0 {
		t.Errorf("expected 0 listeners, got %d", sl.listenerCount())
	}
}
