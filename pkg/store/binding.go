package store

import (
	"fmt"
	"sync"

	"github.com/vango-dev/srasm/pkg/equal"
)

// Pass is the projection a consumer reads for one render pass.
type Pass[S any] struct {
	Value   S
	Version uint64
}

// BindOption configures a Binding.
type BindOption func(*bindConfig)

type bindConfig struct {
	onChange   func()
	equality   EqualityMode
	comparator any
	structural bool
}

// WithComparator replaces the default identity comparator. The comparator
// type must match the binding's projection type.
func WithComparator[S any](cmp func(a, b S) bool) BindOption {
	return func(c *bindConfig) {
		c.comparator = equal.Func[S](cmp)
		c.structural = false
	}
}

// WithStructuralComparator compares projections structurally, so selectors
// that build a fresh composite on every call do not report spurious changes.
func WithStructuralComparator() BindOption {
	return func(c *bindConfig) {
		c.comparator = nil
		c.structural = true
	}
}

// WithBindingEquality sets the equality mode Binding.Set uses.
func WithBindingEquality(mode EqualityMode) BindOption {
	return func(c *bindConfig) {
		c.equality = mode
	}
}

// WithOnChange registers a callback run, outside any lock, whenever the
// projection changes. Typically it marks the owning view dirty.
func WithOnChange(fn func()) BindOption {
	return func(c *bindConfig) {
		c.onChange = fn
	}
}

// Binding is a consumer's subscription to one slice, projected through a
// selector. It owns exactly one listener, removed by Close.
type Binding[T, S any] struct {
	store    *Store
	key      Key[T]
	selector func(T) S
	cmp      equal.Func[S]
	equality EqualityMode
	onChange func()
	changed  chan struct{}

	mu      sync.Mutex
	ready   bool
	latest  S
	version uint64
	pinned  Pass[S]

	unsub     Unsubscribe
	closeOnce sync.Once
}

// Use binds to the whole slice value.
func Use[T any](s *Store, key Key[T], opts ...BindOption) (*Binding[T, T], error) {
	return Select(s, key, func(v T) T { return v }, opts...)
}

// Select binds to selector(value). The binding subscribes first and reads
// second, so a commit racing the bind is reconciled by the listener and no
// change is lost.
func Select[T, S any](s *Store, key Key[T], selector func(T) S, opts ...BindOption) (*Binding[T, S], error) {
	if _, err := lookup(s, key); err != nil {
		return nil, err
	}
	if selector == nil {
		return nil, fmt.Errorf("store: nil selector for slice %q", key.name)
	}

	var cfg bindConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	cmp, err := comparatorFor[S](cfg)
	if err != nil {
		return nil, fmt.Errorf("store: slice %q: %w", key.name, err)
	}

	b := &Binding[T, S]{
		store:    s,
		key:      key,
		selector: selector,
		cmp:      cmp,
		equality: cfg.equality,
		onChange: cfg.onChange,
		changed:  make(chan struct{}, 1),
	}

	unsub, err := Subscribe(s, key, b.reconcile)
	if err != nil {
		return nil, err
	}
	b.unsub = unsub

	if err := b.init(); err != nil {
		unsub()
		return nil, err
	}
	return b, nil
}

// init projects the value read after subscribing, unless the listener got
// there first, and pins it as the first pass.
func (b *Binding[T, S]) init() (err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			err = &UpdateFunctionError{Slice: b.key.name, Err: asError(r), Panic: r}
		}
	}()

	if !b.ready {
		b.latest = b.selector(MustGet(b.store, b.key))
		b.ready = true
	}
	b.pinned = Pass[S]{Value: b.latest, Version: b.version}
	return nil
}

func comparatorFor[S any](cfg bindConfig) (equal.Func[S], error) {
	switch {
	case cfg.structural:
		return equal.Deep[S], nil
	case cfg.comparator != nil:
		cmp, ok := cfg.comparator.(equal.Func[S])
		if !ok {
			return nil, fmt.Errorf("comparator type %T does not match projection type %s", cfg.comparator, typeOf[S]())
		}
		return cmp, nil
	default:
		return equal.Identity[S], nil
	}
}

// reconcile is the binding's listener.
func (b *Binding[T, S]) reconcile() {
	if !b.advance() {
		return
	}
	if b.onChange != nil {
		b.onChange()
	}
	select {
	case b.changed <- struct{}{}:
	default:
	}
}

// advance re-projects the committed value and reports whether the
// projection changed.
func (b *Binding[T, S]) advance() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	next := b.selector(MustGet(b.store, b.key))
	if !b.ready {
		b.latest, b.ready = next, true
		return false
	}
	if b.cmp(b.latest, next) {
		return false
	}
	b.latest = next
	b.version++
	return true
}

// Value returns the projection pinned for the current pass. It does not move
// when the slice changes mid-pass; call Refresh to start a new pass.
func (b *Binding[T, S]) Value() S {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pinned.Value
}

// Pass returns the pinned projection and its version.
func (b *Binding[T, S]) Pass() Pass[S] {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pinned
}

// Refresh pins the latest projection and reports whether it differs from the
// previously pinned one.
func (b *Binding[T, S]) Refresh() (S, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	moved := b.pinned.Version != b.version
	b.pinned = Pass[S]{Value: b.latest, Version: b.version}
	return b.pinned.Value, moved
}

// Latest returns the most recent projection without pinning it.
func (b *Binding[T, S]) Latest() S {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.latest
}

// Version counts projection changes seen by the binding.
func (b *Binding[T, S]) Version() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.version
}

// Changed receives a value after one or more projection changes. Signals
// coalesce; read Latest or Refresh to observe the value.
func (b *Binding[T, S]) Changed() <-chan struct{} {
	return b.changed
}

// Key returns the bound slice key.
func (b *Binding[T, S]) Key() Key[T] {
	return b.key
}

// Set updates the bound slice. Options given here take precedence over the
// binding's equality mode.
func (b *Binding[T, S]) Set(d Descriptor[T], opts ...UpdateOption) error {
	if b.equality != inheritEquality {
		opts = append([]UpdateOption{WithEquality(b.equality)}, opts...)
	}
	return Update(b.store, b.key, d, opts...)
}

// Close removes the binding's listener. It is safe to call more than once.
func (b *Binding[T, S]) Close() {
	b.closeOnce.Do(func() {
		if b.unsub != nil {
			b.unsub()
		}
	})
}
