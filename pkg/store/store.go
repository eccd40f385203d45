package store

import (
	"log/slog"
	"sync"
)

// Store holds a closed set of independently observable slices.
//
// A Store is built once by New and stays live for the rest of the process;
// there is no close or drain state. All methods are safe for concurrent use.
type Store struct {
	reg             *registry
	defaultEquality EqualityMode
	logger          *slog.Logger
	observer        Observer
}

// Option configures a Store.
type Option func(*Store)

// WithDefaultEquality sets the equality mode used by updates that neither the
// call nor the slice declaration configure. Default: Reference.
func WithDefaultEquality(mode EqualityMode) Option {
	return func(s *Store) {
		s.defaultEquality = mode
	}
}

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithObserver installs an instrumentation observer. Use Observers to install
// more than one.
func WithObserver(o Observer) Option {
	return func(s *Store) {
		if o != nil {
			s.observer = o
		}
	}
}

// New builds a store from the complete set of slice declarations. No slices
// can be added afterwards.
func New(decls []Declaration, opts ...Option) (*Store, error) {
	reg, err := newRegistry(decls)
	if err != nil {
		return nil, err
	}

	s := &Store{
		reg:             reg,
		defaultEquality: Reference,
		logger:          slog.Default().With("component", "store"),
		observer:        nopObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}

	s.logger.Debug("store live", "slices", len(reg.names))
	return s, nil
}

// Keys returns the declared slice names in declaration order.
func (s *Store) Keys() []string {
	return s.reg.declared()
}

// Has reports whether name is a declared slice.
func (s *Store) Has(name string) bool {
	_, ok := s.reg.slots[name]
	return ok
}

// GetAny returns the committed value of the named slice.
func (s *Store) GetAny(name string) (any, error) {
	return s.reg.get(name)
}

// InitialAny returns the value the named slice was declared with.
func (s *Store) InitialAny(name string) (any, error) {
	sl, err := s.reg.lookup(name)
	if err != nil {
		return nil, err
	}
	return sl.initial, nil
}

// Revision returns the number of commits made to the named slice.
func (s *Store) Revision(name string) (uint64, error) {
	sl, err := s.reg.lookup(name)
	if err != nil {
		return 0, err
	}
	return sl.revision.Load(), nil
}

// SubscribeAny registers fn to run after every commit to the named slice.
func (s *Store) SubscribeAny(name string, fn func()) (Unsubscribe, error) {
	sl, err := s.reg.lookup(name)
	if err != nil {
		return nil, err
	}
	return s.subscribe(sl, fn), nil
}

// Snapshot reads every slice. Each value is consistent on its own; the map as
// a whole is not atomic with respect to concurrent updates.
func (s *Store) Snapshot() map[string]any {
	out := make(map[string]any, len(s.reg.names))
	for _, name := range s.reg.names {
		out[name] = s.reg.slots[name].load()
	}
	return out
}

// ReadMany reads the named slices. It fails on the first undeclared name.
func (s *Store) ReadMany(names ...string) (map[string]any, error) {
	out := make(map[string]any, len(names))
	for _, name := range names {
		v, err := s.reg.get(name)
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}

// Logger returns the store logger.
func (s *Store) Logger() *slog.Logger {
	return s.logger
}

func (s *Store) subscribe(sl *slot, fn func()) Unsubscribe {
	unsub := sl.subscribe(fn)
	s.observer.ObserveSubscribers(sl.name, 1)
	var once sync.Once
	return func() {
		once.Do(func() {
			unsub()
			s.observer.ObserveSubscribers(sl.name, -1)
		})
	}
}

// lookup resolves a typed key to its slot, checking the declared type.
func lookup[T any](s *Store, key Key[T]) (*slot, error) {
	sl, err := s.reg.lookup(key.name)
	if err != nil {
		return nil, err
	}
	if want := key.valueType(); sl.typ != want {
		return nil, &SliceTypeError{Key: key.name, Declared: sl.typ.String(), Used: want.String()}
	}
	return sl, nil
}

// Get returns the committed value of the slice.
func Get[T any](s *Store, key Key[T]) (T, error) {
	sl, err := lookup(s, key)
	if err != nil {
		var zero T
		return zero, err
	}
	return as[T](sl.load()), nil
}

// MustGet is Get for keys known to be declared. It panics otherwise.
func MustGet[T any](s *Store, key Key[T]) T {
	v, err := Get(s, key)
	if err != nil {
		panic(err)
	}
	return v
}

// Initial returns the value the slice was declared with.
func Initial[T any](s *Store, key Key[T]) (T, error) {
	sl, err := lookup(s, key)
	if err != nil {
		var zero T
		return zero, err
	}
	return as[T](sl.initial), nil
}

// Subscribe registers fn to run after every commit to the slice.
func Subscribe[T any](s *Store, key Key[T], fn func()) (Unsubscribe, error) {
	sl, err := lookup(s, key)
	if err != nil {
		return nil, err
	}
	return s.subscribe(sl, fn), nil
}
