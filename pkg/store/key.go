package store

import "reflect"

// Key is a typed slice identifier. Declare keys once, at package level, and
// pass them to Declare when building the store:
//
//	var Counter = store.NewKey[int]("counter")
//
//	s, err := store.New([]store.Declaration{
//	    store.Declare(Counter, 0),
//	})
type Key[T any] struct {
	name string
}

// NewKey returns the key for the slice named name holding values of type T.
func NewKey[T any](name string) Key[T] {
	return Key[T]{name: name}
}

// Name returns the slice name.
func (k Key[T]) Name() string {
	return k.name
}

func (k Key[T]) String() string {
	return k.name
}

// valueType returns the reflect.Type of T, including interface types.
func (k Key[T]) valueType() reflect.Type {
	return typeOf[T]()
}

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// SliceOption configures one declared slice.
type SliceOption func(*sliceOptions)

type sliceOptions struct {
	equality EqualityMode
}

// WithSliceEquality sets the equality mode for every update of this slice
// that does not override it per call.
func WithSliceEquality(mode EqualityMode) SliceOption {
	return func(o *sliceOptions) {
		o.equality = mode
	}
}

// Declaration is one entry of the closed slice set passed to New.
type Declaration struct {
	name    string
	typ     reflect.Type
	initial any
	opts    sliceOptions
}

// Declare pairs a key with its initial value.
func Declare[T any](key Key[T], initial T, opts ...SliceOption) Declaration {
	d := Declaration{
		name:    key.name,
		typ:     key.valueType(),
		initial: initial,
	}
	for _, opt := range opts {
		opt(&d.opts)
	}
	return d
}

// Name returns the declared slice name.
func (d Declaration) Name() string {
	return d.name
}

// as converts a stored value back to T. A nil interface yields the zero T.
func as[T any](v any) T {
	t, _ := v.(T)
	return t
}
