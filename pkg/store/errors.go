package store

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for errors.Is matching. The typed errors below match them.
var (
	// ErrSliceNotFound is matched by *SliceNotFoundError.
	ErrSliceNotFound = errors.New("store: slice not found")

	// ErrUpdateFunction is matched by *UpdateFunctionError.
	ErrUpdateFunction = errors.New("store: update function failed")

	// ErrListener is matched by *ListenerError.
	ErrListener = errors.New("store: listener failed")

	// ErrInvalidDescriptor is returned for a zero Descriptor.
	ErrInvalidDescriptor = errors.New("store: invalid update descriptor")
)

// SliceNotFoundError reports a key that was not declared when the store was
// built. Declared lists every valid key so the failure can be diagnosed from
// the error alone.
type SliceNotFoundError struct {
	Key      string
	Declared []string
}

func (e *SliceNotFoundError) Error() string {
	return fmt.Sprintf("store: slice %q not found (declared: %s)", e.Key, strings.Join(e.Declared, ", "))
}

// Is matches ErrSliceNotFound.
func (e *SliceNotFoundError) Is(target error) bool {
	return target == ErrSliceNotFound
}

// SliceTypeError reports a key used with a value type other than the one it
// was declared with.
type SliceTypeError struct {
	Key      string
	Declared string
	Used     string
}

func (e *SliceTypeError) Error() string {
	return fmt.Sprintf("store: slice %q declared as %s, used as %s", e.Key, e.Declared, e.Used)
}

// Is matches ErrSliceNotFound: a mistyped key names no slice of that type.
func (e *SliceTypeError) Is(target error) bool {
	return target == ErrSliceNotFound
}

// DuplicateSliceError is returned by New when two declarations share a key.
type DuplicateSliceError struct {
	Key string
}

func (e *DuplicateSliceError) Error() string {
	return fmt.Sprintf("store: slice %q declared more than once", e.Key)
}

// UpdateFunctionError wraps a failure raised by a Compute, ComputePatch or
// Try descriptor. The slice is left unchanged.
type UpdateFunctionError struct {
	Slice string

	// Err is the returned error, or a wrapper around the recovered panic.
	Err error

	// Panic is the recovered panic value, nil when the function returned an error.
	Panic any
}

func (e *UpdateFunctionError) Error() string {
	return fmt.Sprintf("store: update function for slice %q failed: %v", e.Slice, e.Err)
}

func (e *UpdateFunctionError) Unwrap() error {
	return e.Err
}

// Is matches ErrUpdateFunction.
func (e *UpdateFunctionError) Is(target error) bool {
	return target == ErrUpdateFunction
}

// ListenerError wraps a panic raised by a listener during emit. The update
// that triggered the emit is already committed.
type ListenerError struct {
	Slice string
	Panic any
	Stack []byte
}

func (e *ListenerError) Error() string {
	return fmt.Sprintf("store: listener for slice %q panicked: %v", e.Slice, e.Panic)
}

// Unwrap exposes the panic value when it was an error.
func (e *ListenerError) Unwrap() error {
	if err, ok := e.Panic.(error); ok {
		return err
	}
	return nil
}

// Is matches ErrListener.
func (e *ListenerError) Is(target error) bool {
	return target == ErrListener
}

// MergeError reports a patch that cannot be merged into the slice value.
type MergeError struct {
	Slice  string
	Field  string
	Reason string
}

func (e *MergeError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("store: cannot merge field %q into slice %q: %s", e.Field, e.Slice, e.Reason)
	}
	return fmt.Sprintf("store: cannot merge into slice %q: %s", e.Slice, e.Reason)
}

// panicError carries a recovered panic value that was not an error.
type panicError struct {
	value any
}

func (p panicError) Error() string {
	return fmt.Sprintf("panic: %v", p.value)
}

func asError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return panicError{value: r}
}
