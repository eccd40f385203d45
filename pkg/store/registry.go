package store

import (
	"errors"
	"reflect"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// Unsubscribe removes a listener. Calling it more than once is a no-op.
type Unsubscribe func()

// cell boxes a committed value so a commit is one pointer store.
type cell struct {
	v any
}

// listenerEntry pairs a listener with the id used to remove it.
type listenerEntry struct {
	id uint64
	fn func()
}

// slot is the registry entry for one slice: its committed value, its initial
// value, and its listener set.
type slot struct {
	name     string
	typ      reflect.Type
	initial  any
	equality EqualityMode

	// value is read without locks; writeMu serializes read-compute-commit.
	value    atomic.Pointer[cell]
	revision atomic.Uint64
	writeMu  sync.Mutex

	// subs are the listeners subscribed to this slice.
	subs   []listenerEntry
	nextID uint64
	subMu  sync.RWMutex
}

func newSlot(d Declaration) *slot {
	sl := &slot{
		name:     d.name,
		typ:      d.typ,
		initial:  d.initial,
		equality: d.opts.equality,
	}
	sl.value.Store(&cell{v: d.initial})
	return sl
}

// load returns the committed value.
func (sl *slot) load() any {
	return sl.value.Load().v
}

// commit replaces the committed value and bumps the revision.
// Callers hold writeMu.
func (sl *slot) commit(v any) {
	sl.value.Store(&cell{v: v})
	sl.revision.Add(1)
}

// subscribe adds fn to the listener set.
func (sl *slot) subscribe(fn func()) Unsubscribe {
	sl.subMu.Lock()
	sl.nextID++
	id := sl.nextID
	sl.subs = append(sl.subs, listenerEntry{id: id, fn: fn})
	sl.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { sl.unsubscribe(id) })
	}
}

// unsubscribe removes the listener with the given id.
func (sl *slot) unsubscribe(id uint64) {
	sl.subMu.Lock()
	defer sl.subMu.Unlock()

	for i, existing := range sl.subs {
		if existing.id == id {
			// Remove by swapping with last element (order doesn't matter)
			sl.subs[i] = sl.subs[len(sl.subs)-1]
			sl.subs = sl.subs[:len(sl.subs)-1]
			return
		}
	}
}

// listenerCount returns the number of registered listeners.
func (sl *slot) listenerCount() int {
	sl.subMu.RLock()
	defer sl.subMu.RUnlock()
	return len(sl.subs)
}

// emit runs every registered listener. Listeners are copied before the
// calls, so a listener may subscribe, unsubscribe or write without deadlock.
// A panicking listener does not stop the others; all failures are returned.
func (sl *slot) emit() (int, error) {
	sl.subMu.RLock()
	subs := make([]listenerEntry, len(sl.subs))
	copy(subs, sl.subs)
	sl.subMu.RUnlock()

	var errs []error
	for _, sub := range subs {
		if err := sl.call(sub.fn); err != nil {
			errs = append(errs, err)
		}
	}

	switch len(errs) {
	case 0:
		return len(subs), nil
	case 1:
		return len(subs), errs[0]
	default:
		return len(subs), errors.Join(errs...)
	}
}

func (sl *slot) call(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ListenerError{Slice: sl.name, Panic: r, Stack: debug.Stack()}
		}
	}()
	fn()
	return nil
}

// registry is the closed set of slots, keyed by slice name.
type registry struct {
	slots map[string]*slot
	names []string
}

func newRegistry(decls []Declaration) (*registry, error) {
	r := &registry{
		slots: make(map[string]*slot, len(decls)),
		names: make([]string, 0, len(decls)),
	}
	for _, d := range decls {
		if _, exists := r.slots[d.name]; exists {
			return nil, &DuplicateSliceError{Key: d.name}
		}
		r.slots[d.name] = newSlot(d)
		r.names = append(r.names, d.name)
	}
	return r, nil
}

// lookup returns the slot for name or a *SliceNotFoundError.
func (r *registry) lookup(name string) (*slot, error) {
	sl, ok := r.slots[name]
	if !ok {
		return nil, &SliceNotFoundError{Key: name, Declared: r.declared()}
	}
	return sl, nil
}

// get returns the committed value of name.
func (r *registry) get(name string) (any, error) {
	sl, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	return sl.load(), nil
}

// subscribe registers fn against name.
func (r *registry) subscribe(name string, fn func()) (Unsubscribe, error) {
	sl, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	return sl.subscribe(fn), nil
}

// emit notifies every listener of name.
func (r *registry) emit(name string) error {
	sl, err := r.lookup(name)
	if err != nil {
		return err
	}
	_, err = sl.emit()
	return err
}

// declared returns a copy of the declared names in declaration order.
func (r *registry) declared() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}
