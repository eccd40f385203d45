// Package store provides a slice-based observable state store.
//
// A Store is built once from a closed set of declared slices. Each slice is
// read, updated and subscribed to independently, so a write to one slice
// never notifies listeners of another.
//
// # Declaring slices
//
//	var (
//	    Counter = store.NewKey[int]("counter")
//	    Profile = store.NewKey[User]("profile")
//	)
//
//	s, err := store.New([]store.Declaration{
//	    store.Declare(Counter, 0),
//	    store.Declare(Profile, User{Name: "A", Age: 30}, store.WithSliceEquality(store.Structural)),
//	})
//
// # Updating
//
// Updates are described by a Descriptor:
//
//	store.Update(s, Counter, store.Replace(5))
//	store.Update(s, Counter, store.Compute(func(n int) int { return n + 1 }))
//	store.Update(s, Profile, store.Merge[User](store.Patch{"Age": 31}))
//
// Merge is shallow and always produces a new value. An update whose result
// is identical to the committed value (or structurally equal, in Structural
// mode) is skipped: nothing is committed and no listener runs.
//
// # Bindings
//
// Use and Select bind a consumer to a slice, optionally through a selector.
// A binding re-projects on every commit and reports a change only when its
// comparator says the projection moved:
//
//	age, _ := store.Select(s, Profile, func(u User) int { return u.Age },
//	    store.WithOnChange(markDirty))
//	defer age.Close()
//
// Value returns the projection pinned for the current render pass; Refresh
// starts a new pass. A render that reads the same binding twice sees the same
// value even if the slice is written in between.
//
// # Thread Safety
//
// All operations are safe for concurrent use. Reads are lock-free. Writers of
// one slice are serialized, and listeners run on the writer's goroutine after
// the commit with no store lock held, so a listener may update the store.
// Compute functions run while the slice's writer lock is held and must not
// update the store.
package store
