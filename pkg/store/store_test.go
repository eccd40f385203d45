package store

import (
	"errors"
	"sync/atomic"
	"testing"
)

func TestStoreScenario(t *testing.T) {
	counter := NewKey[int]("counter")
	profile := NewKey[map[string]any]("profile")

	s, err := New([]Declaration{
		Declare(counter, 0),
		Declare(profile, map[string]any{"name": nil}),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var counterCalls atomic.Int32
	if _, err := Subscribe(s, counter, func() { counterCalls.Add(1) }); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := Update(s, counter, Compute(func(n int) int { return n + 1 })); err != nil {
			t.Fatalf("Update counter: %v", err)
		}
	}
	if got := MustGet(s, counter); got != 3 {
		t.Errorf("expected counter 3, got %d", got)
	}

	if err := Update(s, profile, Merge[map[string]any](Patch{"name": "Ada"})); err != nil {
		t.Fatalf("Update profile: %v", err)
	}
	got := MustGet(s, profile)
	if len(got) != 1 || got["name"] != "Ada" {
		t.Errorf("expected {name: Ada}, got %v", got)
	}

	if counterCalls.Load() != 3 {
		t.Errorf("expected 3 counter notifications, got %d", counterCalls.Load())
	}
}

func TestStoreFanOut(t *testing.T) {
	s := newTestStore(t)

	const n = 10
	counts := make([]*atomic.Int32, n)
	for i := range counts {
		counts[i] = countCalls(t, s, "counter")
	}

	_ = Set(s, counterKey, 1)
	_ = Set(s, counterKey, 1)
	_ = Set(s, counterKey, 2)

	for i, c := range counts {
		if c.Load() != 2 {
			t.Errorf("listener %d: expected 2 notifications, got %d", i, c.Load())
		}
	}
}

func TestStoreIsolation(t *testing.T) {
	s := newTestStore(t)
	userCalls := countCalls(t, s, "user")

	_ = Set(s, counterKey, 1)
	_ = Update(s, attrsKey, Merge[map[string]int](Patch{"a": 9}))

	if userCalls.Load() != 0 {
		t.Errorf("updates to other slices should not notify, got %d", userCalls.Load())
	}
}

func TestStoreUnsubscribe(t *testing.T) {
	s := newTestStore(t)

	var calls atomic.Int32
	unsub, err := Subscribe(s, counterKey, func() { calls.Add(1) })
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	_ = Set(s, counterKey, 1)
	unsub()
	_ = Set(s, counterKey, 2)

	if calls.Load() != 1 {
		t.Errorf("expected 1 notification, got %d", calls.Load())
	}
}

func TestStoreSnapshot(t *testing.T) {
	s := newTestStore(t)
	_ = Set(s, counterKey, 4)

	snap := s.Snapshot()
	if len(snap) != len(s.Keys()) {
		t.Fatalf("snapshot has %d slices, want %d", len(snap), len(s.Keys()))
	}
	if snap["counter"] != 4 {
		t.Errorf("expected counter 4 in snapshot, got %v", snap["counter"])
	}

	many, err := s.ReadMany("counter", "user")
	if err != nil {
		t.Fatalf("ReadMany: %v", err)
	}
	if len(many) != 2 {
		t.Errorf("expected 2 values, got %d", len(many))
	}

	if _, err := s.ReadMany("counter", "nope"); !errors.Is(err, ErrSliceNotFound) {
		t.Errorf("expected ErrSliceNotFound, got %v", err)
	}
}

func TestStoreKeysAndHas(t *testing.T) {
	s := newTestStore(t)

	keys := s.Keys()
	want := []string{"counter", "user", "userPtr", "attrs", "any"}
	if len(keys) != len(want) {
		t.Fatalf("expected %v, got %v", want, keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("key %d: expected %q, got %q", i, want[i], keys[i])
		}
	}

	keys[0] = "mutated"
	if s.Keys()[0] != "counter" {
		t.Error("Keys must return a copy")
	}

	if !s.Has("user") || s.Has("ghost") {
		t.Error("Has reported wrong membership")
	}
}

func TestStoreInitialAny(t *testing.T) {
	s := newTestStore(t)
	_ = Set(s, counterKey, 8)

	v, err := s.InitialAny("counter")
	if err != nil {
		t.Fatalf("InitialAny: %v", err)
	}
	if v != 0 {
		t.Errorf("expected initial 0, got %v", v)
	}
	if cur, _ := s.GetAny("counter"); cur != 8 {
		t.Errorf("expected current 8, got %v", cur)
	}
}

func TestParseEqualityMode(t *testing.T) {
	tests := []struct {
		in      string
		want    EqualityMode
		wantErr bool
	}{
		{"", Reference, false},
		{"reference", Reference, false},
		{"Structural", Structural, false},
		{" deep ", Structural, false},
		{"fuzzy", inheritEquality, true},
	}
	for _, tc := range tests {
		got, err := ParseEqualityMode(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseEqualityMode(%q) err = %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("ParseEqualityMode(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestMustGetPanics(t *testing.T) {
	s := newTestStore(t)
	defer func() {
		if recover() == nil {
			t.Error("expected panic for undeclared key")
		}
	}()
	MustGet(s, NewKey[int]("ghost"))
}
