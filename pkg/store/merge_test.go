package store

import (
	"errors"
	"math"
	"testing"
)

func TestMergeStruct(t *testing.T) {
	s := newTestStore(t)
	before := MustGet(s, userKey)

	if err := Update(s, userKey, Merge[user](Patch{"Age": 31})); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got := MustGet(s, userKey)
	if got.Name != "A" || got.Age != 31 {
		t.Errorf("expected {A 31}, got %+v", got)
	}
	if before.Age != 30 {
		t.Errorf("previous value mutated: %+v", before)
	}
}

func TestMergeByJSONTag(t *testing.T) {
	s := newTestStore(t)
	if err := Update(s, userKey, Merge[user](Patch{"name": "B"})); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got := MustGet(s, userKey); got.Name != "B" || got.Age != 30 {
		t.Errorf("expected {B 30}, got %+v", got)
	}
}

func TestMergePointerProducesNewValue(t *testing.T) {
	s := newTestStore(t)
	before := MustGet(s, userPtrKey)
	calls := countCalls(t, s, "userPtr")

	if err := Update(s, userPtrKey, Merge[*user](Patch{"Name": "Q"})); err != nil {
		t.Fatalf("Update: %v", err)
	}
	after := MustGet(s, userPtrKey)
	if after == before {
		t.Fatal("merge must produce a new pointer")
	}
	if before.Name != "P" {
		t.Errorf("previous value mutated: %+v", before)
	}
	if after.Name != "Q" || after.Age != 1 {
		t.Errorf("expected {Q 1}, got %+v", after)
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 notification, got %d", calls.Load())
	}
}

func TestMergeMap(t *testing.T) {
	s := newTestStore(t)
	before := MustGet(s, attrsKey)

	if err := Update(s, attrsKey, Merge[map[string]int](Patch{"b": 3})); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got := MustGet(s, attrsKey)
	if len(got) != 2 || got["a"] != 1 || got["b"] != 3 {
		t.Errorf("expected {a:1 b:3}, got %v", got)
	}
	if before["b"] != 2 {
		t.Errorf("previous map mutated: %v", before)
	}
}

func TestMergeVersusReplace(t *testing.T) {
	s := newTestStore(t)
	_ = Set(s, attrsKey, map[string]int{"a": 1})

	if err := Set(s, attrsKey, map[string]int{"c": 9}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got := MustGet(s, attrsKey)
	if len(got) != 1 || got["c"] != 9 {
		t.Errorf("replace should leave exactly {c:9}, got %v", got)
	}
}

func TestMergeInterfaceValue(t *testing.T) {
	s := newTestStore(t)
	_ = Set[any](s, anyKey, map[string]any{"x": 1})

	if err := Update(s, anyKey, Merge[any](Patch{"y": "two"})); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, ok := MustGet(s, anyKey).(map[string]any)
	if !ok {
		t.Fatalf("expected map[string]any, got %T", MustGet(s, anyKey))
	}
	if got["x"] != 1 || got["y"] != "two" {
		t.Errorf("unexpected merge result %v", got)
	}
}

func TestMergeNilMap(t *testing.T) {
	s := newTestStore(t)
	_ = Set(s, attrsKey, nil)

	if err := Update(s, attrsKey, Merge[map[string]int](Patch{"z": 1})); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got := MustGet(s, attrsKey); got["z"] != 1 {
		t.Errorf("expected z=1, got %v", got)
	}
}

func TestMergeConversions(t *testing.T) {
	s := newTestStore(t)

	if err := Update(s, userKey, Merge[user](Patch{"Age": 40.0})); err != nil {
		t.Fatalf("float to int: %v", err)
	}
	if got := MustGet(s, userKey); got.Age != 40 {
		t.Errorf("expected 40, got %d", got.Age)
	}

	if err := Update(s, userKey, Merge[user](Patch{"Age": int64(41)})); err != nil {
		t.Fatalf("int64 to int: %v", err)
	}

	if err := Update(s, userKey, Merge[user](Patch{"Tags": nil})); err != nil {
		t.Fatalf("nil value: %v", err)
	}
	if got := MustGet(s, userKey); got.Tags != nil {
		t.Errorf("expected nil tags, got %v", got.Tags)
	}
}

func TestMergeErrors(t *testing.T) {
	s := newTestStore(t)

	tests := []struct {
		name  string
		run   func() error
		field string
	}{
		{
			name:  "unknown field",
			run:   func() error { return Update(s, userKey, Merge[user](Patch{"Missing": 1})) },
			field: "Missing",
		},
		{
			name:  "unexported field",
			run:   func() error { return Update(s, userKey, Merge[user](Patch{"email": "x"})) },
			field: "email",
		},
		{
			name:  "type mismatch",
			run:   func() error { return Update(s, userKey, Merge[user](Patch{"Name": 5})) },
			field: "Name",
		},
		{
			name: "not a composite",
			run:  func() error { return Update(s, counterKey, Merge[int](Patch{"x": 1})) },
		},
		{
			name: "nil interface",
			run:  func() error { return Update(s, anyKey, Merge[any](Patch{"x": 1})) },
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.run()
			var me *MergeError
			if !errors.As(err, &me) {
				t.Fatalf("expected *MergeError, got %v", err)
			}
			if me.Field != tc.field {
				t.Errorf("field = %q, want %q", me.Field, tc.field)
			}
		})
	}

	if got := MustGet(s, userKey); got.Name != "A" || got.Age != 30 {
		t.Errorf("failed merges must not commit, got %+v", got)
	}
}

func TestMergeNilPointer(t *testing.T) {
	s := newTestStore(t)
	_ = Set(s, userPtrKey, nil)

	err := Update(s, userPtrKey, Merge[*user](Patch{"Name": "x"}))
	var me *MergeError
	if !errors.As(err, &me) {
		t.Fatalf("expected *MergeError, got %v", err)
	}
}

type Details struct {
	Bio string
}

type details struct {
	Bio string
}

type card struct {
	*Details
	Title string
}

type hiddenCard struct {
	*details
	Title string
}

func TestMergeEmbeddedPointer(t *testing.T) {
	shared := &Details{Bio: "old"}
	key := NewKey[card]("card")
	s, err := New([]Declaration{Declare(key, card{Details: shared, Title: "t"})})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	before := MustGet(s, key)
	calls := countCalls(t, s, "card")

	if err := Update(s, key, Merge[card](Patch{"Bio": "new"})); err != nil {
		t.Fatalf("Update: %v", err)
	}
	after := MustGet(s, key)
	if after.Bio != "new" || after.Title != "t" {
		t.Errorf("expected {new t}, got %+v %q", *after.Details, after.Title)
	}
	if after.Details == shared {
		t.Error("merge must copy the embedded struct")
	}
	if shared.Bio != "old" || before.Bio != "old" {
		t.Errorf("committed value mutated: %q", shared.Bio)
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 notification, got %d", calls.Load())
	}
}

func TestMergeEmbeddedPointerRejected(t *testing.T) {
	shared := &details{Bio: "old"}
	hiddenKey := NewKey[hiddenCard]("hidden")
	nilKey := NewKey[card]("nilCard")
	s, err := New([]Declaration{
		Declare(hiddenKey, hiddenCard{details: shared}),
		Declare(nilKey, card{}),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	errs := map[string]error{
		"unexported embed": Update(s, hiddenKey, Merge[hiddenCard](Patch{"Bio": "new"})),
		"nil embed":        Update(s, nilKey, Merge[card](Patch{"Bio": "new"})),
	}
	for name, err := range errs {
		var me *MergeError
		if !errors.As(err, &me) || me.Field != "Bio" {
			t.Errorf("%s: expected *MergeError on Bio, got %v", name, err)
		}
	}
	if shared.Bio != "old" {
		t.Errorf("committed value mutated: %q", shared.Bio)
	}
}

type sizes struct {
	Age   int
	Small uint8
	Ratio float32
}

func TestMergeLossyConversions(t *testing.T) {
	key := NewKey[sizes]("sizes")
	s, err := New([]Declaration{Declare(key, sizes{Age: 1, Small: 2, Ratio: 0.5})})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tests := []struct {
		name  string
		patch Patch
	}{
		{"fraction to int", Patch{"Age": 3.7}},
		{"negative to uint", Patch{"Small": -1}},
		{"negative float to uint", Patch{"Small": -1.0}},
		{"overflow uint8", Patch{"Small": 300}},
		{"NaN to int", Patch{"Age": math.NaN()}},
		{"overflow float32", Patch{"Ratio": math.MaxFloat64}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := Update(s, key, Merge[sizes](tc.patch))
			var me *MergeError
			if !errors.As(err, &me) {
				t.Fatalf("expected *MergeError, got %v", err)
			}
		})
	}
	if got := MustGet(s, key); got != (sizes{Age: 1, Small: 2, Ratio: 0.5}) {
		t.Errorf("failed merges must not commit, got %+v", got)
	}

	if err := Update(s, key, Merge[sizes](Patch{"Age": 7.0, "Small": 255.0, "Ratio": 0.25})); err != nil {
		t.Fatalf("exact conversions: %v", err)
	}
	if got := MustGet(s, key); got != (sizes{Age: 7, Small: 255, Ratio: 0.25}) {
		t.Errorf("expected {7 255 0.25}, got %+v", got)
	}
}
