package offload

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vango-dev/srasm/pkg/store"
)

var itemsKey = store.NewKey[[]int]("items")

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newStore(t *testing.T, initial []int) *store.Store {
	t.Helper()
	s, err := store.New([]store.Declaration{store.Declare(itemsKey, initial)}, store.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	return s
}

func appendOne(prev []int) []int {
	next := make([]int, len(prev), len(prev)+1)
	copy(next, prev)
	return append(next, len(prev))
}

func TestPredict(t *testing.T) {
	d := New(Config{}, quietLogger())

	tests := []struct {
		name    string
		payload any
		want    bool
	}{
		{"small", map[string]int{"a": 1}, false},
		{"nil", nil, false},
		{"large", make([]int, 3000), true},
		{"not encodable", make(chan int), true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := d.Predict("x", tc.payload); got != tc.want {
				t.Errorf("Predict() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestApply_LightRunsInline(t *testing.T) {
	s := newStore(t, []int{})
	d := New(Config{}, quietLogger())
	defer d.Close()

	if err := Apply(context.Background(), d, s, itemsKey, appendOne); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got := store.MustGet(s, itemsKey); len(got) != 1 {
		t.Errorf("items = %v", got)
	}
	if st := d.Stats(); st.Inline != 1 || st.Offloaded != 0 {
		t.Errorf("stats = %+v", st)
	}
}

func TestApply_HeavyIsOffloaded(t *testing.T) {
	s := newStore(t, []int{1, 2, 3})
	d := New(Config{Threshold: 1}, quietLogger())
	defer d.Close()

	notified := 0
	unsub, _ := store.Subscribe(s, itemsKey, func() { notified++ })
	defer unsub()

	if err := Apply(context.Background(), d, s, itemsKey, appendOne); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got := store.MustGet(s, itemsKey); len(got) != 4 || got[3] != 3 {
		t.Errorf("items = %v", got)
	}
	if notified != 1 {
		t.Errorf("listener calls = %d, want 1", notified)
	}
	if st := d.Stats(); st.Offloaded != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestApply_StaleResultIsRecomputed(t *testing.T) {
	s := newStore(t, []int{1})
	d := New(Config{Threshold: 1}, quietLogger())
	defer d.Close()

	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	fn := func(prev []int) []int {
		if calls.Add(1) == 1 {
			close(started)
			<-release
		}
		return appendOne(prev)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- Apply(context.Background(), d, s, itemsKey, fn) }()

	<-started
	if err := store.Set(s, itemsKey, []int{7, 8}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	close(release)

	if err := <-errCh; err != nil {
		t.Fatalf("Apply: %v", err)
	}
	got := store.MustGet(s, itemsKey)
	if len(got) != 3 || got[0] != 7 || got[2] != 2 {
		t.Errorf("items = %v, want [7 8 2]", got)
	}
	if st := d.Stats(); st.Stale != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestApply_TimeoutFallsBack(t *testing.T) {
	s := newStore(t, []int{1})
	d := New(Config{Threshold: 1, Timeout: 20 * time.Millisecond}, quietLogger())

	release := make(chan struct{})
	var calls atomic.Int32
	fn := func(prev []int) []int {
		if calls.Add(1) == 1 {
			<-release
		}
		return appendOne(prev)
	}

	if err := Apply(context.Background(), d, s, itemsKey, fn); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got := store.MustGet(s, itemsKey); len(got) != 2 {
		t.Errorf("items = %v", got)
	}
	if st := d.Stats(); st.Fallbacks != 1 {
		t.Errorf("stats = %+v", st)
	}

	close(release)
	if err := d.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	// The late result is discarded.
	if got := store.MustGet(s, itemsKey); len(got) != 2 {
		t.Errorf("items after close = %v", got)
	}
}

func TestApply_BusyWorkersFallBack(t *testing.T) {
	s := newStore(t, []int{1})
	d := New(Config{Threshold: 1, Workers: 1, Timeout: time.Second}, quietLogger())
	defer d.Close()

	started := make(chan struct{})
	release := make(chan struct{})
	blocking := func(prev []int) []int {
		close(started)
		<-release
		return prev
	}

	errCh := make(chan error, 1)
	go func() { errCh <- Apply(context.Background(), d, s, itemsKey, blocking) }()
	<-started

	if err := Apply(context.Background(), d, s, itemsKey, appendOne); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if st := d.Stats(); st.Fallbacks != 1 {
		t.Errorf("stats = %+v", st)
	}

	close(release)
	if err := <-errCh; err != nil {
		t.Fatalf("blocked Apply: %v", err)
	}
}

func TestApply_PanicBecomesUpdateError(t *testing.T) {
	s := newStore(t, []int{1})
	d := New(Config{Threshold: 1}, quietLogger())
	defer d.Close()

	err := Apply(context.Background(), d, s, itemsKey, func([]int) []int {
		panic("boom")
	})
	if !errors.Is(err, store.ErrUpdateFunction) {
		t.Fatalf("err = %v, want ErrUpdateFunction", err)
	}
	if rev, _ := s.Revision(itemsKey.Name()); rev != 0 {
		t.Errorf("revision = %d, want no commit", rev)
	}
}

func TestApply_AfterCloseRunsInline(t *testing.T) {
	s := newStore(t, []int{1})
	d := New(Config{Threshold: 1}, quietLogger())
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	if err := Apply(context.Background(), d, s, itemsKey, appendOne); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got := store.MustGet(s, itemsKey); len(got) != 2 {
		t.Errorf("items = %v", got)
	}
	if st := d.Stats(); st.Fallbacks != 1 || st.Offloaded != 0 {
		t.Errorf("stats = %+v", st)
	}
}

func TestApply_NilDispatcher(t *testing.T) {
	s := newStore(t, []int{})
	if err := Apply(context.Background(), nil, s, itemsKey, appendOne); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got := store.MustGet(s, itemsKey); len(got) != 1 {
		t.Errorf("items = %v", got)
	}
}

func TestApply_UndeclaredSlice(t *testing.T) {
	s := newStore(t, []int{})
	d := New(Config{}, quietLogger())
	defer d.Close()

	missing := store.NewKey[[]int]("missing")
	if err := Apply(context.Background(), d, s, missing, appendOne); !errors.Is(err, store.ErrSliceNotFound) {
		t.Errorf("err = %v, want ErrSliceNotFound", err)
	}
}
