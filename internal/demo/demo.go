package demo

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/vango-dev/srasm/pkg/offload"
	"github.com/vango-dev/srasm/pkg/scope"
	"github.com/vango-dev/srasm/pkg/store"
)

// Slice keys.
var (
	BlogKey    = store.NewKey[Blog]("blog")
	UserKey    = store.NewKey[User]("user")
	CounterKey = store.NewKey[CounterSlice]("demoA")
	TextKey    = store.NewKey[TextSlice]("demoB")
)

// Declarations returns the demo slices seeded at now.
func Declarations(now time.Time) []store.Declaration {
	return []store.Declaration{
		store.Declare(BlogKey, InitialBlog(), store.WithSliceEquality(store.Structural)),
		store.Declare(UserKey, User{ID: "1", Name: "Sarah Johnson", Email: "sarah@example.com"}),
		store.Declare(CounterKey, InitialCounter(now)),
		store.Declare(TextKey, InitialText()),
	}
}

// NewStore creates a store holding the demo slices.
func NewStore(opts ...store.Option) (*store.Store, error) {
	return store.New(Declarations(time.Now()), opts...)
}

// Env is what a demo run needs. Dispatcher and Scope may be nil.
type Env struct {
	Store      *store.Store
	Dispatcher *offload.Dispatcher
	Scope      *scope.Scope
	Out        io.Writer
	Now        func() time.Time
}

// Result summarises a demo run.
type Result struct {
	// Notifications counts listener calls per slice.
	Notifications map[string]int

	// Failure is the failure caught by the scope, if any.
	Failure *scope.Failure
}

// Run drives the demo slices through every kind of update and prints what
// each one did. Listeners on each slice show that an update only notifies
// its own slice's subscribers.
func Run(ctx context.Context, env Env) (*Result, error) {
	if env.Out == nil {
		env.Out = io.Discard
	}
	if env.Now == nil {
		env.Now = time.Now
	}
	s := env.Store

	var mu sync.Mutex
	counts := make(map[string]int)
	for _, name := range s.Keys() {
		unsub, err := s.SubscribeAny(name, func() {
			mu.Lock()
			counts[name]++
			mu.Unlock()
		})
		if err != nil {
			return nil, err
		}
		defer unsub()
	}

	step := func(label string, err error) error {
		if err != nil {
			return fmt.Errorf("%s: %w", label, err)
		}
		fmt.Fprintf(env.Out, "  %-28s rev %s\n", label, revisions(s))
		return nil
	}

	fmt.Fprintln(env.Out, "Updating demo slices:")

	err := store.Update(s, CounterKey, store.Compute(func(prev CounterSlice) CounterSlice {
		return CounterSlice{Count: prev.Count + 1, LastUpdated: env.Now().UTC().Format(time.RFC3339)}
	}), store.WithContext(ctx))
	if err := step("increment demoA", err); err != nil {
		return nil, err
	}

	err = store.Update(s, TextKey, store.Merge[TextSlice](store.Patch{"text": "Updated Text"}), store.WithContext(ctx))
	if err := step("merge demoB.text", err); err != nil {
		return nil, err
	}

	err = store.Set(s, UserKey, store.MustGet(s, UserKey), store.WithContext(ctx))
	if err := step("set user to itself (no-op)", err); err != nil {
		return nil, err
	}

	err = store.Update(s, BlogKey, store.Compute(func(prev Blog) Blog {
		next := prev
		id := "2"
		next.SelectedPostID = &id
		return next
	}), store.WithContext(ctx))
	if err := step("select blog post 2", err); err != nil {
		return nil, err
	}

	err = offload.Apply(ctx, env.Dispatcher, s, BlogKey, func(prev Blog) Blog {
		return LikePost(prev, "2")
	})
	if err := step("like post 2 (offloaded)", err); err != nil {
		return nil, err
	}

	res := &Result{}
	if env.Scope != nil {
		missing := store.NewKey[[]string]("cart")
		res.Failure = env.Scope.Guard(ctx, func() error {
			return store.Set(s, missing, []string{"book"})
		})
		if res.Failure != nil {
			fmt.Fprintf(env.Out, "\nCaught: %v\nExplanation: %s\n", res.Failure, res.Failure.Explanation)
			if res.Failure.ReportID != "" {
				fmt.Fprintf(env.Out, "Report: %s\n", res.Failure.ReportID)
			}
		}
	}

	mu.Lock()
	res.Notifications = make(map[string]int, len(counts))
	for k, v := range counts {
		res.Notifications[k] = v
	}
	mu.Unlock()

	fmt.Fprintln(env.Out, "\nListener notifications:")
	for _, name := range s.Keys() {
		fmt.Fprintf(env.Out, "  %-6s %d\n", name, res.Notifications[name])
	}
	return res, nil
}

// LikePost returns blog with one more like on post id. Posts are copied, so
// prev is left untouched.
func LikePost(prev Blog, id string) Blog {
	next := prev
	next.Posts = make([]Post, len(prev.Posts))
	copy(next.Posts, prev.Posts)
	for i := range next.Posts {
		if next.Posts[i].ID == id {
			next.Posts[i].Likes++
		}
	}
	return next
}

func revisions(s *store.Store) string {
	names := s.Keys()
	sort.Strings(names)
	out := ""
	for i, name := range names {
		rev, _ := s.Revision(name)
		if i > 0 {
			out += " "
		}
		out += fmt.Sprintf("%s=%d", name, rev)
	}
	return out
}
