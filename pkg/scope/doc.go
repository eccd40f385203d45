// Package scope is the root error boundary of a store.
//
// Wrap rendering or request handling in a Scope. Every failure it catches
// carries a snapshot of all slices and an explanation from the configured
// explainer:
//
//	sc := scope.New(s,
//	    scope.WithExplainer(openai),
//	    scope.WithHints(scope.Hints{SliceName: "user"}),
//	    scope.WithSink(sink),
//	)
//	if f := sc.Guard(ctx, render); f != nil {
//	    fmt.Println(f.Explanation)
//	}
//
// A scope never restores state; the snapshot is for diagnosis only.
package scope
