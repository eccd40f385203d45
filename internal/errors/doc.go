// Package errors provides coded, formatted errors for the srasm CLI.
//
// Each error has a code (e.g. "S110") that maps to a category, a short
// message, a longer detail and a documentation URL:
//
//	err := errors.New("S101").
//	    WithLocation("srasm.yaml", 4, 3).
//	    WithSuggestion("server.rateLimit must not be negative")
//
//	fmt.Fprint(os.Stderr, err.Format())
//	// ERROR S101: Invalid configuration
//	//
//	//   srasm.yaml:4:3
//	//   ...
//
// Classify maps store, history and report errors to their codes so the CLI
// can print them the same way.
package errors
