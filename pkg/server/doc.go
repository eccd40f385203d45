// Package server provides the explanation proxy and live inspector.
//
// The proxy accepts POST /explain-error with {errorMessage, stateSnapshot}
// and answers {explanation}. A failing or slow backend degrades to
// explain.Unavailable; only malformed requests get an {error} body with a
// 4xx status. Identical concurrent requests share one backend call, and a
// token bucket bounds the backend call rate.
//
// When a store is attached with WithStore, GET /state returns every slice
// and GET /inspect streams a snapshot frame followed by one frame per commit
// over a WebSocket:
//
//	srv := server.New(cfg, explainer,
//	    server.WithStore(s),
//	    server.WithMetrics(metrics, registry),
//	)
//	err := srv.ListenAndServe(ctx)
//
// Every response carries permissive CORS headers; unknown routes return a
// JSON 404.
package server
