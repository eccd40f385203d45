// Package explain turns store failures into human-readable diagnoses.
//
// An Explainer takes the failing error message and a snapshot of every slice
// and returns a plain-language explanation. Two implementations are
// provided: Client, which calls an explanation proxy at POST /explain-error,
// and OpenAI, which asks a chat completion model directly. OpenAI also
// streams completions through Streamer.
//
// Callers on the failure path should use Safe, which bounds the call and
// turns every failure into the Unavailable message:
//
//	text := explain.Safe(ctx, explainer, explain.Request{
//	    ErrorMessage:  err.Error(),
//	    StateSnapshot: s.Snapshot(),
//	}, 10*time.Second)
//
// ExtractJSON and GenerateState pull a fenced json block out of a completion
// so a model can propose slice values.
package explain
