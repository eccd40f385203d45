package explain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Unavailable is returned in place of an explanation whenever the backend is
// slow, unreachable or returns something unusable.
const Unavailable = "Failed to get AI explanation."

// DefaultTimeout bounds one explanation round trip.
const DefaultTimeout = 30 * time.Second

// ErrEmpty is returned when a backend answers with no text.
var ErrEmpty = errors.New("explain: empty explanation")

// CodeSnippet is a source excerpt forwarded with an error for context.
type CodeSnippet struct {
	FileName string `json:"fileName"`
	Code     string `json:"code"`
}

// Request is the payload of POST /explain-error.
type Request struct {
	ErrorMessage  string `json:"errorMessage"`
	StateSnapshot any    `json:"stateSnapshot"`

	// Optional diagnostic hints.
	SliceName        string        `json:"sliceName,omitempty"`
	AdditionalSlices []string      `json:"additionalSlices,omitempty"`
	RelevantCode     []CodeSnippet `json:"relevantCode,omitempty"`
}

// Response is the success body of POST /explain-error.
type Response struct {
	Explanation string `json:"explanation"`
}

// ErrorResponse is the failure body of POST /explain-error.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Explainer turns an error and a state snapshot into a human-readable
// diagnosis.
type Explainer interface {
	Explain(ctx context.Context, req Request) (string, error)
}

// Completer answers a single free-form prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Chunk is one piece of a streamed completion. A Chunk with Err set is the
// last one sent.
type Chunk struct {
	Text string
	Err  error
}

// Streamer delivers a completion incrementally. The channel is closed when
// the completion ends or ctx is cancelled.
type Streamer interface {
	Stream(ctx context.Context, prompt string) (<-chan Chunk, error)
}

// Func adapts a function to Explainer.
type Func func(ctx context.Context, req Request) (string, error)

// Explain implements Explainer.
func (f Func) Explain(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Static always answers Unavailable. It is the explainer used when no
// backend is configured.
type Static struct{}

// Explain implements Explainer.
func (Static) Explain(context.Context, Request) (string, error) {
	return Unavailable, nil
}

// Prompt renders the explanation prompt for req.
func Prompt(req Request) string {
	var b strings.Builder
	b.WriteString("You are an expert application developer.\n")
	b.WriteString("Explain this error in simple terms and suggest a fix.\n")
	fmt.Fprintf(&b, "Error: %s\n", req.ErrorMessage)
	if req.SliceName != "" {
		fmt.Fprintf(&b, "The error happened in the context of slice %q.\n", req.SliceName)
	}
	if len(req.AdditionalSlices) > 0 {
		fmt.Fprintf(&b, "Related slices: %s\n", strings.Join(req.AdditionalSlices, ", "))
	}
	snapshot, err := json.Marshal(req.StateSnapshot)
	if err != nil {
		snapshot = []byte(fmt.Sprintf("%q", fmt.Sprint(req.StateSnapshot)))
	}
	fmt.Fprintf(&b, "State snapshot: %s\n", snapshot)
	for _, c := range req.RelevantCode {
		fmt.Fprintf(&b, "\nFile %s:\n%s\n", c.FileName, c.Code)
	}
	return b.String()
}

// Safe calls e with a bounded timeout and degrades every failure to
// Unavailable. It never returns an empty string.
func Safe(ctx context.Context, e Explainer, req Request, timeout time.Duration) string {
	if e == nil {
		return Unavailable
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("explain: backend panicked: %v", r)}
			}
		}()
		text, err := e.Explain(ctx, req)
		done <- result{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		return Unavailable
	case r := <-done:
		if r.err != nil || strings.TrimSpace(r.text) == "" {
			return Unavailable
		}
		return r.text
	}
}

// Collect drains a stream into one string.
func Collect(ch <-chan Chunk) (string, error) {
	var b strings.Builder
	for c := range ch {
		if c.Err != nil {
			return b.String(), c.Err
		}
		b.WriteString(c.Text)
	}
	return b.String(), nil
}
