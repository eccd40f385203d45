package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vango-dev/srasm/pkg/explain"
)

// ErrNotFound is returned when a report does not exist.
var ErrNotFound = errors.New("reports: report not found")

// ErrTooLarge is returned when an encoded report exceeds the sink's limit.
var ErrTooLarge = errors.New("reports: report too large")

// Report records one failure caught by a scope.
type Report struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`

	// Slice is the slice named by the failure, if any.
	Slice string `json:"slice,omitempty"`

	Error string `json:"error"`
	Stack string `json:"stack,omitempty"`

	// State is the store snapshot taken when the failure was caught.
	State map[string]any `json:"state"`

	Explanation string                `json:"explanation"`
	Snippets    []explain.CodeSnippet `json:"snippets,omitempty"`
	Hints       []string              `json:"hints,omitempty"`
}

// New returns a report with a fresh id and creation time.
func New(errMsg string, state map[string]any) *Report {
	return &Report{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Error:     errMsg,
		State:     state,
	}
}

// Sink is the interface for report storage backends.
type Sink interface {
	// Save stores r and returns its id. A report without an id gets one.
	Save(ctx context.Context, r *Report) (string, error)

	// Load returns the report with the given id.
	Load(ctx context.Context, id string) (*Report, error)

	// Cleanup removes reports older than maxAge.
	Cleanup(ctx context.Context, maxAge time.Duration) error
}

// encode assigns missing identity fields and returns the JSON form of r.
func encode(r *Report, maxSize int64) ([]byte, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	} else if !validID(r.ID) {
		return nil, fmt.Errorf("reports: invalid report id %q", r.ID)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode report %s: %w", r.ID, err)
	}
	if maxSize > 0 && int64(len(data)) > maxSize {
		return nil, ErrTooLarge
	}
	return data, nil
}

func decode(id string, data []byte) (*Report, error) {
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", id, err)
	}
	return &r, nil
}

// validID rejects ids that could escape a directory or key prefix.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
