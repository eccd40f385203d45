package explain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNoJSON is returned when a completion has no fenced json block.
var ErrNoJSON = errors.New("explain: no valid JSON block found in the response")

var jsonBlock = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")

// directAnswer is appended to state generation prompts.
const directAnswer = " Please provide only the necessary information, no extra text or anything else. I want a direct answer."

// ExtractJSON returns the first ```json fenced block of text. The block must
// be valid JSON.
func ExtractJSON(text string) (json.RawMessage, error) {
	m := jsonBlock.FindStringSubmatch(text)
	if m == nil || strings.TrimSpace(m[1]) == "" {
		return nil, ErrNoJSON
	}
	raw := json.RawMessage(m[1])
	if !json.Valid(raw) {
		return nil, fmt.Errorf("explain: failed to parse the extracted JSON response")
	}
	return raw, nil
}

// GenerateState asks c for a value described by message and decodes the
// fenced JSON block of the answer into out.
func GenerateState(ctx context.Context, c Completer, message string, out any) error {
	text, err := c.Complete(ctx, message+directAnswer)
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return ErrEmpty
	}
	raw, err := ExtractJSON(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("explain: decode generated state: %w", err)
	}
	return nil
}
