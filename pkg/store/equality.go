package store

import (
	"fmt"
	"strings"

	"github.com/vango-dev/srasm/pkg/equal"
)

// EqualityMode selects how an update decides it is a no-op.
// The zero value defers to the next level: call, then slice, then store.
type EqualityMode uint8

const (
	inheritEquality EqualityMode = iota

	// Reference skips an update only when the next value is identical to the
	// current one.
	Reference

	// Structural also skips updates whose next value is deeply equal to the
	// current one. It costs a recursive comparison per update.
	Structural
)

// String returns the config spelling of the mode.
func (m EqualityMode) String() string {
	switch m {
	case Reference:
		return "reference"
	case Structural:
		return "structural"
	default:
		return "inherit"
	}
}

// ParseEqualityMode parses "reference" or "structural". The empty string
// yields Reference.
func ParseEqualityMode(s string) (EqualityMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "reference", "identity":
		return Reference, nil
	case "structural", "deep":
		return Structural, nil
	default:
		return inheritEquality, fmt.Errorf("store: unknown equality mode %q", s)
	}
}

// unchanged reports whether next is a no-op transition from current.
func (m EqualityMode) unchanged(current, next any) bool {
	if equal.Identical(current, next) {
		return true
	}
	return m == Structural && equal.Structural(current, next)
}

// resolveMode picks the first explicit mode.
func resolveMode(modes ...EqualityMode) EqualityMode {
	for _, m := range modes {
		if m != inheritEquality {
			return m
		}
	}
	return Reference
}
