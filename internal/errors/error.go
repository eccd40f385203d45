package errors

import (
	"bufio"
	stderrors "errors"
	"fmt"
	"os"
	"regexp"
	"strconv"

	"github.com/vango-dev/srasm/pkg/chathistory"
	"github.com/vango-dev/srasm/pkg/reports"
	"github.com/vango-dev/srasm/pkg/store"
)

// Category represents the kind of failure.
type Category string

const (
	CategoryStore   Category = "store"
	CategoryConfig  Category = "config"
	CategoryCLI     Category = "cli"
	CategoryServer  Category = "server"
	CategoryHistory Category = "history"
	CategoryReports Category = "reports"
	CategoryExplain Category = "explain"
)

// Location is a position in a file.
type Location struct {
	File   string
	Line   int
	Column int
}

// String returns the location as file:line[:column].
func (l *Location) String() string {
	if l == nil {
		return ""
	}
	if l.Column > 0 {
		return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
	}
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// SrasmError is a coded error with an optional location and fix suggestion.
type SrasmError struct {
	Code     string
	Category Category
	Message  string
	Detail   string

	Location *Location
	// Context holds the lines around Location.
	Context []string

	Suggestion string
	Example    string
	DocURL     string

	Wrapped error
}

// Error implements the error interface.
func (e *SrasmError) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	if e.Wrapped != nil {
		msg += ": " + e.Wrapped.Error()
	}
	return msg
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *SrasmError) Unwrap() error {
	return e.Wrapped
}

// WithLocation records a file position and reads the lines around it.
func (e *SrasmError) WithLocation(file string, line, column int) *SrasmError {
	e.Location = &Location{File: file, Line: line, Column: column}
	e.Context = readContextLines(file, line, 5)
	return e
}

var yamlLine = regexp.MustCompile(`line (\d+)`)

// WithLocationFromError extracts a line number from a YAML or JSON decode
// error of file.
func (e *SrasmError) WithLocationFromError(file string, err error) *SrasmError {
	if err == nil {
		return e
	}
	if m := yamlLine.FindStringSubmatch(err.Error()); m != nil {
		if line, _ := strconv.Atoi(m[1]); line > 0 {
			return e.WithLocation(file, line, 0)
		}
	}
	e.Location = &Location{File: file}
	return e
}

// WithSuggestion adds a fix suggestion.
func (e *SrasmError) WithSuggestion(s string) *SrasmError {
	e.Suggestion = s
	return e
}

// WithExample adds a code or config example.
func (e *SrasmError) WithExample(ex string) *SrasmError {
	e.Example = ex
	return e
}

// WithDetail replaces the detail text.
func (e *SrasmError) WithDetail(d string) *SrasmError {
	e.Detail = d
	return e
}

// Wrap records the underlying error.
func (e *SrasmError) Wrap(err error) *SrasmError {
	e.Wrapped = err
	return e
}

func readContextLines(filename string, targetLine, contextSize int) []string {
	file, err := os.Open(filename)
	if err != nil {
		return nil
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	lineNum := 0
	start := targetLine - contextSize/2
	end := targetLine + contextSize/2
	for scanner.Scan() {
		lineNum++
		if lineNum >= start && lineNum <= end {
			lines = append(lines, scanner.Text())
		}
		if lineNum > end {
			break
		}
	}
	return lines
}

// New creates an error from a registered code.
func New(code string) *SrasmError {
	t, ok := registry[code]
	if !ok {
		return &SrasmError{Code: code, Message: "Unknown error"}
	}
	return &SrasmError{
		Code:     code,
		Category: t.Category,
		Message:  t.Message,
		Detail:   t.Detail,
		DocURL:   t.DocURL,
	}
}

// Newf creates an uncoded error with a formatted message.
func Newf(category Category, format string, args ...any) *SrasmError {
	return &SrasmError{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// FromError wraps err in an error with the given code. An err that already
// is a *SrasmError is returned unchanged.
func FromError(err error, code string) *SrasmError {
	if err == nil {
		return nil
	}
	var se *SrasmError
	if stderrors.As(err, &se) {
		return se
	}
	return New(code).Wrap(err)
}

// Classify maps a library error to its code. Unknown errors get S199.
func Classify(err error) *SrasmError {
	if err == nil {
		return nil
	}
	var (
		se       *SrasmError
		notFound *store.SliceNotFoundError
		mistyped *store.SliceTypeError
		dup      *store.DuplicateSliceError
		merge    *store.MergeError
	)
	switch {
	case stderrors.As(err, &se):
		return se
	case stderrors.As(err, &mistyped):
		return New("S111").Wrap(err).
			WithSuggestion(fmt.Sprintf("Use the key declared for %q (type %s)", mistyped.Key, mistyped.Declared))
	case stderrors.As(err, &notFound):
		return New("S110").Wrap(err).
			WithSuggestion("Declare the slice when building the store with store.Declare")
	case stderrors.As(err, &dup):
		return New("S112").Wrap(err)
	case stderrors.Is(err, store.ErrUpdateFunction):
		return New("S113").Wrap(err)
	case stderrors.Is(err, store.ErrListener):
		return New("S114").Wrap(err)
	case stderrors.As(err, &merge):
		return New("S115").Wrap(err)
	case stderrors.Is(err, chathistory.ErrChatNotFound):
		return New("S131").Wrap(err).WithSuggestion("List chats with: srasm chats list")
	case stderrors.Is(err, chathistory.ErrClosed):
		return New("S130").Wrap(err)
	case stderrors.Is(err, reports.ErrNotFound):
		return New("S141").Wrap(err)
	}
	return New("S199").Wrap(err)
}
