// Package engineerr implements the closed error taxonomy returned across
// every public boundary of the engine (Reader, Searcher, Editor).
package engineerr

import "fmt"

// Kind is one of the closed set of error categories the engine returns.
type Kind int

const (
	// NotFound means the path does not exist or is not a regular file.
	NotFound Kind = iota
	// Io means an underlying filesystem or mapping failure.
	Io
	// Empty means the file has zero bytes.
	Empty
	// NoHeader means the file has no decodable header row.
	NoHeader
	// OutOfRange means a row ordinal is >= row_count() (or == 0 where forbidden).
	OutOfRange
	// NoSuchColumn means a column name is unresolved, or an ordinal is >= C.
	NoSuchColumn
	// WrongArity means set_row was given a field vector of the wrong length.
	WrongArity
	// Utf8 means decoded bytes are not valid UTF-8 where text is required.
	Utf8
)

// String renders a Kind as a short human label.
func (k Kind) String() string {
	switch k {
	case NotFound:
		return "NotFound"
	case Io:
		return "Io"
	case Empty:
		return "Empty"
	case NoHeader:
		return "NoHeader"
	case OutOfRange:
		return "OutOfRange"
	case NoSuchColumn:
		return "NoSuchColumn"
	case WrongArity:
		return "WrongArity"
	case Utf8:
		return "Utf8"
	default:
		return "Unknown"
	}
}

// Error is the concrete error type returned by every engine operation.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Unwrap lets errors.Is / errors.As see through to the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// New builds an *Error with no underlying cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap builds an *Error carrying an underlying cause.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Is reports whether err is an *Error of the given Kind.
func Is(err error, kind Kind) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	return e.Kind == kind
}
