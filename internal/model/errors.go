package model

import (
	"errors"
	"fmt"
)

// ErrorKind names a category of failure.
type ErrorKind string

const (
	KindValidation      ErrorKind = "validation"
	KindParse           ErrorKind = "parse"
	KindIO              ErrorKind = "io"
	KindRuntime         ErrorKind = "runtime"
	KindInstrumentation ErrorKind = "instrumentation"
)

// Sentinel errors, one per kind, for use with errors.Is.
var (
	ErrValidation      = errors.New("validation error")
	ErrParse           = errors.New("parse error")
	ErrIO              = errors.New("io error")
	ErrRuntime         = errors.New("runtime error")
	ErrInstrumentation = errors.New("instrumentation error")
)

var sentinels = map[ErrorKind]error{
	KindValidation:      ErrValidation,
	KindParse:           ErrParse,
	KindIO:              ErrIO,
	KindRuntime:         ErrRuntime,
	KindInstrumentation: ErrInstrumentation,
}

// CoverageError carries the kind and location of a failure.
type CoverageError struct {
	Kind ErrorKind
	Path Path
	Line int
	Err  error
}

// NewError builds a CoverageError. err may be nil.
func NewError(kind ErrorKind, path Path, line int, err error) *CoverageError {
	return &CoverageError{Kind: kind, Path: path, Line: line, Err: err}
}

func (e *CoverageError) Error() string {
	where := string(e.Path)
	if e.Line > 0 {
		where = fmt.Sprintf("%s:%d", e.Path, e.Line)
	}

	msg := string(e.Kind) + " error"
	if where != "" {
		msg += " in " + where
	}

	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

func (e *CoverageError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's kind.
func (e *CoverageError) Is(target error) bool {
	sentinel, ok := sentinels[e.Kind]
	return ok && sentinel == target
}

// KindOf returns the kind of err, or "" when err carries none.
func KindOf(err error) ErrorKind {
	var ce *CoverageError
	if errors.As(err, &ce) {
		return ce.Kind
	}

	for kind, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			return kind
		}
	}

	return ""
}
