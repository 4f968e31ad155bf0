// Package apperr defines the typed error kinds shared across the engine.
//
// Every subsystem wraps lower-level causes (storage I/O, serialization,
// summarizer RPCs) behind one of these kinds so callers can branch on
// behavior (retry, surface to the user, skip-and-log) without string
// matching error messages.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error the way spec.md §7 enumerates them.
type Kind string

const (
	// KindValidation marks malformed or empty input. Never retried.
	KindValidation Kind = "validation"
	// KindNotFound marks an absent lookup. Callers treat this as an empty
	// result, not a propagated error, but the kind exists for logging.
	KindNotFound Kind = "not_found"
	// KindStorage marks a batch commit, read, or iteration failure.
	KindStorage Kind = "storage"
	// KindSummarizer marks a recoverable external-capability failure.
	KindSummarizer Kind = "summarizer"
	// KindSerialization marks structurally broken stored data.
	KindSerialization Kind = "serialization"
	// KindSchedulerState marks an illegal scheduler state transition.
	KindSchedulerState Kind = "scheduler_state"
)

// Error is a typed, wrapped error carrying a Kind for classification.
type Error struct {
	Kind Kind
	Op   string // operation that failed, e.g. "ingest.IngestEvent"
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with a Kind and the operation name that produced it.
func New(kind Kind, op string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf behaves like New but builds the underlying error from a format string.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind == kind
	}
	return false
}
