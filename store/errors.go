package store

import (
	"errors"
	"fmt"
)

// ErrRowNotFound signals that an operation targeted a row that no longer
// exists. Callers treat it as a permanent, row-local condition.
var ErrRowNotFound = errors.New("row not found")

// Error is the typed failure surfaced by every adapter. Transient errors
// (rate limits, connectivity) are retried by the retry decorator; permanent
// errors (auth, missing table, malformed schema) pass through unmodified.
type Error struct {
	Op        string
	Table     string
	Transient bool
	Err       error
}

func (e *Error) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("store %s on table %q: %s error: %v", e.Op, e.Table, kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is, or wraps, a transient store error.
func IsTransient(err error) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Transient
	}
	return false
}

func transientErr(op, table string, err error) error {
	return &Error{Op: op, Table: table, Transient: true, Err: err}
}

func permanentErr(op, table string, err error) error {
	return &Error{Op: op, Table: table, Transient: false, Err: err}
}
