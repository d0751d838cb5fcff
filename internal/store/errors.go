package store

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies store failures so callers never inspect messages.
type ErrorKind int

const (
	// KindUnknown covers driver or transport failures without a finer class.
	KindUnknown ErrorKind = iota
	// KindNotFound means the addressed row does not exist.
	KindNotFound
	// KindForeignKeyViolation means a referenced row is missing; Column names the offending column.
	KindForeignKeyViolation
	// KindUniqueViolation means a unique constraint rejected the write.
	KindUniqueViolation
	// KindTimeout means the context deadline expired before the call completed.
	KindTimeout
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindForeignKeyViolation:
		return "foreign_key_violation"
	case KindUniqueViolation:
		return "unique_violation"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error is returned by every Database implementation.
type Error struct {
	Kind   ErrorKind
	Op     string
	Table  string
	Column string
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("store: %s %s: %s", e.Op, e.Table, e.Kind)
	if e.Column != "" {
		msg += " (" + e.Column + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the ErrorKind of err, treating context expiry as a timeout.
func KindOf(err error) ErrorKind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindUnknown
}

// IsNotFound reports whether err is a KindNotFound failure.
func IsNotFound(err error) bool {
	return err != nil && KindOf(err) == KindNotFound
}

// ForeignKeyColumn returns the violated column when err is a foreign key failure.
func ForeignKeyColumn(err error) (string, bool) {
	var se *Error
	if errors.As(err, &se) && se.Kind == KindForeignKeyViolation {
		return se.Column, true
	}
	return "", false
}

// ContextError wraps ctx.Err() into an *Error, or returns nil while ctx is live.
func ContextError(ctx context.Context, op, table string) error {
	err := ctx.Err()
	if err == nil {
		return nil
	}
	kind := KindUnknown
	if errors.Is(err, context.DeadlineExceeded) {
		kind = KindTimeout
	}
	return &Error{Kind: kind, Op: op, Table: table, Err: err}
}
