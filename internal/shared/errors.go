package shared

import (
	"errors"
	"fmt"

	"github.com/odyssey-erp/odyssey-billing/internal/store"
)

var (
	// ErrValidation indicates bad caller input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates a referenced document, invoice or product is absent.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState indicates the entity's status forbids the operation.
	ErrInvalidState = errors.New("invalid state")
	// ErrPermissionDenied indicates the current user lacks the required permission.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrTimeout indicates the operation exceeded its time bound.
	ErrTimeout = errors.New("operation timed out")
)

// ValidationError describes a single rejected field.
type ValidationError struct {
	Field   string
	Message string
}

// Validation builds a ValidationError.
func Validation(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// Is lets errors.Is(err, ErrValidation) match.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// InvalidState wraps ErrInvalidState with detail.
func InvalidState(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}

// NotFound wraps ErrNotFound with the missing entity.
func NotFound(entity, id string) error {
	return fmt.Errorf("%w: %s %s", ErrNotFound, entity, id)
}

// Classify lifts store failures into the domain taxonomy, keeping the original chain.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrTimeout) {
		return err
	}
	switch store.KindOf(err) {
	case store.KindNotFound:
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case store.KindTimeout:
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return err
}
