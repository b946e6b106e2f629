package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for member validation and lookup.
var (
	ErrMissingID         = errors.New("missing member id")
	ErrInvalidID         = errors.New("invalid member id")
	ErrSelfReference     = errors.New("member references itself")
	ErrInvalidGeneration = errors.New("invalid generation")
	ErrInvalidGender     = errors.New("invalid gender")
	ErrMemberNotFound    = errors.New("member not found")
)

// ValidationError wraps a sentinel with context.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
