package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	ErrInvalidPage   = errors.New("invalid page")
	ErrInvalidQuery  = errors.New("invalid query")
	ErrQueryTooShort = errors.New("query too short")
	ErrQueryTooLong  = errors.New("query too long")
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrDimensionMismatch is a configuration error: the embedding size does
	// not match the collection's vector size.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrRetrieval marks a failed search. A search that matched nothing is not
	// an error.
	ErrRetrieval = errors.New("retrieval failed")
	ErrEmbedding = errors.New("embedding failed")
	ErrStore     = errors.New("vector store failed")
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
