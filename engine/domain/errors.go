package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for collaborator failures and validation.
var (
	// ErrStoreUnavailable means the vector store could not be reached or
	// is not ready. Recovered by bounded connect retry or by treating the
	// affected strategy as zero-result.
	ErrStoreUnavailable = errors.New("vector store unavailable")
	// ErrEmbedding means the embedding provider was reachable but returned
	// malformed or empty output. Not retried; the fallback chain handles it.
	ErrEmbedding = errors.New("embedding failed")
	// ErrStoreQuery means a store-side query fault.
	ErrStoreQuery = errors.New("store query failed")
	// ErrDimensionMismatch is a write-time error: an embedding's length
	// does not match the collection's configured dimensionality.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	ErrEmptyQuery      = errors.New("query is empty")
	ErrQueryTooLong    = errors.New("query too long")
	ErrMissingField    = errors.New("required field missing")
	ErrFieldTooLong    = errors.New("field exceeds maximum length")
	ErrEmptyImage      = errors.New("image payload is empty")
	ErrNegativeReading = errors.New("meter value must be non-negative")
	ErrAddressMismatch = errors.New("full_address inconsistent with address fields")
)

// ValidationError wraps a sentinel with field context.
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
