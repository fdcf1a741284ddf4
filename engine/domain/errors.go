package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the service-level failure kinds.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrSearch        = errors.New("search failure")
	ErrSeed          = errors.New("seed failure")
	ErrEmptyQuery    = errors.New("query cannot be empty")
	ErrInvalidRecord = errors.New("invalid bug record")
)

// ConfigError reports every required setting that was empty at construction time.
type ConfigError struct {
	Missing []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: missing required settings: %s", ErrConfiguration, strings.Join(e.Missing, ", "))
}

func (e *ConfigError) Unwrap() error { return ErrConfiguration }

// SearchFailure wraps an embedding or catalog-query failure. Op names the
// failing step and is safe to log; Cause is never shown to end users.
type SearchFailure struct {
	Op    string
	Cause error
}

func (e *SearchFailure) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrSearch, e.Op, e.Cause)
}

// Unwrap exposes both the sentinel and the underlying cause to errors.Is/As.
func (e *SearchFailure) Unwrap() []error { return []error{ErrSearch, e.Cause} }

// SeedFailure wraps a collection creation or bulk upsert failure.
type SeedFailure struct {
	Op    string
	Cause error
}

func (e *SeedFailure) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrSeed, e.Op, e.Cause)
}

func (e *SeedFailure) Unwrap() []error { return []error{ErrSeed, e.Cause} }

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
