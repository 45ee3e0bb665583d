package events

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("event not found")

	// ErrShareIDTaken reports a share id collision. With 128 random bits this
	// should never happen in practice; the service retries a fresh id anyway.
	ErrShareIDTaken = errors.New("share id already taken")
)

// ValidationError carries field-level validation messages keyed by the wire
// field name (e.g. "title", "date_time"). It unwraps to ErrInvalidInput.
type ValidationError struct {
	Fields map[string]string
}

func (e ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e ValidationError) Unwrap() error { return ErrInvalidInput }

// AsValidation extracts a ValidationError if err carries one.
func AsValidation(err error) (ValidationError, bool) {
	var ve ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return ValidationError{}, false
}

// IsNotFound reports whether err represents ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsInvalidInput reports whether err represents ErrInvalidInput (including
// ValidationError).
func IsInvalidInput(err error) bool { return errors.Is(err, ErrInvalidInput) }
