package domain

import (
	"errors"
	"strings"
)

var (
	// ErrNotFound indicates that a requested subscriber (or any subscriber, for listings) does not exist.
	ErrNotFound = errors.New("resource not found")
	// ErrConflict indicates a phone number rename onto a number already in use.
	ErrConflict = errors.New("phone number already exists")
	// ErrValidation is wrapped by every ValidationError.
	ErrValidation = errors.New("validation failed")
)

// ValidationError describes malformed input. It never reaches persistence.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ValidationErrors collects every field failure of a single record.
type ValidationErrors []*ValidationError

func (ve ValidationErrors) Error() string {
	msgs := make([]string, len(ve))
	for i, e := range ve {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

func (ve ValidationErrors) Unwrap() error { return ErrValidation }
