package core

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrForbidden is returned when the acting user may not perform an operation.
var ErrForbidden = errors.New("permission denied")

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

// NewFieldError is a shortcut for a ValidationError on a single field.
func NewFieldError(err error, field string) error {
	return &ValidationError{err, []FieldError{{Field: field, Error: err.Error()}}}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

func (err ValidationError) Unwrap() error { return err.Err }

// NotFound reports a missing entity.
type NotFound struct {
	message string
}

func NewNotFound(msg string) *NotFound {
	return &NotFound{message: msg}
}

func (e NotFound) Error() string { return e.message }

// Conflict reports a request that is well-formed but breaks a business rule given the current state.
type Conflict struct {
	message string
}

func NewConflict(msg string) *Conflict {
	return &Conflict{message: msg}
}

func (e Conflict) Error() string { return e.message }

// ExternalError wraps a failure of an external collaborator (object store, email relay...).
type ExternalError struct {
	Service string
	Err     error
}

func NewExternalError(service string, err error) error {
	return &ExternalError{Service: service, Err: err}
}

func (e ExternalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

// Unwrap only: errors.Cause must stop here.
func (e ExternalError) Unwrap() error { return e.Err }

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
