package domain

import (
	"errors"
	"fmt"
)

// NotFoundError reports that a named resource does not exist.
type NotFoundError struct {
	Kind string // "chart", "namespace", "release", "file", ...
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Name)
}

// NewNotFoundError creates a NotFoundError.
func NewNotFoundError(kind, name string) error {
	return &NotFoundError{Kind: kind, Name: name}
}

// IsNotFound reports whether err is, or wraps, a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// ExistsError reports that a resource is already present.
type ExistsError struct {
	Kind   string
	Name   string
	Detail string
}

func (e *ExistsError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s %q already exists: %s", e.Kind, e.Name, e.Detail)
	}
	return fmt.Sprintf("%s %q already exists", e.Kind, e.Name)
}

// IsExists reports whether err is, or wraps, an ExistsError.
func IsExists(err error) bool {
	var ee *ExistsError
	return errors.As(err, &ee)
}

// ValidationError wraps one or more structural violations in an input file.
type ValidationError struct {
	Subject string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Subject, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// IsValidation reports whether err is, or wraps, a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
