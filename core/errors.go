package core

import "github.com/pkg/errors"

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

// ValidationError carries the invalid fields of an input, if known.
type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

// shutdown wraps a failure the process cannot recover from, like losing its database.
type shutdown struct {
	err error
}

func NewShutdownError(err error) error {
	return &shutdown{err: err}
}

func (s *shutdown) Error() string { return "shutting down: " + s.err.Error() }
func (s *shutdown) Unwrap() error { return s.err }

func IsShutdown(err error) bool {
	var s *shutdown
	return errors.As(err, &s)
}
