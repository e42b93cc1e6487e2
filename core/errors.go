package core

import (
	"time"

	"github.com/pkg/errors"
)

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

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			return err.Fields[0].Field + ": " + err.Fields[0].Error
		}
		return ""
	}
	return err.Err.Error()
}

// RetryableError wraps a failure of an external collaborator (usually the database)
// after which the same request may be sent again.
type RetryableError struct {
	Err        error
	RetryAfter time.Duration
}

func NewRetryableError(err error, retryAfter time.Duration) error {
	return &RetryableError{Err: err, RetryAfter: retryAfter}
}

func (err RetryableError) Error() string {
	if err.Err == nil {
		return "temporarily unavailable"
	}
	return err.Err.Error()
}

func (err RetryableError) Unwrap() error { return err.Err }

// IsRetryable reports whether a RetryableError is found anywhere in err's chain.
func IsRetryable(err error) bool {
	var rErr *RetryableError
	return errors.As(err, &rErr)
}

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
