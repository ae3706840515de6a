package errors

import (
	"errors"
)

// Wrap puts message in front of err. When err is already an *AppError its
// context, component and recoverability carry over to the new outer error.
func Wrap(err error, errType ErrorType, code, message string) *AppError {
	if err == nil {
		return nil
	}
	wrapped := newError(errType, code, message, err)
	var ae *AppError
	if errors.As(err, &ae) {
		wrapped.Context = ae.Context
		wrapped.Component = ae.Component
		wrapped.Recoverable = ae.Recoverable
	}
	return wrapped
}

// WrapNetwork wraps a transport failure against the given backend.
func WrapNetwork(err error, backend, message string) *AppError {
	appErr := Wrap(err, ErrorTypeNetwork, ErrCodeTransport, message)
	if appErr != nil {
		appErr.Component = backend
	}
	return appErr
}

// WrapInternal wraps an unexpected failure.
func WrapInternal(err error, message string) *AppError {
	return Wrap(err, ErrorTypeInternal, ErrCodeInternalError, message)
}

// ErrorCollector gathers independent errors, e.g. while validating a config file.
type ErrorCollector struct {
	errs []error
}

func NewErrorCollector() *ErrorCollector {
	return &ErrorCollector{}
}

// Add records err if it is non-nil.
func (c *ErrorCollector) Add(err error) {
	if err != nil {
		c.errs = append(c.errs, err)
	}
}

func (c *ErrorCollector) HasErrors() bool {
	return len(c.errs) > 0
}

// Err joins all collected errors, or returns nil.
func (c *ErrorCollector) Err() error {
	return errors.Join(c.errs...)
}
