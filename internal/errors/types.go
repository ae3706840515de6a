// Package errors provides the structured error type shared by the editor,
// the persistence adapters and the HTTP layer.
//
// Every failure that crosses a package boundary is an *AppError carrying a
// Type (what went wrong), a Code (a stable machine-readable identifier) and an
// optional Cause. Callers branch on Type; the HTTP layer maps it to a status.
package errors

import (
	"errors"
	"net/http"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeNetwork    ErrorType = "network"
	ErrorTypeAuth       ErrorType = "auth"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeInternal   ErrorType = "internal"
)

// Common error codes.
const (
	ErrCodeInvalidRole       = "ERR_INVALID_ROLE"
	ErrCodeMissingOwner      = "ERR_MISSING_OWNER"
	ErrCodeMissingTitle      = "ERR_MISSING_TITLE"
	ErrCodeProjectNotFound   = "ERR_PROJECT_NOT_FOUND"
	ErrCodeLessonNotFound    = "ERR_LESSON_NOT_FOUND"
	ErrCodeTransport         = "ERR_TRANSPORT"
	ErrCodeUnauthorized      = "ERR_UNAUTHORIZED"
	ErrCodeBackendResponse   = "ERR_BACKEND_RESPONSE"
	ErrCodeConfigInvalid     = "ERR_CONFIG_INVALID"
	ErrCodeMissingCredential = "ERR_MISSING_CREDENTIAL"
	ErrCodeSandboxPolicy     = "ERR_SANDBOX_POLICY"
	ErrCodeSessionClosed     = "ERR_SESSION_CLOSED"
	ErrCodeInvalidBody       = "ERR_INVALID_BODY"
	ErrCodeInternalError     = "ERR_INTERNAL"
)

// AppError is the error every package returns across its boundary.
// Context and Component survive Wrap so the outermost error still says which
// backend failed.
type AppError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Context     map[string]interface{}
	Component   string
	Recoverable bool
}

func (e *AppError) Error() string {
	var b strings.Builder
	if e.Code != "" {
		b.WriteString("[" + e.Code + "] ")
	}
	if e.Component != "" {
		b.WriteString("component:" + e.Component + " ")
	}
	b.WriteString(e.Message)
	if e.Cause != nil {
		b.WriteString(": " + e.Cause.Error())
	}
	return b.String()
}

func (e *AppError) Unwrap() error { return e.Cause }

// Is matches another *AppError with the same Type and Code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && e.Type == t.Type && e.Code == t.Code
}

// WithContext attaches a key/value pair and returns e.
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithComponent records which backend or subsystem failed and returns e.
func (e *AppError) WithComponent(component string) *AppError {
	e.Component = component
	return e
}

// recoverable reports whether retrying or correcting input can help.
// Config and internal failures need an operator.
func (t ErrorType) recoverable() bool {
	return t != ErrorTypeConfig && t != ErrorTypeInternal
}

func newError(t ErrorType, code, message string, cause error) *AppError {
	return &AppError{Type: t, Code: code, Message: message, Cause: cause, Recoverable: t.recoverable()}
}

func NewValidationError(code, message string) *AppError {
	return newError(ErrorTypeValidation, code, message, nil)
}

// NewNetworkError reports a transport failure against a remote backend.
func NewNetworkError(code, message string, cause error) *AppError {
	return newError(ErrorTypeNetwork, code, message, cause)
}

func NewAuthError(code, message string, cause error) *AppError {
	return newError(ErrorTypeAuth, code, message, cause)
}

// NewNotFoundError names the missing identifier in both the message and
// the context.
func NewNotFoundError(code, identifier string) *AppError {
	return newError(ErrorTypeNotFound, code, "not found: "+identifier, nil).
		WithContext("identifier", identifier)
}

func NewConfigError(code, message string) *AppError {
	return newError(ErrorTypeConfig, code, message, nil)
}

func NewInternalError(code, message string, cause error) *AppError {
	return newError(ErrorTypeInternal, code, message, cause)
}

// TypeOf is the Type of the outermost *AppError in err's chain, or
// ErrorTypeInternal for foreign errors.
func TypeOf(err error) ErrorType {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Type
	}
	return ErrorTypeInternal
}

func IsConfigError(err error) bool {
	return err != nil && TypeOf(err) == ErrorTypeConfig
}

func IsNotFound(err error) bool {
	return err != nil && TypeOf(err) == ErrorTypeNotFound
}

var statusByType = map[ErrorType]int{
	ErrorTypeValidation: http.StatusBadRequest,
	ErrorTypeAuth:       http.StatusUnauthorized,
	ErrorTypeNotFound:   http.StatusNotFound,
	ErrorTypeNetwork:    http.StatusBadGateway,
}

// HTTPStatus maps err to a response status; anything unclassified is 500.
func HTTPStatus(err error) int {
	if code, ok := statusByType[TypeOf(err)]; ok {
		return code
	}
	return http.StatusInternalServerError
}
