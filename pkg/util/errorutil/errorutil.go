package errorutil

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5"
)

// Error codes surfaced to callers.
const (
	CodeValidation             = "VALIDATION_FAILED"
	CodeNotFound               = "NOT_FOUND"
	CodeInvalidAction          = "INVALID_ACTION"
	CodeInvalidSourceState     = "INVALID_SOURCE_STATE"
	CodeGuardFailed            = "GUARD_FAILED"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
	CodeUnauthorized           = "UNAUTHORIZED"
	CodeForbidden              = "FORBIDDEN"
	CodeInternal               = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	// Retryable is set when repeating the same request may succeed.
	Retryable bool
	Err       error
}

// Error joins the message and the cause. A cause that already carries the
// message is printed alone.
func (e *DomainError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	cause := e.Err.Error()
	if e.Message == "" || strings.Contains(cause, e.Message) {
		return cause
	}
	return e.Message + ": " + cause
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches two DomainErrors by code so callers can use errors.Is with the
// exported sentinels below.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is comparisons.
var (
	ErrValidation             = &DomainError{Code: CodeValidation}
	ErrNotFound               = &DomainError{Code: CodeNotFound}
	ErrInvalidAction          = &DomainError{Code: CodeInvalidAction}
	ErrInvalidSourceState     = &DomainError{Code: CodeInvalidSourceState}
	ErrGuardFailed            = &DomainError{Code: CodeGuardFailed}
	ErrConcurrentModification = &DomainError{Code: CodeConcurrentModification}
	ErrForbidden              = &DomainError{Code: CodeForbidden}
)

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewInvalidAction(action string) error {
	return NewDomainError(CodeInvalidAction, fmt.Sprintf("invalid action: %s", action), http.StatusBadRequest,
		map[string]any{"action": action})
}

func NewInvalidSourceState(message string, details map[string]any) error {
	return NewDomainError(CodeInvalidSourceState, message, http.StatusConflict, details)
}

func NewGuardFailed(message string, details map[string]any) error {
	return NewDomainError(CodeGuardFailed, message, http.StatusUnprocessableEntity, details)
}

func NewConcurrentModification(resource string, details map[string]any) error {
	return &DomainError{
		Code:       CodeConcurrentModification,
		Message:    fmt.Sprintf("%s was modified concurrently", resource),
		HTTPStatus: http.StatusConflict,
		Details:    details,
		Retryable:  true,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// WithCause returns a copy of a DomainError carrying cause, so both the code
// and the underlying error stay matchable. Other errors are returned as is.
func WithCause(err error, cause error) error {
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		return err
	}
	clone := *domainErr
	clone.Err = cause
	return &clone
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return NewNotFound("resource", nil).(*DomainError)
	}
	return NewInternalError(err).(*DomainError)
}

// IsRetryable reports whether err marks a condition that a retry may clear.
func IsRetryable(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Retryable
	}
	return false
}
