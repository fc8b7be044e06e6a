package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound     = NewError("NOT_FOUND", "resource not found", http.StatusNotFound)
	ErrValidation   = NewError("VALIDATION_ERROR", "validation failed", http.StatusUnprocessableEntity)
	ErrConflict     = NewError("CONFLICT", "resource conflict", http.StatusConflict)
	ErrMakerChecker = NewError("MAKER_CHECKER_VIOLATION", "maker cannot act as checker", http.StatusConflict)
	ErrUnauthorized = NewError("UNAUTHORIZED", "unauthorized", http.StatusUnauthorized)
	ErrForbidden    = NewError("FORBIDDEN", "forbidden", http.StatusForbidden)
	ErrInternal     = NewError("INTERNAL_ERROR", "internal server error", http.StatusInternalServerError)
	ErrTimeout      = NewError("TIMEOUT", "operation timed out", http.StatusRequestTimeout)
)

type RetryableError interface {
	error
	IsRetryable() bool
}

type FatalError interface {
	error
	IsFatal() bool
}

type Error struct {
	Code      string
	Message   string
	Status    int
	Details   map[string]interface{}
	Cause     error
	retryable *bool
}

func NewError(code, message string, status int) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Status:  status,
		Details: make(map[string]interface{}),
	}
}

func (e *Error) Error() string {
	msg := e.Message

	if len(e.Details) > 0 {
		if detailMsg, ok := e.Details["message"].(string); ok && detailMsg != "" {
			msg = detailMsg
		}
	}

	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) IsRetryable() bool {
	if e.retryable != nil {
		return *e.retryable
	}
	if e.Cause != nil {
		var retryableErr RetryableError
		if errors.As(e.Cause, &retryableErr) {
			return retryableErr.IsRetryable()
		}
		var fatalErr FatalError
		if errors.As(e.Cause, &fatalErr) {
			return !fatalErr.IsFatal()
		}
	}
	return e.Code != ErrValidation.Code && e.Code != ErrNotFound.Code && e.Code != ErrConflict.Code
}

func (e *Error) WithCause(cause error) *Error {
	err := *e
	err.Cause = cause
	return &err
}

func (e *Error) WithDetail(key string, value interface{}) *Error {
	err := *e
	// Details maps are never shared: the sentinel (and any previously
	// derived error) must not observe writes made on the copy.
	err.Details = copyDetails(e.Details, 1)
	err.Details[key] = value
	return &err
}

func (e *Error) WithDetails(details map[string]interface{}) *Error {
	err := *e
	err.Details = copyDetails(e.Details, len(details))
	for k, v := range details {
		err.Details[k] = v
	}
	return &err
}

func copyDetails(details map[string]interface{}, extra int) map[string]interface{} {
	out := make(map[string]interface{}, len(details)+extra)
	for k, v := range details {
		out[k] = v
	}
	return out
}

func (e *Error) AsRetryable() *Error {
	err := *e
	retryable := true
	err.retryable = &retryable
	return &err
}

func (e *Error) AsFatal() *Error {
	err := *e
	retryable := false
	err.retryable = &retryable
	return &err
}

func Wrap(err error, appErr *Error) *Error {
	if err == nil {
		return nil
	}
	return appErr.WithCause(err)
}

func IsNotFound(err error) bool {
	return hasCode(err, ErrNotFound.Code)
}

func IsValidation(err error) bool {
	return hasCode(err, ErrValidation.Code)
}

func IsConflict(err error) bool {
	return hasCode(err, ErrConflict.Code) || hasCode(err, ErrMakerChecker.Code)
}

func IsMakerChecker(err error) bool {
	return hasCode(err, ErrMakerChecker.Code)
}

func hasCode(err error, code string) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

func ToHTTPStatus(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

// ToErrorResponse builds the wire shape for an error. Unclassified errors
// collapse to INTERNAL_ERROR with no detail so internals never leak.
func ToErrorResponse(err error) map[string]interface{} {
	var appErr *Error
	if !errors.As(err, &appErr) {
		appErr = ErrInternal
	}

	response := map[string]interface{}{
		"error":      appErr.Message,
		"error_code": appErr.Code,
	}

	if appErr.Code != ErrInternal.Code && len(appErr.Details) > 0 {
		response["details"] = appErr.Details
	}

	return response
}
