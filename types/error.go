package types

import (
	"errors"
	"net/http"
)

// ErrorCode classifies failures for clients. Values are stable wire strings.
type ErrorCode string

// Transport and request level
const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"
	ErrUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrForbidden          ErrorCode = "FORBIDDEN"
	ErrRateLimited        ErrorCode = "RATE_LIMITED"
	ErrNotFound           ErrorCode = "NOT_FOUND"
	ErrTimeout            ErrorCode = "TIMEOUT"
	ErrInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// Execution graph
const (
	ErrInvalidSession         ErrorCode = "INVALID_SESSION"
	ErrNoSuchSession          ErrorCode = "NO_SUCH_SESSION"
	ErrClassificationFailure  ErrorCode = "CLASSIFICATION_FAILURE"
	ErrToolDenied             ErrorCode = "TOOL_DENIED"
	ErrToolFailure            ErrorCode = "TOOL_FAILURE"
	ErrApprovalRequired       ErrorCode = "APPROVAL_REQUIRED"
	ErrUnknownApproval        ErrorCode = "UNKNOWN_APPROVAL"
	ErrAlreadyResolved        ErrorCode = "ALREADY_RESOLVED"
	ErrIterationLimitExceeded ErrorCode = "ITERATION_LIMIT_EXCEEDED"
	ErrCheckpointWriteFailure ErrorCode = "CHECKPOINT_WRITE_FAILURE"
	ErrModelUnavailable       ErrorCode = "MODEL_UNAVAILABLE"
	ErrModelRefused           ErrorCode = "MODEL_REFUSED"
	ErrCancelled              ErrorCode = "CANCELLED"
	ErrInputRejected          ErrorCode = "INPUT_REJECTED"
)

// Error is the typed error handlers turn into a JSON envelope. HTTPStatus
// overrides the code's default status when set.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Cause      error     `json:"-"`
}

func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

func (e *Error) Error() string {
	msg := string(e.Code) + ": " + e.Message
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// AsError returns the outermost *Error wrapped by err.
func AsError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// IsRetryable is false for errors that carry no *Error.
func IsRetryable(err error) bool {
	e, ok := AsError(err)
	return ok && e.Retryable
}

// CodeOf returns "" for errors that carry no *Error.
func CodeOf(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

var statusByCode = map[ErrorCode]int{
	ErrInvalidRequest:        http.StatusBadRequest,
	ErrInputRejected:         http.StatusBadRequest,
	ErrUnauthorized:          http.StatusUnauthorized,
	ErrForbidden:             http.StatusForbidden,
	ErrToolDenied:            http.StatusForbidden,
	ErrNotFound:              http.StatusNotFound,
	ErrNoSuchSession:         http.StatusNotFound,
	ErrUnknownApproval:       http.StatusNotFound,
	ErrInvalidSession:        http.StatusConflict,
	ErrAlreadyResolved:       http.StatusConflict,
	ErrRateLimited:           http.StatusTooManyRequests,
	ErrTimeout:               http.StatusGatewayTimeout,
	ErrClassificationFailure: http.StatusServiceUnavailable,
	ErrModelUnavailable:      http.StatusServiceUnavailable,
	ErrServiceUnavailable:    http.StatusServiceUnavailable,
	ErrApprovalRequired:      http.StatusAccepted,
}

// StatusFor maps a code to its HTTP status; unlisted codes are 500.
func StatusFor(code ErrorCode) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
