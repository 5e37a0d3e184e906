package graph

import (
	"context"
	"errors"
	"net/http"

	"github.com/FaresOuhachi/HR-Payroll-Agent/approval"
	"github.com/FaresOuhachi/HR-Payroll-Agent/checkpoint"
	"github.com/FaresOuhachi/HR-Payroll-Agent/llm"
	"github.com/FaresOuhachi/HR-Payroll-Agent/router"
	"github.com/FaresOuhachi/HR-Payroll-Agent/types"
)

var (
	// ErrInvalidSession: another run holds the session, the run is stranded,
	// or an approval no longer matches the session's position.
	ErrInvalidSession = errors.New("invalid session")
	// ErrCheckpointWrite wraps a failed checkpoint write; the step did not happen.
	ErrCheckpointWrite = errors.New("checkpoint write failure")
	// ErrCancelled is the cancellation cause of an interrupted run.
	ErrCancelled = errors.New("run cancelled")
	// ErrLockHeld is returned by a RunLock when the session is already locked.
	ErrLockHeld = errors.New("session run lock held")
)

// ToTypedError maps engine and collaborator errors to *types.Error. Errors
// that already are *types.Error are returned unchanged.
func ToTypedError(err error) *types.Error {
	if err == nil {
		return nil
	}
	if te, ok := types.AsError(err); ok {
		return te
	}

	var code types.ErrorCode
	retryable := false
	switch {
	case errors.Is(err, ErrCheckpointWrite):
		code = types.ErrCheckpointWriteFailure
		retryable = true
	case errors.Is(err, ErrInvalidSession), errors.Is(err, ErrLockHeld):
		code = types.ErrInvalidSession
	case errors.Is(err, checkpoint.ErrNoSuchSession):
		code = types.ErrNoSuchSession
	case errors.Is(err, approval.ErrNotFound):
		code = types.ErrUnknownApproval
	case errors.Is(err, approval.ErrAlreadyResolved):
		code = types.ErrAlreadyResolved
	case errors.Is(err, approval.ErrInvalidDecision):
		code = types.ErrInvalidRequest
	case errors.Is(err, router.ErrClassificationFailure):
		code = types.ErrClassificationFailure
		retryable = true
	case errors.Is(err, llm.ErrModelUnavailable):
		code = types.ErrModelUnavailable
		retryable = true
	case errors.Is(err, llm.ErrModelRefused):
		code = types.ErrModelRefused
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		code = types.ErrCancelled
	case errors.Is(err, context.DeadlineExceeded):
		code = types.ErrTimeout
		retryable = true
	default:
		code = types.ErrInternalError
	}

	return types.NewError(code, err.Error()).
		WithCause(err).
		WithRetryable(retryable).
		WithHTTPStatus(types.StatusFor(code))
}

// failureError is what Start/Resume return alongside a failure answer for
// the kinds a caller is expected to retry.
func failureError(kind FailureKind, cause error) error {
	switch kind {
	case FailureClassification:
		return types.NewError(types.ErrClassificationFailure, "intent classification failed").
			WithCause(cause).WithRetryable(true).WithHTTPStatus(http.StatusServiceUnavailable)
	case FailureModelUnavailable:
		return types.NewError(types.ErrModelUnavailable, "model unavailable").
			WithCause(cause).WithRetryable(true).WithHTTPStatus(http.StatusServiceUnavailable)
	}
	return nil
}
