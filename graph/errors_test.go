package graph

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/FaresOuhachi/HR-Payroll-Agent/approval"
	"github.com/FaresOuhachi/HR-Payroll-Agent/checkpoint"
	"github.com/FaresOuhachi/HR-Payroll-Agent/llm"
	"github.com/FaresOuhachi/HR-Payroll-Agent/router"
	"github.com/FaresOuhachi/HR-Payroll-Agent/types"
)

func TestToTypedError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		code      types.ErrorCode
		retryable bool
	}{
		{"checkpoint write", fmt.Errorf("%w: boom", ErrCheckpointWrite), types.ErrCheckpointWriteFailure, true},
		{"invalid session", fmt.Errorf("%w: busy", ErrInvalidSession), types.ErrInvalidSession, false},
		{"lock held", ErrLockHeld, types.ErrInvalidSession, false},
		{"no session", checkpoint.ErrNoSuchSession, types.ErrNoSuchSession, false},
		{"unknown approval", approval.ErrNotFound, types.ErrUnknownApproval, false},
		{"already resolved", approval.ErrAlreadyResolved, types.ErrAlreadyResolved, false},
		{"bad decision", approval.ErrInvalidDecision, types.ErrInvalidRequest, false},
		{"classification", router.ErrClassificationFailure, types.ErrClassificationFailure, true},
		{"model unavailable", llm.ErrModelUnavailable, types.ErrModelUnavailable, true},
		{"model refused", llm.ErrModelRefused, types.ErrModelRefused, false},
		{"cancelled", cancelError{reason: "stop"}, types.ErrCancelled, false},
		{"context cancelled", context.Canceled, types.ErrCancelled, false},
		{"deadline", context.DeadlineExceeded, types.ErrTimeout, true},
		{"other", errors.New("boom"), types.ErrInternalError, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			te := ToTypedError(tt.err)
			assert.Equal(t, tt.code, te.Code)
			assert.Equal(t, tt.retryable, te.Retryable)
			assert.Equal(t, types.StatusFor(tt.code), te.HTTPStatus)
			assert.ErrorIs(t, te, tt.err)
		})
	}
}

func TestToTypedError_PassesThroughTypedErrors(t *testing.T) {
	assert.Nil(t, ToTypedError(nil))

	orig := types.NewError(types.ErrToolDenied, "nope")
	assert.Same(t, orig, ToTypedError(fmt.Errorf("wrapped: %w", orig)))
}

func TestFailureError(t *testing.T) {
	cause := errors.New("upstream")

	err := failureError(FailureClassification, cause)
	te, ok := types.AsError(err)
	assert.True(t, ok)
	assert.Equal(t, types.ErrClassificationFailure, te.Code)
	assert.Equal(t, http.StatusServiceUnavailable, te.HTTPStatus)
	assert.ErrorIs(t, err, cause)

	assert.True(t, types.IsRetryable(failureError(FailureModelUnavailable, cause)))
	assert.NoError(t, failureError(FailureToolDenied, nil))
	assert.NoError(t, failureError(FailureIterationLimitExceeded, nil))
}
