package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutionError_Error(t *testing.T) {
	err := &ExecutionError{
		Category: ErrCategoryInstall,
		Code:     "test_error",
		Message:  "test message",
	}

	assert.Equal(t, "test message", err.Error())
}

func TestExecutionError_ErrorWithCauseAndOutput(t *testing.T) {
	err := ErrInstallCommandFailed.
		WithCause(errors.New("exit status 1")).
		WithOutput("Failure [INSTALL_FAILED_INSUFFICIENT_STORAGE]\n")

	got := err.Error()
	assert.Contains(t, got, "install command failed")
	assert.Contains(t, got, "exit status 1")
	assert.Contains(t, got, "INSTALL_FAILED_INSUFFICIENT_STORAGE")
	assert.Equal(t, "Failure [INSTALL_FAILED_INSUFFICIENT_STORAGE]", err.Output())
}

func TestExecutionError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := &ExecutionError{Message: "wrapper", Cause: cause}

	assert.Same(t, cause, err.Unwrap())
	assert.ErrorIs(t, err, cause)
}

func TestExecutionError_BuildersDoNotMutateSentinel(t *testing.T) {
	original := ErrActivityNotResolvable

	withCause := original.WithCause(errors.New("boom"))
	withMsg := original.WithMessage("custom")
	withDetails := original.WithDetails(map[string]interface{}{DetailPackage: "pkg.name"})

	assert.Nil(t, original.Cause)
	assert.Equal(t, "launcher activity could not be resolved", original.Message)
	assert.Nil(t, original.Details)

	assert.Equal(t, original.Code, withCause.Code)
	assert.Equal(t, "custom", withMsg.Message)
	assert.Equal(t, "pkg.name", withDetails.Details[DetailPackage])
}

func TestExecutionError_WithDetailsMerges(t *testing.T) {
	base := ErrInvalidBundle.WithDetails(map[string]interface{}{DetailPath: "a.apks"})
	merged := base.WithOutput("listing")

	assert.Equal(t, "a.apks", merged.Details[DetailPath])
	assert.Equal(t, "listing", merged.Details[DetailOutput])
	_, hasOutput := base.Details[DetailOutput]
	assert.False(t, hasOutput, "WithDetails modified the receiver's details")
}

func TestIsCode(t *testing.T) {
	err := fmt.Errorf("setup: %w", ErrSessionEstablishmentFailed.WithCause(ErrDeviceNotReady))

	assert.True(t, IsCode(err, CodeSessionEstablishmentFailed))
	assert.True(t, IsCode(err, CodeDeviceNotReady), "IsCode should follow Cause chains")
	assert.False(t, IsCode(err, CodeInvalidBundle))
	assert.False(t, IsCode(errors.New("plain"), CodeInvalidBundle))
	assert.False(t, IsCode(nil, CodeInvalidBundle))
}

func TestIsSkip(t *testing.T) {
	assert.True(t, IsSkip(ErrDeviceNotReady))
	assert.True(t, IsSkip(fmt.Errorf("preflight: %w", ErrDeviceNotReady.WithMessage("device offline"))))
	assert.False(t, IsSkip(ErrSessionEstablishmentFailed))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want TestStatus
	}{
		{"nil", nil, StatusPassed},
		{"device not ready", ErrDeviceNotReady, StatusSkipped},
		{"infrastructure", ErrInvalidBundle, StatusErrored},
		{"assertion", errors.New("expected LandingActivity"), StatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.err))
		})
	}
}

func TestNewExecutionError(t *testing.T) {
	err := NewExecutionError(ErrCategoryConfig, "bad_flag", "bad flag")
	require.NotNil(t, err)
	assert.Equal(t, ErrCategoryConfig, err.Category)
	assert.Equal(t, "bad_flag", err.Code)
}

func TestDiscard_NilIsNoop(t *testing.T) {
	assert.NotPanics(t, func() {
		Discard("quit session", nil)
		Discard("quit session", errors.New("connection reset"))
	})
}
