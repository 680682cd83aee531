package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryable(t *testing.T) {
	execErr := &ExecutionError{TaskID: "t1", Title: "Build", Err: errors.New("exit 1")}
	cascadeErr := &CascadeError{TaskID: "t2", Title: "Deploy", ParentID: "t1", Reason: "dependency failed: Build"}

	assert.True(t, IsRetryable(execErr))
	assert.True(t, IsRetryable(errors.New("exit status 2")))
	assert.True(t, IsRetryable(context.DeadlineExceeded), "a timed out run may be reassigned")
	assert.True(t, IsRetryable(nil))
	assert.False(t, IsRetryable(cascadeErr))
	assert.False(t, IsRetryable(fmt.Errorf("wrapped: %w", cascadeErr)))
	assert.False(t, IsRetryable(fmt.Errorf("context cancelled before execution: %w", context.Canceled)))
}

func TestErrorMessages(t *testing.T) {
	inner := errors.New("backend unavailable")
	cerr := &ClassifierError{Err: inner}
	assert.Equal(t, "classifier failed: backend unavailable", cerr.Error())
	assert.ErrorIs(t, cerr, inner)

	execErr := &ExecutionError{Title: "Build", Err: inner}
	assert.ErrorIs(t, execErr, inner)
	assert.Contains(t, execErr.Error(), `"Build"`)

	cascade := &CascadeError{Title: "Deploy", Reason: "dependency failed: Build"}
	assert.Equal(t, `task "Deploy" cancelled: dependency failed: Build`, cascade.Error())

	perr := &ChoiceParseError{Kind: ChoiceRetry, Input: "maybe"}
	assert.Equal(t, `answer "maybe" does not match a retry choice`, perr.Error())
}
