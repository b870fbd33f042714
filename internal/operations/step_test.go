package operations

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepStateLifecycle(t *testing.T) {
	state := NewStepState(StepIDExpirations, StepNameExpirations)
	assert.Equal(t, StepStatusPending, state.GetStatus())
	assert.Nil(t, state.StartTime)
	assert.Equal(t, time.Duration(0), state.Duration())

	state.Start()
	assert.Equal(t, StepStatusRunning, state.GetStatus())
	require.NotNil(t, state.StartTime)

	state.UpdateProgress(40, "scanning workbooks")
	assert.Equal(t, 40.0, state.Progress)
	assert.Equal(t, "scanning workbooks", state.Message)

	state.Complete()
	assert.Equal(t, StepStatusCompleted, state.GetStatus())
	assert.Equal(t, 100.0, state.Progress)
	require.NotNil(t, state.EndTime)
	assert.GreaterOrEqual(t, state.Duration(), time.Duration(0))
}

func TestStepStateFail(t *testing.T) {
	state := NewStepState("a", "Step a")
	state.Start()

	cause := errors.New("tick archive unreadable")
	state.Fail(cause)

	assert.Equal(t, StepStatusFailed, state.GetStatus())
	assert.Equal(t, cause, state.Error)
	require.NotNil(t, state.EndTime)
}

func TestStepStateSkip(t *testing.T) {
	state := NewStepState("a", "Step a")
	state.Skip("dependency open_window failed")

	assert.Equal(t, StepStatusSkipped, state.GetStatus())
	assert.Equal(t, "dependency open_window failed", state.Message)
	require.NotNil(t, state.EndTime)
}

func TestStepStateMetadata(t *testing.T) {
	state := NewStepState("a", "Step a")
	state.SetMetadata("rows", 128)
	state.SetMetadata("dataset", "volume_by_dte")

	meta := state.GetMetadata()
	assert.Equal(t, 128, meta["rows"])
	assert.Equal(t, "volume_by_dte", meta["dataset"])

	// The returned map is a copy.
	meta["rows"] = 0
	assert.Equal(t, 128, state.GetMetadata()["rows"])
}

func TestBaseStep(t *testing.T) {
	base := NewBaseStep(StepIDOvernight, StepNameOvernight, StepIDTradingDays, StepIDOpenWindow)

	assert.Equal(t, StepIDOvernight, base.ID())
	assert.Equal(t, StepNameOvernight, base.Name())
	assert.Equal(t, []string{StepIDTradingDays, StepIDOpenWindow}, base.GetDependencies())
	assert.NoError(t, base.Validate(nil))
}

func TestBaseStepNoDependencies(t *testing.T) {
	base := NewBaseStep(StepIDExpirations, StepNameExpirations)
	assert.Empty(t, base.GetDependencies())
}
