package operations

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBroadcaster(t *testing.T) (*StatusBroadcaster, *fakeHub) {
	t.Helper()
	hub := &fakeHub{}
	sb := NewStatusBroadcaster(hub, testLogger())
	t.Cleanup(sb.Stop)
	return sb, hub
}

func twoStepStates() []*StepState {
	return []*StepState{
		NewStepState("a", "Step a"),
		NewStepState("b", "Step b"),
	}
}

func TestStatusBroadcasterCreateOperation(t *testing.T) {
	sb, hub := newTestBroadcaster(t)

	sb.CreateOperation("op-1", twoStepStates())

	snapshot, ok := sb.GetSnapshot("op-1")
	require.True(t, ok)
	assert.Equal(t, string(OperationStatusPending), snapshot.Status)
	assert.Equal(t, 0, snapshot.Progress)
	require.Len(t, snapshot.Steps, 2)
	assert.Equal(t, "a", snapshot.Steps[0].ID)
	assert.Equal(t, "Step a", snapshot.Steps[0].Name)
	assert.Equal(t, string(StepStatusPending), snapshot.Steps[1].Status)
	assert.Equal(t, 1, hub.eventCount())
}

func TestStatusBroadcasterStepLifecycle(t *testing.T) {
	sb, _ := newTestBroadcaster(t)

	sb.CreateOperation("op-1", twoStepStates())
	sb.StartOperation("op-1")
	sb.StartStep("op-1", "a")

	snapshot, ok := sb.GetSnapshot("op-1")
	require.True(t, ok)
	assert.Equal(t, string(OperationStatusRunning), snapshot.Status)
	assert.Equal(t, "Step a", snapshot.CurrentStep)
	assert.Equal(t, string(StepStatusRunning), snapshot.Steps[0].Status)

	sb.UpdateStepProgress("op-1", "a", 50, "halfway")

	snapshot, _ = sb.GetSnapshot("op-1")
	assert.Equal(t, 50, snapshot.Steps[0].Progress)
	assert.Equal(t, "halfway", snapshot.Steps[0].Message)
	// Overall progress averages across both steps.
	assert.Equal(t, 25, snapshot.Progress)

	sb.CompleteStep("op-1", "a", "a completed")

	snapshot, _ = sb.GetSnapshot("op-1")
	assert.Equal(t, string(StepStatusCompleted), snapshot.Steps[0].Status)
	assert.Equal(t, 100, snapshot.Steps[0].Progress)
	assert.Equal(t, "a completed", snapshot.Steps[0].Message)
}

func TestStatusBroadcasterProgressMonotonicWhileRunning(t *testing.T) {
	sb, _ := newTestBroadcaster(t)

	sb.CreateOperation("op-1", twoStepStates())
	sb.UpdateStepProgress("op-1", "a", 50, "forward")
	sb.UpdateStepProgress("op-1", "a", 30, "late event")

	snapshot, _ := sb.GetSnapshot("op-1")
	assert.Equal(t, 50, snapshot.Steps[0].Progress)
	assert.Equal(t, "late event", snapshot.Steps[0].Message)
}

func TestStatusBroadcasterProgressHundredCompletesStep(t *testing.T) {
	sb, _ := newTestBroadcaster(t)

	sb.CreateOperation("op-1", twoStepStates())
	sb.UpdateStepProgress("op-1", "a", 100, "done")

	snapshot, _ := sb.GetSnapshot("op-1")
	assert.Equal(t, string(StepStatusCompleted), snapshot.Steps[0].Status)
	assert.Equal(t, 100, snapshot.Steps[0].Progress)
}

func TestStatusBroadcasterUpdateStepWithMetadata(t *testing.T) {
	sb, _ := newTestBroadcaster(t)

	sb.CreateOperation("op-1", twoStepStates())
	sb.UpdateStepWithMetadata("op-1", "a", 100, "done", map[string]interface{}{"rows": 42})

	snapshot, _ := sb.GetSnapshot("op-1")
	require.NotNil(t, snapshot.Steps[0].Metadata)
	assert.Equal(t, 42, snapshot.Steps[0].Metadata["rows"])
}

func TestStatusBroadcasterUnknownStepAppended(t *testing.T) {
	sb, _ := newTestBroadcaster(t)

	sb.CreateOperation("op-1", twoStepStates())
	sb.UpdateStepProgress("op-1", "extra", 40, "surprise step")

	snapshot, _ := sb.GetSnapshot("op-1")
	require.Len(t, snapshot.Steps, 3)
	assert.Equal(t, "extra", snapshot.Steps[2].ID)
	assert.Equal(t, "extra", snapshot.Steps[2].Name)
	assert.Equal(t, 40, snapshot.Steps[2].Progress)
}

func TestStatusBroadcasterFailAndSkipStep(t *testing.T) {
	sb, _ := newTestBroadcaster(t)

	sb.CreateOperation("op-1", twoStepStates())
	sb.FailStep("op-1", "a", errors.New("archive corrupt"))
	sb.SkipStep("op-1", "b", "dependency a failed")

	snapshot, _ := sb.GetSnapshot("op-1")
	assert.Equal(t, string(StepStatusFailed), snapshot.Steps[0].Status)
	assert.Equal(t, "archive corrupt", snapshot.Steps[0].Error)
	assert.Equal(t, string(StepStatusSkipped), snapshot.Steps[1].Status)
	assert.Equal(t, "dependency a failed", snapshot.Steps[1].Message)
}

func TestStatusBroadcasterCompleteOperation(t *testing.T) {
	sb, _ := newTestBroadcaster(t)

	sb.CreateOperation("op-1", twoStepStates())
	sb.StartOperation("op-1")
	sb.StartStep("op-1", "a")
	sb.CompleteOperation("op-1", "Research pipeline completed")

	snapshot, _ := sb.GetSnapshot("op-1")
	assert.Equal(t, string(OperationStatusCompleted), snapshot.Status)
	assert.Equal(t, 100, snapshot.Progress)
	assert.Empty(t, snapshot.CurrentStep)
	require.NotNil(t, snapshot.CompletedAt)
	for _, step := range snapshot.Steps {
		assert.Equal(t, string(StepStatusCompleted), step.Status)
		assert.Equal(t, 100, step.Progress)
	}
}

func TestStatusBroadcasterFailOperation(t *testing.T) {
	sb, _ := newTestBroadcaster(t)

	sb.CreateOperation("op-1", twoStepStates())
	sb.FailOperation("op-1", errors.New("settlement archive unreadable"))

	snapshot, _ := sb.GetSnapshot("op-1")
	assert.Equal(t, string(OperationStatusFailed), snapshot.Status)
	assert.Equal(t, "settlement archive unreadable", snapshot.Error)
	require.NotNil(t, snapshot.CompletedAt)
}

func TestStatusBroadcasterCancelOperation(t *testing.T) {
	sb, _ := newTestBroadcaster(t)

	sb.CreateOperation("op-1", twoStepStates())
	sb.CancelOperation("op-1")

	snapshot, _ := sb.GetSnapshot("op-1")
	assert.Equal(t, string(OperationStatusCancelled), snapshot.Status)
	assert.Equal(t, "Operation cancelled", snapshot.Message)
	require.NotNil(t, snapshot.CompletedAt)
}

func TestStatusBroadcasterGetSnapshotCopies(t *testing.T) {
	sb, _ := newTestBroadcaster(t)

	sb.CreateOperation("op-1", twoStepStates())

	snapshot, ok := sb.GetSnapshot("op-1")
	require.True(t, ok)
	snapshot.Steps[0].Progress = 99

	fresh, _ := sb.GetSnapshot("op-1")
	assert.Equal(t, 0, fresh.Steps[0].Progress)
}

func TestStatusBroadcasterGetSnapshotUnknown(t *testing.T) {
	sb, _ := newTestBroadcaster(t)

	snapshot, ok := sb.GetSnapshot("missing")
	assert.False(t, ok)
	assert.Nil(t, snapshot)
}

func TestStatusBroadcasterGetAllSnapshots(t *testing.T) {
	sb, _ := newTestBroadcaster(t)

	sb.CreateOperation("op-1", twoStepStates())
	sb.CreateOperation("op-2", twoStepStates())

	assert.Len(t, sb.GetAllSnapshots(), 2)
}

func TestStatusBroadcasterCleanupOldOperations(t *testing.T) {
	sb, _ := newTestBroadcaster(t)

	sb.CreateOperation("op-done", twoStepStates())
	sb.CompleteOperation("op-done", "finished")
	sb.CreateOperation("op-running", twoStepStates())
	sb.StartOperation("op-running")

	time.Sleep(5 * time.Millisecond)
	sb.CleanupOldOperations(context.Background(), time.Millisecond)

	_, ok := sb.GetSnapshot("op-done")
	assert.False(t, ok)
	_, ok = sb.GetSnapshot("op-running")
	assert.True(t, ok)
}

func TestStatusBroadcasterNilHub(t *testing.T) {
	sb := NewStatusBroadcaster(nil, nil)
	defer sb.Stop()

	sb.CreateOperation("op-1", twoStepStates())
	sb.CompleteOperation("op-1", "done")

	snapshot, ok := sb.GetSnapshot("op-1")
	require.True(t, ok)
	assert.Equal(t, string(OperationStatusCompleted), snapshot.Status)
}
