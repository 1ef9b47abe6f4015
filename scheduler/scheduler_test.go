package scheduler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/paraxVM/pevm/mvtypes"
)

func TestNextTaskExecutesInOrderThenDone(t *testing.T) {
	s := New(3)

	for i := 0; i < 3; i++ {
		task := s.NextTask()
		require.Equal(t, TaskExecute, task.Kind)
		require.Equal(t, mvtypes.TxIdx(i), task.Version.TxIdx)
		require.Equal(t, mvtypes.Incarnation(0), task.Version.Incarnation)
	}

	require.Equal(t, TaskNone, s.NextTask().Kind)
	require.False(t, s.Done(), "still executing, not yet validated")
}

func TestNextTaskValidatesAfterExecution(t *testing.T) {
	s := New(1)
	exec := s.NextTask()
	require.Equal(t, TaskExecute, exec.Kind)

	require.Nil(t, s.FinishExecution(exec.Version, exec.Version.TxIdx))

	validate := s.NextTask()
	require.Equal(t, TaskValidate, validate.Kind)
	require.Equal(t, exec.Version, validate.Version)

	s.FinishValidation(validate.Version.TxIdx, validate.Version.Incarnation, true)
	require.True(t, s.Done())
}

func TestFinishValidationFailureReExecutesWithBumpedIncarnation(t *testing.T) {
	s := New(1)
	exec := s.NextTask()
	s.FinishExecution(exec.Version, exec.Version.TxIdx)

	validate := s.NextTask()
	s.FinishValidation(validate.Version.TxIdx, validate.Version.Incarnation, false)

	require.Equal(t, mvtypes.Incarnation(1), s.Incarnation(0))

	retry := s.NextTask()
	require.Equal(t, TaskExecute, retry.Kind)
	require.Equal(t, mvtypes.Incarnation(1), retry.Version.Incarnation)
}

func TestAddDependencyParksAndWakesOnFinishExecution(t *testing.T) {
	s := New(2)

	first := s.NextTask() // tx0
	second := s.NextTask() // tx1
	require.Equal(t, mvtypes.TxIdx(0), first.Version.TxIdx)
	require.Equal(t, mvtypes.TxIdx(1), second.Version.TxIdx)

	ok := s.AddDependency(1, 0)
	require.True(t, ok, "tx0 has not finished yet, so the dependency should register")

	require.Equal(t, TaskNone, s.NextTask().Kind, "tx1 is parked and tx0 already taken")

	woken := s.FinishExecution(first.Version, first.Version.TxIdx)
	require.Equal(t, []mvtypes.TxIdx{1}, woken)

	// tx1 was just woken back to ready-to-execute, and NextTask prefers
	// handing out that fresh execution work over validating tx0 (spec
	// §4.7 "Tie-breaks").
	resumed := s.NextTask()
	require.Equal(t, TaskExecute, resumed.Kind)
	require.Equal(t, mvtypes.TxIdx(1), resumed.Version.TxIdx)

	validateTx0 := s.NextTask()
	require.Equal(t, TaskValidate, validateTx0.Kind)
	require.Equal(t, mvtypes.TxIdx(0), validateTx0.Version.TxIdx)
}

func TestAddDependencyReturnsFalseIfBlockingAlreadyExecuted(t *testing.T) {
	s := New(2)
	first := s.NextTask()
	s.NextTask()
	s.FinishExecution(first.Version, first.Version.TxIdx)

	require.False(t, s.AddDependency(1, 0))
}

func TestFinishExecutionRewindsValidationForLazyWrites(t *testing.T) {
	s := New(2)

	t0 := s.NextTask()
	s.FinishExecution(t0.Version, t0.Version.TxIdx)

	// tx1 is still ready to execute, and NextTask hands that out before
	// validating tx0 (spec §4.7 "Tie-breaks": execution has priority).
	t1 := s.NextTask()
	require.Equal(t, TaskExecute, t1.Kind)
	require.Equal(t, mvtypes.TxIdx(1), t1.Version.TxIdx)

	// tx0 validates while tx1 is still executing, moving the validation
	// cursor past it.
	v0 := s.NextTask()
	require.Equal(t, TaskValidate, v0.Kind)
	require.Equal(t, mvtypes.TxIdx(0), v0.Version.TxIdx)
	s.FinishValidation(v0.Version.TxIdx, v0.Version.Incarnation, true)

	// tx1's incarnation used a lazy strategy, which must re-validate the
	// whole prefix (spec §4.5's next_validation_idx == 0), so tx0 is handed
	// out for validation again.
	s.FinishExecution(t1.Version, mvtypes.TxIdx(0))

	again := s.NextTask()
	require.Equal(t, TaskValidate, again.Kind)
	require.Equal(t, mvtypes.TxIdx(0), again.Version.TxIdx)
	s.FinishValidation(again.Version.TxIdx, again.Version.Incarnation, true)

	v1 := s.NextTask()
	require.Equal(t, TaskValidate, v1.Kind)
	require.Equal(t, mvtypes.TxIdx(1), v1.Version.TxIdx)
}
