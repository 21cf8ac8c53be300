package trajectory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_RecordStep_AssignsMonotonicStepNumbers(t *testing.T) {
	c := NewCollector("t1", "gpt-4", "external-process")

	_, err := c.RecordStep(EnvironmentState{}, AgentAction{ToolName: "bash"}, Observation{Success: true}, 0.1, false)
	require.NoError(t, err)
	_, err = c.RecordStep(EnvironmentState{}, AgentAction{ToolName: "submit"}, Observation{Success: true}, 0.2, true)
	require.NoError(t, err)

	traj, err := c.Finalize(Success(1.0))
	require.NoError(t, err)

	require.Len(t, traj.Steps, 2)
	assert.Equal(t, uint32(0), traj.Steps[0].StepNumber)
	assert.Equal(t, uint32(1), traj.Steps[1].StepNumber)
	assert.InDelta(t, 0.3, traj.TotalReward, 1e-9)
	assert.True(t, traj.Steps[1].Done)
	assert.True(t, traj.IsFinalized())
}

func TestCollector_RecordStep_RejectsStepAfterDone(t *testing.T) {
	c := NewCollector("t1", "gpt-4", "external-process")
	_, err := c.RecordStep(EnvironmentState{}, AgentAction{}, Observation{}, 0, true)
	require.NoError(t, err)

	_, err = c.RecordStep(EnvironmentState{}, AgentAction{}, Observation{}, 0, false)
	assert.ErrorIs(t, err, ErrStepAfterDone)
}

func TestCollector_Finalize_IsOneShot(t *testing.T) {
	c := NewCollector("t1", "gpt-4", "external-process")
	_, err := c.Finalize(Success(1.0))
	require.NoError(t, err)

	_, err = c.Finalize(Success(1.0))
	assert.ErrorIs(t, err, ErrAlreadyFinalized)

	_, err = c.RecordStep(EnvironmentState{}, AgentAction{}, Observation{}, 0, false)
	assert.ErrorIs(t, err, ErrAlreadyFinalized)
}

func TestCollector_AddTokens_KeepsTotalConsistent(t *testing.T) {
	c := NewCollector("t1", "gpt-4", "external-process")
	c.AddTokens(100, 50)
	c.AddTokens(20, 5)

	traj, err := c.Finalize(Timeout())
	require.NoError(t, err)
	assert.Equal(t, 120, traj.TokenUsage.Prompt)
	assert.Equal(t, 55, traj.TokenUsage.Completion)
	assert.Equal(t, 175, traj.TokenUsage.Total)
}
