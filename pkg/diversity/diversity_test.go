package diversity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/agent-trajectory-pipeline/pkg/trajectory"
)

func buildTraj(t *testing.T, taskID, model string, reward float64, steps int) *trajectory.Trajectory {
	t.Helper()
	c := trajectory.NewCollector(taskID, model, "external-process")
	for i := 0; i < steps; i++ {
		done := i == steps-1
		_, err := c.RecordStep(
			trajectory.EnvironmentState{},
			trajectory.AgentAction{ToolName: "bash", ToolArgs: map[string]any{"raw": "echo hi"}},
			trajectory.Observation{Success: true, Output: "hi"},
			reward/float64(steps),
			done,
		)
		require.NoError(t, err)
	}
	traj, err := c.Finalize(trajectory.Success(1.0))
	require.NoError(t, err)
	return traj
}

func TestEmbed_IsL2Normalized(t *testing.T) {
	traj := buildTraj(t, "task-1", "gpt-4", 0.5, 3)
	v := Embed(traj)
	require.Len(t, v, DefaultDimensions)

	var sumSq float64
	for _, x := range v {
		sumSq += x * x
	}
	assert.InDelta(t, 1.0, sumSq, 1e-6)
}

func TestEmbed_IsDeterministic(t *testing.T) {
	traj := buildTraj(t, "task-1", "gpt-4", 0.5, 3)
	a := Embed(traj)
	b := Embed(traj)
	assert.Equal(t, a, b)
}

func TestCosineSimilarity_IdenticalVectorsIsOne(t *testing.T) {
	traj := buildTraj(t, "task-1", "gpt-4", 0.5, 3)
	v := Embed(traj)
	assert.InDelta(t, 1.0, CosineSimilarity(v, v), 1e-9)
}

func TestCosineSimilarity_MismatchedLengthIsZero(t *testing.T) {
	assert.Equal(t, 0.0, CosineSimilarity(Vector{1, 2}, Vector{1, 2, 3}))
}

func TestDeduplicate_CollapsesNearDuplicates(t *testing.T) {
	trajA := buildTraj(t, "task-1", "gpt-4", 0.5, 3)
	trajB := buildTraj(t, "task-1", "gpt-4", 0.9, 3) // near-identical action sequence, higher reward

	items := []Item{
		{ID: "a", Embedding: Embed(trajA), Trajectory: trajA},
		{ID: "b", Embedding: Embed(trajB), Trajectory: trajB},
	}

	dedup := NewDeduplicator(0.5) // loose threshold to force a collision in this test
	result := dedup.Deduplicate(items)

	assert.Equal(t, 2, result.Total)
	if result.RemovedN > 0 {
		require.Len(t, result.Removed, 1)
		assert.Equal(t, "a", result.Removed[0].RemovedID)
		assert.Equal(t, "b", result.Removed[0].KeptID)
	}
}

func TestDeduplicate_EmptyPool(t *testing.T) {
	dedup := NewDeduplicator(0.85)
	result := dedup.Deduplicate(nil)
	assert.Equal(t, 0, result.Total)
	assert.Equal(t, 1.0, result.KeptRatio())
	assert.Equal(t, 0.0, result.RemovedRatio())
}

func TestSampler_Random_ReturnsRequestedCount(t *testing.T) {
	var items []Item
	for i := 0; i < 10; i++ {
		traj := buildTraj(t, "task-1", "gpt-4", float64(i), 2)
		items = append(items, Item{ID: traj.TaskID, Embedding: Embed(traj), Trajectory: traj})
	}
	s := NewSampler(42)
	picked := s.Random(items, 4)
	assert.Len(t, picked, 4)
}

func TestSampler_MaxMin_PicksDistinctFarthestPoints(t *testing.T) {
	var items []Item
	for i := 0; i < 6; i++ {
		traj := buildTraj(t, "task-1", "gpt-4", float64(i), i+1)
		items = append(items, Item{ID: traj.TaskID + string(rune('a'+i)), Embedding: Embed(traj), Trajectory: traj})
	}
	s := NewSampler(7)
	picked := s.MaxMin(items, 3)
	assert.Len(t, picked, 3)

	seen := make(map[string]bool)
	for _, p := range picked {
		assert.False(t, seen[p.ID], "MaxMin should not repeat an item")
		seen[p.ID] = true
	}
}

func TestSampler_Stratified_AllocatesAcrossCategories(t *testing.T) {
	var items []Item
	for i := 0; i < 4; i++ {
		traj := buildTraj(t, "alpha-task", "gpt-4", float64(i), 2)
		items = append(items, Item{ID: "alpha" + string(rune('a'+i)), Embedding: Embed(traj), Trajectory: traj})
	}
	for i := 0; i < 4; i++ {
		traj := buildTraj(t, "beta-task", "gpt-4", float64(i), 2)
		items = append(items, Item{ID: "beta" + string(rune('a'+i)), Embedding: Embed(traj), Trajectory: traj})
	}

	s := NewSampler(1)
	picked := s.Stratified(items, 4, []string{"alpha", "beta"})
	assert.Len(t, picked, 4)
}

func TestSampler_Cluster_ReturnsRequestedCount(t *testing.T) {
	var items []Item
	for i := 0; i < 10; i++ {
		traj := buildTraj(t, "task-1", "gpt-4", float64(i), i%5+1)
		items = append(items, Item{ID: traj.TaskID + string(rune('a'+i)), Embedding: Embed(traj), Trajectory: traj})
	}
	s := NewSampler(3)
	picked := s.Cluster(items, 5, 3)
	assert.Len(t, picked, 5)
}
