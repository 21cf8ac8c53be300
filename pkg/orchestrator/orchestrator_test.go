package orchestrator_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/agent-trajectory-pipeline/pkg/artifact"
	"github.com/codeready-toolchain/agent-trajectory-pipeline/pkg/container"
	"github.com/codeready-toolchain/agent-trajectory-pipeline/pkg/llm"
	"github.com/codeready-toolchain/agent-trajectory-pipeline/pkg/orchestrator"
	"github.com/codeready-toolchain/agent-trajectory-pipeline/pkg/quality"
	"github.com/codeready-toolchain/agent-trajectory-pipeline/pkg/runner"
	"github.com/codeready-toolchain/agent-trajectory-pipeline/pkg/scaffold"
	"github.com/codeready-toolchain/agent-trajectory-pipeline/pkg/store"
	"github.com/codeready-toolchain/agent-trajectory-pipeline/pkg/trajectory"
)

// fakeRuntime is a minimal in-memory container.Runtime, mirroring
// pkg/runner's own test fake.
type fakeRuntime struct{}

func (fakeRuntime) CreateContainer(ctx context.Context, cfg container.Config) (string, error) {
	return "fake-id", nil
}
func (fakeRuntime) Start(ctx context.Context, id string) error               { return nil }
func (fakeRuntime) Stop(ctx context.Context, id string) error                { return nil }
func (fakeRuntime) Remove(ctx context.Context, id string, force bool) error  { return nil }
func (fakeRuntime) Exec(ctx context.Context, id string, argv []string) (container.ExecResult, error) {
	return container.ExecResult{ExitCode: 0, Stdout: "ok"}, nil
}
func (fakeRuntime) Wait(ctx context.Context, id string) (int, error) { return 0, nil }
func (fakeRuntime) InspectStatus(ctx context.Context, id string) (container.RuntimeState, error) {
	return container.RuntimeState{Status: container.StatusRunning}, nil
}
func (fakeRuntime) ImageExists(ctx context.Context, ref string) (bool, error) { return true, nil }
func (fakeRuntime) PullImage(ctx context.Context, ref string) error           { return nil }
func (fakeRuntime) Logs(ctx context.Context, id string) (string, error)       { return "container logs", nil }

// scriptedScaffold replays a fixed sequence of steps.
type scriptedScaffold struct {
	steps []scaffold.Step
	idx   int
}

func (s *scriptedScaffold) Initialize(ctx context.Context, taskID, problem, containerID string) (string, error) {
	return "ready", nil
}
func (s *scriptedScaffold) Step(ctx context.Context, lastObservation string) (scaffold.Step, error) {
	if s.idx >= len(s.steps) {
		return scaffold.Step{IsTerminal: true}, nil
	}
	step := s.steps[s.idx]
	s.idx++
	return step, nil
}
func (s *scriptedScaffold) IsTerminal() bool                  { return s.idx >= len(s.steps) }
func (s *scriptedScaffold) Cleanup(ctx context.Context) error { return nil }

func newScaffoldFactory(steps []scaffold.Step) runner.ScaffoldFactory {
	return func(task runner.Task) (scaffold.Scaffold, error) {
		return &scriptedScaffold{steps: steps}, nil
	}
}

// fakeCostRecorder is an in-memory llm.CostRecorder.
type fakeCostRecorder struct {
	mu     sync.Mutex
	totalCents int64
}

func (f *fakeCostRecorder) RecordCost(ctx context.Context, model string, inputTokens, outputTokens int, costCents int64, taskID *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.totalCents += costCents
	return nil
}
func (f *fakeCostRecorder) DailyCostCents(ctx context.Context, since time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.totalCents, nil
}
func (f *fakeCostRecorder) MonthlyCostCents(ctx context.Context, since time.Time) (int64, error) {
	return f.DailyCostCents(ctx, since)
}

// fakeStore is an in-memory orchestrator.TrajectoryStore.
type fakeStore struct {
	mu           sync.Mutex
	trajectories map[uuid.UUID]*trajectory.Trajectory
	scores       map[uuid.UUID]store.QualityScore
}

func newFakeStore() *fakeStore {
	return &fakeStore{trajectories: map[uuid.UUID]*trajectory.Trajectory{}, scores: map[uuid.UUID]store.QualityScore{}}
}

func (f *fakeStore) SaveTrajectory(ctx context.Context, t *trajectory.Trajectory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trajectories[t.ID] = t
	return nil
}
func (f *fakeStore) SaveQualityScore(ctx context.Context, q store.QualityScore) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scores[q.TrajectoryID] = q
	return nil
}

// fakeArtifacts is an in-memory orchestrator.ArtifactStore.
type fakeArtifacts struct {
	mu    sync.Mutex
	count int
}

func (f *fakeArtifacts) StoreBytes(ctx context.Context, trajectoryID *uuid.UUID, artifactType artifact.Type, data []byte) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count++
	return uuid.New(), nil
}

func newOrchestrator(t *testing.T, steps []scaffold.Step, maxConcurrent int) (*orchestrator.Orchestrator, *fakeStore, *fakeArtifacts, *fakeCostRecorder) {
	t.Helper()
	r := runner.New(fakeRuntime{}, "python:3.11-slim", "external-process", newScaffoldFactory(steps))
	recorder := &fakeCostRecorder{}
	tracker := llm.NewCostTracker(recorder, nil, 10000, 100000)
	st := newFakeStore()
	arts := &fakeArtifacts{}

	o := orchestrator.New(r, tracker, quality.DefaultWeights(), st, arts, t.TempDir(), "gpt-4", maxConcurrent)
	return o, st, arts, recorder
}

func happyPathTask(id string) runner.Task {
	return runner.Task{
		ID:                 id,
		Instruction:        "create hello.txt containing Hi",
		Difficulty:         "easy",
		VerificationScript: "grep -q Hi hello.txt",
		MaxSteps:           5,
		Timeout:            time.Minute,
	}
}

func TestRunTask_HappyPath_CompletesAndPersists(t *testing.T) {
	steps := []scaffold.Step{
		{Action: scaffold.Action{ToolName: "bash", ToolArgs: map[string]any{"raw": "echo Hi > hello.txt"}}},
		{Action: scaffold.Action{ToolName: "submit"}, IsTerminal: true},
	}
	o, st, arts, _ := newOrchestrator(t, steps, 4)

	exec := o.RunTask(context.Background(), happyPathTask("t1"))

	require.Equal(t, orchestrator.StatusCompleted, exec.Status)
	require.NotNil(t, exec.TrajectoryID)
	require.NotNil(t, exec.QualityScore)

	st.mu.Lock()
	_, saved := st.trajectories[*exec.TrajectoryID]
	score := st.scores[*exec.TrajectoryID]
	st.mu.Unlock()
	assert.True(t, saved)
	assert.True(t, score.PassedFilter)

	arts.mu.Lock()
	assert.Equal(t, 1, arts.count)
	arts.mu.Unlock()
}

func TestRunTask_MaxStepsExceeded_SavesTrajectoryAsFailed(t *testing.T) {
	steps := []scaffold.Step{
		{Action: scaffold.Action{ToolName: "bash", ToolArgs: map[string]any{"raw": "echo hi"}}},
		{Action: scaffold.Action{ToolName: "bash", ToolArgs: map[string]any{"raw": "echo hi"}}},
	}
	o, st, _, _ := newOrchestrator(t, steps, 4)

	task := happyPathTask("t2")
	task.VerificationScript = ""
	task.MaxSteps = 1

	exec := o.RunTask(context.Background(), task)
	require.Equal(t, orchestrator.StatusFailed, exec.Status)
	require.NotNil(t, exec.TrajectoryID)

	st.mu.Lock()
	saved, ok := st.trajectories[*exec.TrajectoryID]
	st.mu.Unlock()
	require.True(t, ok)
	assert.Equal(t, trajectory.ResultError, saved.FinalResult.Kind)
}

func TestRunTask_BudgetExceeded_SkipsExecution(t *testing.T) {
	r := runner.New(fakeRuntime{}, "python:3.11-slim", "external-process", newScaffoldFactory(nil))
	recorder := &fakeCostRecorder{totalCents: 999999}
	tracker := llm.NewCostTracker(recorder, nil, 100, 1000)
	require.NoError(t, tracker.RefreshFromStore(context.Background(), time.Now()))
	st := newFakeStore()

	o := orchestrator.New(r, tracker, quality.DefaultWeights(), st, &fakeArtifacts{}, "", "gpt-4", 4)

	exec := o.RunTask(context.Background(), happyPathTask("t3"))
	require.Equal(t, orchestrator.StatusFailed, exec.Status)
	assert.Nil(t, exec.TrajectoryID)
	assert.Contains(t, exec.Error, "budget")

	st.mu.Lock()
	assert.Empty(t, st.trajectories)
	st.mu.Unlock()
}

func TestRunBatch_IndividualFailuresDontAbortBatch(t *testing.T) {
	goodSteps := []scaffold.Step{
		{Action: scaffold.Action{ToolName: "bash", ToolArgs: map[string]any{"raw": "echo Hi > hello.txt"}}},
		{Action: scaffold.Action{ToolName: "submit"}, IsTerminal: true},
	}
	o, _, _, _ := newOrchestrator(t, goodSteps, 2)

	tasks := []runner.Task{happyPathTask("a"), happyPathTask("b"), happyPathTask("c")}
	results := o.RunBatch(context.Background(), tasks)

	require.Len(t, results, 3)
	for _, r := range results {
		assert.NotEqual(t, orchestrator.Status(""), r.Status)
	}
}

func TestStats_TracksCounts(t *testing.T) {
	steps := []scaffold.Step{
		{Action: scaffold.Action{ToolName: "bash", ToolArgs: map[string]any{"raw": "echo Hi > hello.txt"}}},
		{Action: scaffold.Action{ToolName: "submit"}, IsTerminal: true},
	}
	o, _, _, _ := newOrchestrator(t, steps, 4)

	o.RunTask(context.Background(), happyPathTask("s1"))
	o.RunTask(context.Background(), happyPathTask("s2"))

	snap := o.Stats()
	assert.Equal(t, int64(2), snap.TotalExecuted)
	assert.Equal(t, int64(2), snap.SuccessCount)
}
