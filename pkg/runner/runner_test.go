package runner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/agent-trajectory-pipeline/pkg/container"
	"github.com/codeready-toolchain/agent-trajectory-pipeline/pkg/scaffold"
	"github.com/codeready-toolchain/agent-trajectory-pipeline/pkg/trajectory"
)

// fakeRuntime is a minimal in-memory container.Runtime for exercising the
// runner's step loop without a real daemon.
type fakeRuntime struct {
	execResponses map[string]container.ExecResult
}

func (f *fakeRuntime) CreateContainer(ctx context.Context, cfg container.Config) (string, error) {
	return "fake-container-id", nil
}
func (f *fakeRuntime) Start(ctx context.Context, id string) error { return nil }
func (f *fakeRuntime) Stop(ctx context.Context, id string) error  { return nil }
func (f *fakeRuntime) Remove(ctx context.Context, id string, force bool) error { return nil }
func (f *fakeRuntime) Exec(ctx context.Context, id string, argv []string) (container.ExecResult, error) {
	cmd := argv[len(argv)-1]
	if res, ok := f.execResponses[cmd]; ok {
		return res, nil
	}
	return container.ExecResult{ExitCode: 0, Stdout: "ok"}, nil
}
func (f *fakeRuntime) Wait(ctx context.Context, id string) (int, error) { return 0, nil }
func (f *fakeRuntime) InspectStatus(ctx context.Context, id string) (container.RuntimeState, error) {
	return container.RuntimeState{Status: container.StatusRunning}, nil
}
func (f *fakeRuntime) ImageExists(ctx context.Context, ref string) (bool, error) { return true, nil }
func (f *fakeRuntime) PullImage(ctx context.Context, ref string) error          { return nil }
func (f *fakeRuntime) Logs(ctx context.Context, id string) (string, error)      { return "logs", nil }

// scriptedScaffold replays a fixed sequence of steps, ignoring observations.
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
func (s *scriptedScaffold) IsTerminal() bool        { return s.idx >= len(s.steps) }
func (s *scriptedScaffold) Cleanup(ctx context.Context) error { return nil }

func TestRunner_HappyPath_SubmitsAndSucceeds(t *testing.T) {
	rt := &fakeRuntime{execResponses: map[string]container.ExecResult{
		"grep -q Hi hello.txt": {ExitCode: 0, Stdout: "match"},
	}}

	script := &scriptedScaffold{steps: []scaffold.Step{
		{Action: scaffold.Action{ToolName: "bash", ToolArgs: map[string]any{"raw": "echo Hi > hello.txt"}}},
		{Action: scaffold.Action{ToolName: "submit"}, IsTerminal: true},
	}}

	r := New(rt, "python:3.11-slim", "external-process", func(task Task) (scaffold.Scaffold, error) {
		return script, nil
	})

	task := Task{
		ID:                 "t1",
		Instruction:        "create hello.txt containing Hi",
		Difficulty:         "easy",
		VerificationScript: "grep -q Hi hello.txt",
		MaxSteps:           5,
		Timeout:            time.Minute,
	}

	result, err := r.Run(context.Background(), task, "gpt-4")
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, trajectory.ResultSuccess, result.Trajectory.FinalResult.Kind)
	assert.InDelta(t, 1.0, result.Trajectory.FinalResult.Score, 1e-9)
	assert.Len(t, result.Trajectory.Steps, 2)
	assert.True(t, result.Trajectory.Steps[1].Done)
}

func TestRunner_MaxStepsExceeded(t *testing.T) {
	rt := &fakeRuntime{}
	script := &scriptedScaffold{steps: []scaffold.Step{
		{Action: scaffold.Action{ToolName: "bash", ToolArgs: map[string]any{"raw": "echo hi"}}},
		{Action: scaffold.Action{ToolName: "bash", ToolArgs: map[string]any{"raw": "echo hi"}}},
		{Action: scaffold.Action{ToolName: "bash", ToolArgs: map[string]any{"raw": "echo hi"}}},
	}}

	r := New(rt, "python:3.11-slim", "external-process", func(task Task) (scaffold.Scaffold, error) {
		return script, nil
	})

	task := Task{
		ID:          "t1",
		Instruction: "never submits",
		Difficulty:  "easy",
		MaxSteps:    1,
		Timeout:     time.Minute,
	}

	result, err := r.Run(context.Background(), task, "gpt-4")
	require.Error(t, err)
	var runErr *RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, ErrMaxStepsExceeded, runErr.Kind)

	require.NotNil(t, result)
	assert.Equal(t, trajectory.ResultError, result.Trajectory.FinalResult.Kind)
}
