package runner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/codeready-toolchain/agent-trajectory-pipeline/pkg/container"
	"github.com/codeready-toolchain/agent-trajectory-pipeline/pkg/scaffold"
	"github.com/codeready-toolchain/agent-trajectory-pipeline/pkg/trajectory"
)

// RunResult is the successful (even if the task itself failed) outcome of
// Runner.Run.
type RunResult struct {
	Trajectory     *trajectory.Trajectory
	ContainerLogs  string
	ExitCode       *int
}

// ScaffoldFactory builds the scaffold that will drive one task's execution.
// Whoever constructs the Runner supplies this (cmd/pipeline wires an
// ExternalProcess factory).
type ScaffoldFactory func(task Task) (scaffold.Scaffold, error)

const (
	tokensPerStepPrompt     = 100
	tokensPerStepCompletion = 50
)

// Runner couples a Container and a Scaffold to produce a Trajectory. One
// Runner instance handles one task; callers construct a fresh Runner (or
// reuse one stateless instance, since no per-task state is held between
// calls) per concurrent execution.
type Runner struct {
	runtime      container.Runtime
	image        string
	scaffoldType string
	makeScaffold ScaffoldFactory
}

// New builds a Runner against runtime, launching image for every container,
// building scaffolds via makeScaffold, and labeling trajectories with
// scaffoldType (e.g. "external-process", "in-process-tool-using").
func New(runtime container.Runtime, image, scaffoldType string, makeScaffold ScaffoldFactory) *Runner {
	return &Runner{runtime: runtime, image: image, scaffoldType: scaffoldType, makeScaffold: makeScaffold}
}

// Run executes task against a fresh container and scaffold, producing a
// Trajectory regardless of whether the task itself succeeded. A non-nil
// error is returned for container create/start, scaffold build/initialize
// failures and for the in-loop RunErrors (timeout, step limit, scaffold
// step, action dispatch); with it, the partial trajectory, finalized with
// an Error result, is still returned in RunResult.
func (r *Runner) Run(ctx context.Context, task Task, model string) (*RunResult, error) {
	start := time.Now()
	collector := trajectory.NewCollector(task.ID, model, r.scaffoldType)
	rewardCalc := trajectory.NewRewardCalculator(trajectory.DefaultRewardWeights())

	limits := container.LimitsForDifficulty(task.Difficulty)
	cfg := container.Config{
		Image:       r.image,
		Limits:      limits,
		NetworkMode: container.NetworkNone,
		WorkingDir:  "/workspace",
	}

	handle, err := container.Create(ctx, r.runtime, cfg)
	if err != nil {
		return r.finalizeOnError(collector, start, fmt.Errorf("create container: %w", err))
	}
	defer func() {
		// Guaranteed cleanup regardless of how Run exits: the runner
		// exclusively owns this handle for the task's duration.
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, cleanupErr := handle.Cleanup(cleanupCtx); cleanupErr != nil {
			slog.Error("runner: container cleanup failed", "task_id", task.ID, "error", cleanupErr)
		}
	}()

	if err := handle.Start(ctx); err != nil {
		return r.finalizeOnError(collector, start, fmt.Errorf("start container: %w", err))
	}

	sc, err := r.makeScaffold(task)
	if err != nil {
		return r.finalizeOnError(collector, start, fmt.Errorf("build scaffold: %w", err))
	}
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if cleanupErr := sc.Cleanup(cleanupCtx); cleanupErr != nil {
			slog.Warn("runner: scaffold cleanup failed", "task_id", task.ID, "error", cleanupErr)
		}
	}()

	initialObs, err := sc.Initialize(ctx, task.ID, task.Instruction, handle.ID())
	if err != nil {
		return r.finalizeOnError(collector, start, fmt.Errorf("initialize scaffold: %w", err))
	}

	lastObservation := initialObs
	var lastExitCode *int

	for {
		if task.Timeout > 0 && time.Since(start) > task.Timeout {
			handle.MarkTimeout()
			return r.finalizeWithRunError(collector, start, &RunError{Kind: ErrTimeout, Message: task.Timeout.String()})
		}
		if task.MaxSteps > 0 && collector.StepCount() >= task.MaxSteps {
			return r.finalizeWithRunError(collector, start, &RunError{Kind: ErrMaxStepsExceeded, Message: fmt.Sprintf("%d", task.MaxSteps)})
		}
		if sc.IsTerminal() {
			break
		}

		state := trajectory.EnvironmentState{
			WorkingDirectory: "/workspace",
			ContextSummary:   fmt.Sprintf("Task: %s", task.Instruction),
		}

		step, err := sc.Step(ctx, lastObservation)
		if err != nil {
			return r.finalizeWithRunError(collector, start, &RunError{Kind: ErrScaffold, Message: "scaffold step failed", Err: err})
		}

		obs, exitCode, err := r.dispatch(ctx, handle, task, step.Action)
		if err != nil {
			return r.finalizeWithRunError(collector, start, &RunError{Kind: ErrDocker, Message: "action dispatch failed", Err: err})
		}
		lastExitCode = exitCode

		action := trajectory.AgentAction{
			ToolName:     step.Action.ToolName,
			ToolArgs:     step.Action.ToolArgs,
			RawLLMOutput: step.Action.RawLLMOutput,
			Thinking:     step.Action.Thinking,
		}
		reward := rewardCalc.StepReward(action, obs)
		done := step.IsTerminal || strings.EqualFold(step.Action.ToolName, "submit")

		if _, err := collector.RecordStep(state, action, obs, reward, done); err != nil {
			return r.finalizeWithRunError(collector, start, &RunError{Kind: ErrExecutionFailed, Message: "record step failed", Err: err})
		}
		collector.AddTokens(tokensPerStepPrompt, tokensPerStepCompletion)

		lastObservation = obs.Output
		if done {
			break
		}
	}

	result := r.finalResult(ctx, handle, task)
	handle.MarkCompleted()

	traj, err := collector.Finalize(result)
	if err != nil {
		return nil, fmt.Errorf("finalize trajectory: %w", err)
	}

	logs, _ := handle.Cleanup(ctx)
	return &RunResult{Trajectory: traj, ContainerLogs: logs, ExitCode: lastExitCode}, nil
}

// dispatch executes one action against the container and produces the
// Observation the runner hands back to the scaffold.
func (r *Runner) dispatch(ctx context.Context, handle *container.Handle, task Task, action scaffold.Action) (trajectory.Observation, *int, error) {
	switch {
	case strings.EqualFold(action.ToolName, "bash"):
		cmd, _ := action.ToolArgs["raw"].(string)
		if cmd == "" {
			cmd, _ = action.ToolArgs["cmd"].(string)
		}
		res, err := handle.Exec(ctx, []string{"bash", "-c", cmd})
		if err != nil {
			return trajectory.Observation{}, nil, err
		}
		code := res.ExitCode
		return observationFromExec(res), &code, nil

	case strings.EqualFold(action.ToolName, "submit"):
		if task.VerificationScript == "" {
			return trajectory.Observation{Success: true, Output: "submitted"}, nil, nil
		}
		res, err := handle.Exec(ctx, []string{"bash", "-c", task.VerificationScript})
		if err != nil {
			return trajectory.Observation{}, nil, err
		}
		code := res.ExitCode
		return observationFromExec(res), &code, nil

	default:
		return trajectory.Observation{Success: true, Output: action.RawLLMOutput}, nil, nil
	}
}

func observationFromExec(res container.ExecResult) trajectory.Observation {
	obs := trajectory.Observation{
		Success: res.ExitCode == 0,
		Output:  res.Combined(),
	}
	if res.ExitCode != 0 {
		msg := "Command failed"
		obs.Error = &msg
	}
	return obs
}

// finalResult determines the terminal TaskResult per the verification
// contract: run the script if present, compare expected output (substring
// on trimmed strings) when given, else Success{1.0}; absent a script,
// Success{0.8}.
func (r *Runner) finalResult(ctx context.Context, handle *container.Handle, task Task) trajectory.TaskResult {
	if task.VerificationScript == "" {
		return trajectory.Success(0.8)
	}

	res, err := handle.Exec(ctx, []string{"bash", "-c", task.VerificationScript})
	if err != nil {
		return trajectory.Failure(fmt.Sprintf("verification script failed to run: %v", err))
	}
	if res.ExitCode != 0 {
		return trajectory.Failure(fmt.Sprintf("verification failed (exit %d): %s", res.ExitCode, truncate(res.Combined(), 500)))
	}

	if task.ExpectedOutput == "" {
		return trajectory.Success(1.0)
	}

	actual := strings.TrimSpace(res.Combined())
	expected := strings.TrimSpace(task.ExpectedOutput)
	if strings.Contains(actual, expected) {
		return trajectory.Success(1.0)
	}
	return trajectory.Failure(fmt.Sprintf("expected output not found; expected(trunc)=%q actual(trunc)=%q",
		truncate(expected, 200), truncate(actual, 200)))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

// finalizeOnError handles infrastructure failures that occur before or
// outside the step loop: the collector still gets a TaskResult::Error, so
// the returned partial trajectory records why the run ended.
func (r *Runner) finalizeOnError(collector *trajectory.Collector, start time.Time, err error) (*RunResult, error) {
	traj, finalizeErr := collector.Finalize(trajectory.Error(err.Error()))
	if finalizeErr != nil {
		return nil, finalizeErr
	}
	return &RunResult{Trajectory: traj}, err
}

// finalizeWithRunError handles Timeout/MaxStepsExceeded/Docker/Scaffold
// errors encountered inside the step loop: per the error-handling design,
// these still finalize the collector with TaskResult::Error and return the
// RunError so the orchestrator can classify the TaskExecution as Failed.
func (r *Runner) finalizeWithRunError(collector *trajectory.Collector, start time.Time, runErr *RunError) (*RunResult, error) {
	traj, err := collector.Finalize(trajectory.Error(runErr.Error()))
	if err != nil {
		return nil, err
	}
	return &RunResult{Trajectory: traj}, runErr
}
