package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/agent-trajectory-pipeline/pkg/artifact"
	"github.com/codeready-toolchain/agent-trajectory-pipeline/pkg/llm"
	"github.com/codeready-toolchain/agent-trajectory-pipeline/pkg/quality"
	"github.com/codeready-toolchain/agent-trajectory-pipeline/pkg/runner"
	"github.com/codeready-toolchain/agent-trajectory-pipeline/pkg/store"
	"github.com/codeready-toolchain/agent-trajectory-pipeline/pkg/trajectory"
)

// TrajectoryStore is the narrow persistence dependency the Orchestrator
// needs from pkg/store, kept as an interface (rather than a concrete
// *store.Store) so tests can substitute an in-memory fake without a real
// Postgres instance — the same narrowing the llm.CostRecorder interface
// already applies to cost persistence.
type TrajectoryStore interface {
	SaveTrajectory(ctx context.Context, t *trajectory.Trajectory) error
	SaveQualityScore(ctx context.Context, q store.QualityScore) error
}

// ArtifactStore is the narrow dependency for persisting container logs as
// artifacts on the success path.
type ArtifactStore interface {
	StoreBytes(ctx context.Context, trajectoryID *uuid.UUID, artifactType artifact.Type, data []byte) (uuid.UUID, error)
}

// Stats are the running counters the Orchestrator exposes, guarded by one
// RWMutex — readers (Stats()) and writers (record*) both hold the lock only
// briefly, mirroring the teacher's WorkerPool.Health() RLock/RUnlock shape.
type Stats struct {
	mu sync.RWMutex

	totalExecuted   int64
	successCount    int64
	failureCount    int64
	qualityFiltered int64
	avgDurationSecs float64
}

// Snapshot is a point-in-time copy of Stats safe to hand to a caller.
type Snapshot struct {
	TotalExecuted   int64
	SuccessCount    int64
	FailureCount    int64
	QualityFiltered int64
	AvgDurationSecs float64
	TotalCostCents  int64
}

func (s *Stats) record(status Status, duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.totalExecuted
	s.avgDurationSecs = (s.avgDurationSecs*float64(n) + duration.Seconds()) / float64(n+1)
	s.totalExecuted++

	switch status {
	case StatusCompleted:
		s.successCount++
	case StatusFailed:
		s.failureCount++
	case StatusQualityFiltered:
		s.qualityFiltered++
	}
}

func (s *Stats) snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		TotalExecuted:   s.totalExecuted,
		SuccessCount:    s.successCount,
		FailureCount:    s.failureCount,
		QualityFiltered: s.qualityFiltered,
		AvgDurationSecs: s.avgDurationSecs,
	}
}

// Orchestrator owns every other core dependency and is the single entry
// point callers use to run tasks — spec.md §4.9.
type Orchestrator struct {
	runner       *runner.Runner
	costTracker  *llm.CostTracker
	qualityWeights quality.Weights
	store        TrajectoryStore
	artifacts    ArtifactStore
	trajectoryRoot string

	defaultModel string
	sem          chan struct{}
	stats        Stats
}

// New builds an Orchestrator. maxConcurrentTasks bounds the counting
// semaphore that gates run_task; trajectoryRoot is where finalized
// trajectories are additionally written to disk on the success path
// (spec.md §6's trajectory FS layout).
func New(
	r *runner.Runner,
	costTracker *llm.CostTracker,
	qualityWeights quality.Weights,
	st TrajectoryStore,
	artifacts ArtifactStore,
	trajectoryRoot string,
	defaultModel string,
	maxConcurrentTasks int,
) *Orchestrator {
	if maxConcurrentTasks <= 0 {
		maxConcurrentTasks = 1
	}
	return &Orchestrator{
		runner:         r,
		costTracker:    costTracker,
		qualityWeights: qualityWeights,
		store:          st,
		artifacts:      artifacts,
		trajectoryRoot: trajectoryRoot,
		defaultModel:   defaultModel,
		sem:            make(chan struct{}, maxConcurrentTasks),
	}
}

// Stats returns a point-in-time snapshot of orchestrator statistics,
// including the read-through total cost from the cost tracker.
func (o *Orchestrator) Stats() Snapshot {
	snap := o.stats.snapshot()
	snap.TotalCostCents = o.costTracker.TotalCostCents()
	return snap
}

// RunTask executes one task end to end: budget gate, concurrency permit,
// run, quality-route, persist. It never returns a Go error — every failure
// mode becomes a Failed/QualityFiltered TaskExecution, per spec.md §7's
// propagation policy ("the Orchestrator never propagates errors out of
// run_task").
func (o *Orchestrator) RunTask(ctx context.Context, task runner.Task) *TaskExecution {
	start := time.Now()
	exec := &TaskExecution{TaskID: task.ID, Status: StatusPending}

	if dailyOver, monthlyOver := o.costTracker.IsOverBudget(); dailyOver || monthlyOver {
		exec.Status = StatusFailed
		exec.Error = (&BudgetError{DailyOver: dailyOver, MonthlyOver: monthlyOver}).Error()
		exec.Duration = time.Since(start)
		o.stats.record(exec.Status, exec.Duration)
		return exec
	}

	select {
	case o.sem <- struct{}{}:
		defer func() { <-o.sem }()
	case <-ctx.Done():
		exec.Status = StatusFailed
		exec.Error = ctx.Err().Error()
		exec.Duration = time.Since(start)
		o.stats.record(exec.Status, exec.Duration)
		return exec
	}

	exec.Status = StatusRunning
	result, runErr := o.runner.Run(ctx, task, o.defaultModel)
	if runErr != nil && result == nil {
		exec.Status = StatusFailed
		exec.Error = runErr.Error()
		exec.Duration = time.Since(start)
		o.stats.record(exec.Status, exec.Duration)
		return exec
	}

	traj := result.Trajectory
	exec.TrajectoryID = &traj.ID
	exec.Duration = time.Since(start)

	if runErr != nil {
		// Timeout / MaxStepsExceeded / Docker / Scaffold errors still
		// produce a partial trajectory; persist it for postmortem and
		// report Failed.
		if err := o.store.SaveTrajectory(ctx, traj); err != nil {
			slog.Error("orchestrator: save failed-run trajectory", "task_id", task.ID, "error", err)
		}
		exec.Status = StatusFailed
		exec.Error = runErr.Error()
		o.stats.record(exec.Status, exec.Duration)
		return exec
	}

	report := quality.Evaluate(traj, o.qualityWeights)
	overall := report.Overall
	if !report.Passed {
		// spec.md §4.9 step 5 / §8: a filtered trajectory is persisted with
		// QualityScore(overall=0.0), not its computed-but-below-threshold
		// score.
		overall = 0
	}

	if err := o.store.SaveTrajectory(ctx, traj); err != nil {
		exec.Status = StatusFailed
		exec.Error = err.Error()
		o.stats.record(exec.Status, exec.Duration)
		return exec
	}

	qs := store.QualityScore{
		TrajectoryID: traj.ID,
		Overall:      overall,
		PassedFilter: report.Passed,
		ReviewedAt:   time.Now().UTC(),
	}
	if report.Passed {
		c, co, cp := report.Correctness, report.Coherence, report.Completeness
		qs.Correctness, qs.Coherence, qs.Completeness = &c, &co, &cp
	}
	if err := o.store.SaveQualityScore(ctx, qs); err != nil {
		slog.Error("orchestrator: save quality score", "task_id", task.ID, "error", err)
	}

	if !report.Passed {
		exec.Status = StatusQualityFiltered
		exec.QualityScore = &overall
		o.stats.record(exec.Status, exec.Duration)
		return exec
	}

	if o.trajectoryRoot != "" {
		if err := trajectory.SaveToFile(o.trajectoryRoot, traj); err != nil {
			slog.Error("orchestrator: write trajectory file", "task_id", task.ID, "error", err)
		}
	}
	if o.artifacts != nil && result.ContainerLogs != "" {
		if _, err := o.artifacts.StoreBytes(ctx, &traj.ID, artifact.TypeLog, []byte(result.ContainerLogs)); err != nil {
			slog.Error("orchestrator: store container log artifact", "task_id", task.ID, "error", err)
		}
	}

	exec.Status = StatusCompleted
	exec.QualityScore = &overall
	o.stats.record(exec.Status, exec.Duration)
	return exec
}

// RunBatch runs every task concurrently (bounded by the same semaphore
// RunTask uses) and waits for all of them; an individual task's failure
// never aborts the batch — each resolves to its own TaskExecution. A plain
// WaitGroup fan-out is used rather than golang.org/x/sync/errgroup, which
// would short-circuit on the first error; spec.md requires per-task
// results, not an aggregate one.
func (o *Orchestrator) RunBatch(ctx context.Context, tasks []runner.Task) []*TaskExecution {
	results := make([]*TaskExecution, len(tasks))
	var wg sync.WaitGroup
	wg.Add(len(tasks))
	for i, task := range tasks {
		go func(i int, task runner.Task) {
			defer wg.Done()
			results[i] = o.RunTask(ctx, task)
		}(i, task)
	}
	wg.Wait()
	return results
}
