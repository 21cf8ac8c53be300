// Package orchestrator runs tasks concurrently against the Task Runner,
// enforces the global cost budget, routes finished trajectories through the
// Quality Filter, and persists results — spec.md §4.9.
package orchestrator

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of one TaskExecution.
type Status string

const (
	StatusPending         Status = "pending"
	StatusRunning         Status = "running"
	StatusCompleted       Status = "completed"
	StatusFailed          Status = "failed"
	StatusQualityFiltered Status = "quality_filtered"
)

// TaskExecution is the outcome the Orchestrator reports for one task,
// regardless of whether the task itself succeeded — spec.md §4.9.
type TaskExecution struct {
	TaskID        string
	TrajectoryID  *uuid.UUID
	Status        Status
	Duration      time.Duration
	Error         string
	QualityScore  *float64
}

// BudgetError describes an admission refused because the cost tracker
// reports either budget threshold already crossed; RunTask puts its message
// in the Error of a Failed TaskExecution.
type BudgetError struct {
	DailyOver   bool
	MonthlyOver bool
}

func (e *BudgetError) Error() string {
	return fmt.Sprintf("orchestrator: budget exceeded (daily=%v monthly=%v)", e.DailyOver, e.MonthlyOver)
}
