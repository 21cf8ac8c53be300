// Package trajectory defines the core agent-trajectory data model: the
// step-by-step record of tool calls and observations produced by a single
// task execution, plus the reward signal used to rank trajectories.
package trajectory

import (
	"time"

	"github.com/google/uuid"
)

// SchemaVersion is written on every persisted or serialized trajectory so
// downstream consumers can detect format changes.
const SchemaVersion = "agent-trajectory-v1"

// ResultKind identifies which variant of TaskResult is populated.
type ResultKind string

const (
	ResultSuccess ResultKind = "success"
	ResultFailure ResultKind = "failure"
	ResultTimeout ResultKind = "timeout"
	ResultError   ResultKind = "error"
)

// TaskResult is a tagged union over the terminal outcome of a task
// execution. Exactly one of Score/Reason/Message is meaningful, selected
// by Kind.
type TaskResult struct {
	Kind    ResultKind `json:"kind"`
	Score   float64    `json:"score,omitempty"`   // ResultSuccess: 0..1
	Reason  string     `json:"reason,omitempty"`  // ResultFailure
	Message string     `json:"message,omitempty"` // ResultError
}

// Success builds a Success{score} result.
func Success(score float64) TaskResult { return TaskResult{Kind: ResultSuccess, Score: score} }

// Failure builds a Failure{reason} result.
func Failure(reason string) TaskResult { return TaskResult{Kind: ResultFailure, Reason: reason} }

// Timeout builds a Timeout result.
func Timeout() TaskResult { return TaskResult{Kind: ResultTimeout} }

// Error builds an Error{message} result.
func Error(message string) TaskResult { return TaskResult{Kind: ResultError, Message: message} }

// TokenUsage tracks prompt/completion token counts for one trajectory.
// Invariant: Total == Prompt + Completion.
type TokenUsage struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Total      int `json:"total"`
}

// Add accumulates another usage reading into u and keeps Total consistent.
func (u *TokenUsage) Add(prompt, completion int) {
	u.Prompt += prompt
	u.Completion += completion
	u.Total = u.Prompt + u.Completion
}

// StateChangeKind enumerates the environment mutations an Observation may report.
type StateChangeKind string

const (
	FileCreated      StateChangeKind = "file_created"
	FileModified     StateChangeKind = "file_modified"
	FileDeleted      StateChangeKind = "file_deleted"
	DirectoryCreated StateChangeKind = "directory_created"
	ProcessStarted   StateChangeKind = "process_started"
	ProcessEnded     StateChangeKind = "process_ended"
)

// StateChange is one environment mutation observed after an action.
type StateChange struct {
	Kind    StateChangeKind `json:"kind"`
	Path    string          `json:"path"`
	Details string          `json:"details,omitempty"`
}

// EnvironmentState is a snapshot of the sandbox taken before a step's action
// is executed.
type EnvironmentState struct {
	WorkingDirectory   string   `json:"working_directory"`
	FilesModified      []string `json:"files_modified"`
	LastCommandOutput  *string  `json:"last_command_output,omitempty"`
	ContextSummary     string   `json:"context_summary"`
}

// AgentAction is the agent's decision at one step. An empty ToolName means
// "no tool call".
type AgentAction struct {
	ToolName     string         `json:"tool_name"`
	ToolArgs     map[string]any `json:"tool_args,omitempty"`
	RawLLMOutput string         `json:"raw_llm_output"`
	Thinking     *string        `json:"thinking,omitempty"`
}

// Observation is the sandbox's response to an AgentAction.
type Observation struct {
	Success       bool          `json:"success"`
	Output        string        `json:"output"`
	Error         *string       `json:"error,omitempty"`
	StateChanges  []StateChange `json:"state_changes,omitempty"`
}

// Step is a single SARSA-style record: (state, action, observation, reward, done).
type Step struct {
	StepNumber  uint32           `json:"step_number"`
	State       EnvironmentState `json:"state"`
	Action      AgentAction      `json:"action"`
	Observation Observation      `json:"observation"`
	Reward      float64          `json:"reward"`
	Done        bool             `json:"done"`
	Timestamp   time.Time        `json:"timestamp"`
	ToolCallID  string           `json:"tool_call_id,omitempty"`
}

// Trajectory is the full record of one task execution.
//
// Invariants (enforced by Collector, see collector.go):
//   - TotalReward == sum of Steps[i].Reward at Finalize time.
//   - TokenUsage.Total == TokenUsage.Prompt + TokenUsage.Completion.
//   - Steps are numbered 0..N-1 with no gaps; at most one Done==true, and if
//     present it is the last step.
//   - FinalResult is set exactly once, by Finalize.
type Trajectory struct {
	ID            uuid.UUID  `json:"id"`
	SchemaVersion string     `json:"schema_version"`
	TaskID        string     `json:"task_id"`
	Model         string     `json:"model"`
	ScaffoldType  string     `json:"scaffold_type"`
	Steps         []Step     `json:"steps"`
	FinalResult   TaskResult `json:"final_result"`
	TotalReward   float64    `json:"total_reward"`
	CreatedAt     time.Time  `json:"created_at"`
	DurationSecs  float64    `json:"duration_seconds"`
	TokenUsage    TokenUsage `json:"token_usage"`

	// Metadata is a free-form bag round-tripped verbatim and never
	// interpreted by the core (dataset-curation concerns such as task
	// category or canary id live here).
	Metadata map[string]any `json:"metadata,omitempty"`

	finalized bool
}

// New creates an empty trajectory ready to be filled in by a Collector.
func New(taskID, model, scaffoldType string) *Trajectory {
	return &Trajectory{
		ID:            uuid.New(),
		SchemaVersion: SchemaVersion,
		TaskID:        taskID,
		Model:         model,
		ScaffoldType:  scaffoldType,
		Steps:         make([]Step, 0),
		CreatedAt:     time.Now().UTC(),
	}
}

// IsFinalized reports whether Finalize has already run.
func (t *Trajectory) IsFinalized() bool { return t.finalized }
