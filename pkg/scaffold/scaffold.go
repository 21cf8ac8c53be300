// Package scaffold defines the capability that decides an agent's next
// action given the previous observation, and the two reference
// implementations: a subprocess-driven external agent, and an in-process
// tool-using LLM loop.
package scaffold

import "context"

// Step is the scaffold's decision for one loop iteration. It carries no
// observation; the runner builds that after executing Action.
type Step struct {
	Action      Action
	IsTerminal  bool
	Success     bool
}

// Action is the tool call (or plain text) the scaffold wants executed next.
type Action struct {
	ToolName     string
	ToolArgs     map[string]any
	RawLLMOutput string
	Thinking     *string
}

// Scaffold is the capability set every agent-driving strategy implements.
// No shared base state: each variant owns its own subprocess or LLM handle.
type Scaffold interface {
	// Initialize seeds the agent with the task and container identity,
	// returning an initial observation string.
	Initialize(ctx context.Context, taskID, problem, containerID string) (string, error)

	// Step produces the next action given the previous observation text.
	Step(ctx context.Context, lastObservation string) (Step, error)

	// IsTerminal is a non-destructive check of terminal status.
	IsTerminal() bool

	// Cleanup tears down any subprocess/resources. Safe to call multiple times.
	Cleanup(ctx context.Context) error
}

// ParseError indicates a scaffold response could not be parsed into an action.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string { return "scaffold: parse error: " + e.Reason }
