package scaffold

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/codeready-toolchain/agent-trajectory-pipeline/pkg/llm"
)

// InProcessToolUsing drives an agent by sending a system prompt, a tool
// catalog, and the task directly to an LLM Router, then parsing tool calls
// out of the raw completion text.
type InProcessToolUsing struct {
	router llm.Router
	model  string
	tools  []llm.ToolDefinition

	mu       sync.Mutex
	messages []llm.Message
	terminal bool
}

// NewInProcessToolUsing builds a scaffold driving model via router, offering tools.
func NewInProcessToolUsing(router llm.Router, model string, tools []llm.ToolDefinition) *InProcessToolUsing {
	return &InProcessToolUsing{router: router, model: model, tools: tools}
}

var systemPrompt = `You are an autonomous coding agent. You have access to tools for ` +
	`interacting with a sandboxed workspace. Decide on one tool call per turn, ` +
	`or state that the task is complete.`

// Initialize sends the system prompt and task as the first user message.
func (s *InProcessToolUsing) Initialize(ctx context.Context, taskID, problem, containerID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: fmt.Sprintf("Task %s:\n%s\n\nContainer: %s", taskID, problem, containerID)},
	}
	return fmt.Sprintf("initialized task %s", taskID), nil
}

// Step sends the previous observation as a tool result and requests the
// next completion, parsing a tool call out of the response text.
func (s *InProcessToolUsing) Step(ctx context.Context, lastObservation string) (Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lastObservation != "" {
		s.messages = append(s.messages, llm.Message{Role: llm.RoleTool, Content: lastObservation})
	}

	resp, err := s.router.Complete(ctx, llm.CompletionRequest{
		Model:    s.model,
		Messages: s.messages,
		Tools:    s.tools,
	})
	if err != nil {
		return Step{}, &ScaffoldError{Op: "step", Err: err}
	}

	s.messages = append(s.messages, llm.Message{Role: llm.RoleAssistant, Content: resp.Text})

	call, found := ParseToolCall(resp.Text)

	terminal := isTerminalResponse(resp.Text) || (found && strings.Contains(strings.ToLower(resp.Text), "final") && call.Name == "")
	if terminal {
		s.terminal = true
	}

	if !found {
		return Step{
			Action: Action{
				ToolName:     "",
				RawLLMOutput: resp.Text,
			},
			IsTerminal: terminal,
			Success:    true,
		}, nil
	}

	return Step{
		Action: Action{
			ToolName:     call.Name,
			ToolArgs:     call.Arguments,
			RawLLMOutput: resp.Text,
		},
		IsTerminal: terminal,
		Success:    true,
	}, nil
}

// IsTerminal reports the cached terminal determination from the last Step.
func (s *InProcessToolUsing) IsTerminal() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminal
}

// Cleanup is a no-op: this scaffold holds no subprocess or file handles.
func (s *InProcessToolUsing) Cleanup(ctx context.Context) error { return nil }

var terminalPhrases = []string{
	"task is complete",
	"task completed",
	"successfully completed",
	"finished the task",
	"done with the task",
}

// isTerminalResponse implements the terminal heuristic: any of a fixed set
// of completion phrases, case-insensitive.
func isTerminalResponse(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range terminalPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// ToolCall is the result of successfully parsing a tool invocation out of
// free-form LLM completion text.
type ToolCall struct {
	Name      string
	Arguments map[string]any
}

var (
	// builtinFunctionNames bounds strategy (b) to avoid matching arbitrary
	// prose that happens to contain "word(...)".
	builtinFunctionNames = map[string]bool{
		"bash": true, "read_file": true, "write_file": true, "edit_file": true,
		"list_dir": true, "submit": true, "run_tests": true, "search": true,
	}

	functionCallPattern = regexp.MustCompile(`(?s)(\w+)\s*\((\{.*?\})\)`)
	fencedJSONPattern   = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")
)

// ParseToolCall tries three parsing strategies in order, returning the
// first successful match. This mirrors a chain-of-strategies design:
// each strategy is a small function returning (call, ok), avoiding
// backtracking-heavy single-regex designs.
func ParseToolCall(text string) (ToolCall, bool) {
	if call, ok := parseJSONObject(text); ok {
		return call, true
	}
	if call, ok := parseFunctionCallSyntax(text); ok {
		return call, true
	}
	if call, ok := parseFencedJSON(text); ok {
		return call, true
	}
	return ToolCall{}, false
}

// parseJSONObject looks for a top-level JSON object with tool+arguments or
// name+parameters/args.
func parseJSONObject(text string) (ToolCall, bool) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") {
		return ToolCall{}, false
	}
	return decodeToolObject(trimmed)
}

// parseFunctionCallSyntax matches name({...}) for a small set of built-in
// tool names.
func parseFunctionCallSyntax(text string) (ToolCall, bool) {
	m := functionCallPattern.FindStringSubmatch(text)
	if m == nil {
		return ToolCall{}, false
	}
	name, argsJSON := m[1], m[2]
	if !builtinFunctionNames[name] {
		return ToolCall{}, false
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return ToolCall{}, false
	}
	return ToolCall{Name: name, Arguments: args}, true
}

// parseFencedJSON looks inside a ```json fenced block for a tool object.
func parseFencedJSON(text string) (ToolCall, bool) {
	m := fencedJSONPattern.FindStringSubmatch(text)
	if m == nil {
		return ToolCall{}, false
	}
	return decodeToolObject(strings.TrimSpace(m[1]))
}

func decodeToolObject(raw string) (ToolCall, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return ToolCall{}, false
	}

	name, _ := obj["tool"].(string)
	if name == "" {
		name, _ = obj["name"].(string)
	}
	if name == "" {
		return ToolCall{}, false
	}

	args, _ := obj["arguments"].(map[string]any)
	if args == nil {
		args, _ = obj["parameters"].(map[string]any)
	}
	if args == nil {
		args, _ = obj["args"].(map[string]any)
	}
	if args == nil {
		args = map[string]any{}
	}

	return ToolCall{Name: name, Arguments: args}, true
}
