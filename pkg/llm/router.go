// Package llm defines the LLM Router capability boundary: the core treats
// the model that drives an agent as an external collaborator and only
// depends on this narrow request/response interface, never on a specific
// provider's wire protocol.
package llm

import "context"

// Role mirrors the standard chat-message roles.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one turn in a conversation sent to the router.
type Message struct {
	Role       Role
	Content    string
	ToolCallID string
}

// ToolDefinition describes one callable tool via its JSON schema, passed to
// providers that support native tool-calling.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// CompletionRequest is one call to the router.
type CompletionRequest struct {
	Model       string
	Messages    []Message
	Tools       []ToolDefinition
	Temperature float64
}

// Usage reports token counts for a single completion, when the provider
// supplies real numbers. The Task Runner does not read it: it records a
// fixed estimate of 100 prompt and 50 completion tokens for every step.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// CompletionResponse is the router's answer to one CompletionRequest.
type CompletionResponse struct {
	Text  string
	Usage Usage
}

// Router is the capability the In-Process Tool-Using scaffold drives.
// Implementations own their own provider connection (HTTP client, SDK,
// etc.); the core ships a CostTrackingRouter decorator and is otherwise
// agnostic to the concrete provider.
type Router interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
}
