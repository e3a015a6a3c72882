package llm

import (
	"context"
	"encoding/json"
)

// Message represents a chat message exchanged with the model.
type Message struct {
	Role       string     `json:"role"`                   // "user", "assistant", "system", "tool"
	Content    string     `json:"content"`                // The message text
	Name       string     `json:"name,omitempty"`         // FC: function name when role="tool"
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`   // FC: tool calls returned by model
	ToolCallID string     `json:"tool_call_id,omitempty"` // FC: when role="tool", the ID of the call this responds to
}

// ToolDefinition describes a tool for Function Calling.
// Parameters follows OpenAI JSON Schema format.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"` // JSON Schema
}

// ToolCall represents a single tool call returned by the model.
type ToolCall struct {
	ID        string          `json:"id"` // Required: OpenAI uses this to correlate tool results
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Usage holds the token counts reported by the provider for one call.
// A zero Usage means the provider did not report counts; callers fall back
// to heuristic estimates for accounting.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Total returns prompt + completion tokens.
func (u Usage) Total() int { return u.PromptTokens + u.CompletionTokens }

// IsZero reports whether the provider returned no usage counts at all.
func (u Usage) IsZero() bool { return u.PromptTokens == 0 && u.CompletionTokens == 0 }

// Response is a single model reply plus the usage the API reported for it.
type Response struct {
	Message Message
	Usage   Usage
}

// Provider defines the interface for all LLM implementations.
// Any OpenAI-compatible endpoint (litellm, Ollama, Azure, vLLM, etc.)
// can be used by implementing this interface. Implementations make exactly
// one API call per method invocation; retry policy belongs to the caller.
type Provider interface {
	// Call sends messages to the model and returns the complete response.
	Call(ctx context.Context, messages []Message) (Response, error)

	// CallWithTools sends messages with tool definitions for Function Calling.
	// The model may return tool_calls in the response or a direct text answer.
	CallWithTools(ctx context.Context, messages []Message, tools []ToolDefinition) (Response, error)
}

// Role constants.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)
