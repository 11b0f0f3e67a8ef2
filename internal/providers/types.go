// Package providers adapts LLM backends to the agent.
//
// The agent core depends on the Model interface only; the OpenAI-compatible
// adapter below speaks to any /chat/completions endpoint (OpenAI, OpenRouter,
// Groq, DeepSeek, local servers).
package providers

import "context"

// Model is the capability the agent needs from an LLM backend.
type Model interface {
	// Generate sends one prompt and returns the model's text and any tool
	// calls. When req.Tools is nil the response carries no tool calls.
	Generate(ctx context.Context, req GenerateRequest) (*Response, error)

	// GenerateStructured asks the model for a JSON response and decodes it
	// into out. Transport or decode failures are returned as errors.
	GenerateStructured(ctx context.Context, system, prompt string, out any) error

	// Name returns the provider identifier (e.g. "openrouter").
	Name() string
}

// GenerateRequest is the input for one Generate call.
type GenerateRequest struct {
	System string
	Prompt string
	Tools  []ToolDefinition
}

// Response is the result from an LLM call. Text may be empty when the
// model returned only tool calls.
type Response struct {
	Text      string     `json:"text"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Usage     *Usage     `json:"usage,omitempty"`
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// ToolDefinition describes a tool available to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function ToolFunctionSchema `json:"function"`
}

// ToolFunctionSchema is the schema for a function tool.
type ToolFunctionSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Usage tracks token consumption for one call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
