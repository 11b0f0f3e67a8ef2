package agent

import "github.com/dexterhq/dexter/internal/scratchpad"

// Event is the stream the agent yields while working on a query. Exactly
// one terminal event (Done or Error) closes every run.
type Event interface {
	Type() string
}

// ThinkingEvent carries interstitial reasoning text the model produced
// alongside tool calls.
type ThinkingEvent struct {
	Message string `json:"message"`
}

func (ThinkingEvent) Type() string { return "thinking" }

// ToolStartEvent marks the start of one tool execution.
type ToolStartEvent struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

func (ToolStartEvent) Type() string { return "tool_start" }

// ToolEndEvent marks a successful tool execution.
type ToolEndEvent struct {
	Tool     string         `json:"tool"`
	Args     map[string]any `json:"args"`
	Result   string         `json:"result"`
	Duration int64          `json:"duration"` // milliseconds
}

func (ToolEndEvent) Type() string { return "tool_end" }

// ToolErrorEvent marks a failed tool execution. Non-fatal; the run
// continues.
type ToolErrorEvent struct {
	Tool  string `json:"tool"`
	Error string `json:"error"`
}

func (ToolErrorEvent) Type() string { return "tool_error" }

// ToolLimitEvent carries a soft-limit warning. Blocked is always false;
// limits advise, they never stop a call.
type ToolLimitEvent struct {
	Tool    string `json:"tool"`
	Warning string `json:"warning"`
	Blocked bool   `json:"blocked"`
}

func (ToolLimitEvent) Type() string { return "tool_limit" }

// AnswerStartEvent signals that final answer generation has begun.
type AnswerStartEvent struct{}

func (AnswerStartEvent) Type() string { return "answer_start" }

// DoneEvent is the successful terminal event.
type DoneEvent struct {
	Answer     string                      `json:"answer"`
	ToolCalls  []scratchpad.ToolCallRecord `json:"tool_calls"`
	Iterations int                         `json:"iterations"`
}

func (DoneEvent) Type() string { return "done" }

// ErrorEvent is the terminal event for fatal failures (model errors,
// persistence errors on the session or journal).
type ErrorEvent struct {
	Error string `json:"error"`
}

func (ErrorEvent) Type() string { return "error" }
