package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/dexterhq/dexter/internal/providers"
	"github.com/dexterhq/dexter/internal/scratchpad"
	"github.com/dexterhq/dexter/internal/sessions"
	"github.com/dexterhq/dexter/internal/toolctx"
	"github.com/dexterhq/dexter/internal/tools"
)

// scriptedModel replays a fixed sequence of responses for loop and
// final-answer calls. Summarizer calls get a canned summary so they
// don't consume the script.
type scriptedModel struct {
	responses []*providers.Response
	calls     int
	indices   []int
	structErr error
}

func (m *scriptedModel) Generate(ctx context.Context, req providers.GenerateRequest) (*providers.Response, error) {
	if req.System == summarizerSystemPrompt {
		return &providers.Response{Text: "brief summary"}, nil
	}
	if m.calls >= len(m.responses) {
		return nil, fmt.Errorf("model called %d times, scripted for %d", m.calls+1, len(m.responses))
	}
	resp := m.responses[m.calls]
	m.calls++
	return resp, nil
}

// GenerateStructured behaves like a strict JSON-mode backend: it can only
// produce an object, so anything but the object envelope is an error.
func (m *scriptedModel) GenerateStructured(ctx context.Context, system, prompt string, out any) error {
	if m.structErr != nil {
		return m.structErr
	}
	if sel, ok := out.(*indexSelection); ok {
		sel.Indices = m.indices
		return nil
	}
	return errors.New("JSON mode produces objects, not arrays")
}

func (m *scriptedModel) Name() string { return "scripted" }

func textResp(text string) *providers.Response {
	return &providers.Response{Text: text}
}

func toolResp(name string, args map[string]any) *providers.Response {
	return &providers.Response{ToolCalls: []providers.ToolCall{{ID: "tc", Name: name, Args: args}}}
}

// stubTool returns a canned result or error and counts executions.
type stubTool struct {
	name   string
	result string
	err    string
	calls  int
}

func (t *stubTool) Name() string                       { return t.name }
func (t *stubTool) Description() string                { return "stub" }
func (t *stubTool) Parameters() map[string]interface{} { return map[string]interface{}{"type": "object"} }
func (t *stubTool) Execute(ctx context.Context, args map[string]interface{}) *tools.Result {
	t.calls++
	if t.err != "" {
		return tools.ErrorResult(t.err)
	}
	return tools.NewResult(t.result)
}

func newTestAgent(t *testing.T, model providers.Model, toolList []tools.Tool, maxIterations int) *Agent {
	t.Helper()
	registry := tools.NewRegistry()
	for _, tool := range toolList {
		registry.Register(tool)
	}
	base := t.TempDir()
	return New(Options{
		Model:         model,
		MaxIterations: maxIterations,
		Tools:         registry,
		Sessions:      sessions.NewStore(filepath.Join(base, "sessions")),
		ToolContexts:  toolctx.NewStore(filepath.Join(base, "context"), model),
		ScratchpadDir: filepath.Join(base, "scratchpad"),
	})
}

func collect(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var out []Event
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

func eventTypes(events []Event) []string {
	types := make([]string, len(events))
	for i, ev := range events {
		types[i] = ev.Type()
	}
	return types
}

// assertSingleTerminal verifies the stream invariants: exactly one
// terminal event, in last position, and answer_start before done.
func assertSingleTerminal(t *testing.T, events []Event) {
	t.Helper()
	if len(events) == 0 {
		t.Fatal("no events emitted")
	}
	terminal := 0
	answerStartAt, doneAt := -1, -1
	for i, ev := range events {
		switch ev.Type() {
		case "done", "error":
			terminal++
			if i != len(events)-1 {
				t.Errorf("terminal event at position %d of %d", i, len(events))
			}
			if ev.Type() == "done" {
				doneAt = i
			}
		case "answer_start":
			answerStartAt = i
		}
	}
	if terminal != 1 {
		t.Errorf("got %d terminal events, want 1", terminal)
	}
	if answerStartAt >= 0 && doneAt >= 0 && answerStartAt > doneAt {
		t.Error("answer_start after done")
	}
}

func TestGreetingNoTools(t *testing.T) {
	model := &scriptedModel{responses: []*providers.Response{textResp("Hi!")}}
	tool := &stubTool{name: "list_tool", result: "x"}
	agent := newTestAgent(t, model, []tools.Tool{tool}, 10)

	events := collect(t, agent.Run(context.Background(), "hello", "greeting-test"))
	assertSingleTerminal(t, events)

	got := eventTypes(events)
	if len(got) != 2 || got[0] != "answer_start" || got[1] != "done" {
		t.Fatalf("events = %v, want [answer_start done]", got)
	}

	done := events[1].(DoneEvent)
	if done.Answer != "Hi!" || done.Iterations != 1 || len(done.ToolCalls) != 0 {
		t.Errorf("done = %+v", done)
	}
	if tool.calls != 0 {
		t.Errorf("tool called %d times, want 0", tool.calls)
	}

	// One user and one assistant message in the session.
	msgs := agent.sessions.Get(sessions.ResolveKey("", "greeting-test", ""))
	if len(msgs) != 2 || msgs[0].Role != "user" || msgs[1].Role != "assistant" {
		t.Fatalf("session = %+v", msgs)
	}
	if msgs[1].Content.String() != "Hi!" {
		t.Errorf("assistant content = %q", msgs[1].Content.String())
	}
}

func TestSingleToolCallSuccess(t *testing.T) {
	model := &scriptedModel{responses: []*providers.Response{
		toolResp("list_tool", map[string]any{"path": "."}),
		textResp("I have what I need."),
		textResp("Files: a.txt and b.txt"),
	}}
	tool := &stubTool{name: "list_tool", result: "a.txt\nb.txt"}
	agent := newTestAgent(t, model, []tools.Tool{tool}, 10)

	events := collect(t, agent.Run(context.Background(), "list files", ""))
	assertSingleTerminal(t, events)

	got := eventTypes(events)
	want := []string{"tool_start", "tool_end", "answer_start", "done"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}

	end := events[1].(ToolEndEvent)
	if end.Tool != "list_tool" || end.Result != "a.txt\nb.txt" || end.Duration < 0 {
		t.Errorf("tool_end = %+v", end)
	}

	done := events[3].(DoneEvent)
	if done.Answer != "Files: a.txt and b.txt" {
		t.Errorf("answer = %q", done.Answer)
	}
	if done.Iterations != 2 {
		t.Errorf("iterations = %d, want 2", done.Iterations)
	}
	if len(done.ToolCalls) != 1 || done.ToolCalls[0].Tool != "list_tool" || done.ToolCalls[0].Result != "a.txt\nb.txt" {
		t.Errorf("tool_calls = %+v", done.ToolCalls)
	}
}

func TestSoftLimitWarnsButNeverBlocks(t *testing.T) {
	args := map[string]any{"path": "."}
	model := &scriptedModel{responses: []*providers.Response{
		toolResp("list_tool", args),
		toolResp("list_tool", args),
		toolResp("list_tool", args),
		textResp("that's enough"),
		textResp("final answer"),
	}}
	tool := &stubTool{name: "list_tool", result: "a.txt"}
	agent := newTestAgent(t, model, []tools.Tool{tool}, 10)

	events := collect(t, agent.Run(context.Background(), "list files", ""))
	assertSingleTerminal(t, events)

	// The third tool_start must be preceded by a non-blocking tool_limit.
	starts := 0
	for i, ev := range events {
		if ev.Type() != "tool_start" {
			continue
		}
		starts++
		if starts == 3 {
			if i == 0 || events[i-1].Type() != "tool_limit" {
				t.Fatalf("third tool_start not preceded by tool_limit: %v", eventTypes(events))
			}
			limit := events[i-1].(ToolLimitEvent)
			if limit.Blocked {
				t.Error("limit warning must never block")
			}
			if limit.Tool != "list_tool" || limit.Warning == "" {
				t.Errorf("tool_limit = %+v", limit)
			}
		}
	}
	if starts != 3 {
		t.Errorf("got %d tool_start events, want 3", starts)
	}
	if tool.calls != 3 {
		t.Errorf("tool executed %d times, want 3", tool.calls)
	}
}

func TestToolFailureContinuesRun(t *testing.T) {
	model := &scriptedModel{responses: []*providers.Response{
		toolResp("read_db", map[string]any{"table": "users"}),
		textResp("the read failed"),
		textResp("I could not access the data."),
	}}
	tool := &stubTool{name: "read_db", err: "permission denied"}
	agent := newTestAgent(t, model, []tools.Tool{tool}, 10)

	events := collect(t, agent.Run(context.Background(), "read users", ""))
	assertSingleTerminal(t, events)

	var toolErr *ToolErrorEvent
	for _, ev := range events {
		if e, ok := ev.(ToolErrorEvent); ok {
			toolErr = &e
		}
	}
	if toolErr == nil || toolErr.Error != "permission denied" {
		t.Fatalf("tool_error = %+v in %v", toolErr, eventTypes(events))
	}

	done := events[len(events)-1].(DoneEvent)
	if len(done.ToolCalls) != 1 {
		t.Fatalf("tool_calls = %+v", done.ToolCalls)
	}
	if done.ToolCalls[0].Result != "Error: permission denied" {
		t.Errorf("journaled result = %q", done.ToolCalls[0].Result)
	}
}

func TestSkillDeduplication(t *testing.T) {
	model := &scriptedModel{responses: []*providers.Response{
		toolResp("skill", map[string]any{"skill": "dcf"}),
		toolResp("skill", map[string]any{"skill": "dcf"}),
		textResp("instructions loaded"),
		textResp("final"),
	}}
	tool := &stubTool{name: "skill", result: "## Skill: dcf\n\nsteps"}
	agent := newTestAgent(t, model, []tools.Tool{tool}, 10)

	events := collect(t, agent.Run(context.Background(), "run a dcf", ""))
	assertSingleTerminal(t, events)

	starts := 0
	for _, ev := range events {
		if s, ok := ev.(ToolStartEvent); ok && s.Tool == "skill" {
			starts++
		}
	}
	if starts != 1 {
		t.Errorf("got %d skill tool_start events, want 1", starts)
	}
	if tool.calls != 1 {
		t.Errorf("skill executed %d times, want 1", tool.calls)
	}
}

func TestIterationCapReached(t *testing.T) {
	model := &scriptedModel{responses: []*providers.Response{
		toolResp("probe", map[string]any{"n": float64(1)}),
		toolResp("probe", map[string]any{"n": float64(2)}),
		textResp(""), // final-answer call returns empty text
	}}
	tool := &stubTool{name: "probe", result: "data"}
	agent := newTestAgent(t, model, []tools.Tool{tool}, 2)

	events := collect(t, agent.Run(context.Background(), "keep probing", ""))
	assertSingleTerminal(t, events)

	done := events[len(events)-1].(DoneEvent)
	if done.Iterations != 2 {
		t.Errorf("iterations = %d, want 2", done.Iterations)
	}
	if done.Answer != "Reached maximum iterations (2)." {
		t.Errorf("answer = %q", done.Answer)
	}
}

func TestNoToolsPreflight(t *testing.T) {
	model := &scriptedModel{responses: []*providers.Response{textResp("never called")}}
	agent := newTestAgent(t, model, nil, 10)

	events := collect(t, agent.Run(context.Background(), "anything", ""))
	if len(events) != 1 {
		t.Fatalf("events = %v", eventTypes(events))
	}
	done, ok := events[0].(DoneEvent)
	if !ok || done.Iterations != 0 {
		t.Fatalf("event = %+v", events[0])
	}
	if done.Answer != "No tools available. Please check your configuration." {
		t.Errorf("answer = %q", done.Answer)
	}
	if model.calls != 0 {
		t.Errorf("model called %d times, want 0", model.calls)
	}
}

func TestThinkingEmittedWithToolCalls(t *testing.T) {
	model := &scriptedModel{responses: []*providers.Response{
		{Text: "Let me check the files.", ToolCalls: []providers.ToolCall{
			{Name: "list_tool", Args: map[string]any{"path": "."}},
		}},
		textResp("enough"),
		textResp("final"),
	}}
	tool := &stubTool{name: "list_tool", result: "a.txt"}
	agent := newTestAgent(t, model, []tools.Tool{tool}, 10)

	events := collect(t, agent.Run(context.Background(), "list", ""))
	assertSingleTerminal(t, events)

	if events[0].Type() != "thinking" {
		t.Fatalf("events = %v", eventTypes(events))
	}
	if events[0].(ThinkingEvent).Message != "Let me check the files." {
		t.Errorf("thinking = %+v", events[0])
	}
}

func TestJournalWrittenDuringRun(t *testing.T) {
	model := &scriptedModel{responses: []*providers.Response{
		toolResp("probe", map[string]any{"n": float64(1)}),
		textResp("enough"),
		textResp("final"),
	}}
	tool := &stubTool{name: "probe", result: "data"}
	agent := newTestAgent(t, model, []tools.Tool{tool}, 10)

	collect(t, agent.Run(context.Background(), "probe it", ""))

	dir := agent.scratchpadDir
	files, err := os.ReadDir(dir)
	if err != nil || len(files) != 1 {
		t.Fatalf("scratchpad dir: files=%v err=%v", files, err)
	}
	entries, err := scratchpad.ReadJournal(filepath.Join(dir, files[0].Name()))
	if err != nil {
		t.Fatalf("ReadJournal: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("journal entries = %d, want 2", len(entries))
	}
	if entries[0].Type != "init" || entries[0].Content != "probe it" {
		t.Errorf("init entry = %+v", entries[0])
	}
	if entries[1].Type != "tool_result" || entries[1].ToolName != "probe" {
		t.Errorf("tool_result entry = %+v", entries[1])
	}
}

func TestModelErrorIsTerminal(t *testing.T) {
	agent := newTestAgent(t, &failingModel{}, []tools.Tool{&stubTool{name: "x", result: "y"}}, 10)

	events := collect(t, agent.Run(context.Background(), "q", ""))
	if len(events) != 1 {
		t.Fatalf("events = %v", eventTypes(events))
	}
	errEv, ok := events[0].(ErrorEvent)
	if !ok {
		t.Fatalf("event = %+v", events[0])
	}
	if errEv.Error == "" {
		t.Error("empty error message")
	}
}

type failingModel struct{}

func (m *failingModel) Generate(ctx context.Context, req providers.GenerateRequest) (*providers.Response, error) {
	return nil, errors.New("upstream unavailable")
}

func (m *failingModel) GenerateStructured(ctx context.Context, system, prompt string, out any) error {
	return errors.New("upstream unavailable")
}

func (m *failingModel) Name() string { return "failing" }

func TestCancellationStopsRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	model := &scriptedModel{responses: []*providers.Response{textResp("Hi!")}}
	agent := newTestAgent(t, model, []tools.Tool{&stubTool{name: "x", result: "y"}}, 10)

	// A cancelled run may hand over an in-flight event or two but must
	// close the channel promptly.
	count := 0
	for range agent.Run(ctx, "hello", "") {
		count++
	}
	if count > 2 {
		t.Errorf("got %d events after cancellation", count)
	}
}

func TestRunChannelIsUnbuffered(t *testing.T) {
	model := &scriptedModel{responses: []*providers.Response{textResp("Hi!")}}
	agent := newTestAgent(t, model, []tools.Tool{&stubTool{name: "x", result: "y"}}, 10)

	// An unbuffered channel makes the consumer's read pace the loop: the
	// run cannot race ahead of whoever is rendering the events.
	events := agent.Run(context.Background(), "hello", "")
	if cap(events) != 0 {
		t.Errorf("events channel capacity = %d, want 0", cap(events))
	}
	for range events {
	}
}

func TestReset(t *testing.T) {
	model := &scriptedModel{responses: []*providers.Response{textResp("Hi!")}}
	agent := newTestAgent(t, model, []tools.Tool{&stubTool{name: "x", result: "y"}}, 10)

	collect(t, agent.Run(context.Background(), "hello", "resettable"))

	cleared, err := agent.Reset("resettable")
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if len(cleared) != 2 {
		t.Errorf("cleared %d messages, want 2", len(cleared))
	}
	msgs, err := agent.sessions.Load(sessions.ResolveKey("", "resettable", ""))
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 0 {
		t.Errorf("session not empty after reset: %+v", msgs)
	}
}
