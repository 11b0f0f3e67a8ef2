// Package agent implements the bounded reason/act loop.
//
// One Run drives a single query: load history and memory, iterate the
// model up to maxIterations, dispatch tool calls sequentially through the
// scratchpad's soft limits, then synthesize a final answer over the
// compacted context. Progress streams out as events; exactly one terminal
// event closes every run.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dexterhq/dexter/internal/memory"
	"github.com/dexterhq/dexter/internal/providers"
	"github.com/dexterhq/dexter/internal/scratchpad"
	"github.com/dexterhq/dexter/internal/sessions"
	"github.com/dexterhq/dexter/internal/toolctx"
	"github.com/dexterhq/dexter/internal/tools"
)

const defaultMaxIterations = 10

// Options wires an Agent together.
type Options struct {
	Model         providers.Model
	FastModel     providers.Model // summaries and context selection; Model when nil
	MaxIterations int
	SystemPrompt  string // SystemPrompt when empty
	Tools         *tools.Registry
	Sessions      *sessions.Store
	ToolContexts  *toolctx.Store
	Memory        *memory.Store
	ScratchpadDir string
	Limits        scratchpad.LimitConfig
}

// Agent drives queries against the model and tool set.
type Agent struct {
	model         providers.Model
	fastModel     providers.Model
	maxIterations int
	systemPrompt  string
	registry      *tools.Registry
	sessions      *sessions.Store
	toolContexts  *toolctx.Store
	memory        *memory.Store
	scratchpadDir string
	limits        scratchpad.LimitConfig
	tracer        trace.Tracer
}

func New(opts Options) *Agent {
	fast := opts.FastModel
	if fast == nil {
		fast = opts.Model
	}
	maxIter := opts.MaxIterations
	if maxIter <= 0 {
		maxIter = defaultMaxIterations
	}
	systemPrompt := opts.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = SystemPrompt
	}
	return &Agent{
		model:         opts.Model,
		fastModel:     fast,
		maxIterations: maxIter,
		systemPrompt:  systemPrompt,
		registry:      opts.Tools,
		sessions:      opts.Sessions,
		toolContexts:  opts.ToolContexts,
		memory:        opts.Memory,
		scratchpadDir: opts.ScratchpadDir,
		limits:        opts.Limits,
		tracer:        otel.Tracer("dexter/agent"),
	}
}

// Run executes one query and streams events. The channel closes after the
// terminal event. sessionKey may be empty, in which case history is not
// persisted. Cancelling ctx stops the run without further events.
//
// The channel is unbuffered: the run blocks on each emit until the
// consumer reads it, so a slow consumer throttles the loop instead of
// events piling up behind its back.
func (a *Agent) Run(ctx context.Context, query, sessionKey string) <-chan Event {
	events := make(chan Event)
	go func() {
		defer close(events)
		a.run(ctx, query, sessionKey, events)
	}()
	return events
}

// emit sends one event unless the run was cancelled. Returns false on
// cancellation so the loop can unwind without emitting further events.
func emit(ctx context.Context, events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (a *Agent) run(ctx context.Context, query, sessionKey string, events chan<- Event) {
	runID := uuid.NewString()
	if sessionKey != "" {
		sessionKey = sessions.ResolveKey("", sessionKey, "")
	}

	ctx, span := a.tracer.Start(ctx, "agent.run", trace.WithAttributes(
		attribute.String("run.id", runID),
		attribute.String("session.key", sessionKey),
	))
	defer span.End()

	log := slog.With("run_id", runID, "session_key", sessionKey)
	log.Info("agent run started", "query_len", len(query))

	if a.registry == nil || a.registry.Len() == 0 {
		log.Warn("no tools available")
		emit(ctx, events, DoneEvent{
			Answer:     "No tools available. Please check your configuration.",
			ToolCalls:  []scratchpad.ToolCallRecord{},
			Iterations: 0,
		})
		return
	}

	queryID := toolctx.HashQuery(query)

	pad, err := scratchpad.New(query, a.scratchpadDir, a.limits)
	if err != nil {
		log.Error("scratchpad creation failed", "error", err)
		emit(ctx, events, errorEvent(ErrPersistence, "scratchpad", err))
		return
	}

	var history []historyLine
	if sessionKey != "" {
		msgs, err := a.sessions.Load(sessionKey)
		if err != nil {
			log.Error("session load failed", "error", err)
			emit(ctx, events, errorEvent(ErrPersistence, "session load", err))
			return
		}
		if len(msgs) > 10 {
			msgs = msgs[len(msgs)-10:]
		}
		for _, m := range msgs {
			role := "Assistant"
			if m.Role == "user" {
				role = "User"
			}
			history = append(history, historyLine{Role: role, Content: m.Content.String()})
		}
	}

	memorySnippets := a.searchMemory(query)
	currentPrompt := buildInitialPrompt(query, history, memorySnippets)

	if sessionKey != "" {
		if err := a.sessions.Append(sessionKey, sessions.NewMessage("user", query)); err != nil {
			log.Error("session append failed", "error", err)
			emit(ctx, events, errorEvent(ErrPersistence, "session append", err))
			return
		}
	}

	iteration := 0
	for iteration < a.maxIterations {
		iteration++
		log.Debug("iteration", "n", iteration, "max", a.maxIterations)

		resp, err := a.callModel(ctx, currentPrompt, true)
		if err != nil {
			log.Error("model call failed", "error", err)
			emit(ctx, events, errorEvent(ErrModel, "generate", err))
			return
		}

		// Interstitial text next to tool calls becomes a thinking event.
		if resp.Text != "" && len(resp.ToolCalls) > 0 {
			if err := pad.AddThinking(resp.Text); err != nil {
				emit(ctx, events, errorEvent(ErrPersistence, "scratchpad", err))
				return
			}
			if !emit(ctx, events, ThinkingEvent{Message: resp.Text}) {
				return
			}
		}

		if len(resp.ToolCalls) == 0 {
			// Direct response: no tools were needed (greetings, simple
			// questions answered from model knowledge).
			if !pad.HasToolResults() && resp.Text != "" {
				log.Debug("direct response without tool results")
				if !emit(ctx, events, AnswerStartEvent{}) {
					return
				}
				if !a.finalize(ctx, events, sessionKey, query, resp.Text, pad) {
					return
				}
				emit(ctx, events, DoneEvent{
					Answer:     resp.Text,
					ToolCalls:  []scratchpad.ToolCallRecord{},
					Iterations: iteration,
				})
				return
			}

			a.answerFromContext(ctx, events, log, sessionKey, query, pad, iteration, "")
			return
		}

		if !a.executeToolCalls(ctx, events, log, resp.ToolCalls, query, queryID, pad) {
			return
		}

		currentPrompt = buildIterationPrompt(query, pad.ToolSummaries(), pad.FormatToolUsage())
	}

	log.Warn("max iterations reached", "max", a.maxIterations)
	fallback := fmt.Sprintf("Reached maximum iterations (%d).", a.maxIterations)
	a.answerFromContext(ctx, events, log, sessionKey, query, pad, iteration, fallback)
}

// answerFromContext compacts the gathered data, asks the model for the
// final answer, and emits the terminal Done event. fallbackAnswer is used
// when the model returns empty text (max-iterations path).
func (a *Agent) answerFromContext(ctx context.Context, events chan<- Event, log *slog.Logger, sessionKey, query string, pad *scratchpad.Scratchpad, iteration int, fallbackAnswer string) {
	fullContext := buildFullContext(ctx, a.fastModel, query, pad.ContextsWithSummaries())
	finalPrompt := buildFinalAnswerPrompt(query, fullContext)

	if !emit(ctx, events, AnswerStartEvent{}) {
		return
	}
	resp, err := a.callModel(ctx, finalPrompt, false)
	if err != nil {
		log.Error("final answer generation failed", "error", err)
		emit(ctx, events, errorEvent(ErrModel, "generate", err))
		return
	}

	answer := resp.Text
	if !a.finalize(ctx, events, sessionKey, query, answer, pad) {
		return
	}
	if answer == "" && fallbackAnswer != "" {
		answer = fallbackAnswer
	}
	emit(ctx, events, DoneEvent{
		Answer:     answer,
		ToolCalls:  pad.ToolCallRecords(),
		Iterations: iteration,
	})
}

func (a *Agent) callModel(ctx context.Context, prompt string, useTools bool) (*providers.Response, error) {
	req := providers.GenerateRequest{System: a.systemPrompt, Prompt: prompt}
	if useTools {
		req.Tools = a.registry.ProviderDefs()
	}
	return a.model.Generate(ctx, req)
}

// executeToolCalls dispatches the model's tool calls sequentially.
// Returns false when the run must stop (cancellation or fatal journal
// failure).
func (a *Agent) executeToolCalls(ctx context.Context, events chan<- Event, log *slog.Logger, calls []providers.ToolCall, query, queryID string, pad *scratchpad.Scratchpad) bool {
	for _, call := range calls {
		// One invocation per skill per query.
		if call.Name == "skill" {
			skillName, _ := call.Args["skill"].(string)
			if pad.HasExecutedSkill(skillName) {
				log.Debug("duplicate skill call skipped", "skill", skillName)
				continue
			}
		}
		if !a.executeSingleTool(ctx, events, log, call, query, queryID, pad) {
			return false
		}
	}
	return true
}

func (a *Agent) executeSingleTool(ctx context.Context, events chan<- Event, log *slog.Logger, call providers.ToolCall, query, queryID string, pad *scratchpad.Scratchpad) bool {
	toolQuery := extractQueryFromArgs(call.Args)

	if check := pad.CanCallTool(call.Name, toolQuery); check.Warning != "" {
		log.Warn("tool limit warning", "tool", call.Name)
		if !emit(ctx, events, ToolLimitEvent{Tool: call.Name, Warning: check.Warning, Blocked: false}) {
			return false
		}
	}

	log.Info("executing tool", "tool", call.Name)
	if !emit(ctx, events, ToolStartEvent{Tool: call.Name, Args: call.Args}) {
		return false
	}

	ctx, span := a.tracer.Start(ctx, "agent.tool", trace.WithAttributes(
		attribute.String("tool.name", call.Name),
	))
	defer span.End()

	start := time.Now()
	result, execErr := a.invokeTool(ctx, call)
	duration := time.Since(start).Milliseconds()

	if execErr != nil {
		log.Error("tool failed", "tool", call.Name, "error", execErr)
		span.RecordError(execErr)
		if !emit(ctx, events, ToolErrorEvent{Tool: call.Name, Error: execErr.Error()}) {
			return false
		}

		pad.RecordToolCall(call.Name, toolQuery)
		errorSummary := fmt.Sprintf("%s [FAILED]: %s", toolCallDescription(call.Name, call.Args), execErr)
		if err := pad.AddToolResult(call.Name, call.Args, "Error: "+execErr.Error(), errorSummary); err != nil {
			emit(ctx, events, errorEvent(ErrPersistence, "scratchpad", err))
			return false
		}
		return true
	}

	log.Info("tool completed", "tool", call.Name, "duration_ms", duration, "result_len", len(result))
	if !emit(ctx, events, ToolEndEvent{Tool: call.Name, Args: call.Args, Result: result, Duration: duration}) {
		return false
	}

	// Tool-context persistence is best-effort; the journal is the record.
	if a.toolContexts != nil {
		if _, err := a.toolContexts.Save(call.Name, call.Args, result, queryID); err != nil {
			log.Warn("tool context save failed", "tool", call.Name, "error", err)
		}
	}

	pad.RecordToolCall(call.Name, toolQuery)
	summary := a.summarizeToolResult(ctx, query, call.Name, result)
	if err := pad.AddToolResult(call.Name, call.Args, result, summary); err != nil {
		emit(ctx, events, errorEvent(ErrPersistence, "scratchpad", err))
		return false
	}
	return true
}

func (a *Agent) invokeTool(ctx context.Context, call providers.ToolCall) (string, error) {
	tool := a.registry.Get(call.Name)
	if tool == nil {
		return "", fmt.Errorf("tool '%s' not found", call.Name)
	}
	res := tool.Execute(ctx, call.Args)
	if res.IsError {
		if res.Err != nil {
			return "", res.Err
		}
		return "", fmt.Errorf("%s", res.ForLLM)
	}
	return res.ForLLM, nil
}

// summarizeToolResult compresses one result via the fast model. A failed
// summary degrades to a truncated result, never fails the run.
func (a *Agent) summarizeToolResult(ctx context.Context, query, toolName, result string) string {
	prompt := buildToolSummaryPrompt(query, toolName, result)
	resp, err := a.fastModel.Generate(ctx, providers.GenerateRequest{
		System: summarizerSystemPrompt,
		Prompt: prompt,
	})
	if err != nil || resp.Text == "" {
		slog.Warn("tool result summary failed", "tool", toolName, "error", err)
		if len(result) > 200 {
			return result[:200]
		}
		return result
	}
	return resp.Text
}

func (a *Agent) searchMemory(query string) []string {
	if a.memory == nil {
		return nil
	}
	results := a.memory.Search(query, 3)
	snippets := make([]string, 0, len(results))
	for _, r := range results {
		snippets = append(snippets, r.Snippet)
	}
	return snippets
}

// finalize appends the assistant message and saves a Q&A memory entry for
// tool-assisted answers. Session append failures are fatal.
func (a *Agent) finalize(ctx context.Context, events chan<- Event, sessionKey, query, answer string, pad *scratchpad.Scratchpad) bool {
	if sessionKey != "" {
		if err := a.sessions.Append(sessionKey, sessions.NewMessage("assistant", answer)); err != nil {
			slog.Error("session append failed", "error", err)
			emit(ctx, events, errorEvent(ErrPersistence, "session append", err))
			return false
		}
	}
	if pad.HasToolResults() {
		a.saveToMemory(query, answer, pad)
	}
	return true
}

// saveToMemory records the Q&A pair, skipping trivial answers.
func (a *Agent) saveToMemory(query, answer string, pad *scratchpad.Scratchpad) {
	if a.memory == nil || len(answer) <= 50 {
		return
	}
	truncated := answer
	if len(truncated) > 500 {
		truncated = truncated[:500]
	}
	content := fmt.Sprintf("Q: %s\nA: %s", query, truncated)
	tags := []string{"qa", "conversation"}
	records := pad.ToolCallRecords()
	if len(records) > 5 {
		records = records[:5]
	}
	for _, r := range records {
		tags = append(tags, "tool:"+r.Tool)
	}
	if _, err := a.memory.Add(content, memory.SourceAgent, tags); err != nil {
		slog.Warn("memory save failed", "error", err)
	}
}

// extractQueryFromArgs picks the similarity key out of tool arguments.
func extractQueryFromArgs(args map[string]any) string {
	for _, key := range []string{"query", "search", "question", "q", "text", "input"} {
		if s, ok := args[key].(string); ok {
			return s
		}
	}
	return ""
}

// Reset clears a session's history, returning the messages that were
// stored.
func (a *Agent) Reset(sessionIDOrKey string) ([]sessions.Message, error) {
	key := sessions.ResolveKey("", sessionIDOrKey, "")
	msgs, err := a.sessions.Load(key)
	if err != nil {
		return nil, err
	}
	if err := a.sessions.Clear(key); err != nil {
		return nil, err
	}
	slog.Info("session reset", "key", key, "cleared", len(msgs))
	return msgs, nil
}
