// Package scratchpad journals the agent's work on one query.
//
// Entries go to a JSONL file (one object per line) so a crash mid-run never
// corrupts earlier entries. The journal is the ground truth for what the
// agent did; in-memory counters layered on top drive the soft tool-call
// limits. Limits warn, they never block.
package scratchpad

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Entry is one journal record. Type is "init", "tool_result" or "thinking".
type Entry struct {
	Type       string         `json:"type"`
	Timestamp  string         `json:"timestamp"`
	Content    string         `json:"content,omitempty"`
	ToolName   string         `json:"toolName,omitempty"`
	Args       map[string]any `json:"args,omitempty"`
	Result     any            `json:"result,omitempty"`
	LLMSummary string         `json:"llmSummary,omitempty"`
}

// LimitConfig holds the soft-limit knobs.
type LimitConfig struct {
	MaxCallsPerTool     int
	SimilarityThreshold float64
}

func DefaultLimitConfig() LimitConfig {
	return LimitConfig{MaxCallsPerTool: 3, SimilarityThreshold: 0.7}
}

// LimitCheck is the outcome of a soft-limit check. Allowed is always true;
// Warning is non-empty when the call crosses or nears a limit.
type LimitCheck struct {
	Allowed bool
	Warning string
}

// UsageStatus summarises how much one tool has been used this query.
type UsageStatus struct {
	ToolName       string
	CallCount      int
	MaxCalls       int
	RemainingCalls int
	RecentQueries  []string
}

// ToolContext is one tool result, fully materialised for answer generation.
type ToolContext struct {
	ToolName   string
	Args       map[string]any
	Result     string
	LLMSummary string
	Index      int
}

// ToolCallRecord is the compact form reported in the terminal event.
type ToolCallRecord struct {
	Tool   string         `json:"tool"`
	Args   map[string]any `json:"args"`
	Result string         `json:"result"`
}

// Scratchpad tracks all agent work on a single query.
type Scratchpad struct {
	filepath string
	limits   LimitConfig

	mu         sync.Mutex
	entries    []Entry
	callCounts map[string]int
	queries    map[string][]string
}

// New creates the journal file and writes the init entry.
func New(query, dir string, limits LimitConfig) (*Scratchpad, error) {
	if limits.MaxCallsPerTool <= 0 {
		limits = DefaultLimitConfig()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("scratchpad: create dir: %w", err)
	}

	sum := md5.Sum([]byte(query))
	name := fmt.Sprintf("%s_%s.jsonl",
		time.Now().Format("2006-01-02-150405"),
		hex.EncodeToString(sum[:])[:12])

	s := &Scratchpad{
		filepath:   filepath.Join(dir, name),
		limits:     limits,
		callCounts: map[string]int{},
		queries:    map[string][]string{},
	}
	if err := s.append(Entry{Type: "init", Timestamp: now(), Content: query}); err != nil {
		return nil, err
	}
	return s, nil
}

func now() string { return time.Now().Format(time.RFC3339Nano) }

// Filepath returns the journal path on disk.
func (s *Scratchpad) Filepath() string { return s.filepath }

// AddToolResult journals one completed tool call. JSON results are stored
// structurally so the journal stays greppable.
func (s *Scratchpad) AddToolResult(toolName string, args map[string]any, result, llmSummary string) error {
	return s.append(Entry{
		Type:       "tool_result",
		Timestamp:  now(),
		ToolName:   toolName,
		Args:       args,
		Result:     parseResultSafely(result),
		LLMSummary: llmSummary,
	})
}

// AddThinking journals a reasoning step.
func (s *Scratchpad) AddThinking(thought string) error {
	return s.append(Entry{Type: "thinking", Timestamp: now(), Content: thought})
}

// CanCallTool checks the soft limits for a prospective call. The call is
// always allowed; a warning is attached when it is at/over the limit, when
// the query repeats a previous one for the same tool, or when only one
// call remains.
func (s *Scratchpad) CanCallTool(toolName, query string) LimitCheck {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := s.callCounts[toolName]
	max := s.limits.MaxCallsPerTool

	if count >= max {
		return LimitCheck{Allowed: true, Warning: fmt.Sprintf(
			"Tool '%s' has been called %d times (suggested limit: %d). "+
				"If previous calls didn't return the needed data, consider: "+
				"(1) trying a different tool, (2) using different search terms, "+
				"or (3) proceeding with what you have and noting any data gaps to the user.",
			toolName, count, max)}
	}

	if query != "" {
		if _, ok := findSimilarQuery(query, s.queries[toolName], s.limits.SimilarityThreshold); ok {
			remaining := max - count
			return LimitCheck{Allowed: true, Warning: fmt.Sprintf(
				"This query is very similar to a previous '%s' call. "+
					"You have %d attempt(s) before reaching the suggested limit. "+
					"If the tool isn't returning useful results, consider: "+
					"(1) trying a different tool, (2) using different search terms, "+
					"or (3) acknowledging the data limitation to the user.",
				toolName, remaining)}
		}
	}

	if count == max-1 {
		return LimitCheck{Allowed: true, Warning: fmt.Sprintf(
			"You are approaching the suggested limit for '%s' (%d/%d). "+
				"If this doesn't return the needed data, consider trying a different approach.",
			toolName, count+1, max)}
	}

	return LimitCheck{Allowed: true}
}

// RecordToolCall bumps the counters. Call after the tool executed.
func (s *Scratchpad) RecordToolCall(toolName, query string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callCounts[toolName]++
	if query != "" {
		s.queries[toolName] = append(s.queries[toolName], query)
	}
}

// UsageStatuses reports per-tool usage for every tool called so far,
// sorted by name for stable prompt output.
func (s *Scratchpad) UsageStatuses() []UsageStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.callCounts))
	for name := range s.callCounts {
		names = append(names, name)
	}
	sort.Strings(names)

	var statuses []UsageStatus
	for _, name := range names {
		count := s.callCounts[name]
		remaining := s.limits.MaxCallsPerTool - count
		if remaining < 0 {
			remaining = 0
		}
		recent := s.queries[name]
		if len(recent) > 3 {
			recent = recent[len(recent)-3:]
		}
		statuses = append(statuses, UsageStatus{
			ToolName:       name,
			CallCount:      count,
			MaxCalls:       s.limits.MaxCallsPerTool,
			RemainingCalls: remaining,
			RecentQueries:  append([]string{}, recent...),
		})
	}
	return statuses
}

// FormatToolUsage renders the usage block injected into iteration prompts.
// Returns "" when no tools have been called.
func (s *Scratchpad) FormatToolUsage() string {
	statuses := s.UsageStatuses()
	if len(statuses) == 0 {
		return ""
	}

	var lines []string
	for _, st := range statuses {
		var status string
		if st.CallCount >= st.MaxCalls {
			status = fmt.Sprintf("%d calls (over suggested limit of %d)", st.CallCount, st.MaxCalls)
		} else {
			status = fmt.Sprintf("%d/%d calls", st.CallCount, st.MaxCalls)
		}
		lines = append(lines, fmt.Sprintf("- %s: %s", st.ToolName, status))
	}

	return "## Tool Usage This Query\n\n" +
		strings.Join(lines, "\n") +
		"\n\nNote: If a tool isn't returning useful results after several " +
		"attempts, consider trying a different tool/approach."
}

// ToolSummaries returns "tool(arg=val, arg2=val2): summary" lines for the
// iteration prompt, in journal order. At most two args are shown.
func (s *Scratchpad) ToolSummaries() []string {
	var summaries []string
	for _, e := range s.snapshot() {
		if e.Type != "tool_result" || e.LLMSummary == "" || e.ToolName == "" {
			continue
		}
		desc := e.ToolName
		if args := formatArgs(e.Args, 2); args != "" {
			desc = fmt.Sprintf("%s(%s)", e.ToolName, args)
		}
		summaries = append(summaries, fmt.Sprintf("%s: %s", desc, e.LLMSummary))
	}
	return summaries
}

// ToolCallRecords returns every tool result for the terminal event.
func (s *Scratchpad) ToolCallRecords() []ToolCallRecord {
	var records []ToolCallRecord
	for _, e := range s.snapshot() {
		if e.Type != "tool_result" || e.ToolName == "" {
			continue
		}
		args := e.Args
		if args == nil {
			args = map[string]any{}
		}
		records = append(records, ToolCallRecord{
			Tool:   e.ToolName,
			Args:   args,
			Result: stringifyResult(e.Result),
		})
	}
	return records
}

// ContextsWithSummaries returns the full tool results, each carrying its
// journal index so a selector can reference it.
func (s *Scratchpad) ContextsWithSummaries() []ToolContext {
	var contexts []ToolContext
	for i, e := range s.snapshot() {
		if e.Type != "tool_result" || e.ToolName == "" || e.Result == nil {
			continue
		}
		args := e.Args
		if args == nil {
			args = map[string]any{}
		}
		contexts = append(contexts, ToolContext{
			ToolName:   e.ToolName,
			Args:       args,
			Result:     stringifyResult(e.Result),
			LLMSummary: e.LLMSummary,
			Index:      i,
		})
	}
	return contexts
}

// HasToolResults reports whether any tool result has been journaled.
func (s *Scratchpad) HasToolResults() bool {
	for _, e := range s.snapshot() {
		if e.Type == "tool_result" {
			return true
		}
	}
	return false
}

// HasExecutedSkill reports whether the named skill already ran this query.
func (s *Scratchpad) HasExecutedSkill(skillName string) bool {
	for _, e := range s.snapshot() {
		if e.Type == "tool_result" && e.ToolName == "skill" && e.Args != nil {
			if name, ok := e.Args["skill"].(string); ok && name == skillName {
				return true
			}
		}
	}
	return false
}

// Entries returns a copy of the in-memory journal.
func (s *Scratchpad) Entries() []Entry {
	return s.snapshot()
}

func (s *Scratchpad) snapshot() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// append writes one entry to disk, then mirrors it in memory. A failed
// append is fatal to the caller; the journal is the ground truth.
func (s *Scratchpad) append(entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := appendJournal(s.filepath, entry); err != nil {
		return err
	}
	s.entries = append(s.entries, entry)
	return nil
}

func parseResultSafely(result string) any {
	var parsed any
	if err := json.Unmarshal([]byte(result), &parsed); err == nil {
		return parsed
	}
	return result
}

func stringifyResult(result any) string {
	if s, ok := result.(string); ok {
		return s
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf("%v", result)
	}
	return string(data)
}

// formatArgs renders up to limit args as "k=v, k2=v2", keys sorted.
func formatArgs(args map[string]any, limit int) string {
	if len(args) == 0 {
		return ""
	}
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > limit {
		keys = keys[:limit]
	}
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, args[k]))
	}
	return strings.Join(parts, ", ")
}
