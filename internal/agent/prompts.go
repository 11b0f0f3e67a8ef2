package agent

import (
	"fmt"
	"sort"
	"strings"
)

// SystemPrompt is the customization layer: swap it to create different
// agent personalities while the loop machinery stays unchanged.
const SystemPrompt = `You are a helpful assistant with access to tools.

## Tool Usage Guidelines

1. **Use tools efficiently**: Call tools only when you genuinely need information you don't have
2. **Do NOT repeat tool calls**: If you've already called a tool with the same parameters, do NOT call it again
3. **Stop when you have enough data**: Once a tool returns relevant information, proceed to answer the user
4. **No tool needed for simple questions**: If you can answer from your knowledge, respond directly

## Warning Messages Matter

When you receive a warning about tool usage limits:
- STOP calling that tool
- Work with the data you already have
- Acknowledge any limitations to the user

## Good Answer = Useful, Not Perfect

You don't need perfect information to help. Answer with what you have, and note any gaps.`

const summarizerSystemPrompt = "You are a concise data summarizer."

// buildIterationPrompt shows the model its progress so far and asks
// whether it can answer yet.
func buildIterationPrompt(query string, toolSummaries []string, toolUsage string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Query: %s", query)

	if len(toolSummaries) > 0 {
		b.WriteString("\n\nData gathered:\n")
		for i, s := range toolSummaries {
			if i > 0 {
				b.WriteByte('\n')
			}
			fmt.Fprintf(&b, "- %s", s)
		}
	}
	if toolUsage != "" {
		fmt.Fprintf(&b, "\n\n%s", toolUsage)
	}

	b.WriteString("\n\nDo you have enough information to answer? If yes, provide your answer. If not, use tools to gather more data.")
	return b.String()
}

// buildFinalAnswerPrompt asks for the answer synthesis over the compacted
// context.
func buildFinalAnswerPrompt(query, fullContext string) string {
	return fmt.Sprintf(`Query: %s

Gathered data:
%s

Provide a comprehensive answer based on the data above.`, query, fullContext)
}

// buildToolSummaryPrompt asks the fast model to compress one tool result.
// The raw result is capped at 3000 characters.
func buildToolSummaryPrompt(query, toolName, result string) string {
	if len(result) > 3000 {
		result = result[:3000]
	}
	return fmt.Sprintf(`Summarize this tool result in 1-2 sentences. Focus on information relevant to: %s

Tool: %s
Result: %s

Summary:`, query, toolName, result)
}

type contextSummary struct {
	Index     int
	ToolName  string
	Summary   string
	TokenCost int
}

// buildContextSelectionPrompt lists the gathered results and asks which
// ones deserve full inclusion in the final-answer context.
func buildContextSelectionPrompt(query string, summaries []contextSummary) string {
	var items []string
	for _, s := range summaries {
		items = append(items, fmt.Sprintf("[%d] %s: %s", s.Index, s.ToolName, s.Summary))
	}
	return fmt.Sprintf(`Query: %s

Available data:
%s

Return a JSON object with the indices most relevant to the query. Example: {"indices": [0, 2]}`, query, strings.Join(items, "\n"))
}

// toolCallDescription renders "tool(arg=val, arg2=val2)" with at most two
// args, keys sorted for stable output.
func toolCallDescription(toolName string, args map[string]any) string {
	if len(args) == 0 {
		return toolName
	}
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > 2 {
		keys = keys[:2]
	}
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, args[k]))
	}
	return fmt.Sprintf("%s(%s)", toolName, strings.Join(parts, ", "))
}

// buildInitialPrompt combines the query with recent history and memory
// snippets for the first iteration.
func buildInitialPrompt(query string, history []historyLine, memorySnippets []string) string {
	parts := []string{fmt.Sprintf("Query: %s", query)}

	if len(history) > 0 {
		var lines []string
		for _, h := range history {
			content := h.Content
			if len(content) > 200 {
				content = content[:200]
			}
			lines = append(lines, fmt.Sprintf("%s: %s...", h.Role, content))
		}
		parts = append(parts, "\n## Conversation History\n"+strings.Join(lines, "\n"))
	}

	if len(memorySnippets) > 0 {
		var lines []string
		for _, m := range memorySnippets {
			lines = append(lines, "- "+m)
		}
		parts = append(parts, "\n## Relevant Context from Memory\n"+strings.Join(lines, "\n"))
	}

	return strings.Join(parts, "\n")
}

type historyLine struct {
	Role    string // "User" or "Assistant"
	Content string
}
