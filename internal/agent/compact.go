package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dexterhq/dexter/internal/providers"
	"github.com/dexterhq/dexter/internal/scratchpad"
)

// tokenBudget caps the final-answer context.
const tokenBudget = 8000

// estimateTokens is a rough estimate at 4 characters per token.
func estimateTokens(text string) int {
	return len(text) / 4
}

// buildFullContext assembles the final-answer context from the gathered
// tool results. Failed results are discarded; when the remainder fits the
// token budget everything goes in full, otherwise the fast model picks
// which results deserve full data and the rest fall back to summaries.
// Any selection failure degrades to summaries-only.
func buildFullContext(ctx context.Context, fastModel providers.Model, query string, contexts []scratchpad.ToolContext) string {
	if len(contexts) == 0 {
		return "No data was gathered."
	}

	var valid []scratchpad.ToolContext
	for _, c := range contexts {
		if !strings.HasPrefix(c.Result, "Error:") {
			valid = append(valid, c)
		}
	}
	if len(valid) == 0 {
		return "No data was successfully gathered."
	}

	total := 0
	for _, c := range valid {
		total += estimateTokens(c.Result)
	}
	if total <= tokenBudget {
		return formatFullContexts(valid)
	}

	slog.Debug("context over token budget, selecting", "tokens", total, "budget", tokenBudget)
	selected, err := selectContexts(ctx, fastModel, query, valid)
	if err != nil {
		slog.Warn("context selection failed, falling back to summaries", "error", err)
		return formatSummariesOnly(valid)
	}
	return combineSelectedContexts(valid, selected)
}

// indexSelection is the structured response for context selection. An
// object envelope, not a bare array: JSON mode on strict backends only
// emits objects.
type indexSelection struct {
	Indices []int `json:"indices"`
}

// selectContexts asks the fast model which journal indices to keep in full.
func selectContexts(ctx context.Context, fastModel providers.Model, query string, contexts []scratchpad.ToolContext) (map[int]bool, error) {
	if fastModel == nil {
		return nil, fmt.Errorf("no model for context selection")
	}

	summaries := make([]contextSummary, 0, len(contexts))
	for _, c := range contexts {
		summaries = append(summaries, contextSummary{
			Index:     c.Index,
			ToolName:  c.ToolName,
			Summary:   c.LLMSummary,
			TokenCost: estimateTokens(c.Result),
		})
	}

	prompt := buildContextSelectionPrompt(query, summaries)
	var selection indexSelection
	if err := fastModel.GenerateStructured(ctx, "Return only valid JSON.", prompt, &selection); err != nil {
		return nil, err
	}

	selected := make(map[int]bool, len(selection.Indices))
	for _, i := range selection.Indices {
		selected[i] = true
	}
	return selected, nil
}

// combineSelectedContexts emits selected results in full (until the budget
// runs out) and the rest as summaries.
func combineSelectedContexts(contexts []scratchpad.ToolContext, selected map[int]bool) string {
	usedTokens := 0
	var fullResults, summaryResults []string

	for _, c := range contexts {
		tokens := estimateTokens(c.Result)
		if selected[c.Index] && usedTokens+tokens <= tokenBudget {
			fullResults = append(fullResults, formatSingleContext(c, true))
			usedTokens += tokens
		} else {
			summaryResults = append(summaryResults, formatSingleContext(c, false))
		}
	}

	var out strings.Builder
	if len(fullResults) > 0 {
		out.WriteString("## Full Data\n\n")
		out.WriteString(strings.Join(fullResults, "\n\n"))
	}
	if len(summaryResults) > 0 {
		if out.Len() > 0 {
			out.WriteString("\n\n")
		}
		out.WriteString("## Summary Data\n\n")
		out.WriteString(strings.Join(summaryResults, "\n\n"))
	}
	return out.String()
}

func formatFullContexts(contexts []scratchpad.ToolContext) string {
	parts := make([]string, 0, len(contexts))
	for _, c := range contexts {
		parts = append(parts, formatSingleContext(c, true))
	}
	return strings.Join(parts, "\n\n")
}

func formatSummariesOnly(contexts []scratchpad.ToolContext) string {
	parts := make([]string, 0, len(contexts))
	for _, c := range contexts {
		parts = append(parts, formatSingleContext(c, false))
	}
	return "## Data Summaries\n\n" + strings.Join(parts, "\n\n")
}

// formatSingleContext renders one result under a "### tool(args)" header.
// Full JSON results are pretty-printed inside a fenced block.
func formatSingleContext(c scratchpad.ToolContext, useFull bool) string {
	description := toolCallDescription(c.ToolName, c.Args)
	if !useFull {
		return fmt.Sprintf("### %s\n%s", description, c.LLMSummary)
	}

	var parsed any
	if err := json.Unmarshal([]byte(c.Result), &parsed); err == nil {
		if pretty, err := json.MarshalIndent(parsed, "", "  "); err == nil {
			return fmt.Sprintf("### %s\n```json\n%s\n```", description, pretty)
		}
	}
	return fmt.Sprintf("### %s\n%s", description, c.Result)
}
