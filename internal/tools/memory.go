package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dexterhq/dexter/internal/memory"
)

// MemorySearchTool exposes long-term memory search to the model.
type MemorySearchTool struct {
	store *memory.Store
}

func NewMemorySearchTool(store *memory.Store) *MemorySearchTool {
	return &MemorySearchTool{store: store}
}

func (t *MemorySearchTool) Name() string { return "memory_search" }
func (t *MemorySearchTool) Description() string {
	return "Search long-term memory for relevant past facts and conversations"
}
func (t *MemorySearchTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "Keywords to search memory for",
			},
			"limit": map[string]interface{}{
				"type":        "integer",
				"description": "Maximum results to return (default 5)",
			},
		},
		"required": []string{"query"},
	}
}

func (t *MemorySearchTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	query, _ := args["query"].(string)
	if query == "" {
		return ErrorResult("query is required")
	}
	limit := 0
	if v, ok := args["limit"].(float64); ok {
		limit = int(v)
	}

	results := t.store.Search(query, limit)
	if len(results) == 0 {
		return NewResult("No matching memories found.")
	}

	type hit struct {
		ID      string   `json:"id"`
		Snippet string   `json:"snippet"`
		Tags    []string `json:"tags"`
		Score   float64  `json:"score"`
	}
	hits := make([]hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, hit{ID: r.Entry.ID, Snippet: r.Snippet, Tags: r.Entry.Tags, Score: r.Score})
	}
	data, err := json.Marshal(hits)
	if err != nil {
		return ErrorResult(fmt.Sprintf("encode results: %v", err)).WithError(err)
	}
	return NewResult(string(data))
}

// MemoryGetTool fetches a full memory entry by id.
type MemoryGetTool struct {
	store *memory.Store
}

func NewMemoryGetTool(store *memory.Store) *MemoryGetTool {
	return &MemoryGetTool{store: store}
}

func (t *MemoryGetTool) Name() string { return "memory_get" }
func (t *MemoryGetTool) Description() string {
	return "Fetch the full content of a memory entry by id"
}
func (t *MemoryGetTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"id": map[string]interface{}{
				"type":        "string",
				"description": "Memory entry id (from memory_search)",
			},
		},
		"required": []string{"id"},
	}
}

func (t *MemoryGetTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	id, _ := args["id"].(string)
	if id == "" {
		return ErrorResult("id is required")
	}
	entry := t.store.GetByID(id)
	if entry == nil {
		return ErrorResult(fmt.Sprintf("memory entry %q not found", id))
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return ErrorResult(fmt.Sprintf("encode entry: %v", err)).WithError(err)
	}
	return NewResult(string(data))
}
