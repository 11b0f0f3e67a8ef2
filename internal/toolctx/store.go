// Package toolctx is a content-addressed on-disk cache of tool invocations.
//
// Each (tool, args) pair maps to one JSON file named
// <tool>_<md5(canonical args)[0:12]>.json; a run-scoped pointer list keeps
// lightweight references for later relevance selection.
package toolctx

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dexterhq/dexter/internal/providers"
)

// Pointer is the in-memory reference to a persisted tool context file.
type Pointer struct {
	Filepath        string         `json:"filepath"`
	Filename        string         `json:"filename"`
	ToolName        string         `json:"tool_name"`
	ToolDescription string         `json:"tool_description"`
	Args            map[string]any `json:"args,omitempty"`
	TaskID          *int           `json:"task_id,omitempty"`
	QueryID         string         `json:"query_id,omitempty"`
	SourceURLs      []string       `json:"source_urls,omitempty"`
}

// ContextData is the full on-disk record of one tool invocation.
type ContextData struct {
	ToolName        string         `json:"tool_name"`
	ToolDescription string         `json:"tool_description"`
	Args            map[string]any `json:"args"`
	Timestamp       string         `json:"timestamp"`
	TaskID          *int           `json:"task_id,omitempty"`
	QueryID         string         `json:"query_id,omitempty"`
	SourceURLs      []string       `json:"source_urls,omitempty"`
	Result          any            `json:"result"`
}

// Store persists tool invocation contexts and tracks pointers to them.
type Store struct {
	dir      string
	model    providers.Model // used for relevance selection; may be nil
	mu       sync.Mutex
	pointers []Pointer
}

func NewStore(dir string, model providers.Model) *Store {
	return &Store{dir: dir, model: model}
}

// hashArgs derives the 12-char content address from the canonical
// (sorted-keys, compact) JSON encoding of the arguments.
func hashArgs(args map[string]any) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		kj, _ := json.Marshal(k)
		vj, _ := json.Marshal(args[k])
		b.Write(kj)
		b.WriteByte(':')
		b.Write(vj)
	}
	b.WriteByte('}')

	sum := md5.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])[:12]
}

// HashQuery returns the 12-char digest of a query string, used as the
// per-run cache partition id.
func HashQuery(query string) string {
	sum := md5.Sum([]byte(query))
	return hex.EncodeToString(sum[:])[:12]
}

// Filename derives the content-addressed filename for a tool invocation.
func Filename(toolName string, args map[string]any) string {
	return fmt.Sprintf("%s_%s.json", toolName, hashArgs(args))
}

// ToolDescription formats a human-readable label for a tool invocation:
// the query first if present, a date range if both bounds exist, and the
// remaining args as [k=v, ...].
func ToolDescription(toolName string, args map[string]any) string {
	var parts []string
	used := map[string]bool{}

	if q, ok := args["query"].(string); ok && q != "" {
		parts = append(parts, q)
		used["query"] = true
	}
	start, hasStart := args["start_date"]
	end, hasEnd := args["end_date"]
	if hasStart && hasEnd {
		parts = append(parts, fmt.Sprintf("from %v to %v", start, end))
		used["start_date"] = true
		used["end_date"] = true
	}

	keys := make([]string, 0, len(args))
	for k := range args {
		if !used[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if len(keys) > 0 {
		var kvs []string
		for _, k := range keys {
			kvs = append(kvs, fmt.Sprintf("%s=%v", k, args[k]))
		}
		parts = append(parts, "["+strings.Join(kvs, ", ")+"]")
	}
	return strings.Join(parts, " ")
}

// Save writes the context record for one tool invocation and appends a
// pointer. A repeated (tool, args) pair replaces the file atomically.
// When result is a JSON object containing a source_urls array, the URLs
// are lifted out and the record's result becomes the object's data field.
func (s *Store) Save(toolName string, args map[string]any, result string, queryID string) (string, error) {
	filename := Filename(toolName, args)
	path := filepath.Join(s.dir, filename)

	var sourceURLs []string
	var actualResult any = result
	var parsed map[string]any
	if err := json.Unmarshal([]byte(result), &parsed); err == nil {
		if raw, ok := parsed["source_urls"].([]any); ok {
			for _, u := range raw {
				if str, ok := u.(string); ok {
					sourceURLs = append(sourceURLs, str)
				}
			}
			if data, ok := parsed["data"]; ok {
				actualResult = data
			}
		}
	}

	record := ContextData{
		ToolName:        toolName,
		ToolDescription: ToolDescription(toolName, args),
		Args:            args,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
		QueryID:         queryID,
		SourceURLs:      sourceURLs,
		Result:          actualResult,
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("toolctx: create dir: %w", err)
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return "", fmt.Errorf("toolctx: encode: %w", err)
	}

	// Atomic replace: temp file then rename.
	tmp, err := os.CreateTemp(s.dir, "ctx-*.tmp")
	if err != nil {
		return "", fmt.Errorf("toolctx: temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("toolctx: write: %w", err)
	}
	tmp.Close()
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("toolctx: rename: %w", err)
	}

	s.mu.Lock()
	s.pointers = append(s.pointers, Pointer{
		Filepath:        path,
		Filename:        filename,
		ToolName:        toolName,
		ToolDescription: record.ToolDescription,
		Args:            args,
		QueryID:         queryID,
		SourceURLs:      sourceURLs,
	})
	s.mu.Unlock()

	return path, nil
}

// Pointers returns a snapshot of all pointers recorded so far.
func (s *Store) Pointers() []Pointer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Pointer, len(s.pointers))
	copy(out, s.pointers)
	return out
}

const selectionSystemPrompt = `You are a context selection assistant.
Your job is to identify which tool outputs are relevant for answering a user's query.

Return a JSON object with a "context_ids" field containing a list of IDs (0-indexed) of relevant outputs.

Return format:
{"context_ids": [0, 2, 5]}`

// SelectRelevantContexts asks the model which recorded contexts matter for
// a query and returns their file paths. Any model or decode failure falls
// back to returning every path.
func (s *Store) SelectRelevantContexts(ctx context.Context, query string) []string {
	pointers := s.Pointers()
	if len(pointers) == 0 {
		return nil
	}

	allPaths := make([]string, len(pointers))
	for i, p := range pointers {
		allPaths[i] = p.Filepath
	}
	if s.model == nil {
		return allPaths
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Query: %s\n\nTool outputs:\n", query)
	for i, p := range pointers {
		fmt.Fprintf(&b, "[%d] %s: %s\n", i, p.ToolName, p.ToolDescription)
	}

	var selection struct {
		ContextIDs []int `json:"context_ids"`
	}
	if err := s.model.GenerateStructured(ctx, selectionSystemPrompt, b.String(), &selection); err != nil {
		slog.Warn("context selection failed, keeping all contexts", "error", err)
		return allPaths
	}

	var paths []string
	for _, id := range selection.ContextIDs {
		if id >= 0 && id < len(pointers) {
			paths = append(paths, pointers[id].Filepath)
		}
	}
	if len(paths) == 0 {
		return allPaths
	}
	return paths
}
