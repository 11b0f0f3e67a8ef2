package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// resolvePath anchors relative paths at the workspace and, when restrict
// is set, rejects anything that escapes it.
func resolvePath(workspace, path string, restrict bool) (string, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(workspace, path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if restrict {
		wsAbs, err := filepath.Abs(workspace)
		if err != nil {
			return "", err
		}
		rel, err := filepath.Rel(wsAbs, abs)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return "", fmt.Errorf("path escapes workspace: %s", path)
		}
	}
	return abs, nil
}

// ReadFileTool reads file contents.
type ReadFileTool struct {
	workspace string
	restrict  bool
}

func NewReadFileTool(workspace string, restrict bool) *ReadFileTool {
	return &ReadFileTool{workspace: workspace, restrict: restrict}
}

func (t *ReadFileTool) Name() string        { return "read_file" }
func (t *ReadFileTool) Description() string { return "Read the contents of a file" }
func (t *ReadFileTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Path to the file to read",
			},
		},
		"required": []string{"path"},
	}
}

func (t *ReadFileTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	path, _ := args["path"].(string)
	if path == "" {
		return ErrorResult("path is required")
	}
	resolved, err := resolvePath(t.workspace, path, t.restrict)
	if err != nil {
		return ErrorResult(err.Error())
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return ErrorResult(fmt.Sprintf("failed to read file: %v", err)).WithError(err)
	}
	return NewResult(string(data))
}

// WriteFileTool writes content to a file, creating parent directories.
type WriteFileTool struct {
	workspace string
	restrict  bool
}

func NewWriteFileTool(workspace string, restrict bool) *WriteFileTool {
	return &WriteFileTool{workspace: workspace, restrict: restrict}
}

func (t *WriteFileTool) Name() string        { return "write_file" }
func (t *WriteFileTool) Description() string { return "Write content to a file (overwrites existing)" }
func (t *WriteFileTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Path to the file to write",
			},
			"content": map[string]interface{}{
				"type":        "string",
				"description": "Content to write",
			},
		},
		"required": []string{"path", "content"},
	}
}

func (t *WriteFileTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	path, _ := args["path"].(string)
	content, _ := args["content"].(string)
	if path == "" {
		return ErrorResult("path is required")
	}
	resolved, err := resolvePath(t.workspace, path, t.restrict)
	if err != nil {
		return ErrorResult(err.Error())
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return ErrorResult(fmt.Sprintf("failed to create directory: %v", err)).WithError(err)
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return ErrorResult(fmt.Sprintf("failed to write file: %v", err)).WithError(err)
	}
	return NewResult(fmt.Sprintf("Wrote %d bytes to %s", len(content), path))
}

// EditFileTool replaces an exact string occurrence in a file.
type EditFileTool struct {
	workspace string
	restrict  bool
}

func NewEditFileTool(workspace string, restrict bool) *EditFileTool {
	return &EditFileTool{workspace: workspace, restrict: restrict}
}

func (t *EditFileTool) Name() string { return "edit_file" }
func (t *EditFileTool) Description() string {
	return "Replace an exact text occurrence in a file"
}
func (t *EditFileTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Path to the file to edit",
			},
			"old_text": map[string]interface{}{
				"type":        "string",
				"description": "Exact text to replace",
			},
			"new_text": map[string]interface{}{
				"type":        "string",
				"description": "Replacement text",
			},
		},
		"required": []string{"path", "old_text", "new_text"},
	}
}

func (t *EditFileTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	path, _ := args["path"].(string)
	oldText, _ := args["old_text"].(string)
	newText, _ := args["new_text"].(string)
	if path == "" || oldText == "" {
		return ErrorResult("path and old_text are required")
	}
	resolved, err := resolvePath(t.workspace, path, t.restrict)
	if err != nil {
		return ErrorResult(err.Error())
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return ErrorResult(fmt.Sprintf("failed to read file: %v", err)).WithError(err)
	}
	content := string(data)
	count := strings.Count(content, oldText)
	if count == 0 {
		return ErrorResult("old_text not found in file")
	}
	if count > 1 {
		return ErrorResult(fmt.Sprintf("old_text matches %d times, must be unique", count))
	}
	updated := strings.Replace(content, oldText, newText, 1)
	if err := os.WriteFile(resolved, []byte(updated), 0o644); err != nil {
		return ErrorResult(fmt.Sprintf("failed to write file: %v", err)).WithError(err)
	}
	return NewResult(fmt.Sprintf("Edited %s", path))
}

// ListDirTool lists directory entries.
type ListDirTool struct {
	workspace string
	restrict  bool
}

func NewListDirTool(workspace string, restrict bool) *ListDirTool {
	return &ListDirTool{workspace: workspace, restrict: restrict}
}

func (t *ListDirTool) Name() string        { return "list_dir" }
func (t *ListDirTool) Description() string { return "List the contents of a directory" }
func (t *ListDirTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Directory to list (defaults to the workspace root)",
			},
		},
	}
}

func (t *ListDirTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	path, _ := args["path"].(string)
	if path == "" {
		path = "."
	}
	resolved, err := resolvePath(t.workspace, path, t.restrict)
	if err != nil {
		return ErrorResult(err.Error())
	}
	entries, err := os.ReadDir(resolved)
	if err != nil {
		return ErrorResult(fmt.Sprintf("failed to list directory: %v", err)).WithError(err)
	}
	if len(entries) == 0 {
		return NewResult("(empty directory)")
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return NewResult(strings.Join(names, "\n"))
}
