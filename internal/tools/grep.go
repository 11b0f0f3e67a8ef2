package tools

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	grepMaxMatches  = 100
	grepMaxFileSize = 10 * 1024 * 1024
)

// GrepTool searches file contents with a regular expression.
type GrepTool struct {
	workspace string
	restrict  bool
}

func NewGrepTool(workspace string, restrict bool) *GrepTool {
	return &GrepTool{workspace: workspace, restrict: restrict}
}

func (t *GrepTool) Name() string { return "grep" }
func (t *GrepTool) Description() string {
	return "Search files for a regular expression pattern"
}
func (t *GrepTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"pattern": map[string]interface{}{
				"type":        "string",
				"description": "Regular expression to search for",
			},
			"path": map[string]interface{}{
				"type":        "string",
				"description": "File or directory to search (defaults to the workspace root)",
			},
		},
		"required": []string{"pattern"},
	}
}

func (t *GrepTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	pattern, _ := args["pattern"].(string)
	if pattern == "" {
		return ErrorResult("pattern is required")
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return ErrorResult(fmt.Sprintf("invalid pattern: %v", err))
	}

	path, _ := args["path"].(string)
	if path == "" {
		path = "."
	}
	resolved, err := resolvePath(t.workspace, path, t.restrict)
	if err != nil {
		return ErrorResult(err.Error())
	}

	var matches []string
	walkErr := filepath.WalkDir(resolved, func(p string, d os.DirEntry, err error) error {
		if err != nil || len(matches) >= grepMaxMatches {
			return filepath.SkipAll
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			name := d.Name()
			if p != resolved && (strings.HasPrefix(name, ".") || name == "node_modules") {
				return filepath.SkipDir
			}
			return nil
		}
		info, err := d.Info()
		if err != nil || info.Size() > grepMaxFileSize {
			return nil
		}
		matches = append(matches, grepFile(p, re, grepMaxMatches-len(matches))...)
		return nil
	})
	if walkErr != nil && ctx.Err() != nil {
		return ErrorResult(fmt.Sprintf("search cancelled: %v", ctx.Err()))
	}

	if len(matches) == 0 {
		return NewResult("No matches found.")
	}
	out := strings.Join(matches, "\n")
	if len(matches) >= grepMaxMatches {
		out += fmt.Sprintf("\n... (stopped at %d matches)", grepMaxMatches)
	}
	return NewResult(out)
}

func grepFile(path string, re *regexp.Regexp, budget int) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var matches []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() && len(matches) < budget {
		lineNo++
		line := scanner.Text()
		if strings.ContainsRune(line, '\x00') {
			return matches // binary file
		}
		if re.MatchString(line) {
			if len(line) > 300 {
				line = line[:300] + "..."
			}
			matches = append(matches, fmt.Sprintf("%s:%d: %s", path, lineNo, line))
		}
	}
	return matches
}
