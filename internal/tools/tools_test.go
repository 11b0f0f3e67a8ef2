package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dexterhq/dexter/internal/skills"
)

func TestRegistryOrderAndDefs(t *testing.T) {
	ws := t.TempDir()
	r := NewRegistry()
	r.Register(NewReadFileTool(ws, true))
	r.Register(NewWriteFileTool(ws, true))
	r.Register(NewExecTool(ws))

	list := r.List()
	if len(list) != 3 {
		t.Fatalf("got %d tools, want 3", len(list))
	}
	wantOrder := []string{"read_file", "write_file", "exec"}
	for i, tool := range list {
		if tool.Name() != wantOrder[i] {
			t.Errorf("tool[%d] = %q, want %q", i, tool.Name(), wantOrder[i])
		}
	}

	defs := r.ProviderDefs()
	if len(defs) != 3 {
		t.Fatalf("got %d defs, want 3", len(defs))
	}
	if defs[0].Type != "function" || defs[0].Function.Name != "read_file" {
		t.Errorf("defs[0] = %+v", defs[0])
	}
	if defs[0].Function.Parameters["type"] != "object" {
		t.Errorf("parameters = %+v", defs[0].Function.Parameters)
	}

	if r.Get("exec") == nil {
		t.Error("Get(exec) = nil")
	}
	if r.Get("missing") != nil {
		t.Error("Get(missing) should be nil")
	}
}

func TestReadWriteEditTools(t *testing.T) {
	ws := t.TempDir()
	ctx := context.Background()

	write := NewWriteFileTool(ws, true)
	res := write.Execute(ctx, map[string]interface{}{"path": "notes/a.txt", "content": "hello world"})
	if res.IsError {
		t.Fatalf("write: %s", res.ForLLM)
	}

	read := NewReadFileTool(ws, true)
	res = read.Execute(ctx, map[string]interface{}{"path": "notes/a.txt"})
	if res.IsError || res.ForLLM != "hello world" {
		t.Fatalf("read: %+v", res)
	}

	edit := NewEditFileTool(ws, true)
	res = edit.Execute(ctx, map[string]interface{}{
		"path": "notes/a.txt", "old_text": "world", "new_text": "there",
	})
	if res.IsError {
		t.Fatalf("edit: %s", res.ForLLM)
	}
	data, _ := os.ReadFile(filepath.Join(ws, "notes/a.txt"))
	if string(data) != "hello there" {
		t.Errorf("file = %q", data)
	}

	// Ambiguous old_text is rejected.
	os.WriteFile(filepath.Join(ws, "dup.txt"), []byte("aa aa"), 0o644)
	res = edit.Execute(ctx, map[string]interface{}{
		"path": "dup.txt", "old_text": "aa", "new_text": "bb",
	})
	if !res.IsError || !strings.Contains(res.ForLLM, "must be unique") {
		t.Errorf("ambiguous edit = %+v", res)
	}
}

func TestWorkspaceRestriction(t *testing.T) {
	ws := t.TempDir()
	ctx := context.Background()

	read := NewReadFileTool(ws, true)
	res := read.Execute(ctx, map[string]interface{}{"path": "../../../etc/passwd"})
	if !res.IsError || !strings.Contains(res.ForLLM, "escapes workspace") {
		t.Errorf("escape attempt = %+v", res)
	}

	// Unrestricted tools may leave the workspace.
	outside := filepath.Join(t.TempDir(), "out.txt")
	os.WriteFile(outside, []byte("outside"), 0o644)
	free := NewReadFileTool(ws, false)
	if res := free.Execute(ctx, map[string]interface{}{"path": outside}); res.IsError {
		t.Errorf("unrestricted read failed: %s", res.ForLLM)
	}
}

func TestListDirTool(t *testing.T) {
	ws := t.TempDir()
	os.MkdirAll(filepath.Join(ws, "sub"), 0o755)
	os.WriteFile(filepath.Join(ws, "a.txt"), []byte("x"), 0o644)

	res := NewListDirTool(ws, true).Execute(context.Background(), map[string]interface{}{})
	if res.IsError {
		t.Fatalf("list: %s", res.ForLLM)
	}
	if !strings.Contains(res.ForLLM, "a.txt") || !strings.Contains(res.ForLLM, "sub/") {
		t.Errorf("listing = %q", res.ForLLM)
	}
}

func TestGrepTool(t *testing.T) {
	ws := t.TempDir()
	os.WriteFile(filepath.Join(ws, "code.go"), []byte("package main\nfunc main() {}\n"), 0o644)

	grep := NewGrepTool(ws, true)
	res := grep.Execute(context.Background(), map[string]interface{}{"pattern": `func \w+`})
	if res.IsError {
		t.Fatalf("grep: %s", res.ForLLM)
	}
	if !strings.Contains(res.ForLLM, "code.go:2") {
		t.Errorf("matches = %q", res.ForLLM)
	}

	res = grep.Execute(context.Background(), map[string]interface{}{"pattern": "nomatchanywhere"})
	if res.ForLLM != "No matches found." {
		t.Errorf("no-match output = %q", res.ForLLM)
	}

	res = grep.Execute(context.Background(), map[string]interface{}{"pattern": "(["})
	if !res.IsError {
		t.Error("invalid pattern accepted")
	}
}

func TestExecTool(t *testing.T) {
	ws := t.TempDir()
	exec := NewExecTool(ws)
	ctx := context.Background()

	res := exec.Execute(ctx, map[string]interface{}{"command": "echo hi"})
	if res.IsError || strings.TrimSpace(res.ForLLM) != "hi" {
		t.Errorf("echo = %+v", res)
	}

	res = exec.Execute(ctx, map[string]interface{}{"command": "sudo whoami"})
	if !res.IsError || !strings.Contains(res.ForLLM, "safety policy") {
		t.Errorf("deny list missed sudo: %+v", res)
	}

	res = exec.Execute(ctx, map[string]interface{}{"command": "rm -rf /tmp/x"})
	if !res.IsError {
		t.Error("deny list missed rm -rf")
	}

	res = exec.Execute(ctx, map[string]interface{}{"command": "exit 3"})
	if !res.IsError {
		t.Error("non-zero exit should be an error result")
	}
}

func TestWebSearchResultEnvelope(t *testing.T) {
	out := formatToolResult(map[string]any{"answer": "42"}, []string{"https://x.example"})
	var envelope map[string]any
	if err := json.Unmarshal([]byte(out), &envelope); err != nil {
		t.Fatalf("envelope not JSON: %v", err)
	}
	if _, ok := envelope["data"]; !ok {
		t.Error("missing data field")
	}
	urls, ok := envelope["source_urls"].([]any)
	if !ok || len(urls) != 1 {
		t.Errorf("source_urls = %v", envelope["source_urls"])
	}
}

func skillRegistry(t *testing.T, skillsByName map[string]string) *skills.Registry {
	t.Helper()
	dir := t.TempDir()
	for name, instructions := range skillsByName {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(path, 0o755); err != nil {
			t.Fatal(err)
		}
		content := "---\nname: " + name + "\ndescription: test skill " + name + "\n---\n" + instructions + "\n"
		if err := os.WriteFile(filepath.Join(path, "SKILL.md"), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return skills.NewRegistryWithDirs(map[skills.Source]string{skills.SourceBuiltin: dir})
}

func TestSkillTool(t *testing.T) {
	registry := skillRegistry(t, map[string]string{"dcf": "Step 1: gather cash flows."})
	tool := NewSkillTool(registry)
	ctx := context.Background()

	res := tool.Execute(ctx, map[string]interface{}{"skill": "dcf", "args": "ticker=AAPL"})
	if res.IsError {
		t.Fatalf("skill: %s", res.ForLLM)
	}
	if !strings.HasPrefix(res.ForLLM, "## Skill: dcf") {
		t.Errorf("output = %q", res.ForLLM)
	}
	if !strings.Contains(res.ForLLM, "**Arguments provided:** ticker=AAPL") {
		t.Errorf("args missing in %q", res.ForLLM)
	}
	if !strings.Contains(res.ForLLM, "Step 1: gather cash flows.") {
		t.Errorf("instructions missing in %q", res.ForLLM)
	}

	res = tool.Execute(ctx, map[string]interface{}{"skill": "nope"})
	if !res.IsError || !strings.Contains(res.ForLLM, "Available skills: dcf") {
		t.Errorf("unknown skill = %+v", res)
	}
}

func TestBuiltinRegistryOptionalTools(t *testing.T) {
	ws := t.TempDir()

	bare := NewBuiltinRegistry(BuiltinOptions{Workspace: ws})
	if bare.Get("web_search") != nil {
		t.Error("web_search registered without an API key")
	}
	if bare.Get("skill") != nil {
		t.Error("skill tool registered without skills")
	}
	if bare.Get("read_file") == nil || bare.Get("exec") == nil {
		t.Error("core tools missing")
	}

	full := NewBuiltinRegistry(BuiltinOptions{
		Workspace:    ws,
		TavilyAPIKey: "key",
		Skills:       skillRegistry(t, map[string]string{"dcf": "steps"}),
	})
	if full.Get("web_search") == nil {
		t.Error("web_search missing with API key set")
	}
	if full.Get("skill") == nil {
		t.Error("skill tool missing with skills available")
	}
}
