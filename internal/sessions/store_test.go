package sessions

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestAppendLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	key := "agent:main:main"

	if err := store.Append(key, NewMessage("user", "hello")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := store.Append(key, NewMessage("assistant", "hi there")); err != nil {
		t.Fatalf("Append: %v", err)
	}

	// Fresh store forces a disk read.
	fresh := NewStore(dir)
	msgs, err := fresh.Load(key)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Role != "user" || msgs[0].Content.String() != "hello" {
		t.Errorf("msgs[0] = %+v", msgs[0])
	}
	if msgs[1].Role != "assistant" || msgs[1].Content.String() != "hi there" {
		t.Errorf("msgs[1] = %+v", msgs[1])
	}
}

func TestLoadMissingReturnsEmpty(t *testing.T) {
	store := NewStore(t.TempDir())
	msgs, err := store.Load("agent:main:nothing")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("got %d messages, want 0", len(msgs))
	}
}

func TestGetIsCacheOnly(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	key := "agent:main:chat"

	if err := store.Append(key, NewMessage("user", "hi")); err != nil {
		t.Fatal(err)
	}
	if got := store.Get(key); len(got) != 1 {
		t.Errorf("Get after Append = %d messages, want 1", len(got))
	}

	// A fresh store has an empty cache; Get must not hit disk.
	if got := NewStore(dir).Get(key); got != nil {
		t.Errorf("Get on cold cache = %v, want nil", got)
	}
}

func TestLegacyPathMigration(t *testing.T) {
	dir := t.TempDir()
	key := "agent:main:chat"

	// Seed a file under the old naming scheme (non-word chars -> "_").
	legacy := filepath.Join(dir, "agent_main_chat.jsonl")
	line, _ := json.Marshal(NewMessage("user", "old message"))
	if err := os.WriteFile(legacy, append(line, '\n'), 0o644); err != nil {
		t.Fatal(err)
	}

	msgs, err := NewStore(dir).Load(key)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content.String() != "old message" {
		t.Errorf("legacy load = %+v", msgs)
	}
}

func TestClearRemovesCacheAndFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	key := "agent:main:chat"

	if err := store.Append(key, NewMessage("user", "hi")); err != nil {
		t.Fatal(err)
	}
	if err := store.Clear(key); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if got := store.Get(key); got != nil {
		t.Errorf("cache not cleared: %v", got)
	}
	msgs, err := store.Load(key)
	if err != nil {
		t.Fatalf("Load after Clear: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("file not cleared: %v", msgs)
	}
}

func TestListSessions(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	keys, err := store.ListSessions()
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if keys != nil {
		t.Errorf("empty dir listed %v", keys)
	}

	for _, key := range []string{"agent:main:main", "agent:research:chat-42"} {
		if err := store.Append(key, NewMessage("user", "x")); err != nil {
			t.Fatal(err)
		}
	}
	keys, err = store.ListSessions()
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("got %d sessions, want 2", len(keys))
	}
	found := map[string]bool{}
	for _, k := range keys {
		found[k] = true
	}
	if !found["agent:main:main"] || !found["agent:research:chat-42"] {
		t.Errorf("keys = %v", keys)
	}
}

func TestHostileKeyStaysInBaseDir(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	key := "../../etc/passwd"

	if err := store.Append(key, NewMessage("user", "x")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries in base dir, want 1", len(entries))
	}
	if entries[0].IsDir() {
		t.Error("hostile key created a directory")
	}
}

func TestContentBlocksRoundTrip(t *testing.T) {
	msg := Message{
		Role: "assistant",
		Content: Content{Blocks: []ContentBlock{
			{Type: "text", Text: "Let me check."},
			{Type: "tool_use", ID: "tc1", Name: "search", Input: map[string]any{"query": "x"}},
		}},
		Timestamp: 1700000000000,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Message
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(back.Content.Blocks) != 2 {
		t.Fatalf("got %d blocks, want 2", len(back.Content.Blocks))
	}
	if back.Content.Blocks[1].Name != "search" {
		t.Errorf("block[1] = %+v", back.Content.Blocks[1])
	}
	if back.Content.String() != "Let me check." {
		t.Errorf("flattened = %q", back.Content.String())
	}
}
