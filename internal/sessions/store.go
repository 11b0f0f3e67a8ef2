package sessions

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

var legacyCharsRe = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// Store persists conversation history as one JSONL file per session key,
// with a write-through memory cache. Appends are O(1): one JSON line per
// message, no rewrite of the existing file.
type Store struct {
	baseDir string
	mu      sync.RWMutex
	cache   map[string][]Message
}

func NewStore(baseDir string) *Store {
	return &Store{
		baseDir: baseDir,
		cache:   make(map[string][]Message),
	}
}

// path url-encodes the session key so hostile keys ("../../etc/passwd")
// cannot escape the base directory.
func (s *Store) path(key string) string {
	return filepath.Join(s.baseDir, url.QueryEscape(key)+".jsonl")
}

// legacyPath is the pre-url-encoding filename scheme, kept for migration.
func (s *Store) legacyPath(key string) string {
	return filepath.Join(s.baseDir, legacyCharsRe.ReplaceAllString(key, "_")+".jsonl")
}

// Load returns the history for a key, reading from the cache first and
// falling back to disk. A missing file yields an empty history; the legacy
// filename scheme is tried before giving up.
func (s *Store) Load(key string) ([]Message, error) {
	s.mu.RLock()
	if msgs, ok := s.cache[key]; ok {
		s.mu.RUnlock()
		return msgs, nil
	}
	s.mu.RUnlock()

	msgs, err := s.readFile(s.path(key))
	if os.IsNotExist(err) {
		msgs, err = s.readFile(s.legacyPath(key))
		if os.IsNotExist(err) {
			msgs, err = []Message{}, nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("sessions: load %s: %w", key, err)
	}

	s.mu.Lock()
	s.cache[key] = msgs
	s.mu.Unlock()
	return msgs, nil
}

func (s *Store) readFile(path string) ([]Message, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	msgs := []Message{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var msg Message
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			return nil, fmt.Errorf("decode line: %w", err)
		}
		msgs = append(msgs, msg)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return msgs, nil
}

// Append writes one message: cache first so Get observes it immediately,
// then one JSON line appended to disk. The base directory is created
// lazily. Disk failures are returned to the caller; the session file is
// the durable record and a failed append fails the run.
func (s *Store) Append(key string, msg Message) error {
	s.mu.Lock()
	s.cache[key] = append(s.cache[key], msg)
	s.mu.Unlock()

	if err := os.MkdirAll(s.baseDir, 0o755); err != nil {
		return fmt.Errorf("sessions: create base dir: %w", err)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("sessions: encode message: %w", err)
	}

	f, err := os.OpenFile(s.path(key), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("sessions: open %s: %w", key, err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("sessions: append %s: %w", key, err)
	}
	return nil
}

// Get returns the cached messages for a key without touching disk.
func (s *Store) Get(key string) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cache[key]
}

// Clear drops the cache entry and deletes both the current and legacy
// files if present.
func (s *Store) Clear(key string) error {
	s.mu.Lock()
	delete(s.cache, key)
	s.mu.Unlock()

	current := s.path(key)
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("sessions: clear %s: %w", key, err)
	}
	if legacy := s.legacyPath(key); legacy != current {
		if err := os.Remove(legacy); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("sessions: clear legacy %s: %w", key, err)
		}
	}
	slog.Debug("session cleared", "key", key)
	return nil
}

// ListSessions returns the url-decoded stems of all .jsonl files in the
// base directory.
func (s *Store) ListSessions() ([]string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sessions: list: %w", err)
	}

	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		stem := strings.TrimSuffix(name, ".jsonl")
		if decoded, err := url.QueryUnescape(stem); err == nil {
			stem = decoded
		}
		keys = append(keys, stem)
	}
	return keys, nil
}
