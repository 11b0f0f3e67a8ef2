// Package memory is long-term memory with keyword search and recency decay.
//
// Entries live in a single index.json; markdown sidecars under files/ can
// be synced into the index, one entry per file tagged file:<basename>.
package memory

import (
	"crypto/rand"
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

// Source identifies who created a memory entry.
type Source string

const (
	SourceUser   Source = "user"
	SourceAgent  Source = "agent"
	SourceSystem Source = "system"
)

// Entry is one long-term memory record.
type Entry struct {
	ID        string   `json:"id"`
	Content   string   `json:"content"`
	Source    Source   `json:"source"`
	Tags      []string `json:"tags"`
	CreatedAt int64    `json:"created_at"` // unix ms
}

// SearchResult pairs an entry with its relevance score and a short snippet.
type SearchResult struct {
	Entry   Entry   `json:"entry"`
	Score   float64 `json:"score"`
	Snippet string  `json:"snippet"`
}

// Store is a lazily-loaded, file-backed memory index.
type Store struct {
	baseDir string
	mu      sync.Mutex
	entries []Entry
	loaded  bool
}

func NewStore(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) indexPath() string { return filepath.Join(s.baseDir, "index.json") }
func (s *Store) filesDir() string  { return filepath.Join(s.baseDir, "files") }

// load reads index.json once; a missing or corrupt index starts empty.
func (s *Store) load() {
	if s.loaded {
		return
	}
	s.loaded = true
	data, err := os.ReadFile(s.indexPath())
	if err != nil {
		s.entries = nil
		return
	}
	if err := json.Unmarshal(data, &s.entries); err != nil {
		s.entries = nil
	}
}

func (s *Store) save() error {
	if err := os.MkdirAll(s.baseDir, 0o755); err != nil {
		return fmt.Errorf("memory: create base dir: %w", err)
	}
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("memory: encode index: %w", err)
	}
	if err := os.WriteFile(s.indexPath(), data, 0o644); err != nil {
		return fmt.Errorf("memory: write index: %w", err)
	}
	return nil
}

func newEntryID(now time.Time) string {
	buf := make([]byte, 3)
	rand.Read(buf)
	return fmt.Sprintf("mem_%d_%s", now.UnixMilli(), hex.EncodeToString(buf))
}

// Add persists a new entry and returns its id.
func (s *Store) Add(content string, source Source, tags []string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load()

	now := time.Now()
	entry := Entry{
		ID:        newEntryID(now),
		Content:   content,
		Source:    source,
		Tags:      append([]string{}, tags...),
		CreatedAt: now.UnixMilli(),
	}
	s.entries = append(s.entries, entry)
	if err := s.save(); err != nil {
		return "", err
	}
	return entry.ID, nil
}

// Search scores entries by keyword overlap with the query. Each query term
// found in the content scores 1.0, plus 0.5 when any tag contains the term.
// Matching entries get a recency boost that decays linearly over 30 days.
func (s *Store) Search(query string, limit int) []SearchResult {
	if limit <= 0 {
		limit = 5
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.load()

	terms := strings.Fields(strings.ToLower(query))
	nowMS := float64(time.Now().UnixMilli())

	var scored []SearchResult
	for _, entry := range s.entries {
		text := strings.ToLower(entry.Content)
		score := 0.0
		for _, term := range terms {
			if strings.Contains(text, term) {
				score += 1.0
				for _, tag := range entry.Tags {
					if strings.Contains(strings.ToLower(tag), term) {
						score += 0.5
						break
					}
				}
			}
		}
		if score <= 0 {
			continue
		}

		ageHours := (nowMS - float64(entry.CreatedAt)) / (1000 * 60 * 60)
		recency := 1 - ageHours/(24*30)
		if recency < 0 {
			recency = 0
		}
		score += recency * 0.3

		snippet := entry.Content
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		scored = append(scored, SearchResult{Entry: entry, Score: score, Snippet: snippet})
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}

// GetByID returns the entry with the given id, or nil.
func (s *Store) GetByID(id string) *Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load()
	for i := range s.entries {
		if s.entries[i].ID == id {
			entry := s.entries[i]
			return &entry
		}
	}
	return nil
}

// GetAll returns a copy of every entry.
func (s *Store) GetAll() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// SyncFromFiles scans files/*.md and upserts one entry per file, tagged
// file:<basename>. Existing entries are updated in place. Returns the
// number of files synced.
func (s *Store) SyncFromFiles() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load()

	files, err := os.ReadDir(s.filesDir())
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("memory: scan files: %w", err)
	}

	now := time.Now()
	synced := 0
	for _, f := range files {
		if f.IsDir() || filepath.Ext(f.Name()) != ".md" {
			continue
		}
		content, err := os.ReadFile(filepath.Join(s.filesDir(), f.Name()))
		if err != nil {
			return synced, fmt.Errorf("memory: read %s: %w", f.Name(), err)
		}

		fileTag := "file:" + f.Name()
		existing := -1
		for i, e := range s.entries {
			for _, tag := range e.Tags {
				if tag == fileTag {
					existing = i
					break
				}
			}
			if existing >= 0 {
				break
			}
		}

		if existing >= 0 {
			s.entries[existing].Content = string(content)
		} else {
			s.entries = append(s.entries, Entry{
				ID:        newEntryID(now),
				Content:   string(content),
				Source:    SourceSystem,
				Tags:      []string{fileTag},
				CreatedAt: now.UnixMilli(),
			})
		}
		synced++
	}

	if err := s.save(); err != nil {
		return synced, err
	}
	return synced, nil
}

// Clear removes every entry.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded = true
	s.entries = nil
	return s.save()
}
