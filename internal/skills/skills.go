// Package skills discovers markdown-defined skills.
//
// A skill is a directory containing a SKILL.md file: YAML front-matter with
// name and description, followed by the markdown instructions. Skills come
// from three locations with overriding precedence by name:
//
//	builtin  <  user (~/.dexter/skills)  <  project (./.dexter/skills)
package skills

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Source identifies where a skill definition came from.
type Source string

const (
	SourceBuiltin Source = "builtin"
	SourceUser    Source = "user"
	SourceProject Source = "project"
)

// Metadata is the lightweight discovery record for a skill.
type Metadata struct {
	Name        string
	Description string
	Path        string
	Source      Source
}

// Skill is a fully loaded skill including its instructions.
type Skill struct {
	Metadata
	Instructions string
}

type frontMatter struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// ParseSkillFile parses SKILL.md content: a leading "---" YAML front-matter
// block, then the markdown body. Name and description are required.
func ParseSkillFile(content, path string, source Source) (*Skill, error) {
	meta, body, err := splitFrontMatter(content)
	if err != nil {
		return nil, fmt.Errorf("skills: %s: %w", path, err)
	}

	var fm frontMatter
	if err := yaml.Unmarshal([]byte(meta), &fm); err != nil {
		return nil, fmt.Errorf("skills: %s: invalid front-matter: %w", path, err)
	}
	if fm.Name == "" {
		return nil, fmt.Errorf("skills: %s: missing required 'name' field", path)
	}
	if fm.Description == "" {
		return nil, fmt.Errorf("skills: %s: missing required 'description' field", path)
	}

	return &Skill{
		Metadata: Metadata{
			Name:        fm.Name,
			Description: fm.Description,
			Path:        path,
			Source:      source,
		},
		Instructions: strings.TrimSpace(body),
	}, nil
}

// splitFrontMatter separates the YAML block from the markdown body.
func splitFrontMatter(content string) (meta, body string, err error) {
	normalized := strings.ReplaceAll(content, "\r\n", "\n")
	if !strings.HasPrefix(normalized, "---\n") {
		return "", "", fmt.Errorf("missing front-matter delimiter")
	}
	rest := normalized[len("---\n"):]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return "", "", fmt.Errorf("unterminated front-matter block")
	}
	meta = rest[:end]
	body = rest[end+len("\n---"):]
	body = strings.TrimPrefix(body, "\n")
	return meta, body, nil
}

// LoadSkill reads and parses a SKILL.md file.
func LoadSkill(path string, source Source) (*Skill, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("skills: read %s: %w", path, err)
	}
	return ParseSkillFile(string(content), path, source)
}

// Registry discovers skills across the three skill directories and caches
// their metadata. Full instructions are loaded on demand.
type Registry struct {
	dirs []skillDir

	mu    sync.Mutex
	cache map[string]Metadata
}

type skillDir struct {
	path   string
	source Source
}

// NewRegistry builds a registry over the standard directories. builtinDir
// may be empty when no skills ship with the binary.
func NewRegistry(builtinDir string) *Registry {
	var dirs []skillDir
	if builtinDir != "" {
		dirs = append(dirs, skillDir{builtinDir, SourceBuiltin})
	}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, skillDir{filepath.Join(home, ".dexter", "skills"), SourceUser})
	}
	if cwd, err := os.Getwd(); err == nil {
		dirs = append(dirs, skillDir{filepath.Join(cwd, ".dexter", "skills"), SourceProject})
	}
	return &Registry{dirs: dirs}
}

// NewRegistryWithDirs builds a registry over explicit directories, in
// precedence order. Used by tests and the skills watcher.
func NewRegistryWithDirs(dirs map[Source]string) *Registry {
	var list []skillDir
	for _, source := range []Source{SourceBuiltin, SourceUser, SourceProject} {
		if path, ok := dirs[source]; ok && path != "" {
			list = append(list, skillDir{path, source})
		}
	}
	return &Registry{dirs: list}
}

// Discover returns metadata for every available skill, deduplicated by
// name with later sources winning. Results are cached until ClearCache.
func (r *Registry) Discover() []Metadata {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensureCacheLocked()

	out := make([]Metadata, 0, len(r.cache))
	for _, m := range r.cache {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Registry) ensureCacheLocked() {
	if r.cache != nil {
		return
	}
	r.cache = map[string]Metadata{}
	for _, dir := range r.dirs {
		for _, m := range scanDir(dir.path, dir.source) {
			r.cache[m.Name] = m
		}
	}
}

// scanDir looks for <dir>/<skill>/SKILL.md files. Unreadable or invalid
// files are skipped silently.
func scanDir(dir string, source Source) []Metadata {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var found []Metadata
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name(), "SKILL.md")
		skill, err := LoadSkill(path, source)
		if err != nil {
			continue
		}
		found = append(found, skill.Metadata)
	}
	return found
}

// Get loads the full skill by name, or nil when unknown.
func (r *Registry) Get(name string) (*Skill, error) {
	r.mu.Lock()
	r.ensureCacheLocked()
	meta, ok := r.cache[name]
	r.mu.Unlock()

	if !ok {
		return nil, nil
	}
	return LoadSkill(meta.Path, meta.Source)
}

// MetadataSection renders the skill list for the system prompt.
func (r *Registry) MetadataSection() string {
	skills := r.Discover()
	if len(skills) == 0 {
		return "No skills available."
	}
	var lines []string
	for _, s := range skills {
		lines = append(lines, fmt.Sprintf("- **%s**: %s", s.Name, s.Description))
	}
	return strings.Join(lines, "\n")
}

// ClearCache forces a rescan on the next Discover or Get.
func (r *Registry) ClearCache() {
	r.mu.Lock()
	r.cache = nil
	r.mu.Unlock()
}
