package tools

import (
	"log/slog"

	"github.com/dexterhq/dexter/internal/memory"
	"github.com/dexterhq/dexter/internal/skills"
)

// BuiltinOptions configures the default tool set.
type BuiltinOptions struct {
	Workspace           string
	RestrictToWorkspace bool
	TavilyAPIKey        string // empty disables web_search
	EnableBrowser       bool
	Memory              *memory.Store    // nil disables memory tools
	Skills              *skills.Registry // nil disables the skill tool
}

// NewBuiltinRegistry assembles the standard tool set. Optional tools are
// registered only when their prerequisites are configured.
func NewBuiltinRegistry(opts BuiltinOptions) *Registry {
	r := NewRegistry()

	r.Register(NewReadFileTool(opts.Workspace, opts.RestrictToWorkspace))
	r.Register(NewWriteFileTool(opts.Workspace, opts.RestrictToWorkspace))
	r.Register(NewEditFileTool(opts.Workspace, opts.RestrictToWorkspace))
	r.Register(NewListDirTool(opts.Workspace, opts.RestrictToWorkspace))
	r.Register(NewGrepTool(opts.Workspace, opts.RestrictToWorkspace))
	r.Register(NewExecTool(opts.Workspace))

	if opts.TavilyAPIKey != "" {
		r.Register(NewWebSearchTool(opts.TavilyAPIKey))
	} else {
		slog.Debug("web_search disabled, no API key configured")
	}

	if opts.EnableBrowser {
		session := NewBrowserSession()
		r.Register(NewBrowserNavigateTool(session))
		r.Register(NewBrowserGetContentTool(session))
		r.Register(NewBrowserSnapshotTool(session))
	}

	if opts.Memory != nil {
		r.Register(NewMemorySearchTool(opts.Memory))
		r.Register(NewMemoryGetTool(opts.Memory))
	}

	if opts.Skills != nil && len(opts.Skills.Discover()) > 0 {
		r.Register(NewSkillTool(opts.Skills))
	}

	return r
}
