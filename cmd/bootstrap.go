package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/dexterhq/dexter/internal/agent"
	"github.com/dexterhq/dexter/internal/config"
	"github.com/dexterhq/dexter/internal/logging"
	"github.com/dexterhq/dexter/internal/memory"
	"github.com/dexterhq/dexter/internal/providers"
	"github.com/dexterhq/dexter/internal/scratchpad"
	"github.com/dexterhq/dexter/internal/sessions"
	"github.com/dexterhq/dexter/internal/skills"
	"github.com/dexterhq/dexter/internal/telemetry"
	"github.com/dexterhq/dexter/internal/toolctx"
	"github.com/dexterhq/dexter/internal/tools"
)

// runtime bundles everything a command needs after bootstrap.
type runtime struct {
	cfg      *config.Config
	agent    *agent.Agent
	sessions *sessions.Store
	memory   *memory.Store
	skills   *skills.Registry
	shutdown func()
}

// loadConfig loads configuration and installs logging. Used by commands
// that only touch the stores and don't need a model.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	logging.Setup(cfg.Logging)
	return cfg, nil
}

// buildRuntime wires the full agent: config, logging, telemetry, models,
// stores, skills and tools.
func buildRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	stopTelemetry, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	model := providers.NewOpenAIModel(providers.OpenAIConfig{
		Name:    "primary",
		APIKey:  cfg.Provider.APIKey,
		APIBase: cfg.Provider.APIBase,
		Model:   cfg.Provider.Model,
		RPS:     cfg.Provider.RPS,
	})
	var fastModel providers.Model = model
	if cfg.Provider.FastModel != "" && cfg.Provider.FastModel != cfg.Provider.Model {
		fastModel = providers.NewOpenAIModel(providers.OpenAIConfig{
			Name:    "fast",
			APIKey:  cfg.Provider.APIKey,
			APIBase: cfg.Provider.APIBase,
			Model:   cfg.Provider.FastModel,
			RPS:     cfg.Provider.RPS,
		})
	}

	sessionStore := sessions.NewStore(cfg.SessionsDir())
	contextStore := toolctx.NewStore(cfg.ContextDir(), fastModel)
	memoryStore := memory.NewStore(cfg.MemoryDir())
	skillRegistry := skills.NewRegistry(cfg.SkillsDir())
	if _, err := skills.Watch(ctx, skillRegistry); err != nil {
		return nil, fmt.Errorf("skill watcher: %w", err)
	}

	workspace := cfg.WorkspacePath()
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}

	registry := tools.NewBuiltinRegistry(tools.BuiltinOptions{
		Workspace:           workspace,
		RestrictToWorkspace: cfg.Tools.RestrictToWorkspace,
		TavilyAPIKey:        cfg.Tools.TavilyAPIKey,
		EnableBrowser:       cfg.Tools.BrowserEnabled,
		Memory:              memoryStore,
		Skills:              skillRegistry,
	})

	systemPrompt := agent.SystemPrompt
	if len(skillRegistry.Discover()) > 0 {
		systemPrompt += "\n\n## Available Skills\n\n" + skillRegistry.MetadataSection()
	}

	loop := agent.New(agent.Options{
		Model:         model,
		FastModel:     fastModel,
		MaxIterations: cfg.Agent.MaxIterations,
		SystemPrompt:  systemPrompt,
		Tools:         registry,
		Sessions:      sessionStore,
		ToolContexts:  contextStore,
		Memory:        memoryStore,
		ScratchpadDir: cfg.ScratchpadDir(),
		Limits: scratchpad.LimitConfig{
			MaxCallsPerTool:     cfg.Agent.MaxCallsPerTool,
			SimilarityThreshold: cfg.Agent.Similarity,
		},
	})

	return &runtime{
		cfg:      cfg,
		agent:    loop,
		sessions: sessionStore,
		memory:   memoryStore,
		skills:   skillRegistry,
		shutdown: func() { _ = stopTelemetry(context.Background()) },
	}, nil
}
