// Package config loads runtime configuration from defaults, an optional
// JSON5 config file, and environment overrides, in that order. A .env file
// next to the working directory is loaded into the environment first.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/titanous/json5"
)

// Config is the full runtime configuration for the dexter binary.
type Config struct {
	Agent     AgentConfig     `json:"agent"`
	Provider  ProviderConfig  `json:"provider"`
	Tools     ToolsConfig     `json:"tools"`
	Storage   StorageConfig   `json:"storage"`
	Logging   LoggingConfig   `json:"logging"`
	Telemetry TelemetryConfig `json:"telemetry"`
}

// AgentConfig controls the reason/act loop.
type AgentConfig struct {
	MaxIterations   int     `json:"max_iterations"`
	MaxCallsPerTool int     `json:"max_calls_per_tool"`
	Similarity      float64 `json:"similarity_threshold"`
}

// ProviderConfig selects the model backend.
type ProviderConfig struct {
	APIKey    string  `json:"api_key"`
	APIBase   string  `json:"api_base"`
	Model     string  `json:"model"`
	FastModel string  `json:"fast_model"` // summaries and selection; Model when empty
	RPS       float64 `json:"rps"`        // 0 = unlimited
}

// ToolsConfig controls the built-in tool set.
type ToolsConfig struct {
	Workspace           string `json:"workspace"`
	RestrictToWorkspace bool   `json:"restrict_to_workspace"`
	TavilyAPIKey        string `json:"tavily_api_key"`
	BrowserEnabled      bool   `json:"browser_enabled"`
}

// StorageConfig places the persistent stores on disk.
type StorageConfig struct {
	BaseDir string `json:"base_dir"` // sessions/, context/, memory/, scratchpad/ live under it
}

// LoggingConfig controls slog output.
type LoggingConfig struct {
	Level       string `json:"level"` // debug, info, warn, error
	Mode        string `json:"mode"`  // development or production
	Dir         string `json:"dir"`
	RotationMB  int    `json:"rotation_mb"`
	RetentionDy int    `json:"retention_days"`
	Compression bool   `json:"compression"`
}

// TelemetryConfig controls the OTLP trace exporter.
type TelemetryConfig struct {
	Enabled     bool   `json:"enabled"`
	Endpoint    string `json:"endpoint"`
	ServiceName string `json:"service_name"`
	Insecure    bool   `json:"insecure"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Agent: AgentConfig{
			MaxIterations:   10,
			MaxCallsPerTool: 3,
			Similarity:      0.7,
		},
		Provider: ProviderConfig{
			APIBase: "https://openrouter.ai/api/v1",
			Model:   "anthropic/claude-sonnet-4",
		},
		Tools: ToolsConfig{
			Workspace:           "~/.dexter/workspace",
			RestrictToWorkspace: true,
			BrowserEnabled:      false,
		},
		Storage: StorageConfig{
			BaseDir: "~/.dexter",
		},
		Logging: LoggingConfig{
			Level:       "info",
			Mode:        "development",
			Dir:         "~/.dexter/logs",
			RotationMB:  50,
			RetentionDy: 14,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "dexter",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars. A missing
// file is not an error; defaults plus env apply. A .env file in the
// working directory is loaded first so it can feed the overrides.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config. Env vars take
// precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStr("OPENAI_API_KEY", &c.Provider.APIKey)
	envStr("OPENROUTER_API_KEY", &c.Provider.APIKey)
	envStr("OPENAI_BASE_URL", &c.Provider.APIBase)
	envStr("DEXTER_MODEL", &c.Provider.Model)
	envStr("DEXTER_FAST_MODEL", &c.Provider.FastModel)
	envStr("TAVILY_API_KEY", &c.Tools.TavilyAPIKey)
	envStr("DEXTER_WORKSPACE", &c.Tools.Workspace)
	envStr("DEXTER_BASE_DIR", &c.Storage.BaseDir)

	if v := os.Getenv("DEXTER_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Agent.MaxIterations = n
		}
	}
	if v := os.Getenv("DEXTER_BROWSER"); v != "" {
		c.Tools.BrowserEnabled = v == "true" || v == "1"
	}

	envStr("LOG_LEVEL", &c.Logging.Level)
	envStr("LOG_MODE", &c.Logging.Mode)
	envStr("LOG_DIR", &c.Logging.Dir)
	if v := os.Getenv("LOG_ROTATION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Logging.RotationMB = n
		}
	}
	if v := os.Getenv("LOG_RETENTION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Logging.RetentionDy = n
		}
	}
	if v := os.Getenv("LOG_COMPRESSION"); v != "" {
		c.Logging.Compression = v == "true" || v == "1"
	}

	envStr("OTEL_EXPORTER_OTLP_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("OTEL_SERVICE_NAME", &c.Telemetry.ServiceName)
	if v := os.Getenv("DEXTER_TELEMETRY"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("DEXTER_TELEMETRY_INSECURE"); v != "" {
		c.Telemetry.Insecure = v == "true" || v == "1"
	}
}

// Validate checks the parts the agent cannot run without.
func (c *Config) Validate() error {
	if c.Provider.APIKey == "" {
		return fmt.Errorf("no model API key configured (set OPENAI_API_KEY or OPENROUTER_API_KEY)")
	}
	if c.Provider.Model == "" {
		return fmt.Errorf("no model configured")
	}
	return nil
}

// BasePath returns the expanded storage base directory.
func (c *Config) BasePath() string { return ExpandHome(c.Storage.BaseDir) }

// SessionsDir returns the session store directory.
func (c *Config) SessionsDir() string { return filepath.Join(c.BasePath(), "sessions") }

// ContextDir returns the tool-context store directory.
func (c *Config) ContextDir() string { return filepath.Join(c.BasePath(), "context") }

// MemoryDir returns the memory store directory.
func (c *Config) MemoryDir() string { return filepath.Join(c.BasePath(), "memory") }

// ScratchpadDir returns the scratchpad journal directory.
func (c *Config) ScratchpadDir() string { return filepath.Join(c.BasePath(), "scratchpad") }

// SkillsDir returns the builtin skills directory.
func (c *Config) SkillsDir() string { return filepath.Join(c.BasePath(), "skills") }

// WorkspacePath returns the expanded tool workspace path.
func (c *Config) WorkspacePath() string { return ExpandHome(c.Tools.Workspace) }

// ExpandHome replaces a leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
