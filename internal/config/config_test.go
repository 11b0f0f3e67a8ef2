package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Agent.MaxIterations != 10 {
		t.Errorf("MaxIterations = %d", cfg.Agent.MaxIterations)
	}
	if cfg.Agent.MaxCallsPerTool != 3 || cfg.Agent.Similarity != 0.7 {
		t.Errorf("limits = %+v", cfg.Agent)
	}
	if !cfg.Tools.RestrictToWorkspace {
		t.Error("workspace restriction off by default")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Agent.MaxIterations != 10 {
		t.Errorf("MaxIterations = %d", cfg.Agent.MaxIterations)
	}
}

func TestLoadJSON5(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	// JSON5: comments and trailing commas allowed.
	content := `{
		// agent tuning
		agent: {max_iterations: 5,},
		provider: {model: "test/model"},
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Agent.MaxIterations != 5 {
		t.Errorf("MaxIterations = %d, want 5", cfg.Agent.MaxIterations)
	}
	if cfg.Provider.Model != "test/model" {
		t.Errorf("Model = %q", cfg.Provider.Model)
	}
	// Untouched fields keep their defaults.
	if cfg.Agent.MaxCallsPerTool != 3 {
		t.Errorf("MaxCallsPerTool = %d", cfg.Agent.MaxCallsPerTool)
	}
}

func TestLoadInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{{{"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("DEXTER_MODEL", "env/model")
	t.Setenv("DEXTER_MAX_ITERATIONS", "7")
	t.Setenv("TAVILY_API_KEY", "tvly-env")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider.APIKey != "sk-env" || cfg.Provider.Model != "env/model" {
		t.Errorf("provider = %+v", cfg.Provider)
	}
	if cfg.Agent.MaxIterations != 7 {
		t.Errorf("MaxIterations = %d", cfg.Agent.MaxIterations)
	}
	if cfg.Tools.TavilyAPIKey != "tvly-env" {
		t.Errorf("TavilyAPIKey = %q", cfg.Tools.TavilyAPIKey)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Level = %q", cfg.Logging.Level)
	}
}

func TestEnvOverridesIgnoreInvalidInt(t *testing.T) {
	t.Setenv("DEXTER_MAX_ITERATIONS", "banana")
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Agent.MaxIterations != 10 {
		t.Errorf("MaxIterations = %d, want default 10", cfg.Agent.MaxIterations)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err == nil {
		t.Error("expected error without API key")
	}
	cfg.Provider.APIKey = "sk-x"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
	cfg.Provider.Model = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected error without model")
	}
}

func TestExpandHome(t *testing.T) {
	home, _ := os.UserHomeDir()
	tests := []struct {
		in, want string
	}{
		{"~/.dexter", home + "/.dexter"},
		{"~", home},
		{"/abs/path", "/abs/path"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ExpandHome(tt.in); got != tt.want {
			t.Errorf("ExpandHome(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStorageDirs(t *testing.T) {
	cfg := Default()
	cfg.Storage.BaseDir = "/tmp/dex"
	if got := cfg.SessionsDir(); got != "/tmp/dex/sessions" {
		t.Errorf("SessionsDir = %q", got)
	}
	if got := cfg.ScratchpadDir(); got != "/tmp/dex/scratchpad" {
		t.Errorf("ScratchpadDir = %q", got)
	}
}
