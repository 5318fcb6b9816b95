package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func intPtr(v int) *int { return &v }

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		modifyFunc  func(*Config)
		expectError bool
		errorString string
	}{
		{
			name:        "valid config passes",
			modifyFunc:  func(c *Config) {},
			expectError: false,
		},
		{
			name: "unknown provider fails",
			modifyFunc: func(c *Config) {
				c.Provider = "zai"
			},
			expectError: true,
			errorString: "provider must be one of",
		},
		{
			name: "unknown output format fails",
			modifyFunc: func(c *Config) {
				c.OutputFormat = "yaml"
			},
			expectError: true,
			errorString: "output_format must be",
		},
		{
			name: "negative temperature fails",
			modifyFunc: func(c *Config) {
				c.Temperature = -0.5
			},
			expectError: true,
			errorString: "temperature must be between",
		},
		{
			name: "temperature > 2.0 fails",
			modifyFunc: func(c *Config) {
				c.Temperature = 3.0
			},
			expectError: true,
			errorString: "temperature must be between",
		},
		{
			name: "request timeout > 600 fails",
			modifyFunc: func(c *Config) {
				c.RequestTimeoutSeconds = 9999
			},
			expectError: true,
			errorString: "request_timeout_seconds cannot exceed",
		},
		{
			name: "shell timeout > 600 fails",
			modifyFunc: func(c *Config) {
				c.ShellTimeoutSeconds = 9999
			},
			expectError: true,
			errorString: "shell_timeout_seconds cannot exceed",
		},
		{
			name: "max session turns below -1 fails",
			modifyFunc: func(c *Config) {
				c.MaxSessionTurns = intPtr(-2)
			},
			expectError: true,
			errorString: "max_session_turns",
		},
		{
			name: "zero max session turns passes",
			modifyFunc: func(c *Config) {
				c.MaxSessionTurns = intPtr(0)
			},
			expectError: false,
		},
		{
			name: "negative loop window fails",
			modifyFunc: func(c *Config) {
				c.LoopDetectionWindow = intPtr(-1)
			},
			expectError: true,
			errorString: "loop_detection_window",
		},
		{
			name: "zero loop window passes",
			modifyFunc: func(c *Config) {
				c.LoopDetectionWindow = intPtr(0)
			},
			expectError: false,
		},
		{
			name: "negative verify timeout fails",
			modifyFunc: func(c *Config) {
				c.VerifyTimeoutSeconds = -5
			},
			expectError: true,
			errorString: "verify_timeout_seconds",
		},
		{
			name: "missing fake responses file fails",
			modifyFunc: func(c *Config) {
				c.Provider = ProviderMock
				c.FakeResponsesPath = "/nonexistent/responses.jsonl"
			},
			expectError: true,
			errorString: "fake_responses_path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Create valid base config
			cfg := Config{
				Provider:              ProviderOpenAI,
				Model:                 DefaultOpenAIModel,
				Temperature:           0.7,
				RequestTimeoutSeconds: 90,
				ShellTimeoutSeconds:   60,
				OutputFormat:          "text",
				MaxSessionTurns:       intPtr(-1),
				LoopDetectionWindow:   intPtr(10),
			}

			tt.modifyFunc(&cfg)

			err := cfg.Validate()

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if !strings.Contains(err.Error(), tt.errorString) {
					t.Errorf("Expected error containing %q, got %q", tt.errorString, err.Error())
				}
			} else {
				if err != nil {
					t.Errorf("Expected no error but got: %v", err)
				}
			}
		})
	}
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvConfigDir, dir)
	t.Setenv(EnvOpenAIBase, "")
	t.Setenv(EnvFakeResponses, "")

	cfg, err := Load(filepath.Join(dir, "absent.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Provider != ProviderOpenAI {
		t.Errorf("Provider = %q, want %q", cfg.Provider, ProviderOpenAI)
	}
	if cfg.Model != DefaultOpenAIModel {
		t.Errorf("Model = %q, want %q", cfg.Model, DefaultOpenAIModel)
	}
	if cfg.MaxTurns() != -1 {
		t.Errorf("MaxTurns = %d, want -1", cfg.MaxTurns())
	}
	if !cfg.Markdown() {
		t.Errorf("Markdown should default to on")
	}
	if cfg.LoopWindow() != 10 {
		t.Errorf("LoopWindow = %d, want 10", cfg.LoopWindow())
	}
	if cfg.VerifyTimeout() != 0 {
		t.Errorf("VerifyTimeout = %s, want no limit", cfg.VerifyTimeout())
	}
	if cfg.ShellTimeout() != 60*time.Second {
		t.Errorf("ShellTimeout = %s, want 60s", cfg.ShellTimeout())
	}
	if cfg.RunLogPath != filepath.Join(dir, "runs.db") {
		t.Errorf("RunLogPath = %q", cfg.RunLogPath)
	}
	if cfg.CancelGrace().Milliseconds() != 200 {
		t.Errorf("CancelGrace = %s", cfg.CancelGrace())
	}
}

func TestLoadParsesYAML(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvConfigDir, dir)
	t.Setenv(EnvOpenAIBase, "")
	t.Setenv(EnvFakeResponses, "")

	path := filepath.Join(dir, "config.yaml")
	body := `provider: gemini
temperature: 0.5
max_session_turns: 3
output_format: stream-json
render_markdown: false
system_prompt: "be brief"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Provider != ProviderGemini || cfg.Model != DefaultGeminiModel {
		t.Errorf("provider/model = %q/%q", cfg.Provider, cfg.Model)
	}
	if cfg.Temperature != 0.5 {
		t.Errorf("Temperature = %v", cfg.Temperature)
	}
	if cfg.MaxTurns() != 3 {
		t.Errorf("MaxTurns = %d, want 3", cfg.MaxTurns())
	}
	if cfg.OutputFormat != "stream-json" {
		t.Errorf("OutputFormat = %q", cfg.OutputFormat)
	}
	if cfg.Markdown() {
		t.Errorf("Markdown should be off")
	}
	if cfg.SystemPrompt != "be brief" {
		t.Errorf("SystemPrompt = %q", cfg.SystemPrompt)
	}
}

func TestLoopDetectionCanBeDisabled(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvConfigDir, dir)
	t.Setenv(EnvOpenAIBase, "")
	t.Setenv(EnvFakeResponses, "")

	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("loop_detection_window: 0\nverify_timeout_seconds: 900\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LoopWindow() != 0 {
		t.Errorf("LoopWindow = %d, want 0", cfg.LoopWindow())
	}
	if cfg.VerifyTimeout() != 900*time.Second {
		t.Errorf("VerifyTimeout = %s, want 15m", cfg.VerifyTimeout())
	}
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("provider: [unterminated"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "parse config") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvConfigDir, dir)
	fake := filepath.Join(dir, "responses.jsonl")
	if err := os.WriteFile(fake, []byte("[{\"text\":\"hi\"}]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvOpenAIBase, "http://localhost:8080/v1")
	t.Setenv(EnvFakeResponses, fake)

	cfg, err := Load(filepath.Join(dir, "absent.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.BaseURL != "http://localhost:8080/v1" {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	if cfg.Provider != ProviderMock || cfg.FakeResponsesPath != fake {
		t.Errorf("fake responses not applied: %q %q", cfg.Provider, cfg.FakeResponsesPath)
	}
	if cfg.Model != DefaultMockModel {
		t.Errorf("Model = %q", cfg.Model)
	}
}

func TestPathPrefersEnvironment(t *testing.T) {
	t.Setenv(EnvConfigPath, "/etc/citrux.yaml")
	if got := Path(); got != "/etc/citrux.yaml" {
		t.Errorf("Path = %q", got)
	}
	t.Setenv(EnvConfigPath, "")
	t.Setenv(EnvConfigDir, "/tmp/citrux-dir")
	if got := Path(); got != filepath.Join("/tmp/citrux-dir", "config.yaml") {
		t.Errorf("Path = %q", got)
	}
}

func TestAPIKeyByProvider(t *testing.T) {
	t.Setenv(EnvOpenAIKey, " sk-open ")
	t.Setenv(EnvGeminiKey, "gm-key")

	if got := (Config{Provider: ProviderOpenAI}).APIKey(); got != "sk-open" {
		t.Errorf("openai key = %q", got)
	}
	if got := (Config{Provider: ProviderGemini}).APIKey(); got != "gm-key" {
		t.Errorf("gemini key = %q", got)
	}
	if got := (Config{Provider: ProviderMock}).APIKey(); got != "" {
		t.Errorf("mock key = %q", got)
	}
}

func TestModelForProviderFallbacks(t *testing.T) {
	tests := []struct {
		name          string
		provider      string
		model         string
		expectedModel string
	}{
		{name: "OpenAI default", provider: "openai", expectedModel: DefaultOpenAIModel},
		{name: "Gemini default", provider: "GEMINI", expectedModel: DefaultGeminiModel},
		{name: "Mock default", provider: "mock", expectedModel: DefaultMockModel},
		{name: "Unknown provider falls back to generic model", provider: "unknown", model: "generic-model", expectedModel: "generic-model"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{Model: tt.model}
			if got := cfg.ModelFor(tt.provider); got != tt.expectedModel {
				t.Errorf("Expected ModelFor(%s) %q, got %q", tt.provider, tt.expectedModel, got)
			}
		})
	}
}

func TestOverrideWorkspaceRoot(t *testing.T) {
	cfg := Config{WorkspaceRoot: "."}
	cfg.OverrideWorkspaceRoot("   ")
	if cfg.WorkspaceRoot != "." {
		t.Errorf("blank override should be ignored, got %q", cfg.WorkspaceRoot)
	}
	cfg.OverrideWorkspaceRoot(" /srv/project ")
	if cfg.WorkspaceRoot != "/srv/project" {
		t.Errorf("WorkspaceRoot = %q", cfg.WorkspaceRoot)
	}
	var nilCfg *Config
	nilCfg.OverrideWorkspaceRoot("/x")
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvConfigDir, dir)
	t.Setenv(EnvOpenAIBase, "")
	t.Setenv(EnvFakeResponses, "")
	path := filepath.Join(dir, "nested", "config.yaml")

	if err := Save(path, Config{Provider: ProviderGemini, MaxSessionTurns: intPtr(7)}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Provider != ProviderGemini || cfg.MaxTurns() != 7 {
		t.Errorf("round trip lost values: %+v", cfg)
	}
}
