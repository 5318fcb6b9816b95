package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"citrux/internal/prompts"
)

// Provider keys.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderMock   = "mock"
)

// Default models per provider.
const (
	DefaultOpenAIModel = "gpt-4o-mini"
	DefaultGeminiModel = "gemini-2.5-flash"
	DefaultMockModel   = "mock-model"
)

// Environment variables read at load time.
const (
	EnvConfigPath    = "CITRUX_CONFIG_PATH"
	EnvConfigDir     = "CITRUX_CONFIG_DIR"
	EnvOpenAIKey     = "OPENAI_API_KEY"
	EnvOpenAIBase    = "OPENAI_API_BASE"
	EnvGeminiKey     = "GEMINI_API_KEY"
	EnvFakeResponses = "CITRUX_FAKE_RESPONSES"
)

// Config captures the tunable runtime settings.
type Config struct {
	Provider              string  `yaml:"provider"`
	Model                 string  `yaml:"model"`
	BaseURL               string  `yaml:"base_url"`
	Temperature           float64 `yaml:"temperature"`
	SystemPrompt          string  `yaml:"system_prompt"`
	RequestTimeoutSeconds int     `yaml:"request_timeout_seconds"`
	ShellTimeoutSeconds   int     `yaml:"shell_timeout_seconds"`
	// VerifyTimeoutSeconds bounds dev-loop verification commands; 0 means
	// they run until cancelled.
	VerifyTimeoutSeconds int    `yaml:"verify_timeout_seconds"`
	WorkspaceRoot        string `yaml:"workspace_root"`
	OutputFormat         string `yaml:"output_format"`
	// MaxSessionTurns caps model requests per session; -1 means unlimited.
	MaxSessionTurns *int `yaml:"max_session_turns"`
	// LoopDetectionWindow is the number of recent tool calls checked for
	// repeats; 0 disables detection.
	LoopDetectionWindow *int   `yaml:"loop_detection_window"`
	CancelGraceMS       int    `yaml:"cancel_grace_ms"`
	RenderMarkdown      *bool  `yaml:"render_markdown"`
	RunLogPath          string `yaml:"run_log_path"`
	LogPath             string `yaml:"log_path"`
	Debug               bool   `yaml:"debug"`
	FakeResponsesPath   string `yaml:"fake_responses_path"`
}

// Path returns the config file location.
func Path() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	return filepath.Join(GetConfigDir(), "config.yaml")
}

// LoadUserConfig loads the config file at Path. A missing file yields
// defaults.
func LoadUserConfig() (Config, error) {
	return Load(Path())
}

// Load reads the YAML configuration at path, applies environment overrides
// and defaults, and validates the result. A missing file yields defaults.
func Load(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return Config{}, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	cfg.cleanSystemPrompt()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if base := strings.TrimSpace(os.Getenv(EnvOpenAIBase)); base != "" {
		c.BaseURL = base
	}
	if fake := strings.TrimSpace(os.Getenv(EnvFakeResponses)); fake != "" {
		c.FakeResponsesPath = fake
		c.Provider = ProviderMock
	}
}

// applyDefaults fills in optional values to keep the YAML file concise.
func (c *Config) applyDefaults() {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	if c.Provider == "" {
		c.Provider = ProviderOpenAI
	}
	if strings.TrimSpace(c.Model) == "" {
		c.Model = c.ModelFor(c.Provider)
	}
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.Temperature == 0 {
		c.Temperature = 0.2
	}
	if c.RequestTimeoutSeconds <= 0 {
		c.RequestTimeoutSeconds = 90
	}
	if c.ShellTimeoutSeconds <= 0 {
		c.ShellTimeoutSeconds = 60
	}
	if c.WorkspaceRoot == "" {
		c.WorkspaceRoot = "."
	}
	if c.OutputFormat == "" {
		c.OutputFormat = "text"
	}
	if c.MaxSessionTurns == nil {
		unlimited := -1
		c.MaxSessionTurns = &unlimited
	}
	if c.LoopDetectionWindow == nil {
		window := 10
		c.LoopDetectionWindow = &window
	}
	if c.CancelGraceMS <= 0 {
		c.CancelGraceMS = 200
	}
	if c.RenderMarkdown == nil {
		on := true
		c.RenderMarkdown = &on
	}
	if c.RunLogPath == "" {
		c.RunLogPath = filepath.Join(GetConfigDir(), "runs.db")
	}
	if c.LogPath == "" {
		c.LogPath = filepath.Join(GetConfigDir(), "citrux.log")
	}
}

// cleanSystemPrompt keeps only the user's custom portion of the prompt.
func (c *Config) cleanSystemPrompt() {
	c.SystemPrompt = prompts.ExtractUserPortion(c.SystemPrompt)
}

// Validate checks ranges and enumerations.
func (c Config) Validate() error {
	switch c.Provider {
	case ProviderOpenAI, ProviderGemini, ProviderMock:
	default:
		return fmt.Errorf("provider must be one of openai, gemini or mock (got %q)", c.Provider)
	}
	switch c.OutputFormat {
	case "text", "json", "stream-json":
	default:
		return fmt.Errorf("output_format must be text, json or stream-json (got %q)", c.OutputFormat)
	}
	// Typical LLM range is 0-2.0
	if c.Temperature < 0 || c.Temperature > 2.0 {
		return fmt.Errorf("temperature must be between 0 and 2.0 (got %f)", c.Temperature)
	}
	if c.RequestTimeoutSeconds > 600 {
		return fmt.Errorf("request_timeout_seconds cannot exceed 600 (10 minutes)")
	}
	if c.ShellTimeoutSeconds > 600 {
		return fmt.Errorf("shell_timeout_seconds cannot exceed 600 (10 minutes)")
	}
	if c.MaxSessionTurns != nil && *c.MaxSessionTurns < -1 {
		return fmt.Errorf("max_session_turns must be -1 (unlimited) or >= 0")
	}
	if c.VerifyTimeoutSeconds < 0 {
		return fmt.Errorf("verify_timeout_seconds must be >= 0 (0 means no limit)")
	}
	if c.LoopDetectionWindow != nil && *c.LoopDetectionWindow < 0 {
		return fmt.Errorf("loop_detection_window must be >= 0 (0 disables detection)")
	}
	if c.Provider == ProviderMock && c.FakeResponsesPath != "" {
		if _, err := os.Stat(c.FakeResponsesPath); err != nil {
			return fmt.Errorf("fake_responses_path: %w", err)
		}
	}
	return nil
}

// MaxTurns returns the session turn cap, -1 when unlimited.
func (c Config) MaxTurns() int {
	if c.MaxSessionTurns == nil {
		return -1
	}
	return *c.MaxSessionTurns
}

// LoopWindow returns the loop detection window, 0 when disabled.
func (c Config) LoopWindow() int {
	if c.LoopDetectionWindow == nil {
		return 0
	}
	return *c.LoopDetectionWindow
}

// Markdown reports whether text output should be rendered as markdown.
func (c Config) Markdown() bool {
	return c.RenderMarkdown == nil || *c.RenderMarkdown
}

// RequestTimeout turns the integer value into a duration for HTTP clients.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// ShellTimeout exposes the configured duration for shell commands.
func (c Config) ShellTimeout() time.Duration {
	return time.Duration(c.ShellTimeoutSeconds) * time.Second
}

// VerifyTimeout bounds dev-loop verification commands. Zero means no limit.
func (c Config) VerifyTimeout() time.Duration {
	return time.Duration(c.VerifyTimeoutSeconds) * time.Second
}

// CancelGrace is how long an abort may run before the notice is shown.
func (c Config) CancelGrace() time.Duration {
	return time.Duration(c.CancelGraceMS) * time.Millisecond
}

// APIKey returns the credential for the active provider from the
// environment. Keys are never read from the config file.
func (c Config) APIKey() string {
	switch c.Provider {
	case ProviderOpenAI:
		return strings.TrimSpace(os.Getenv(EnvOpenAIKey))
	case ProviderGemini:
		return strings.TrimSpace(os.Getenv(EnvGeminiKey))
	default:
		return ""
	}
}

// OverrideWorkspaceRoot swaps the workspace root at runtime.
func (c *Config) OverrideWorkspaceRoot(root string) {
	if c == nil {
		return
	}
	if trimmed := strings.TrimSpace(root); trimmed != "" {
		c.WorkspaceRoot = trimmed
	}
}

// AbsWorkspace resolves the workspace root to an absolute path.
func (c Config) AbsWorkspace() (string, error) {
	abs, err := filepath.Abs(c.WorkspaceRoot)
	if err != nil {
		return "", fmt.Errorf("resolve workspace root: %w", err)
	}
	return abs, nil
}

// GetConfigDir returns the directory holding config, logs and run history.
func GetConfigDir() string {
	if configDir := os.Getenv(EnvConfigDir); configDir != "" {
		return configDir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".citrux"
	}
	return filepath.Join(home, ".citrux")
}

// ModelFor returns the default model for the given provider key.
func (c Config) ModelFor(provider string) string {
	switch strings.ToLower(provider) {
	case ProviderGemini:
		return DefaultGeminiModel
	case ProviderMock:
		return DefaultMockModel
	case ProviderOpenAI:
		return DefaultOpenAIModel
	default:
		return c.Model
	}
}

// Save writes the config to path.
func Save(path string, c Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
