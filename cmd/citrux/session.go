package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"citrux/internal/agent"
	"citrux/internal/cancel"
	"citrux/internal/config"
	"citrux/internal/gemini"
	"citrux/internal/llm"
	"citrux/internal/llm/mockclient"
	"citrux/internal/logging"
	"citrux/internal/openai"
	"citrux/internal/output"
	"citrux/internal/prompts"
	"citrux/internal/runlog"
	"citrux/internal/shellexec"
	"citrux/internal/tooling"
)

// loadConfig reads the config file and applies command-line overrides.
func (c *cli) loadConfig(cmd *cobra.Command) (config.Config, error) {
	var (
		cfg config.Config
		err error
	)
	if c.configPath != "" {
		cfg, err = config.Load(c.configPath)
	} else {
		cfg, err = config.LoadUserConfig()
	}
	if err != nil {
		return config.Config{}, err
	}

	flags := cmd.Flags()
	if flags.Changed("provider") {
		cfg.Provider = c.provider
		if !flags.Changed("model") {
			cfg.Model = cfg.ModelFor(c.provider)
		}
	}
	if flags.Changed("model") {
		cfg.Model = c.model
	}
	if flags.Changed("output-format") {
		cfg.OutputFormat = c.outputFormat
	}
	if flags.Changed("max-session-turns") {
		turns := c.maxTurns
		cfg.MaxSessionTurns = &turns
	}
	if c.debug {
		cfg.Debug = true
	}
	cfg.OverrideWorkspaceRoot(c.workspace)
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// runSession wires the configured backend, tools and renderer around one
// agent session and runs input through it.
func (c *cli) runSession(cmd *cobra.Command, input string, deprecated bool) error {
	cfg, err := c.loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := logging.Init(logging.Options{Path: cfg.LogPath, Debug: cfg.Debug}); err != nil {
		fmt.Fprintf(c.stderr, "warning: logging disabled: %v\n", err)
	}
	defer logging.Sync()

	format, err := output.ParseFormat(cfg.OutputFormat)
	if err != nil {
		return err
	}
	workspace, err := cfg.AbsWorkspace()
	if err != nil {
		return err
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctl := cancel.New(parent, cancel.Options{Grace: cfg.CancelGrace(), Notice: c.stderr})
	defer ctl.Close()
	ctl.WatchSignals()
	if f, ok := c.stdin.(*os.File); ok {
		ctl.GuardTerminal(int(f.Fd()))
	}

	gen, err := newGenerator(ctl.Context(), cfg)
	if err != nil {
		return err
	}
	gen = llm.WithLoopDetection(gen, cfg.LoopWindow())

	tools, err := tooling.DefaultTools(tooling.Options{
		WorkspaceRoot: workspace,
		ShellTimeout:  cfg.ShellTimeout(),
		FetchTimeout:  cfg.RequestTimeout(),
		Shell:         shellexec.NewLocal(cfg.ShellTimeout()),
	})
	if err != nil {
		return fmt.Errorf("register tools: %w", err)
	}
	dispatcher := tooling.NewDispatcher(tooling.NewRegistry(tools...))

	var markdown output.Renderer
	if format == output.FormatText && cfg.Markdown() {
		if f, ok := c.stdout.(*os.File); ok {
			markdown = output.NewMarkdownRenderer(int(f.Fd()))
		}
	}
	reporter := output.New(output.Options{
		Format:   format,
		Stdout:   c.stdout,
		Stderr:   c.stderr,
		Markdown: markdown,
	})

	var runs agent.RunRecorder
	if store, err := runlog.Open(cfg.RunLogPath); err != nil {
		logging.ErrorLog("run log unavailable: %v", err)
	} else {
		defer store.Close()
		runs = store
	}

	prompts.SetMetadata(prompts.Environment(workspace, time.Now()))
	verifier := shellexec.NewLocal(cfg.VerifyTimeout())
	session := agent.NewSession(gen, dispatcher, reporter, verifier, runs, agent.SessionOptions{
		Provider:         cfg.Provider,
		Workspace:        workspace,
		DeprecatedPrompt: deprecated,
		Driver: agent.DriverOptions{
			Model:           cfg.Model,
			SystemPrompt:    prompts.Combine(cfg.SystemPrompt),
			Temperature:     cfg.Temperature,
			MaxSessionTurns: cfg.MaxTurns(),
		},
	})
	logging.UserLog("session %s: provider=%s model=%s workspace=%s", session.ID(), cfg.Provider, cfg.Model, workspace)

	c.reported = true
	return session.Run(ctl.Context(), input)
}

// newGenerator builds the backend named by cfg.Provider.
func newGenerator(ctx context.Context, cfg config.Config) (llm.ContentGenerator, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		key := cfg.APIKey()
		if key == "" {
			return nil, errors.New("OPENAI_API_KEY is not set")
		}
		return openai.NewClient(cfg.BaseURL, key, cfg.RequestTimeout()), nil
	case config.ProviderGemini:
		return gemini.NewClient(ctx, cfg.APIKey())
	case config.ProviderMock:
		if cfg.FakeResponsesPath != "" {
			return mockclient.Load(cfg.FakeResponsesPath)
		}
		return mockclient.New(), nil
	default:
		return nil, fmt.Errorf("unsupported provider %q", cfg.Provider)
	}
}
