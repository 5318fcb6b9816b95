package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"citrux/internal/agent"
)

// Version is set via -ldflags during build
var Version = "dev"

func main() {
	os.Exit(execute(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// cli holds flag values and the process streams for one invocation.
type cli struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	configPath   string
	provider     string
	model        string
	outputFormat string
	workspace    string
	prompt       string
	maxTurns     int
	debug        bool

	// reported is set once a session has rendered its own outcome.
	reported bool
}

func execute(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	c := &cli{stdin: stdin, stdout: stdout, stderr: stderr}
	root := c.rootCommand()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	if err != nil && !c.reported {
		fmt.Fprintln(stderr, err)
	}
	return agent.ExitCode(err)
}

func (c *cli) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "citrux [prompt...]",
		Short: "Run a coding agent session against a language model",
		Long: `citrux sends a prompt to a language model, executes the tools it asks for
and prints the result. Piped stdin is prepended to the prompt.

Use "citrux dev-loop run <plan.md>" to iterate until a verification command
passes.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          c.runPrompt,
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return agent.NewInputError(err)
	})

	flags := root.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "Path to the config file (default ~/.citrux/config.yaml)")
	flags.StringVar(&c.provider, "provider", "", "Model provider: openai, gemini or mock")
	flags.StringVarP(&c.model, "model", "m", "", "Model name")
	flags.StringVarP(&c.outputFormat, "output-format", "o", "", "Output format: text, json or stream-json")
	flags.StringVar(&c.workspace, "workspace", "", "Workspace root for file and shell tools")
	flags.IntVar(&c.maxTurns, "max-session-turns", -1, "Maximum model requests per session (-1 for unlimited)")
	flags.BoolVar(&c.debug, "debug", false, "Enable debug logging")

	root.Flags().StringVarP(&c.prompt, "prompt", "p", "", "Prompt to run (deprecated, use a positional argument)")

	root.AddCommand(c.devLoopCommand(), c.runsCommand(), c.versionCommand())
	return root
}

func (c *cli) runPrompt(cmd *cobra.Command, args []string) error {
	piped, err := readPiped(c.stdin)
	if err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}
	prompt := strings.Join(args, " ")
	deprecated := false
	if c.prompt != "" {
		deprecated = true
		prompt = strings.TrimSpace(c.prompt + " " + prompt)
	}
	input := joinInput(piped, prompt)
	if strings.TrimSpace(input) == "" {
		return agent.NewInputError(errors.New("No input provided via stdin. Input can be provided by piping data into citrux or using a prompt argument."))
	}
	return c.runSession(cmd, input, deprecated)
}

func (c *cli) devLoopCommand() *cobra.Command {
	devLoop := &cobra.Command{
		Use:   "dev-loop",
		Short: "Iterate on a task until its verification command passes",
	}
	devLoop.AddCommand(&cobra.Command{
		Use:   "run <plan.md>",
		Short: "Run the plan and verify after every turn",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runSession(cmd, "/dev-loop run "+args[0], false)
		},
	})
	devLoop.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Ask the model to help write a new plan file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runSession(cmd, "/dev-loop init", false)
		},
	})
	return devLoop
}

func (c *cli) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and exit",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "citrux version %s\n", Version)
		},
	}
}

// readPiped returns stdin content unless stdin is an interactive terminal.
func readPiped(r io.Reader) (string, error) {
	if r == nil {
		return "", nil
	}
	if f, ok := r.(*os.File); ok {
		info, err := f.Stat()
		if err != nil || info.Mode()&os.ModeCharDevice != 0 {
			return "", nil
		}
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func joinInput(piped, prompt string) string {
	piped = strings.TrimSpace(piped)
	prompt = strings.TrimSpace(prompt)
	switch {
	case piped == "":
		return prompt
	case prompt == "":
		return piped
	default:
		return piped + "\n\n" + prompt
	}
}
