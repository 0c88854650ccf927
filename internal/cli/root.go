// Package cli provides the command-line interface for nonediag.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/NCBM/nonediag/internal/config"
	"github.com/NCBM/nonediag/internal/logging"
	"github.com/NCBM/nonediag/internal/report"
	"github.com/NCBM/nonediag/internal/rules"
)

// Version is set at build time with -ldflags "-X github.com/NCBM/nonediag/internal/cli.Version=...".
var Version = "dev"

// ErrProblemsFound is returned when the diagnosis reports errors, or
// warnings in strict mode.
var ErrProblemsFound = errors.New("problems detected")

// options holds the flag values of one command tree.
type options struct {
	botFile        string
	logFile        string
	outputFormat   string
	configPath     string
	python         string
	runtimeVersion string
	pythonVersion  string
	disabled       []string
	strictMode     bool
	verbose        bool
	noColor        bool

	cfg    config.Config
	logger *zap.Logger
}

// NewRootCommand builds the nonediag command tree.
func NewRootCommand() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "nonediag",
		Short: "Diagnose why a NoneBot2 bot failed to start",
		Long: `nonediag reads the log of a failed NoneBot2 run together with the bot's
bot.py and pyproject.toml, and reports known problems with remediation advice.

It checks for:
  - duplicated plugin imports and suspicious imports in bot.py
  - missing adapters and unknown built-in plugins
  - occupied ports and missing Python modules
  - Python and nonebot2 version mismatches

Examples:
  # Diagnose the bot in the current directory
  python bot.py 2>&1 | tee bot.log; nonediag

  # Read the log from stdin and print JSON
  python bot.py 2>&1 | nonediag -l - -o json

  # Use a pyproject.toml-only project and skip probing the interpreter
  nonediag -B pyproject.toml --runtime-version 2.1.0 --python-version 3.11.4`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiagnose(cmd, opts)
		},
	}

	diagnoseCmd := &cobra.Command{
		Use:   "diagnose",
		Short: "Diagnose a bot log and project configuration",
		Long: `Diagnose a NoneBot2 bot from its log, bot.py and pyproject.toml.

The bot's Python interpreter is asked for its own version and for the
installed nonebot2 version unless both are given with --python-version and
--runtime-version.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiagnose(cmd, opts)
		},
	}

	// Add flags to both root and diagnose commands
	for _, cmd := range []*cobra.Command{rootCmd, diagnoseCmd} {
		cmd.Flags().StringVarP(&opts.botFile, "botfile", "B", "./bot.py", "Path to bot.py, or to pyproject.toml for projects without one")
		cmd.Flags().StringVarP(&opts.logFile, "log", "l", "bot.log", "Path to the log of the failed run, - for stdin")
		cmd.Flags().StringVar(&opts.python, "python", "", "Python interpreter of the bot environment")
		cmd.Flags().StringVar(&opts.runtimeVersion, "runtime-version", "", "nonebot2 version, skips probing it")
		cmd.Flags().StringVar(&opts.pythonVersion, "python-version", "", "Python version, skips probing it")
		cmd.Flags().StringSliceVar(&opts.disabled, "disable", nil, "Rule IDs to disable")
		cmd.Flags().BoolVarP(&opts.strictMode, "strict", "s", false, "Strict mode: fail on warnings")
		cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	}

	rootCmd.PersistentFlags().StringVarP(&opts.outputFormat, "output", "o", "cli", "Output format: "+strings.Join(report.Formats, ", "))
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to the nonediag config file (default: .nonediag.yaml next to the bot file)")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose logging to stderr")

	rootCmd.AddCommand(diagnoseCmd, newRulesCommand(opts), newVersionCommand())
	return rootCmd
}

// Execute runs the command tree and returns the error to exit with.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return NewRootCommand().ExecuteContext(ctx)
}

// setup loads the config file and builds the logger. Flags win over the
// environment, which wins over the file.
func (o *options) setup(cmd *cobra.Command) error {
	dir := "."
	if o.botFile != "" {
		dir = filepath.Dir(o.botFile)
	}

	cfg, err := config.Load(config.Locate(o.configPath, dir))
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("output") {
		cfg.Output = o.outputFormat
	}
	if o.python != "" {
		cfg.Probe.Python = o.python
	}
	cfg.Rules.Disabled = append(cfg.Rules.Disabled, o.disabled...)
	if err := cfg.Validate(); err != nil {
		return err
	}
	o.cfg = cfg

	logger, err := logging.New(logging.Options{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Verbose: o.verbose,
	})
	if err != nil {
		return err
	}
	o.logger = logger.With(zap.String("command", cmd.Name()))
	return nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of nonediag",
		Args:  cobra.NoArgs,
		// version needs neither the config file nor a logger
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "nonediag %s\n", Version)
		},
	}
}

func newRulesCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "List all diagnostic rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine := rules.NewEngine(rules.WithDisabled(opts.cfg.Rules.Disabled...))
			rulesList := engine.ListRules()
			out := cmd.OutOrStdout()

			if opts.cfg.Output == "json" {
				data, err := json.MarshalIndent(rulesList, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal rules: %w", err)
				}
				fmt.Fprintln(out, string(data))
				return nil
			}

			fmt.Fprintln(out, "Available Diagnostic Rules:")
			fmt.Fprintln(out, "===========================")
			for _, r := range rulesList {
				state := ""
				if !r.Enabled {
					state = " (disabled)"
				}
				fmt.Fprintf(out, "\n[%s] %s%s\n", r.ID, r.Name, state)
				fmt.Fprintf(out, "  Severity: %s\n", r.Severity)
				fmt.Fprintf(out, "  Description: %s\n", r.Description)
			}
			return nil
		},
	}
}
