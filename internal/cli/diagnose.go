package cli

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/NCBM/nonediag/internal/probe"
	"github.com/NCBM/nonediag/internal/project"
	"github.com/NCBM/nonediag/internal/report"
	"github.com/NCBM/nonediag/internal/rules"
)

func runDiagnose(cmd *cobra.Command, opts *options) error {
	logger := opts.logger
	cfg := opts.cfg

	botFile, err := filepath.Abs(opts.botFile)
	if err != nil {
		return fmt.Errorf("failed to resolve bot file: %w", err)
	}

	log, err := project.ReadLog(opts.logFile, cmd.InOrStdin())
	if err != nil {
		return err
	}

	projectCfg, err := project.NewLoader(logger).Load(botFile)
	if err != nil {
		if errors.Is(err, project.ErrNoBotFile) {
			return fmt.Errorf("%w (use --botfile to point at bot.py or pyproject.toml)", err)
		}
		return err
	}

	prober := probe.New(probe.Options{
		Python:          cfg.Probe.Python,
		Dir:             filepath.Dir(botFile),
		Timeout:         cfg.Probe.Timeout,
		RuntimeOverride: opts.runtimeVersion,
		HostOverride:    opts.pythonVersion,
	}, logger)
	versions := prober.Detect(cmd.Context())

	engine := rules.NewEngine(
		rules.WithLogger(logger),
		rules.WithDisabled(cfg.Rules.Disabled...),
		rules.WithSettings(rules.Settings{
			BuiltinAllowlist: cfg.Rules.BuiltinAllowlist,
			ExcerptLines:     cfg.Rules.ExcerptLines,
		}),
	)
	for _, id := range cfg.Rules.Disabled {
		if engine.GetRule(id) == nil {
			logger.Warn("ignoring unknown rule id", zap.String("rule", id))
		}
	}

	findings := engine.Evaluate(rules.EvaluationContext{
		Log:     log,
		Config:  projectCfg,
		Runtime: versions.Runtime,
		Host:    versions.Host,
	})
	result := engine.Summarize(findings)
	logger.Debug("diagnosis finished",
		zap.Int("findings", result.Summary.TotalFindings),
		zap.Int("errors", result.Summary.ErrorCount),
		zap.Int("warnings", result.Summary.WarningCount))

	var reportOpts []report.Option
	if !opts.noColor {
		reportOpts = append(reportOpts, report.WithRenderer(lipgloss.NewRenderer(cmd.OutOrStdout())))
	}
	if err := report.NewReporter(cfg.Output, reportOpts...).Write(cmd.OutOrStdout(), result); err != nil {
		return err
	}

	if result.HasErrors() || (opts.strictMode && result.HasWarnings()) {
		cmd.SilenceErrors = true
		return ErrProblemsFound
	}
	return nil
}
