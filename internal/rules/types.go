// Package rules provides the diagnostic rules engine for nonediag.
package rules

import (
	"github.com/NCBM/nonediag/internal/project"
	"github.com/NCBM/nonediag/internal/semver"
)

// Severity represents the severity level of a finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// EvaluationContext is the input shared by every rule. Rules must treat it
// as read-only.
type EvaluationContext struct {
	// Log is the full captured log of the failed run.
	Log string

	// Config is the configuration record of the bot project.
	Config project.Config

	// Runtime is the installed nonebot2 version, nil when undetectable.
	Runtime *semver.Version

	// Host is the version of the Python interpreter running the bot, nil when undetectable.
	Host *semver.Version
}

func (ctx EvaluationContext) clone() EvaluationContext {
	ctx.Config = ctx.Config.Clone()
	if ctx.Runtime != nil {
		v := *ctx.Runtime
		ctx.Runtime = &v
	}
	if ctx.Host != nil {
		v := *ctx.Host
		ctx.Host = &v
	}
	return ctx
}

// Finding represents a single diagnosis produced by a rule.
type Finding struct {
	// RuleID is the unique identifier of the rule that generated this finding.
	RuleID string `json:"rule_id"`

	// Severity is the severity level of the finding.
	Severity Severity `json:"severity"`

	// Message holds the human-readable lines of the finding, in display order.
	Message []string `json:"message"`
}

// Rule is a named predicate and handler pair.
type Rule struct {
	// ID is the unique identifier of the rule.
	ID string `json:"id"`

	// Name is the human-readable name of the rule.
	Name string `json:"name"`

	// Description is a detailed description of what the rule checks.
	Description string `json:"description"`

	// Severity is the default severity of findings from this rule.
	Severity Severity `json:"severity"`

	// Enabled indicates whether the rule is enabled.
	Enabled bool `json:"enabled"`

	// Predicate is a cheap, side-effect free test of the context.
	Predicate func(ctx *EvaluationContext) bool `json:"-"`

	// Handler builds the finding. It is only called when Predicate holds.
	// The engine stamps RuleID and, when left empty, Severity.
	Handler func(ctx *EvaluationContext) Finding `json:"-"`
}

// Result represents the overall result of a diagnosis.
type Result struct {
	// Findings is the list of all findings in evaluation order.
	Findings []Finding `json:"findings"`

	// Summary contains aggregated statistics.
	Summary Summary `json:"summary"`

	// Passed indicates whether the diagnosis found no errors.
	Passed bool `json:"passed"`
}

// Summary contains aggregated statistics about the findings.
type Summary struct {
	// TotalFindings is the total number of findings.
	TotalFindings int `json:"total_findings"`

	// ErrorCount is the number of error-level findings.
	ErrorCount int `json:"error_count"`

	// WarningCount is the number of warning-level findings.
	WarningCount int `json:"warning_count"`

	// InfoCount is the number of info-level findings.
	InfoCount int `json:"info_count"`
}

// HasErrors returns true if there are any error-level findings.
func (r *Result) HasErrors() bool {
	return r.Summary.ErrorCount > 0
}

// HasWarnings returns true if there are any warning-level findings.
func (r *Result) HasWarnings() bool {
	return r.Summary.WarningCount > 0
}
