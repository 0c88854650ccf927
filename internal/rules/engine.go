package rules

import (
	"go.uber.org/zap"
)

// Engine evaluates an ordered rule set against an EvaluationContext.
type Engine struct {
	rules  []*Rule
	index  map[string]*Rule
	logger *zap.Logger
}

// Option configures an Engine.
type Option func(*engineOptions)

type engineOptions struct {
	logger   *zap.Logger
	rules    []Rule
	disabled []string
	settings Settings
}

// WithLogger sets the logger used to report rule failures.
func WithLogger(logger *zap.Logger) Option {
	return func(o *engineOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRules replaces the default rule set. Declaration order is kept.
func WithRules(rules []Rule) Option {
	return func(o *engineOptions) {
		o.rules = rules
	}
}

// WithDisabled disables the rules with the given IDs.
func WithDisabled(ids ...string) Option {
	return func(o *engineOptions) {
		o.disabled = append(o.disabled, ids...)
	}
}

// WithSettings tunes the default rule set.
func WithSettings(s Settings) Option {
	return func(o *engineOptions) {
		o.settings = s
	}
}

// NewEngine creates a new rules engine with the default rules.
func NewEngine(opts ...Option) *Engine {
	o := engineOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.rules == nil {
		o.rules = DefaultRules(o.settings)
	}

	e := &Engine{
		rules:  make([]*Rule, 0, len(o.rules)),
		index:  make(map[string]*Rule, len(o.rules)),
		logger: o.logger,
	}
	for i := range o.rules {
		r := o.rules[i]
		e.rules = append(e.rules, &r)
		e.index[r.ID] = &r
	}
	for _, id := range o.disabled {
		e.DisableRule(id)
	}
	return e
}

// Evaluate runs every enabled rule in declaration order and returns the
// findings of the rules whose predicate held. A rule that panics is logged
// and skipped; it never prevents later rules from running.
func (e *Engine) Evaluate(ctx EvaluationContext) []Finding {
	findings := make([]Finding, 0)

	for _, r := range e.rules {
		if !r.Enabled {
			continue
		}
		// each rule gets its own deep copy; nothing a rule writes reaches the next one
		local := ctx.clone()
		if f, ok := e.evaluateRule(r, &local); ok {
			findings = append(findings, f)
		}
	}

	if ctx.Runtime == nil || ctx.Host == nil {
		e.logger.Debug("version information incomplete, compatibility checks skipped",
			zap.Bool("runtime_known", ctx.Runtime != nil),
			zap.Bool("host_known", ctx.Host != nil))
	}

	return findings
}

func (e *Engine) evaluateRule(r *Rule, ctx *EvaluationContext) (f Finding, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Warn("rule evaluation failed",
				zap.String("rule", r.ID),
				zap.Any("panic", rec))
			f, ok = Finding{}, false
		}
	}()

	if r.Predicate == nil || r.Handler == nil || !r.Predicate(ctx) {
		return Finding{}, false
	}

	f = r.Handler(ctx)
	f.RuleID = r.ID
	if f.Severity == "" {
		f.Severity = r.Severity
	}
	f.Message = append([]string(nil), f.Message...)

	e.logger.Debug("rule triggered", zap.String("rule", r.ID), zap.String("severity", string(f.Severity)))
	return f, true
}

// Summarize counts the findings by severity. The findings are kept as given.
func (e *Engine) Summarize(findings []Finding) *Result {
	result := &Result{
		Findings: findings,
	}

	for _, f := range findings {
		result.Summary.TotalFindings++

		switch f.Severity {
		case SeverityError:
			result.Summary.ErrorCount++
		case SeverityWarning:
			result.Summary.WarningCount++
		case SeverityInfo:
			result.Summary.InfoCount++
		}
	}

	result.Passed = result.Summary.ErrorCount == 0

	return result
}

// ListRules returns all registered rules in declaration order.
func (e *Engine) ListRules() []Rule {
	rules := make([]Rule, 0, len(e.rules))
	for _, r := range e.rules {
		rules = append(rules, *r)
	}
	return rules
}

// GetRule returns a rule by ID.
func (e *Engine) GetRule(id string) *Rule {
	return e.index[id]
}

// EnableRule enables a rule by ID.
func (e *Engine) EnableRule(id string) {
	if r, ok := e.index[id]; ok {
		r.Enabled = true
	}
}

// DisableRule disables a rule by ID.
func (e *Engine) DisableRule(id string) {
	if r, ok := e.index[id]; ok {
		r.Enabled = false
	}
}

// IsRuleEnabled returns true if the rule is enabled.
func (e *Engine) IsRuleEnabled(id string) bool {
	if r, ok := e.index[id]; ok {
		return r.Enabled
	}
	return false
}
