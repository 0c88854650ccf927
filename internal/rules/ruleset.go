package rules

import (
	"strings"

	"github.com/NCBM/nonediag/internal/correlator"
)

// Rule IDs, in evaluation order.
const (
	RuleDuplicateImport           = "duplicate-import"
	RuleNoAdapters                = "no-adapters"
	RuleBadUserImport             = "bad-user-import"
	RuleBuiltinCheck              = "builtin-check"
	RulePortInUse                 = "port-in-use"
	RuleModuleNotFound            = "module-not-found"
	RuleNotImplemented            = "not-implemented"
	RuleTypeNotSubscriptable      = "type-not-subscriptable"
	RuleStateImportMissing        = "state-import-missing"
	RuleExportMissing             = "export-missing"
	RuleUnsupportedOldInterpreter = "unsupported-old-interpreter"
	RuleUnsupportedNewInterpreter = "unsupported-new-interpreter"
)

// DefaultExcerptLines is the number of log lines shown around a subscript error.
const DefaultExcerptLines = 3

// KnownBuiltinPlugins are the built-in plugins shipped with nonebot2.
var KnownBuiltinPlugins = []string{"echo", "single_session"}

// Settings tunes the default rule set.
type Settings struct {
	// BuiltinAllowlist extends KnownBuiltinPlugins.
	BuiltinAllowlist []string

	// ExcerptLines is the size of the log window shown by type-not-subscriptable.
	ExcerptLines int
}

type ruleSet struct {
	builtins     map[string]bool
	excerptLines int
	correlator   *correlator.Correlator
}

func newRuleSet(s Settings) *ruleSet {
	rs := &ruleSet{
		builtins:     make(map[string]bool),
		excerptLines: s.ExcerptLines,
		correlator:   correlator.NewCorrelator(),
	}
	if rs.excerptLines <= 0 {
		rs.excerptLines = DefaultExcerptLines
	}
	for _, name := range KnownBuiltinPlugins {
		rs.builtins[name] = true
	}
	for _, name := range s.BuiltinAllowlist {
		rs.builtins[strings.TrimSpace(name)] = true
	}
	return rs
}

// DefaultRules returns the diagnostic rules in their evaluation order. The
// order is also the order findings are reported in.
func DefaultRules(s Settings) []Rule {
	rs := newRuleSet(s)
	return []Rule{
		{
			ID:          RuleDuplicateImport,
			Name:        "Duplicate Plugin Import",
			Description: "A plugin was loaded more than once",
			Severity:    SeverityWarning,
			Enabled:     true,
			Predicate:   rs.hasDuplicateImport,
			Handler:     rs.duplicateImport,
		},
		{
			ID:          RuleNoAdapters,
			Name:        "No Adapters",
			Description: "The project registers no adapter",
			Severity:    SeverityError,
			Enabled:     true,
			Predicate:   rs.hasNoAdapters,
			Handler:     rs.noAdapters,
		},
		{
			ID:          RuleBadUserImport,
			Name:        "Suspicious Import",
			Description: "bot.py imports modules that should be loaded as plugins",
			Severity:    SeverityWarning,
			Enabled:     true,
			Predicate:   rs.hasBadUserImport,
			Handler:     rs.badUserImport,
		},
		{
			ID:          RuleBuiltinCheck,
			Name:        "Unknown Built-in Plugin",
			Description: "A built-in plugin that nonebot2 does not ship is loaded",
			Severity:    SeverityWarning,
			Enabled:     true,
			Predicate:   rs.hasUnknownBuiltin,
			Handler:     rs.unknownBuiltin,
		},
		{
			ID:          RulePortInUse,
			Name:        "Port In Use",
			Description: "The listening port is occupied or reserved",
			Severity:    SeverityError,
			Enabled:     true,
			Predicate:   rs.hasPortInUse,
			Handler:     rs.portInUse,
		},
		{
			ID:          RuleModuleNotFound,
			Name:        "Missing Module",
			Description: "A Python module required by the bot is not installed",
			Severity:    SeverityError,
			Enabled:     true,
			Predicate:   rs.hasModuleNotFound,
			Handler:     rs.moduleNotFound,
		},
		{
			ID:          RuleNotImplemented,
			Name:        "Not Implemented",
			Description: "A plugin calls an abstract method that was never implemented",
			Severity:    SeverityWarning,
			Enabled:     true,
			Predicate:   rs.hasNotImplemented,
			Handler:     rs.notImplemented,
		},
		{
			ID:          RuleTypeNotSubscriptable,
			Name:        "Generic Subscript On Old Python",
			Description: "Built-in types are subscripted on a Python older than 3.9",
			Severity:    SeverityError,
			Enabled:     true,
			Predicate:   rs.hasTypeNotSubscriptable,
			Handler:     rs.typeNotSubscriptable,
		},
		{
			ID:          RuleStateImportMissing,
			Name:        "State Import Missing",
			Description: "nonebot.params.State cannot be imported",
			Severity:    SeverityError,
			Enabled:     true,
			Predicate:   rs.hasStateImportMissing,
			Handler:     rs.stateImportMissing,
		},
		{
			ID:          RuleExportMissing,
			Name:        "Export Missing",
			Description: "nonebot.export cannot be imported",
			Severity:    SeverityError,
			Enabled:     true,
			Predicate:   rs.hasExportMissing,
			Handler:     rs.exportMissing,
		},
		{
			ID:          RuleUnsupportedOldInterpreter,
			Name:        "nonebot2 Too Old For Python",
			Description: "The installed nonebot2 does not support the running Python yet",
			Severity:    SeverityError,
			Enabled:     true,
			Predicate:   rs.runtimeTooOld,
			Handler:     rs.unsupportedOldInterpreter,
		},
		{
			ID:          RuleUnsupportedNewInterpreter,
			Name:        "nonebot2 Too New For Python",
			Description: "The installed nonebot2 no longer supports the running Python",
			Severity:    SeverityError,
			Enabled:     true,
			Predicate:   rs.runtimeTooNew,
			Handler:     rs.unsupportedNewInterpreter,
		},
	}
}
