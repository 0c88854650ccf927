package rules

import (
	"fmt"

	"github.com/NCBM/nonediag/internal/semver"
)

// Both checks need both versions; a missing one means no finding.

func (rs *ruleSet) runtimeTooOld(ctx *EvaluationContext) bool {
	if ctx.Runtime == nil || ctx.Host == nil {
		return false
	}
	return ctx.Host.AtLeast(semver.ModernInterpreter) && ctx.Runtime.Less(semver.Python311SupportSince)
}

func (rs *ruleSet) unsupportedOldInterpreter(ctx *EvaluationContext) Finding {
	return Finding{Message: []string{
		fmt.Sprintf("nonebot2 %s does not support Python %s yet", ctx.Runtime, ctx.Host),
		"Solution:",
		fmt.Sprintf("  1. use an older Python (>=%s,<%s)", pyVersion(semver.OldInterpreterFloor), pyVersion(semver.ModernInterpreter)),
		fmt.Sprintf("  2. or upgrade nonebot2 to %s or newer", semver.Python311SupportSince),
		"    pip install -U nonebot2",
	}}
}

func (rs *ruleSet) runtimeTooNew(ctx *EvaluationContext) bool {
	if ctx.Runtime == nil || ctx.Host == nil {
		return false
	}
	return ctx.Host.Less(semver.OldInterpreterFloor) && ctx.Runtime.AtLeast(semver.Python37DroppedSince)
}

func (rs *ruleSet) unsupportedNewInterpreter(ctx *EvaluationContext) Finding {
	return Finding{Message: []string{
		fmt.Sprintf("nonebot2 %s no longer supports Python %s", ctx.Runtime, ctx.Host),
		"Solution:",
		fmt.Sprintf("  1. use a newer Python (>=%s)", pyVersion(semver.OldInterpreterFloor)),
		fmt.Sprintf("  2. or install a nonebot2 release older than %s", semver.Python37DroppedSince),
		fmt.Sprintf("    pip install \"nonebot2<%s\"", semver.Python37DroppedSince),
	}}
}

// pyVersion drops the patch component, matching how Python requirements are usually written.
func pyVersion(v semver.Version) string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}
