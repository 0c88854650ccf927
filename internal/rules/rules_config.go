package rules

import (
	"fmt"
	"sort"
	"strings"
)

func (rs *ruleSet) hasNoAdapters(ctx *EvaluationContext) bool {
	return len(ctx.Config.Adapters) == 0
}

func (rs *ruleSet) noAdapters(ctx *EvaluationContext) Finding {
	return Finding{Message: []string{
		"No adapter is registered",
		"Possible causes:",
		"  1. no adapter was selected (with the space key) when the project was created with nb-cli",
		"  2. bot.py registers adapters in a way that could not be recognised",
		"Solution:",
		"  1. create the project again with nb-cli",
		"    nb create",
		"  2. add the adapter you need by hand",
		"    nb adapter list",
		"    nb adapter install nonebot-adapter-xxx",
	}}
}

func (rs *ruleSet) hasBadUserImport(ctx *EvaluationContext) bool {
	return len(ctx.Config.UserLoad) > 0
}

func (rs *ruleSet) badUserImport(ctx *EvaluationContext) Finding {
	lines := []string{"bot.py contains suspicious imports:"}
	for _, imp := range ctx.Config.UserLoad {
		lines = append(lines, "  "+imp)
	}
	lines = append(lines,
		"Plugins imported directly may be loaded twice or before nonebot.init()",
		"Solution:",
		"  load plugins with nonebot.load_plugin(...) or list them under [tool.nonebot] in pyproject.toml",
	)
	return Finding{Message: lines}
}

func (rs *ruleSet) unknownBuiltins(ctx *EvaluationContext) []string {
	var unknown []string
	for _, name := range ctx.Config.Builtin {
		if !rs.builtins[name] {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

func (rs *ruleSet) hasUnknownBuiltin(ctx *EvaluationContext) bool {
	return len(ctx.Config.Builtin) > 0 && len(rs.unknownBuiltins(ctx)) > 0
}

func (rs *ruleSet) unknownBuiltin(ctx *EvaluationContext) Finding {
	lines := []string{"Unknown built-in plugins are loaded:"}
	for _, name := range rs.unknownBuiltins(ctx) {
		lines = append(lines, "  "+name)
	}

	known := make([]string, 0, len(rs.builtins))
	for name := range rs.builtins {
		known = append(known, name)
	}
	sort.Strings(known)

	lines = append(lines,
		fmt.Sprintf("Known built-in plugins: %s", strings.Join(known, ", ")),
		"Solution:",
		"  remove them from nonebot.load_builtin_plugins(...) or builtin_plugins,",
		"  or load them as ordinary plugins with nonebot.load_plugin(...)",
	)
	return Finding{Message: lines}
}
