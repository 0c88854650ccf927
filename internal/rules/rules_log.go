package rules

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/NCBM/nonediag/internal/semver"
)

// Log markers.
const (
	markerPluginExists      = "RuntimeError: Plugin already exists: "
	markerModuleNotFound    = "ModuleNotFoundError"
	markerNotImplemented    = "NotImplementedError"
	markerTypeSubscript     = "TypeError: 'type' object is not subscriptable"
	markerStateImportFailed = "ImportError: cannot import name 'State' from 'nonebot.params"
	markerExportImportFail  = "ImportError: cannot import name 'export' from 'nonebot'"
)

// addressInUseMarkers are the errno values for "address already in use" and
// "access denied" on bind across Windows, Linux and macOS.
var addressInUseMarkers = []string{
	"[Errno 10013]",
	"[Errno 10048]",
	"[Errno 98]",
	"[Errno 48]",
}

var (
	pluginExistsPattern = regexp.MustCompile(`Plugin already exists: ([^!\r\n]*)`)
	noModulePattern     = regexp.MustCompile(`No module named '([^']+)'`)
)

func (rs *ruleSet) hasDuplicateImport(ctx *EvaluationContext) bool {
	return strings.Contains(ctx.Log, markerPluginExists)
}

func (rs *ruleSet) duplicateImport(ctx *EvaluationContext) Finding {
	if ctx.Runtime == nil || ctx.Runtime.Less(semver.PluginMetadataSince) {
		version := "an unknown nonebot2 version"
		if ctx.Runtime != nil {
			version = "nonebot2 " + ctx.Runtime.String()
		}
		return manualDuplicateCheck("with " + version)
	}

	names := duplicatedPlugins(ctx.Log)
	if len(names) == 0 {
		return manualDuplicateCheck("because the log does not name the plugin")
	}
	result := rs.correlator.CorrelateAll(names, ctx.Config)

	var lines []string
	for _, plugin := range result.Plugins {
		lines = append(lines, fmt.Sprintf("Plugin %q is loaded more than once", plugin.Plugin))
		if len(plugin.Sources) == 0 {
			lines = append(lines, "  it is not loaded by bot.py or pyproject.toml; look for another plugin importing it")
			continue
		}
		for _, src := range plugin.Sources {
			lines = append(lines, "  - "+src.Describe())
		}
	}
	lines = append(lines,
		"Solution:",
		"  load every plugin in exactly one way and remove the other entries",
	)
	return Finding{Message: lines}
}

func manualDuplicateCheck(reason string) Finding {
	return Finding{Message: []string{
		"Duplicate imports cannot be analyzed automatically " + reason,
		"  please check bot.py for plugins that are imported or loaded twice",
	}}
}

// duplicatedPlugins returns the distinct plugin names reported as already
// existing, in order of first appearance. Quotes around a name are dropped.
func duplicatedPlugins(log string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range pluginExistsPattern.FindAllStringSubmatch(log, -1) {
		name := strings.Trim(strings.TrimSpace(m[1]), `"'`)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

func (rs *ruleSet) hasPortInUse(ctx *EvaluationContext) bool {
	for _, marker := range addressInUseMarkers {
		if strings.Contains(ctx.Log, marker) {
			return true
		}
	}
	return false
}

func (rs *ruleSet) portInUse(ctx *EvaluationContext) Finding {
	return Finding{Message: []string{
		"The port nonebot2 tries to listen on is not available",
		"Possible causes:",
		"  1. another program, or another instance of the bot, already uses the port",
		"  2. the port lies in a range reserved by the system (e.g. Hyper-V on Windows)",
		"Solution:",
		"  1. change PORT in .env, .env.prod or .env.dev",
		"  2. stop the process that holds the port",
	}}
}

func (rs *ruleSet) hasModuleNotFound(ctx *EvaluationContext) bool {
	return strings.Contains(ctx.Log, markerModuleNotFound)
}

func (rs *ruleSet) moduleNotFound(ctx *EvaluationContext) Finding {
	modules := firstSubmatches(noModulePattern, ctx.Log)
	if len(modules) == 0 {
		return Finding{Message: []string{
			"A required Python module is missing",
			"  find its name in the traceback and install it with pip or nb-cli",
		}}
	}

	var lines []string
	for _, module := range modules {
		lines = append(lines,
			fmt.Sprintf("Module %q is not installed", module),
			"  install it with: "+installCommand(module),
		)
	}
	return Finding{Message: lines}
}

// installCommand suggests how to install the distribution providing module.
func installCommand(module string) string {
	top, _, _ := strings.Cut(module, ".")
	switch {
	case strings.HasPrefix(module, "nonebot.adapters."):
		parts := strings.Split(module, ".")
		if parts[2] == "" {
			return "nb adapter list, then nb adapter install the adapter you need"
		}
		return "nb adapter install nonebot-adapter-" + strings.ReplaceAll(parts[2], "_", "-")
	case top == "nonebot":
		return "pip install nonebot2"
	case strings.HasPrefix(top, "nonebot_plugin_"):
		return "nb plugin install " + strings.ReplaceAll(top, "_", "-")
	default:
		return "pip install " + top
	}
}

func (rs *ruleSet) hasNotImplemented(ctx *EvaluationContext) bool {
	return strings.Contains(ctx.Log, markerNotImplemented)
}

func (rs *ruleSet) notImplemented(ctx *EvaluationContext) Finding {
	lines := []string{
		"Something called a method that is not implemented (NotImplementedError)",
		"  the adapter or driver in use may not support this feature",
	}
	if len(ctx.Config.PluginDirs) == 0 {
		lines = append(lines, "  check your plugins for an abstract method that was not overridden")
	}
	for _, dir := range ctx.Config.PluginDirs {
		lines = append(lines, fmt.Sprintf("  check the plugins in %s for an abstract method that was not overridden", dir))
	}
	return Finding{Message: lines}
}

func (rs *ruleSet) hasTypeNotSubscriptable(ctx *EvaluationContext) bool {
	return ctx.Host != nil &&
		ctx.Host.Less(semver.GenericSubscriptSince) &&
		strings.Contains(ctx.Log, markerTypeSubscript)
}

func (rs *ruleSet) typeNotSubscriptable(ctx *EvaluationContext) Finding {
	lines := []string{
		fmt.Sprintf("Python %s cannot subscript built-in types such as list[int] at runtime", ctx.Host),
	}

	if excerpt := lastExcerpt(splitLines(ctx.Log), markerTypeSubscript, rs.excerptLines); len(excerpt) > 0 {
		lines = append(lines, "Most recent occurrence:")
		for _, l := range excerpt {
			lines = append(lines, "    "+l)
		}
	}

	lines = append(lines,
		"Solution:",
		"  1. upgrade Python to 3.9 or newer",
		"  2. add `from __future__ import annotations` to the plugin, or use typing.List / typing.Dict",
	)
	return Finding{Message: lines}
}

// lastExcerpt walks lines from the newest to the oldest and returns the
// window of size lines ending at the first match, oldest line first.
func lastExcerpt(lines []string, marker string, size int) []string {
	for i := len(lines) - 1; i >= 0; i-- {
		if !strings.Contains(lines[i], marker) {
			continue
		}
		start := i - size + 1
		if start < 0 {
			start = 0
		}
		return append([]string(nil), lines[start:i+1]...)
	}
	return nil
}

func (rs *ruleSet) hasStateImportMissing(ctx *EvaluationContext) bool {
	return strings.Contains(ctx.Log, markerStateImportFailed)
}

func (rs *ruleSet) stateImportMissing(ctx *EvaluationContext) Finding {
	switch {
	case ctx.Runtime == nil:
		return Finding{Message: []string{
			"nonebot.params.State cannot be imported and the nonebot2 version is unknown",
			"Solution:",
			"  annotate the parameter as `state: T_State` (from nonebot.typing import T_State),",
			"  which works on every nonebot2 2.x release",
		}}
	case ctx.Runtime.Less(semver.StateParamSince):
		return Finding{Message: []string{
			fmt.Sprintf("nonebot2 %s predates nonebot.params.State (added in %s)", ctx.Runtime, semver.StateParamSince),
			"Solution:",
			"  1. upgrade nonebot2",
			"    pip install -U nonebot2",
			"  2. or annotate the parameter as `state: T_State` (from nonebot.typing import T_State)",
		}}
	default:
		return Finding{Message: []string{
			fmt.Sprintf("nonebot2 %s should provide nonebot.params.State but the import failed", ctx.Runtime),
			"  the bot probably runs in another environment or nonebot2 is installed incompletely",
			"Solution:",
			"  1. reinstall nonebot2 in the environment that runs the bot",
			"    pip install -U --force-reinstall nonebot2",
			"  2. or annotate the parameter as `state: T_State` (from nonebot.typing import T_State)",
		}}
	}
}

func (rs *ruleSet) hasExportMissing(ctx *EvaluationContext) bool {
	return strings.Contains(ctx.Log, markerExportImportFail)
}

func (rs *ruleSet) exportMissing(ctx *EvaluationContext) Finding {
	switch {
	case ctx.Runtime == nil:
		return Finding{Message: []string{
			"nonebot.export cannot be imported and the nonebot2 version is unknown",
			fmt.Sprintf("  export was removed in nonebot2 %s", semver.ExportRemovedIn),
			"Solution:",
			"  upgrade the plugin, or replace export() with module-level attributes read through require()",
		}}
	case ctx.Runtime.AtLeast(semver.ExportRemovedIn):
		return Finding{Message: []string{
			fmt.Sprintf("nonebot.export was removed in nonebot2 %s (installed: %s)", semver.ExportRemovedIn, ctx.Runtime),
			"  a plugin was written for an older nonebot2 API",
			"Solution:",
			"  1. upgrade the plugin to a release that supports nonebot2 2.x",
			"  2. replace export() with module-level attributes and read them from require(\"plugin\")",
		}}
	default:
		return Finding{Message: []string{
			fmt.Sprintf("nonebot2 %s still provides nonebot.export but the import failed", ctx.Runtime),
			"  the plugin may target another nonebot2 API, or nonebot2 is installed incompletely",
			"Solution:",
			"  1. upgrade the plugin to a release matching your nonebot2",
			"  2. reinstall nonebot2 in the environment that runs the bot",
			"    pip install -U --force-reinstall nonebot2",
		}}
	}
}

// splitLines returns the lines of log without their terminators. The log
// itself is left untouched.
func splitLines(log string) []string {
	lines := strings.Split(log, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// firstSubmatches returns the distinct first capture groups of re in s, in
// order of first appearance.
func firstSubmatches(re *regexp.Regexp, s string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range re.FindAllStringSubmatch(s, -1) {
		if seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		out = append(out, m[1])
	}
	return out
}
