package project

import (
	"bufio"
	"io"
	"regexp"
	"strings"
)

// DefaultTOMLPath is the descriptor used when the entry script does not name one.
const DefaultTOMLPath = "pyproject.toml"

var (
	adapterImportPattern = regexp.MustCompile(`^from\s+(nonebot\.adapters\.[\w.]+)\s+import\s+(.+)$`)
	registerPattern      = regexp.MustCompile(`\.register_adapter\(\s*([\w.]+)\s*\)`)
	builtinPattern       = regexp.MustCompile(`\b(?:nonebot\.)?load_builtin_plugins?\((.*)\)`)
	loadPluginPattern    = regexp.MustCompile(`\b(?:nonebot\.)?load_plugin\((.*)\)`)
	loadPluginsPattern   = regexp.MustCompile(`\b(?:nonebot\.)?load_plugins\((.*)\)`)
	loadTOMLPattern      = regexp.MustCompile(`\b(?:nonebot\.)?load_from_toml\(\s*["']([^"']+)["']`)
	fromImportPattern    = regexp.MustCompile(`^from\s+([\w.]+)\s+import\b`)
	importPattern        = regexp.MustCompile(`^import\s+([\w.]+)`)
	quotedPattern        = regexp.MustCompile(`["']([^"']+)["']`)
)

// trustedModules are top-level modules a generated entry script may import
// without being flagged.
var trustedModules = map[string]bool{
	"__future__": true,
	"nonebot":    true,
	"os":         true,
	"sys":        true,
	"pathlib":    true,
	"typing":     true,
	"asyncio":    true,
	"logging":    true,
	"json":       true,
}

// ScanBotScript builds a Config from the lines of a bot.py entry script.
// The scan is line based: calls spanning several lines are not recognised.
// Plugin origins are left empty for the caller to fill in.
func ScanBotScript(r io.Reader) (Config, error) {
	var cfg Config
	aliases := make(map[string]string) // imported adapter name -> module

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if matches := adapterImportPattern.FindStringSubmatch(line); matches != nil {
			for name, alias := range importedNames(matches[2]) {
				aliases[alias] = matches[1]
				aliases[matches[1]+"."+name] = matches[1]
			}
			continue
		}

		if matches := fromImportPattern.FindStringSubmatch(line); matches != nil {
			if !isTrustedModule(matches[1]) {
				cfg.UserLoad = append(cfg.UserLoad, line)
			}
			continue
		}
		if matches := importPattern.FindStringSubmatch(line); matches != nil {
			if !isTrustedModule(matches[1]) {
				cfg.UserLoad = append(cfg.UserLoad, line)
			}
			continue
		}

		if matches := registerPattern.FindStringSubmatch(line); matches != nil {
			module, ok := aliases[matches[1]]
			if !ok {
				module = matches[1]
			}
			cfg.Adapters = appendUnique(cfg.Adapters, module)
			continue
		}

		if matches := builtinPattern.FindStringSubmatch(line); matches != nil {
			cfg.Builtin = appendUnique(cfg.Builtin, quoted(matches[1])...)
			continue
		}
		if matches := loadPluginsPattern.FindStringSubmatch(line); matches != nil {
			cfg.PluginDirs = appendUnique(cfg.PluginDirs, quoted(matches[1])...)
			continue
		}
		if matches := loadPluginPattern.FindStringSubmatch(line); matches != nil {
			cfg.Plugins = appendRefs(cfg.Plugins, refs("", quoted(matches[1])...)...)
			continue
		}
		if matches := loadTOMLPattern.FindStringSubmatch(line); matches != nil {
			cfg.TOMLPath = matches[1]
		}
	}

	return cfg, scanner.Err()
}

// importedNames maps each name of "A as B, C" to the identifier it is bound to.
func importedNames(list string) map[string]string {
	names := make(map[string]string)
	list = strings.Trim(list, "() ")
	for _, part := range strings.Split(list, ",") {
		fields := strings.Fields(part)
		switch {
		case len(fields) == 1:
			names[fields[0]] = fields[0]
		case len(fields) == 3 && fields[1] == "as":
			names[fields[0]] = fields[2]
		}
	}
	return names
}

func isTrustedModule(module string) bool {
	top, _, _ := strings.Cut(module, ".")
	return trustedModules[top]
}

func quoted(args string) []string {
	var out []string
	for _, m := range quotedPattern.FindAllStringSubmatch(args, -1) {
		out = append(out, m[1])
	}
	return out
}
