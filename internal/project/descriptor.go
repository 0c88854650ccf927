package project

import (
	"fmt"
	"io"
	"sort"

	"github.com/pelletier/go-toml/v2"
)

type pyproject struct {
	Tool struct {
		NoneBot descriptor `toml:"nonebot"`
	} `toml:"tool"`
}

// descriptor is the [tool.nonebot] table. adapters and plugins come in two
// shapes: flat lists (older nb-cli) and tables keyed by package name.
type descriptor struct {
	Adapters       any      `toml:"adapters"`
	Plugins        any      `toml:"plugins"`
	PluginDirs     []string `toml:"plugin_dirs"`
	BuiltinPlugins []string `toml:"builtin_plugins"`
}

// ReadDescriptor reads the [tool.nonebot] table of a pyproject.toml into a Config.
func ReadDescriptor(r io.Reader) (Config, error) {
	var doc pyproject
	if err := toml.NewDecoder(r).Decode(&doc); err != nil {
		return Config{}, fmt.Errorf("failed to parse pyproject.toml: %w", err)
	}

	d := doc.Tool.NoneBot
	var cfg Config
	cfg.Adapters = appendUnique(cfg.Adapters, adapterModules(d.Adapters)...)
	cfg.Plugins = appendRefs(cfg.Plugins, refs("", pluginNames(d.Plugins)...)...)
	cfg.PluginDirs = appendUnique(cfg.PluginDirs, d.PluginDirs...)
	cfg.Builtin = appendUnique(cfg.Builtin, d.BuiltinPlugins...)
	return cfg, nil
}

// adapterModules accepts
//
//	adapters = [{ name = "OneBot V11", module_name = "nonebot.adapters.onebot.v11" }]
//	adapters = { "nonebot-adapter-onebot" = [{ name = "...", module_name = "..." }] }
func adapterModules(v any) []string {
	var out []string
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			if entry, ok := item.(map[string]any); ok {
				if module, ok := entry["module_name"].(string); ok {
					out = append(out, module)
				}
			}
		}
	case map[string]any:
		for _, key := range sortedKeys(t) {
			out = append(out, adapterModules(t[key])...)
		}
	}
	return out
}

// pluginNames accepts
//
//	plugins = ["nonebot_plugin_status"]
//	plugins = { "@local" = ["mine"], "nonebot-plugin-status" = ["nonebot_plugin_status"] }
func pluginNames(v any) []string {
	var out []string
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			if name, ok := item.(string); ok {
				out = append(out, name)
			}
		}
	case map[string]any:
		for _, key := range sortedKeys(t) {
			out = append(out, pluginNames(t[key])...)
		}
	}
	return out
}

// sortedKeys keeps table-shaped descriptors deterministic.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
