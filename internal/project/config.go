// Package project builds the configuration snapshot of a NoneBot2 bot
// project from its entry script and pyproject.toml descriptor.
package project

import (
	"errors"
	"slices"
	"strings"
)

// ErrNoBotFile is returned when the entry script or descriptor does not exist.
var ErrNoBotFile = errors.New("bot file not found")

// Config is the configuration record of a bot project.
type Config struct {
	// BotFile is the entry script or descriptor the record was built from.
	BotFile string `json:"bot_file"`

	// TOMLPath is the pyproject.toml the project loads its settings from.
	TOMLPath string `json:"toml_path"`

	// Adapters lists the adapter modules registered by the project.
	Adapters []string `json:"adapters"`

	// UserLoad lists user-authored import lines judged suspicious, verbatim.
	UserLoad []string `json:"userload"`

	// Builtin lists the built-in plugins the project loads.
	Builtin []string `json:"builtin"`

	// PluginDirs lists the directories plugins are loaded from.
	PluginDirs []string `json:"plugin_dirs"`

	// Plugins lists every plugin the project loads together with where it is
	// loaded from. A plugin loaded twice appears twice.
	Plugins []PluginRef `json:"plugins"`
}

// PluginRef is one place a plugin is loaded from.
type PluginRef struct {
	// Name is the module path as written, e.g. "src.plugins.weather".
	Name string `json:"name"`

	// Origin is the bot.py, pyproject.toml or plugin directory that loads it.
	Origin string `json:"origin"`
}

// PluginName is the name nonebot2 registers the plugin under: the last
// component of its module path.
func (p PluginRef) PluginName() string {
	if i := strings.LastIndex(p.Name, "."); i >= 0 {
		return p.Name[i+1:]
	}
	return p.Name
}

// PluginNames returns the module paths of c.Plugins in order.
func (c Config) PluginNames() []string {
	names := make([]string, 0, len(c.Plugins))
	for _, p := range c.Plugins {
		names = append(names, p.Name)
	}
	return names
}

// Normalize replaces nil sequences with empty ones so that an absent field
// and an empty field look the same to consumers.
func (c Config) Normalize() Config {
	c.Adapters = orEmpty(c.Adapters)
	c.UserLoad = orEmpty(c.UserLoad)
	c.Builtin = orEmpty(c.Builtin)
	c.PluginDirs = orEmpty(c.PluginDirs)
	if c.Plugins == nil {
		c.Plugins = []PluginRef{}
	}
	return c
}

// Clone returns a copy of c that shares no backing arrays with it.
func (c Config) Clone() Config {
	c.Adapters = slices.Clone(c.Adapters)
	c.UserLoad = slices.Clone(c.UserLoad)
	c.Builtin = slices.Clone(c.Builtin)
	c.PluginDirs = slices.Clone(c.PluginDirs)
	c.Plugins = slices.Clone(c.Plugins)
	return c
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// appendUnique appends the values of add missing from dst, keeping first-seen order.
func appendUnique(dst []string, add ...string) []string {
	for _, v := range add {
		if v == "" {
			continue
		}
		found := false
		for _, existing := range dst {
			if existing == v {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, v)
		}
	}
	return dst
}

func refs(origin string, names ...string) []PluginRef {
	out := make([]PluginRef, 0, len(names))
	for _, name := range names {
		out = append(out, PluginRef{Name: name, Origin: origin})
	}
	return out
}

// appendRefs appends the refs of add not already present with the same origin.
func appendRefs(dst []PluginRef, add ...PluginRef) []PluginRef {
	for _, ref := range add {
		if ref.Name == "" {
			continue
		}
		found := false
		for _, existing := range dst {
			if existing == ref {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, ref)
		}
	}
	return dst
}
