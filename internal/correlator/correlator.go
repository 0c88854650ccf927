// Package correlator cross-references plugin names reported in a log with
// the places a bot project loads those plugins from.
package correlator

import (
	"regexp"
	"strings"

	"github.com/NCBM/nonediag/internal/project"
)

// SourceKind is the way a plugin gets loaded.
type SourceKind string

const (
	SourceEntryScript SourceKind = "entry_script"
	SourceDescriptor  SourceKind = "descriptor"
	SourcePluginDir   SourceKind = "plugin_dir"
	SourceImport      SourceKind = "import"
)

// Source is one place that loads a plugin.
type Source struct {
	// Kind is how the plugin is loaded.
	Kind SourceKind

	// Module is the module path or, for direct imports, the import line.
	Module string

	// Origin is the file or directory responsible.
	Origin string
}

// PluginSources lists every source of a single plugin.
type PluginSources struct {
	Plugin  string
	Sources []Source
}

// Duplicated reports whether the plugin is loaded from more than one place.
func (p PluginSources) Duplicated() bool {
	return len(p.Sources) > 1
}

// CorrelationResult holds the sources of each requested plugin in request order.
type CorrelationResult struct {
	Plugins []PluginSources
}

// Correlator matches plugin names against a project configuration.
type Correlator struct{}

// NewCorrelator creates a new correlator.
func NewCorrelator() *Correlator {
	return &Correlator{}
}

var (
	fromImportPattern = regexp.MustCompile(`^from\s+([\w.]+)\s+import\s+\(?([^)#]*)`)
	importPattern     = regexp.MustCompile(`^import\s+([^#]+)`)
)

// Locate returns every place cfg loads the plugin registered as name.
func (c *Correlator) Locate(name string, cfg project.Config) PluginSources {
	result := PluginSources{Plugin: name}

	for _, ref := range cfg.Plugins {
		if ref.PluginName() != name && ref.Name != name {
			continue
		}
		result.Sources = append(result.Sources, Source{
			Kind:   c.kindOf(ref, cfg),
			Module: ref.Name,
			Origin: ref.Origin,
		})
	}

	for _, line := range cfg.UserLoad {
		if !importsName(line, name) {
			continue
		}
		result.Sources = append(result.Sources, Source{
			Kind:   SourceImport,
			Module: line,
			Origin: cfg.BotFile,
		})
	}

	return result
}

// CorrelateAll locates each plugin in names.
func (c *Correlator) CorrelateAll(names []string, cfg project.Config) *CorrelationResult {
	result := &CorrelationResult{}
	for _, name := range names {
		result.Plugins = append(result.Plugins, c.Locate(name, cfg))
	}
	return result
}

func (c *Correlator) kindOf(ref project.PluginRef, cfg project.Config) SourceKind {
	switch {
	case ref.Origin != "" && ref.Origin == cfg.TOMLPath:
		return SourceDescriptor
	case ref.Origin != "" && ref.Origin == cfg.BotFile:
		return SourceEntryScript
	default:
		return SourcePluginDir
	}
}

// importsName reports whether an import line brings in a module that has
// name as one of its dotted components.
func importsName(line, name string) bool {
	line = strings.TrimSpace(line)
	var modules []string
	if m := fromImportPattern.FindStringSubmatch(line); m != nil {
		modules = append(modules, m[1])
		for _, imported := range splitImportList(m[2]) {
			modules = append(modules, m[1]+"."+imported)
		}
	} else if m := importPattern.FindStringSubmatch(line); m != nil {
		modules = splitImportList(m[1])
	}
	for _, module := range modules {
		if hasComponent(module, name) {
			return true
		}
	}
	return false
}

// splitImportList turns "a.b as c, d" into [a.b d].
func splitImportList(list string) []string {
	var out []string
	for _, item := range strings.Split(list, ",") {
		fields := strings.Fields(item)
		if len(fields) == 0 {
			continue
		}
		out = append(out, fields[0])
	}
	return out
}

func hasComponent(module, name string) bool {
	for _, part := range strings.Split(module, ".") {
		if part == name {
			return true
		}
	}
	return false
}

// Describe renders a source as a single human-readable line.
func (s Source) Describe() string {
	switch s.Kind {
	case SourceEntryScript:
		return "nonebot.load_plugin(\"" + s.Module + "\") in " + s.Origin
	case SourceDescriptor:
		return "plugins = [\"" + s.Module + "\"] in " + s.Origin
	case SourcePluginDir:
		return "module " + s.Module + " found in plugin directory " + s.Origin
	case SourceImport:
		return "direct import `" + s.Module + "` in " + s.Origin
	default:
		return s.Module
	}
}
