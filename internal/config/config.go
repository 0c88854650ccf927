// Package config loads the optional nonediag configuration file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the configuration file looked up in the bot directory.
const FileName = ".nonediag.yaml"

// Config holds the tool settings. Command-line flags take precedence over it.
type Config struct {
	// Output is the report format: cli, json or csv.
	Output string `yaml:"output"`

	Logging struct {
		Level  string `yaml:"level"`  // "debug"|"info"|"warn"|"error"
		Format string `yaml:"format"` // "json"|"console"
	} `yaml:"logging"`

	Rules struct {
		Disabled         []string `yaml:"disabled"`
		BuiltinAllowlist []string `yaml:"builtin_allowlist"`
		ExcerptLines     int      `yaml:"excerpt_lines"`
	} `yaml:"rules"`

	Probe struct {
		Python  string        `yaml:"python"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"probe"`
}

// Default returns the built-in settings.
func Default() Config {
	var c Config
	c.Output = "cli"
	c.Logging.Level = "warn"
	c.Logging.Format = "console"
	c.Rules.ExcerptLines = 3
	c.Probe.Python = "python"
	c.Probe.Timeout = 10 * time.Second
	return c
}

// Load reads the file at path on top of the defaults, then applies
// environment overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	c := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return c, fmt.Errorf("failed to read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(b, &c); err != nil {
				return c, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}
	applyEnvOverrides(&c)
	return c, c.Validate()
}

// Locate returns the explicit path if given, otherwise FileName in dir.
func Locate(explicit, dir string) string {
	if explicit != "" {
		return explicit
	}
	return filepath.Join(dir, FileName)
}

func applyEnvOverrides(c *Config) {
	if v := os.Getenv("NONEDIAG_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("NONEDIAG_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("NONEDIAG_OUTPUT"); v != "" {
		c.Output = v
	}
	if v := os.Getenv("NONEDIAG_PYTHON"); v != "" {
		c.Probe.Python = v
	}
	if v := os.Getenv("NONEDIAG_EXCERPT_LINES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Rules.ExcerptLines = n
		}
	}
}

// Validate checks the enumerated settings.
func (c Config) Validate() error {
	switch strings.ToLower(c.Output) {
	case "cli", "json", "csv":
	default:
		return fmt.Errorf("unsupported output format %q (want cli, json or csv)", c.Output)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("unsupported log format %q (want json or console)", c.Logging.Format)
	}
	if c.Rules.ExcerptLines < 1 {
		return fmt.Errorf("rules.excerpt_lines must be positive, got %d", c.Rules.ExcerptLines)
	}
	return nil
}
