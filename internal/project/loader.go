package project

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Loader assembles the configuration record of a bot project.
type Loader struct {
	logger *zap.Logger
}

// NewLoader creates a Loader. A nil logger disables logging.
func NewLoader(logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{logger: logger}
}

// Load reads botFile, which is either a bot.py entry script or a pyproject.toml,
// and merges the descriptor it refers to. Relative paths in the result are
// resolved against the directory of botFile.
func (l *Loader) Load(botFile string) (Config, error) {
	botFile, err := filepath.Abs(botFile)
	if err != nil {
		return Config{}, fmt.Errorf("failed to resolve bot file: %w", err)
	}
	home := filepath.Dir(botFile)

	var cfg Config
	if strings.HasSuffix(botFile, ".toml") {
		cfg.TOMLPath = botFile
	} else {
		f, err := openBotFile(botFile)
		if err != nil {
			return Config{}, err
		}
		defer f.Close()

		cfg, err = ScanBotScript(f)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read %s: %w", botFile, err)
		}
		cfg.Plugins = withOrigin(cfg.Plugins, botFile)
		if cfg.TOMLPath == "" {
			cfg.TOMLPath = DefaultTOMLPath
		}
		if !filepath.IsAbs(cfg.TOMLPath) {
			cfg.TOMLPath = filepath.Join(home, cfg.TOMLPath)
		}
	}
	cfg.BotFile = botFile

	desc, err := l.readDescriptor(cfg.TOMLPath, botFile == cfg.TOMLPath)
	if err != nil {
		return Config{}, err
	}
	cfg.Adapters = appendUnique(cfg.Adapters, desc.Adapters...)
	cfg.Plugins = appendRefs(cfg.Plugins, withOrigin(desc.Plugins, cfg.TOMLPath)...)
	cfg.PluginDirs = appendUnique(cfg.PluginDirs, desc.PluginDirs...)
	cfg.Builtin = appendUnique(cfg.Builtin, desc.Builtin...)

	for _, dir := range cfg.PluginDirs {
		cfg.Plugins = appendRefs(cfg.Plugins, l.discoverPlugins(home, dir)...)
	}

	l.logger.Debug("project configuration loaded",
		zap.String("bot_file", cfg.BotFile),
		zap.String("toml", cfg.TOMLPath),
		zap.Strings("adapters", cfg.Adapters),
		zap.Strings("plugins", cfg.PluginNames()),
		zap.Strings("plugin_dirs", cfg.PluginDirs),
		zap.Strings("builtin", cfg.Builtin),
		zap.Int("userload", len(cfg.UserLoad)))

	return cfg.Normalize(), nil
}

// readDescriptor reads the pyproject.toml at path. A missing descriptor is
// only an error when it was named as the bot file itself.
func (l *Loader) readDescriptor(path string, required bool) (Config, error) {
	f, err := openBotFile(path)
	if err != nil {
		if !required && errors.Is(err, ErrNoBotFile) {
			l.logger.Debug("no pyproject.toml found", zap.String("path", path))
			return Config{}, nil
		}
		return Config{}, err
	}
	defer f.Close()

	cfg, err := ReadDescriptor(f)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// discoverPlugins lists the plugin modules nonebot.load_plugins would find
// in dir: packages and single-file modules not starting with "_" or ".".
func (l *Loader) discoverPlugins(home, dir string) []PluginRef {
	path := dir
	if !filepath.IsAbs(path) {
		path = filepath.Join(home, dir)
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		l.logger.Debug("cannot list plugin directory", zap.String("dir", path), zap.Error(err))
		return nil
	}

	var found []PluginRef
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".") {
			continue
		}
		switch {
		case entry.IsDir():
			if _, err := os.Stat(filepath.Join(path, name, "__init__.py")); err != nil {
				continue
			}
		case strings.HasSuffix(name, ".py"):
			name = strings.TrimSuffix(name, ".py")
		default:
			continue
		}
		found = append(found, PluginRef{Name: name, Origin: dir})
	}
	return found
}

func withOrigin(plugins []PluginRef, origin string) []PluginRef {
	out := make([]PluginRef, 0, len(plugins))
	for _, p := range plugins {
		p.Origin = origin
		out = append(out, p)
	}
	return out
}

func openBotFile(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoBotFile, path)
		}
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return f, nil
}

// ReadLog returns the captured log at path, or the contents of stdin when path is "-".
func ReadLog(path string, stdin io.Reader) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read log from stdin: %w", err)
		}
		return strings.ToValidUTF8(string(data), "\uFFFD"), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read log %s: %w", path, err)
	}
	return strings.ToValidUTF8(string(data), "\uFFFD"), nil
}
