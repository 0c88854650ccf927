// Package probe asks the Python interpreter that runs a bot for its own
// version and for the version of the installed nonebot2 distribution.
package probe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/NCBM/nonediag/internal/semver"
)

// DefaultTimeout bounds a single interpreter query.
const DefaultTimeout = 10 * time.Second

const (
	hostVersionScript    = "import platform; print(platform.python_version())"
	runtimeVersionScript = "import importlib.metadata as m; print(m.version('nonebot2'))"
)

// Runner runs the interpreter with args in dir and returns its standard output.
type Runner func(ctx context.Context, dir, python string, args ...string) ([]byte, error)

// Versions is what the probe found. A nil field was not detectable.
type Versions struct {
	Runtime *semver.Version `json:"runtime"`
	Host    *semver.Version `json:"host"`
}

// Options configures a Prober.
type Options struct {
	// Python is the interpreter to query. Defaults to "python".
	Python string

	// Dir is the working directory the interpreter runs in, usually the bot's home.
	Dir string

	// Timeout bounds each query. Defaults to DefaultTimeout.
	Timeout time.Duration

	// RuntimeOverride and HostOverride skip the matching query when set.
	RuntimeOverride string
	HostOverride    string
}

// Prober detects versions by running the interpreter.
type Prober struct {
	opts   Options
	run    Runner
	logger *zap.Logger
}

// New creates a Prober. A nil logger disables logging.
func New(opts Options, logger *zap.Logger) *Prober {
	if opts.Python == "" {
		opts.Python = "python"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Prober{opts: opts, run: execRunner, logger: logger}
}

// WithRunner replaces the process runner, for tests.
func (p *Prober) WithRunner(run Runner) *Prober {
	p.run = run
	return p
}

// Detect queries the interpreter for both versions concurrently. It never
// fails: a version that cannot be determined is left nil and logged.
func (p *Prober) Detect(ctx context.Context) Versions {
	var v Versions

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v.Host = p.version(gctx, "python", p.opts.HostOverride, hostVersionScript)
		return nil
	})
	g.Go(func() error {
		v.Runtime = p.version(gctx, "nonebot2", p.opts.RuntimeOverride, runtimeVersionScript)
		return nil
	})
	_ = g.Wait()

	return v
}

func (p *Prober) version(ctx context.Context, what, override, script string) *semver.Version {
	raw := override
	if raw == "" {
		ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()

		out, err := p.run(ctx, p.opts.Dir, p.opts.Python, "-c", script)
		if err != nil {
			p.logger.Debug("version probe failed",
				zap.String("target", what),
				zap.String("python", p.opts.Python),
				zap.Error(err))
			return nil
		}
		raw = firstLine(out)
	}

	parsed, err := semver.Parse(raw)
	if err != nil {
		p.logger.Debug("unparseable version",
			zap.String("target", what),
			zap.String("raw", raw),
			zap.Error(err))
		return nil
	}
	p.logger.Debug("version detected", zap.String("target", what), zap.Stringer("version", parsed))
	return &parsed
}

func firstLine(out []byte) string {
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	return strings.TrimSpace(line)
}

func execRunner(ctx context.Context, dir, python string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, python, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%s exited with %d: %s", python, exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
		}
		return nil, fmt.Errorf("failed to run %s: %w", python, err)
	}
	return stdout.Bytes(), nil
}
