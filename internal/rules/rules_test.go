package rules

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NCBM/nonediag/internal/project"
)

// findingFor evaluates ctx and returns the finding of rule id, if any.
func findingFor(t *testing.T, engine *Engine, ctx EvaluationContext, id string) (Finding, bool) {
	t.Helper()
	for _, f := range engine.Evaluate(ctx) {
		if f.RuleID == id {
			return f, true
		}
	}
	return Finding{}, false
}

func withAdapters(ctx EvaluationContext) EvaluationContext {
	ctx.Config.Adapters = []string{"nonebot.adapters.onebot.v11"}
	return ctx
}

func TestCompatibilityRules(t *testing.T) {
	tests := []struct {
		name    string
		runtime string
		host    string
		wantOld bool
		wantNew bool
	}{
		{name: "new python, nonebot2 before 3.11 support", runtime: "2.0.0", host: "3.11.0", wantOld: true},
		{name: "new python, nonebot2 with 3.11 support", runtime: "2.0.1", host: "3.11.0"},
		{name: "newer python, old nonebot2", runtime: "2.0.0rc3", host: "3.12.1", wantOld: true},
		{name: "python 3.10 is fine for any release", runtime: "2.0.0", host: "3.10.12"},
		{name: "python 3.7 with nonebot2 dropping it", runtime: "2.1.0", host: "3.7.16", wantNew: true},
		{name: "python 3.7 with nonebot2 still supporting it", runtime: "2.0.1", host: "3.7.16"},
		{name: "python 3.8 with latest nonebot2", runtime: "2.3.2", host: "3.8.0"},
	}

	engine := NewEngine()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := withAdapters(EvaluationContext{
				Runtime: versionPtr(tt.runtime),
				Host:    versionPtr(tt.host),
			})

			_, gotOld := findingFor(t, engine, ctx, RuleUnsupportedOldInterpreter)
			_, gotNew := findingFor(t, engine, ctx, RuleUnsupportedNewInterpreter)
			assert.Equal(t, tt.wantOld, gotOld, "unsupported-old-interpreter")
			assert.Equal(t, tt.wantNew, gotNew, "unsupported-new-interpreter")
		})
	}
}

func TestCompatibilityRules_NeedBothVersions(t *testing.T) {
	engine := NewEngine()
	contexts := []EvaluationContext{
		{Host: versionPtr("3.11.0")},
		{Runtime: versionPtr("2.0.0")},
		{Host: versionPtr("3.7.0")},
		{Runtime: versionPtr("2.1.0")},
	}
	for _, ctx := range contexts {
		findings := engine.Evaluate(withAdapters(ctx))
		assert.Empty(t, findings)
	}
}

func TestUnsupportedOldInterpreterMessage(t *testing.T) {
	ctx := withAdapters(EvaluationContext{Runtime: versionPtr("2.0.0"), Host: versionPtr("3.11.4")})

	f, ok := findingFor(t, NewEngine(), ctx, RuleUnsupportedOldInterpreter)
	require.True(t, ok)
	assert.Equal(t, SeverityError, f.Severity)
	assert.Equal(t, "nonebot2 2.0.0 does not support Python 3.11.4 yet", f.Message[0])
	assert.Contains(t, f.Message, "  2. or upgrade nonebot2 to 2.0.1 or newer")
}

func TestModuleNotFound(t *testing.T) {
	tests := []struct {
		name        string
		log         string
		wantCommand []string
	}{
		{
			name:        "plain module",
			log:         "ModuleNotFoundError: No module named 'foo'",
			wantCommand: []string{"pip install foo"},
		},
		{
			name:        "submodule installs top-level package",
			log:         "ModuleNotFoundError: No module named 'httpx._client'",
			wantCommand: []string{"pip install httpx"},
		},
		{
			name:        "adapter",
			log:         "ModuleNotFoundError: No module named 'nonebot.adapters.onebot_v12'",
			wantCommand: []string{"nb adapter install nonebot-adapter-onebot-v12"},
		},
		{
			name:        "nonebot itself",
			log:         "ModuleNotFoundError: No module named 'nonebot'",
			wantCommand: []string{"pip install nonebot2"},
		},
		{
			name:        "store plugin",
			log:         "ModuleNotFoundError: No module named 'nonebot_plugin_apscheduler'",
			wantCommand: []string{"nb plugin install nonebot-plugin-apscheduler"},
		},
		{
			name: "distinct modules in first-seen order",
			log: strings.Join([]string{
				"ModuleNotFoundError: No module named 'b'",
				"ModuleNotFoundError: No module named 'a'",
				"ModuleNotFoundError: No module named 'b'",
			}, "\n"),
			wantCommand: []string{"pip install b", "pip install a"},
		},
	}

	engine := NewEngine()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, ok := findingFor(t, engine, withAdapters(EvaluationContext{Log: tt.log}), RuleModuleNotFound)
			require.True(t, ok)

			var commands []string
			for _, line := range f.Message {
				if cmd, found := strings.CutPrefix(line, "  install it with: "); found {
					commands = append(commands, cmd)
				}
			}
			assert.Equal(t, tt.wantCommand, commands)
		})
	}
}

func TestModuleNotFound_WithoutModuleName(t *testing.T) {
	ctx := withAdapters(EvaluationContext{Log: "raise ModuleNotFoundError"})

	f, ok := findingFor(t, NewEngine(), ctx, RuleModuleNotFound)
	require.True(t, ok)
	assert.Equal(t, "A required Python module is missing", f.Message[0])
}

func TestDuplicateImport_OldRuntimeIsGeneric(t *testing.T) {
	ctx := withAdapters(EvaluationContext{
		Log:     "RuntimeError: Plugin already exists: weather! Check your plugin name",
		Runtime: versionPtr("1.9.0"),
	})

	f, ok := findingFor(t, NewEngine(), ctx, RuleDuplicateImport)
	require.True(t, ok)
	assert.Equal(t, SeverityWarning, f.Severity)
	assert.Equal(t, []string{
		"Duplicate imports cannot be analyzed automatically with nonebot2 1.9.0",
		"  please check bot.py for plugins that are imported or loaded twice",
	}, f.Message)
}

func TestDuplicateImport_UnknownRuntimeIsGeneric(t *testing.T) {
	ctx := withAdapters(EvaluationContext{Log: "RuntimeError: Plugin already exists: weather!"})

	f, ok := findingFor(t, NewEngine(), ctx, RuleDuplicateImport)
	require.True(t, ok)
	assert.Contains(t, f.Message[0], "an unknown nonebot2 version")
}

func TestDuplicateImport_NamesEverySource(t *testing.T) {
	ctx := EvaluationContext{
		Log: "RuntimeError: Plugin already exists: weather! Check your plugin name",
		Config: project.Config{
			BotFile:  "/bot/bot.py",
			TOMLPath: "/bot/pyproject.toml",
			Adapters: []string{"nonebot.adapters.console"},
			UserLoad: []string{"from src.plugins import weather"},
			Plugins: []project.PluginRef{
				{Name: "src.plugins.weather", Origin: "/bot/bot.py"},
				{Name: "echo_plus", Origin: "/bot/pyproject.toml"},
				{Name: "weather", Origin: "src/plugins"},
			},
		},
		Runtime: versionPtr("2.0.0"),
	}

	f, ok := findingFor(t, NewEngine(), ctx, RuleDuplicateImport)
	require.True(t, ok)
	assert.Equal(t, []string{
		`Plugin "weather" is loaded more than once`,
		`  - nonebot.load_plugin("src.plugins.weather") in /bot/bot.py`,
		"  - module weather found in plugin directory src/plugins",
		"  - direct import `from src.plugins import weather` in /bot/bot.py",
		"Solution:",
		"  load every plugin in exactly one way and remove the other entries",
	}, f.Message)
}

func TestDuplicateImport_UnlocatedPlugin(t *testing.T) {
	ctx := withAdapters(EvaluationContext{
		Log:     "RuntimeError: Plugin already exists: ghost!",
		Runtime: versionPtr("2.2.0"),
	})

	f, ok := findingFor(t, NewEngine(), ctx, RuleDuplicateImport)
	require.True(t, ok)
	assert.Equal(t, `Plugin "ghost" is loaded more than once`, f.Message[0])
	assert.Contains(t, f.Message[1], "not loaded by bot.py or pyproject.toml")
}

func TestBuiltinCheck(t *testing.T) {
	tests := []struct {
		name      string
		builtin   []string
		allowlist []string
		want      bool
		wantNames []string
	}{
		{name: "no builtins", builtin: nil},
		{name: "known builtins only", builtin: []string{"echo", "single_session"}},
		{name: "unknown builtin", builtin: []string{"echo", "haha"}, want: true, wantNames: []string{"  haha"}},
		{name: "allowlisted builtin", builtin: []string{"haha"}, allowlist: []string{" haha "}},
		{
			name:      "allowlist covers some",
			builtin:   []string{"haha", "hoho", "echo"},
			allowlist: []string{"hoho"},
			want:      true,
			wantNames: []string{"  haha"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := NewEngine(WithSettings(Settings{BuiltinAllowlist: tt.allowlist}))
			ctx := withAdapters(EvaluationContext{})
			ctx.Config.Builtin = tt.builtin

			f, ok := findingFor(t, engine, ctx, RuleBuiltinCheck)
			require.Equal(t, tt.want, ok)
			if !ok {
				return
			}
			assert.Equal(t, "Unknown built-in plugins are loaded:", f.Message[0])
			assert.Equal(t, tt.wantNames, f.Message[1:1+len(tt.wantNames)])
		})
	}
}

func TestBuiltinCheck_ListsKnownPluginsSorted(t *testing.T) {
	engine := NewEngine(WithSettings(Settings{BuiltinAllowlist: []string{"zzz", "aaa"}}))
	ctx := withAdapters(EvaluationContext{})
	ctx.Config.Builtin = []string{"mystery"}

	f, ok := findingFor(t, engine, ctx, RuleBuiltinCheck)
	require.True(t, ok)
	assert.Contains(t, f.Message, "Known built-in plugins: aaa, echo, single_session, zzz")
}

func TestBadUserImport(t *testing.T) {
	ctx := withAdapters(EvaluationContext{})
	ctx.Config.UserLoad = []string{"import weather", "from mybot import tools"}

	f, ok := findingFor(t, NewEngine(), ctx, RuleBadUserImport)
	require.True(t, ok)
	assert.Equal(t, []string{
		"bot.py contains suspicious imports:",
		"  import weather",
		"  from mybot import tools",
	}, f.Message[:3])
}

func TestPortInUse(t *testing.T) {
	markers := []string{
		"OSError: [Errno 98] error while attempting to bind on address ('127.0.0.1', 8080): address already in use",
		"OSError: [Errno 48] Address already in use",
		"OSError: [Errno 10048] error while attempting to bind on address",
		"PermissionError: [Errno 10013] error while attempting to bind on address",
	}

	engine := NewEngine()
	for _, log := range markers {
		_, ok := findingFor(t, engine, withAdapters(EvaluationContext{Log: log}), RulePortInUse)
		assert.True(t, ok, log)
	}

	_, ok := findingFor(t, engine, withAdapters(EvaluationContext{Log: "OSError: [Errno 2] No such file"}), RulePortInUse)
	assert.False(t, ok)
}

func TestNotImplemented(t *testing.T) {
	ctx := withAdapters(EvaluationContext{Log: "NotImplementedError"})
	ctx.Config.PluginDirs = []string{"src/plugins", "extra"}

	f, ok := findingFor(t, NewEngine(), ctx, RuleNotImplemented)
	require.True(t, ok)
	assert.Equal(t, SeverityWarning, f.Severity)
	assert.Contains(t, f.Message, "  check the plugins in src/plugins for an abstract method that was not overridden")
	assert.Contains(t, f.Message, "  check the plugins in extra for an abstract method that was not overridden")
}

func TestTypeNotSubscriptable(t *testing.T) {
	log := strings.Join([]string{
		"first context",
		`  File "a.py", line 3, in <module>`,
		"TypeError: 'type' object is not subscriptable",
		"unrelated",
		`  File "b.py", line 7, in <module>`,
		"    def f(x: list[int]): ...",
		"TypeError: 'type' object is not subscriptable",
		"trailing",
	}, "\r\n")

	t.Run("old python reports the latest occurrence", func(t *testing.T) {
		ctx := withAdapters(EvaluationContext{Log: log, Host: versionPtr("3.8.10")})

		findings := NewEngine().Evaluate(ctx)
		require.Len(t, findings, 1)
		f := findings[0]
		assert.Equal(t, RuleTypeNotSubscriptable, f.RuleID)
		assert.Equal(t, []string{
			"Python 3.8.10 cannot subscript built-in types such as list[int] at runtime",
			"Most recent occurrence:",
			`      File "b.py", line 7, in <module>`,
			"        def f(x: list[int]): ...",
			"    TypeError: 'type' object is not subscriptable",
		}, f.Message[:5])
	})

	t.Run("excerpt size is configurable", func(t *testing.T) {
		engine := NewEngine(WithSettings(Settings{ExcerptLines: 1}))
		ctx := withAdapters(EvaluationContext{Log: log, Host: versionPtr("3.8.10")})

		f, ok := findingFor(t, engine, ctx, RuleTypeNotSubscriptable)
		require.True(t, ok)
		assert.Equal(t, "    TypeError: 'type' object is not subscriptable", f.Message[2])
		assert.Equal(t, "Solution:", f.Message[3])
	})

	t.Run("python 3.9 is not affected", func(t *testing.T) {
		ctx := withAdapters(EvaluationContext{Log: log, Host: versionPtr("3.9.0")})
		_, ok := findingFor(t, NewEngine(), ctx, RuleTypeNotSubscriptable)
		assert.False(t, ok)
	})

	t.Run("unknown python is not reported", func(t *testing.T) {
		ctx := withAdapters(EvaluationContext{Log: log})
		_, ok := findingFor(t, NewEngine(), ctx, RuleTypeNotSubscriptable)
		assert.False(t, ok)
	})
}

func TestLastExcerpt(t *testing.T) {
	lines := []string{"x", "marker", "y"}

	assert.Equal(t, []string{"x", "marker"}, lastExcerpt(lines, "marker", 3))
	assert.Equal(t, []string{"marker"}, lastExcerpt(lines, "marker", 1))
	assert.Nil(t, lastExcerpt(lines, "absent", 3))
}

func TestStateImportMissing(t *testing.T) {
	const log = "ImportError: cannot import name 'State' from 'nonebot.params' (/venv/nonebot/params.py)"

	tests := []struct {
		name      string
		runtime   string
		wantFirst string
	}{
		{name: "unknown runtime", wantFirst: "nonebot.params.State cannot be imported and the nonebot2 version is unknown"},
		{name: "runtime predates State", runtime: "1.9.0", wantFirst: "nonebot2 1.9.0 predates nonebot.params.State (added in 2.0.0)"},
		{name: "runtime provides State", runtime: "2.1.0", wantFirst: "nonebot2 2.1.0 should provide nonebot.params.State but the import failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := withAdapters(EvaluationContext{Log: log})
			if tt.runtime != "" {
				ctx.Runtime = versionPtr(tt.runtime)
			}
			f, ok := findingFor(t, NewEngine(), ctx, RuleStateImportMissing)
			require.True(t, ok)
			assert.Equal(t, tt.wantFirst, f.Message[0])
		})
	}
}

func TestExportMissing(t *testing.T) {
	const log = "ImportError: cannot import name 'export' from 'nonebot' (/venv/nonebot/__init__.py)"

	tests := []struct {
		name      string
		runtime   string
		wantFirst string
	}{
		{name: "unknown runtime", wantFirst: "nonebot.export cannot be imported and the nonebot2 version is unknown"},
		{name: "runtime without export", runtime: "2.0.0", wantFirst: "nonebot.export was removed in nonebot2 2.0.0 (installed: 2.0.0)"},
		{name: "runtime with export", runtime: "1.9.0", wantFirst: "nonebot2 1.9.0 still provides nonebot.export but the import failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := withAdapters(EvaluationContext{Log: log})
			if tt.runtime != "" {
				ctx.Runtime = versionPtr(tt.runtime)
			}
			f, ok := findingFor(t, NewEngine(), ctx, RuleExportMissing)
			require.True(t, ok)
			assert.Equal(t, tt.wantFirst, f.Message[0])
		})
	}
}

func TestNoAdapters(t *testing.T) {
	f, ok := findingFor(t, NewEngine(), EvaluationContext{}, RuleNoAdapters)
	require.True(t, ok)
	assert.Equal(t, SeverityError, f.Severity)
	assert.Equal(t, "No adapter is registered", f.Message[0])
	assert.Contains(t, f.Message, "    nb adapter install nonebot-adapter-xxx")
}

func TestDuplicateImport_UnextractableNameIsGeneric(t *testing.T) {
	logs := map[string]string{
		"marker ends the line": "RuntimeError: Plugin already exists: ",
		"marker then newline":  "RuntimeError: Plugin already exists: \r\nTraceback (most recent call last):",
		"only quotes":          "RuntimeError: Plugin already exists: ''!",
	}

	for name, log := range logs {
		t.Run(name, func(t *testing.T) {
			ctx := withAdapters(EvaluationContext{Log: log, Runtime: versionPtr("2.1.0")})

			f, ok := findingFor(t, NewEngine(), ctx, RuleDuplicateImport)
			require.True(t, ok)
			assert.Equal(t, []string{
				"Duplicate imports cannot be analyzed automatically because the log does not name the plugin",
				"  please check bot.py for plugins that are imported or loaded twice",
			}, f.Message)
		})
	}
}

func TestDuplicatedPlugins(t *testing.T) {
	tests := []struct {
		name string
		log  string
		want []string
	}{
		{name: "bang terminated", log: "RuntimeError: Plugin already exists: weather! Check your plugin name", want: []string{"weather"}},
		{name: "quoted", log: "RuntimeError: Plugin already exists: 'weather'", want: []string{"weather"}},
		{name: "dashes and colons", log: "RuntimeError: Plugin already exists: my-plugin:v2!", want: []string{"my-plugin:v2"}},
		{
			name: "distinct in first-seen order",
			log:  "Plugin already exists: b!\nPlugin already exists: a!\nPlugin already exists: \"b\"",
			want: []string{"b", "a"},
		},
		{name: "no name", log: "RuntimeError: Plugin already exists: ", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, duplicatedPlugins(tt.log))
		})
	}
}

func TestDuplicateImport_QuotedName(t *testing.T) {
	ctx := withAdapters(EvaluationContext{
		Log:     "RuntimeError: Plugin already exists: 'quoted'",
		Runtime: versionPtr("2.1.0"),
	})

	f, ok := findingFor(t, NewEngine(), ctx, RuleDuplicateImport)
	require.True(t, ok)
	assert.Equal(t, `Plugin "quoted" is loaded more than once`, f.Message[0])
}

func TestInstallCommand(t *testing.T) {
	tests := []struct {
		module string
		want   string
	}{
		{"nonebot.adapters.onebot", "nb adapter install nonebot-adapter-onebot"},
		{"nonebot.adapters.", "nb adapter list, then nb adapter install the adapter you need"},
		{"nonebot.adapters..v11", "nb adapter list, then nb adapter install the adapter you need"},
		{"nonebot.adapters", "pip install nonebot2"},
		{"yaml", "pip install yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.module, func(t *testing.T) {
			assert.Equal(t, tt.want, installCommand(tt.module))
		})
	}
}

func TestModuleNotFound_EmptyAdapterName(t *testing.T) {
	ctx := withAdapters(EvaluationContext{Log: "ModuleNotFoundError: No module named 'nonebot.adapters.'"})

	f, ok := findingFor(t, NewEngine(), ctx, RuleModuleNotFound)
	require.True(t, ok)
	for _, line := range f.Message {
		assert.NotEqual(t, "  install it with: nb adapter install nonebot-adapter-", line)
	}
	assert.Contains(t, f.Message, "  install it with: nb adapter list, then nb adapter install the adapter you need")
}
