package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_MatchesBuiltInBuild(t *testing.T) {
	cfg := Default()

	assert.Equal(t, []string{"./src/index.js"}, cfg.Build.EntryPoints)
	assert.True(t, cfg.Build.Bundle)
	assert.Equal(t, FormatCommonJS, cfg.Build.Format)
	assert.Equal(t, "./dist/index.cjs", cfg.Build.Outfile)
	assert.Equal(t, ".", cfg.Build.WorkingDir)

	require.Len(t, cfg.Build.Plugins, 1)
	plugin := cfg.Build.Plugins[0]
	assert.Equal(t, PluginClean, plugin.Name)
	assert.Equal(t, []string{"./dist/*"}, plugin.Patterns)
	assert.Equal(t, []string{"./prepare"}, plugin.CleanOnStartPatterns)
	assert.Equal(t, []string{"./post"}, plugin.CleanOnEndPatterns)

	assert.Equal(t, 200*time.Millisecond, cfg.Watch.Debounce)
	assert.Equal(t, time.Second, cfg.Watch.MinInterval)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.False(t, cfg.Tracing.Enabled)

	require.NoError(t, cfg.Validate())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fluxbuild.yaml")
	content := `
build:
  entry_points: [./lib/main.js]
  format: esm
  outfile: ./out/main.mjs
  plugins:
    - name: clean
      patterns: [./out/*]
watch:
  debounce: 50ms
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"./lib/main.js"}, cfg.Build.EntryPoints)
	assert.Equal(t, FormatESModule, cfg.Build.Format)
	assert.Equal(t, "./out/main.mjs", cfg.Build.Outfile)
	assert.True(t, cfg.Build.Bundle, "unset keys keep their defaults")
	require.Len(t, cfg.Build.Plugins, 1)
	assert.Equal(t, []string{"./out/*"}, cfg.Build.Plugins[0].Patterns)
	assert.Empty(t, cfg.Build.Plugins[0].CleanOnStartPatterns)
	assert.Equal(t, 50*time.Millisecond, cfg.Watch.Debounce)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fluxbuild.yaml")
	require.NoError(t, os.WriteFile(path, []byte("build:\n  outfile: ./dist/a.cjs\n"), 0600))

	t.Setenv("FLUXBUILD_BUILD_OUTFILE", "./dist/b.cjs")
	t.Setenv("FLUXBUILD_BUILD_MINIFY", "true")
	t.Setenv("FLUXBUILD_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "./dist/b.cjs", cfg.Build.Outfile)
	assert.True(t, cfg.Build.Minify)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestLoad_InvalidFileIsRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fluxbuild.yaml")
	require.NoError(t, os.WriteFile(path, []byte("build:\n  format: amd\n"), 0600))

	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestBuildConfig_Validate(t *testing.T) {
	validConfig := func() BuildConfig {
		return Default().Build
	}

	tests := []struct {
		name    string
		modify  func(*BuildConfig)
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid config",
			modify: func(c *BuildConfig) {},
		},
		{
			name:    "no entry points",
			modify:  func(c *BuildConfig) { c.EntryPoints = nil },
			wantErr: true,
			errMsg:  "build.entry_points must contain at least one path",
		},
		{
			name:    "blank entry point",
			modify:  func(c *BuildConfig) { c.EntryPoints = []string{"./a.js", " "} },
			wantErr: true,
			errMsg:  "build.entry_points[1] is empty",
		},
		{
			name:    "missing outfile",
			modify:  func(c *BuildConfig) { c.Outfile = "" },
			wantErr: true,
			errMsg:  "build.outfile is required",
		},
		{
			name:    "unknown format",
			modify:  func(c *BuildConfig) { c.Format = "amd" },
			wantErr: true,
			errMsg:  "invalid build.format",
		},
		{
			name:   "commonjs alias",
			modify: func(c *BuildConfig) { c.Format = "commonjs" },
		},
		{
			name:    "unknown platform",
			modify:  func(c *BuildConfig) { c.Platform = "deno" },
			wantErr: true,
			errMsg:  "invalid build.platform",
		},
		{
			name:   "known target",
			modify: func(c *BuildConfig) { c.Target = "es2020" },
		},
		{
			name:    "unknown target",
			modify:  func(c *BuildConfig) { c.Target = "es3" },
			wantErr: true,
			errMsg:  "invalid build.target",
		},
		{
			name:    "unknown plugin",
			modify:  func(c *BuildConfig) { c.Plugins = append(c.Plugins, PluginConfig{Name: "copy"}) },
			wantErr: true,
			errMsg:  `build.plugins[1]: invalid configuration: unknown plugin "copy"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidConfig)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestNormalizeFormat(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"cjs", FormatCommonJS},
		{"CommonJS", FormatCommonJS},
		{"esm", FormatESModule},
		{"iife", FormatIIFE},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			got, err := NormalizeFormat(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}

	_, err := NormalizeFormat("")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestWatchConfig_Validate(t *testing.T) {
	assert.NoError(t, (&WatchConfig{}).Validate())
	assert.Error(t, (&WatchConfig{Debounce: -time.Second}).Validate())
	assert.Error(t, (&WatchConfig{MinInterval: -time.Second}).Validate())
}

func TestLogConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  LogConfig
		wantErr bool
	}{
		{"console info", LogConfig{Level: "info", Format: "console"}, false},
		{"json debug", LogConfig{Level: "DEBUG", Format: "json"}, false},
		{"bad level", LogConfig{Level: "loud", Format: "console"}, true},
		{"bad format", LogConfig{Level: "info", Format: "xml"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTracingConfig_Validate(t *testing.T) {
	t.Run("disabled skips validation", func(t *testing.T) {
		cfg := TracingConfig{Enabled: false, SampleRate: 5}
		assert.NoError(t, cfg.Validate())
	})

	t.Run("missing endpoint", func(t *testing.T) {
		cfg := TracingConfig{Enabled: true, SampleRate: 1}
		assert.ErrorContains(t, cfg.Validate(), "tracing.endpoint is required")
	})

	t.Run("sample rate out of range", func(t *testing.T) {
		cfg := TracingConfig{Enabled: true, Endpoint: "localhost:4317", SampleRate: 1.5}
		assert.ErrorContains(t, cfg.Validate(), "sample_rate must be between 0 and 1")
	})
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "fluxbuild.yaml")

	require.NoError(t, Default().Save(path, false))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default().Build, loaded.Build)
	assert.Equal(t, Default().Watch, loaded.Watch)

	t.Run("refuses to overwrite", func(t *testing.T) {
		err := Default().Save(path, false)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrConfigExists)
		assert.Contains(t, err.Error(), path)
	})

	t.Run("force overwrites", func(t *testing.T) {
		assert.NoError(t, Default().Save(path, true))
	})
}

func TestOutDir(t *testing.T) {
	bc := BuildConfig{Outfile: "./dist/index.cjs"}
	assert.Equal(t, "dist", bc.OutDir())
}
