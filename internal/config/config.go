// Package config loads the fluxbuild configuration from defaults, an optional
// YAML file, .env files and FLUXBUILD_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// DefaultFileName is the config file looked up in the working directory
const DefaultFileName = "fluxbuild.yaml"

// ErrInvalidConfig is wrapped by every validation error
var ErrInvalidConfig = errors.New("invalid configuration")

// ErrConfigExists is returned by Save when it would overwrite a file
var ErrConfigExists = errors.New("configuration file already exists")

// Output module formats
const (
	FormatCommonJS = "cjs"
	FormatESModule = "esm"
	FormatIIFE     = "iife"
)

// PluginClean is the name of the built-in clean plugin
const PluginClean = "clean"

// KnownTargets lists the accepted values for build.target
var KnownTargets = []string{
	"", "esnext", "es5", "es2015", "es2016", "es2017", "es2018", "es2019",
	"es2020", "es2021", "es2022", "es2023", "es2024",
}

// Config represents the fluxbuild configuration
type Config struct {
	Build   BuildConfig   `mapstructure:"build" yaml:"build"`
	Watch   WatchConfig   `mapstructure:"watch" yaml:"watch"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	Tracing TracingConfig `mapstructure:"tracing" yaml:"tracing"`
	Debug   bool          `mapstructure:"debug" yaml:"debug"`
}

// BuildConfig is the record handed to the bundler
type BuildConfig struct {
	EntryPoints []string       `mapstructure:"entry_points" yaml:"entry_points"`
	Bundle      bool           `mapstructure:"bundle" yaml:"bundle"`
	Format      string         `mapstructure:"format" yaml:"format"`
	Outfile     string         `mapstructure:"outfile" yaml:"outfile"`
	Plugins     []PluginConfig `mapstructure:"plugins" yaml:"plugins"`

	Platform   string   `mapstructure:"platform" yaml:"platform,omitempty"` // node, browser or neutral
	Target     string   `mapstructure:"target" yaml:"target,omitempty"`
	Minify     bool     `mapstructure:"minify" yaml:"minify,omitempty"`
	Sourcemap  bool     `mapstructure:"sourcemap" yaml:"sourcemap,omitempty"`
	External   []string `mapstructure:"external" yaml:"external,omitempty"`
	Metafile   bool     `mapstructure:"metafile" yaml:"metafile,omitempty"`
	WorkingDir string   `mapstructure:"working_dir" yaml:"working_dir"`
}

// PluginConfig configures one bundler plugin. Only "clean" is recognised.
type PluginConfig struct {
	Name                 string   `mapstructure:"name" yaml:"name"`
	Patterns             []string `mapstructure:"patterns" yaml:"patterns,omitempty"`
	CleanOnStartPatterns []string `mapstructure:"clean_on_start_patterns" yaml:"clean_on_start_patterns,omitempty"`
	CleanOnEndPatterns   []string `mapstructure:"clean_on_end_patterns" yaml:"clean_on_end_patterns,omitempty"`
	Verbose              bool     `mapstructure:"verbose" yaml:"verbose,omitempty"`
	DryRun               bool     `mapstructure:"dry_run" yaml:"dry_run,omitempty"`
}

// WatchConfig contains watch mode settings
type WatchConfig struct {
	Debounce    time.Duration `mapstructure:"debounce" yaml:"debounce"`
	MinInterval time.Duration `mapstructure:"min_interval" yaml:"min_interval"`
	Ignore      []string      `mapstructure:"ignore" yaml:"ignore"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"` // console or json
	File   string `mapstructure:"file" yaml:"file,omitempty"`
}

// MetricsConfig contains Prometheus textfile settings
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile" yaml:"textfile,omitempty"`
}

// TracingConfig holds configuration for OpenTelemetry tracing
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled" yaml:"enabled"`
	Endpoint    string  `mapstructure:"endpoint" yaml:"endpoint"`         // OTLP endpoint (e.g., "localhost:4317")
	ServiceName string  `mapstructure:"service_name" yaml:"service_name"` // Service name for traces
	Environment string  `mapstructure:"environment" yaml:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate" yaml:"sample_rate"` // 0.0-1.0
	Insecure    bool    `mapstructure:"insecure" yaml:"insecure"`
}

// Load loads configuration from file and environment variables.
// An empty path searches for fluxbuild.yaml in . and ./config; a missing
// file is not an error in that case.
func Load(path string) (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := loadEnvFile(); err != nil {
		log.Debug().Err(err).Msg("No .env file loaded")
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(strings.TrimSuffix(DefaultFileName, filepath.Ext(DefaultFileName)))
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("FLUXBUILD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		log.Debug().Msg("No config file found, using environment variables and defaults")
	} else {
		log.Debug().Str("file", v.ConfigFileUsed()).Msg("Config file loaded")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns the built-in configuration without consulting files or
// the environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	// Defaults are static; a decode failure here is a programming error.
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("config: invalid defaults: %v", err))
	}
	return &cfg
}

// loadEnvFile loads environment variables from .env file
func loadEnvFile() error {
	locations := []string{
		".env",
		".env.local",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			if err := godotenv.Load(location); err != nil {
				return fmt.Errorf("error loading .env file from %s: %w", location, err)
			}
			log.Debug().Str("file", location).Msg(".env file loaded")
			return nil
		}
	}

	return fmt.Errorf("no .env file found")
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Build defaults: bundle ./src/index.js into ./dist/index.cjs
	v.SetDefault("build.entry_points", []string{"./src/index.js"})
	v.SetDefault("build.bundle", true)
	v.SetDefault("build.format", FormatCommonJS)
	v.SetDefault("build.outfile", "./dist/index.cjs")
	v.SetDefault("build.plugins", []map[string]interface{}{
		{
			"name":                    PluginClean,
			"patterns":                []string{"./dist/*"},
			"clean_on_start_patterns": []string{"./prepare"},
			"clean_on_end_patterns":   []string{"./post"},
		},
	})
	v.SetDefault("build.platform", "")
	v.SetDefault("build.target", "")
	v.SetDefault("build.minify", false)
	v.SetDefault("build.sourcemap", false)
	v.SetDefault("build.external", []string{})
	v.SetDefault("build.metafile", false)
	v.SetDefault("build.working_dir", ".")

	// Watch defaults
	v.SetDefault("watch.debounce", "200ms")
	v.SetDefault("watch.min_interval", "1s")
	v.SetDefault("watch.ignore", []string{"node_modules", ".git"})

	// Logging defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "")

	v.SetDefault("metrics.textfile", "")

	// Tracing defaults
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4317")
	v.SetDefault("tracing.service_name", "fluxbuild")
	v.SetDefault("tracing.environment", "development")
	v.SetDefault("tracing.sample_rate", 1.0)
	v.SetDefault("tracing.insecure", true)

	v.SetDefault("debug", false)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.Build.Validate(); err != nil {
		return err
	}
	if err := c.Watch.Validate(); err != nil {
		return err
	}
	if err := c.Log.Validate(); err != nil {
		return err
	}
	return c.Tracing.Validate()
}

// Validate validates build configuration
func (bc *BuildConfig) Validate() error {
	if len(bc.EntryPoints) == 0 {
		return fmt.Errorf("%w: build.entry_points must contain at least one path", ErrInvalidConfig)
	}
	for i, entry := range bc.EntryPoints {
		if strings.TrimSpace(entry) == "" {
			return fmt.Errorf("%w: build.entry_points[%d] is empty", ErrInvalidConfig, i)
		}
	}

	if strings.TrimSpace(bc.Outfile) == "" {
		return fmt.Errorf("%w: build.outfile is required", ErrInvalidConfig)
	}

	if _, err := NormalizeFormat(bc.Format); err != nil {
		return err
	}

	switch bc.Platform {
	case "", "node", "browser", "neutral":
	default:
		return fmt.Errorf("%w: invalid build.platform %q (must be one of: node, browser, neutral)", ErrInvalidConfig, bc.Platform)
	}

	if !isKnownTarget(bc.Target) {
		return fmt.Errorf("%w: invalid build.target %q", ErrInvalidConfig, bc.Target)
	}

	for i := range bc.Plugins {
		if err := bc.Plugins[i].Validate(); err != nil {
			return fmt.Errorf("build.plugins[%d]: %w", i, err)
		}
	}

	return nil
}

// NormalizeFormat maps format aliases onto the canonical names
func NormalizeFormat(format string) (string, error) {
	switch strings.ToLower(format) {
	case "cjs", "commonjs":
		return FormatCommonJS, nil
	case "esm", "esmodule":
		return FormatESModule, nil
	case "iife":
		return FormatIIFE, nil
	default:
		return "", fmt.Errorf("%w: invalid build.format %q (must be one of: cjs, esm, iife)", ErrInvalidConfig, format)
	}
}

func isKnownTarget(target string) bool {
	for _, t := range KnownTargets {
		if strings.EqualFold(t, target) {
			return true
		}
	}
	return false
}

// Validate validates a plugin entry
func (pc *PluginConfig) Validate() error {
	if pc.Name != PluginClean {
		return fmt.Errorf("%w: unknown plugin %q (available: %s)", ErrInvalidConfig, pc.Name, PluginClean)
	}
	return nil
}

// Validate validates watch configuration
func (wc *WatchConfig) Validate() error {
	if wc.Debounce < 0 {
		return fmt.Errorf("%w: watch.debounce cannot be negative", ErrInvalidConfig)
	}
	if wc.MinInterval < 0 {
		return fmt.Errorf("%w: watch.min_interval cannot be negative", ErrInvalidConfig)
	}
	return nil
}

// Validate validates logging configuration
func (lc *LogConfig) Validate() error {
	if _, err := zerolog.ParseLevel(strings.ToLower(lc.Level)); err != nil {
		return fmt.Errorf("%w: invalid log.level %q", ErrInvalidConfig, lc.Level)
	}
	if lc.Format != "console" && lc.Format != "json" {
		return fmt.Errorf("%w: log.format must be 'console' or 'json'", ErrInvalidConfig)
	}
	return nil
}

// Validate validates tracing configuration
func (tc *TracingConfig) Validate() error {
	if !tc.Enabled {
		return nil
	}
	if tc.Endpoint == "" {
		return fmt.Errorf("%w: tracing.endpoint is required when tracing is enabled", ErrInvalidConfig)
	}
	if tc.SampleRate < 0 || tc.SampleRate > 1 {
		return fmt.Errorf("%w: tracing.sample_rate must be between 0 and 1, got: %v", ErrInvalidConfig, tc.SampleRate)
	}
	return nil
}

// Save writes the configuration as YAML. An existing file is only
// overwritten when force is set.
func (c *Config) Save(path string, force bool) error {
	if path == "" {
		path = DefaultFileName
	}

	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w at %s", ErrConfigExists, path)
		}
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// OutDir returns the directory the output file is written to
func (bc *BuildConfig) OutDir() string {
	return filepath.Dir(bc.Outfile)
}
