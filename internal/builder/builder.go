// Package builder invokes esbuild with a fluxbuild build configuration.
package builder

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/fluxbuild/internal/clean"
	"github.com/fluxbase-eu/fluxbuild/internal/config"
	"github.com/fluxbase-eu/fluxbuild/internal/observability"
)

// Result describes a successful build
type Result struct {
	BuildID  string
	Outfile  string
	Bytes    int64
	Warnings []api.Message
	Metafile string
	Duration time.Duration
}

// Builder turns a build configuration into esbuild invocations
type Builder struct {
	cfg     config.BuildConfig
	workDir string
	metrics *observability.Metrics
	logger  zerolog.Logger
	dryRun  bool
}

// Option configures a Builder
type Option func(*Builder)

// WithMetrics records build and clean metrics
func WithMetrics(m *observability.Metrics) Option {
	return func(b *Builder) {
		b.metrics = m
	}
}

// WithLogger overrides the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(b *Builder) {
		b.logger = logger
	}
}

// WithCleanDryRun forces every clean plugin into dry-run mode
func WithCleanDryRun(dryRun bool) Option {
	return func(b *Builder) {
		b.dryRun = dryRun
	}
}

// New validates cfg and creates a builder. Relative paths are resolved
// against cfg.WorkingDir, which defaults to the process working directory.
func New(cfg config.BuildConfig, opts ...Option) (*Builder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	workDir := cfg.WorkingDir
	if workDir == "" {
		workDir = "."
	}
	absDir, err := filepath.Abs(workDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve working directory: %w", err)
	}

	b := &Builder{
		cfg:     cfg,
		workDir: absDir,
		logger:  log.With().Str("component", "builder").Logger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// WorkDir returns the absolute working directory
func (b *Builder) WorkDir() string {
	return b.workDir
}

// Outfile returns the absolute output file path
func (b *Builder) Outfile() string {
	if filepath.IsAbs(b.cfg.Outfile) {
		return filepath.Clean(b.cfg.Outfile)
	}
	return filepath.Join(b.workDir, b.cfg.Outfile)
}

// Cleaners returns one cleaner per configured clean plugin
func (b *Builder) Cleaners() []*clean.Cleaner {
	var cleaners []*clean.Cleaner
	for _, p := range b.cfg.Plugins {
		if p.Name != config.PluginClean {
			continue
		}
		opts := clean.Options{
			Patterns:             p.Patterns,
			CleanOnStartPatterns: p.CleanOnStartPatterns,
			CleanOnEndPatterns:   p.CleanOnEndPatterns,
			Verbose:              p.Verbose,
			DryRun:               p.DryRun || b.dryRun,
		}
		cleaners = append(cleaners, clean.New(b.workDir, opts,
			clean.WithLogger(b.logger.With().Str("component", "clean").Logger()),
			clean.WithObserver(b.observeClean),
		))
	}
	return cleaners
}

func (b *Builder) observeClean(phase clean.Phase, removed []string) {
	if b.metrics != nil {
		b.metrics.RecordClean(string(phase), len(removed))
	}
}

// Options converts the configuration into esbuild options. Plugins receive
// their context from ctx.
func (b *Builder) Options(ctx func() context.Context) api.BuildOptions {
	format, _ := config.NormalizeFormat(b.cfg.Format)

	opts := api.BuildOptions{
		EntryPoints:   b.cfg.EntryPoints,
		Bundle:        b.cfg.Bundle,
		Format:        esbuildFormat(format),
		Outfile:       b.cfg.Outfile,
		Write:         true,
		AbsWorkingDir: b.workDir,
		Platform:      esbuildPlatform(b.cfg.Platform),
		Target:        esbuildTarget(b.cfg.Target),
		External:      b.cfg.External,
		Metafile:      b.cfg.Metafile,
		LogLevel:      api.LogLevelSilent,
	}

	if b.cfg.Minify {
		opts.MinifyWhitespace = true
		opts.MinifyIdentifiers = true
		opts.MinifySyntax = true
	}
	if b.cfg.Sourcemap {
		opts.Sourcemap = api.SourceMapLinked
	}

	for _, c := range b.Cleaners() {
		opts.Plugins = append(opts.Plugins, c.Plugin(ctx))
	}

	return opts
}

// Build runs a single build
func (b *Builder) Build(ctx context.Context) (*Result, error) {
	session, err := b.NewSession()
	if err != nil {
		return nil, err
	}
	defer session.Close()

	return session.Rebuild(ctx)
}

func esbuildFormat(format string) api.Format {
	switch format {
	case config.FormatESModule:
		return api.FormatESModule
	case config.FormatIIFE:
		return api.FormatIIFE
	default:
		return api.FormatCommonJS
	}
}

func esbuildPlatform(platform string) api.Platform {
	switch platform {
	case "node":
		return api.PlatformNode
	case "neutral":
		return api.PlatformNeutral
	default:
		return api.PlatformBrowser
	}
}

func esbuildTarget(target string) api.Target {
	switch strings.ToLower(target) {
	case "es5":
		return api.ES5
	case "es2015":
		return api.ES2015
	case "es2016":
		return api.ES2016
	case "es2017":
		return api.ES2017
	case "es2018":
		return api.ES2018
	case "es2019":
		return api.ES2019
	case "es2020":
		return api.ES2020
	case "es2021":
		return api.ES2021
	case "es2022":
		return api.ES2022
	case "es2023":
		return api.ES2023
	case "es2024":
		return api.ES2024
	case "esnext":
		return api.ESNext
	default:
		return api.DefaultTarget
	}
}
