// Package clean removes glob-matched paths below a working directory. It is
// wired into esbuild as a plugin that cleans when a build starts and again
// when it ends.
package clean

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/fluxbase-eu/fluxbuild/internal/observability"
)

// ErrUnsafePattern is returned for patterns that would match the working
// directory itself or anything outside of it.
var ErrUnsafePattern = errors.New("unsafe clean pattern")

// Phase identifies when a clean runs relative to the build
type Phase string

const (
	PhaseStart Phase = "start"
	PhaseEnd   Phase = "end"
)

// Options mirrors the clean plugin configuration
type Options struct {
	// Patterns are cleaned when the build starts
	Patterns []string
	// CleanOnStartPatterns are cleaned when the build starts, after Patterns
	CleanOnStartPatterns []string
	// CleanOnEndPatterns are cleaned after the output has been written
	CleanOnEndPatterns []string
	// Verbose logs every removed path at info level
	Verbose bool
	// DryRun reports matches without removing anything
	DryRun bool
}

// StartPatterns returns the patterns cleaned at build start
func (o Options) StartPatterns() []string {
	patterns := make([]string, 0, len(o.Patterns)+len(o.CleanOnStartPatterns))
	patterns = append(patterns, o.Patterns...)
	return append(patterns, o.CleanOnStartPatterns...)
}

// Observer is notified with the paths removed by each clean
type Observer func(phase Phase, removed []string)

// Cleaner removes paths matching glob patterns
type Cleaner struct {
	root     string
	fs       afero.Fs
	opts     Options
	observer Observer
	logger   zerolog.Logger
}

// Option configures a Cleaner
type Option func(*Cleaner)

// WithFs replaces the filesystem. Paths passed to fsys are relative to the
// working directory.
func WithFs(fsys afero.Fs) Option {
	return func(c *Cleaner) {
		c.fs = fsys
	}
}

// WithObserver registers a callback invoked after every clean
func WithObserver(fn Observer) Option {
	return func(c *Cleaner) {
		c.observer = fn
	}
}

// WithLogger overrides the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Cleaner) {
		c.logger = logger
	}
}

// New creates a cleaner rooted at the given working directory
func New(root string, opts Options, options ...Option) *Cleaner {
	c := &Cleaner{
		root:   root,
		fs:     afero.NewBasePathFs(afero.NewOsFs(), root),
		opts:   opts,
		logger: log.With().Str("component", "clean").Logger(),
	}
	for _, opt := range options {
		opt(c)
	}
	if opts.DryRun {
		c.fs = afero.NewReadOnlyFs(c.fs)
	}
	return c
}

// Options returns the cleaner configuration
func (c *Cleaner) Options() Options {
	return c.opts
}

// CleanStart removes everything matched by Patterns and CleanOnStartPatterns
func (c *Cleaner) CleanStart(ctx context.Context) ([]string, error) {
	return c.Clean(ctx, PhaseStart, c.opts.StartPatterns())
}

// CleanEnd removes everything matched by CleanOnEndPatterns
func (c *Cleaner) CleanEnd(ctx context.Context) ([]string, error) {
	return c.Clean(ctx, PhaseEnd, c.opts.CleanOnEndPatterns)
}

// Clean removes every path matched by patterns and returns the removed paths,
// relative to the working directory and sorted.
func (c *Cleaner) Clean(ctx context.Context, phase Phase, patterns []string) (removed []string, err error) {
	if len(patterns) == 0 {
		return nil, nil
	}

	ctx, span := observability.StartCleanSpan(ctx, string(phase), len(patterns))
	defer func() { observability.EndSpan(span, err) }()

	paths, err := c.Match(patterns)
	if err != nil {
		return nil, err
	}

	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return removed, err
		}

		if !c.opts.DryRun {
			if err := c.fs.RemoveAll(filepath.FromSlash(p)); err != nil {
				return removed, fmt.Errorf("failed to remove %s: %w", p, err)
			}
		}
		removed = append(removed, p)

		event := c.logger.Debug()
		if c.opts.Verbose {
			event = c.logger.Info()
		}
		event.Str("phase", string(phase)).
			Str("path", p).
			Bool("dry_run", c.opts.DryRun).
			Msg("Removed path")
	}

	if c.observer != nil {
		c.observer(phase, removed)
	}

	return removed, nil
}

// Match expands patterns without removing anything. Patterns prefixed with
// "!" exclude matches. Wildcards do not match names starting with a dot
// unless the pattern segment itself starts with one. A directory is
// returned instead of its contents; a matched directory holding an excluded
// path is replaced by its children that hold none.
func (c *Cleaner) Match(patterns []string) ([]string, error) {
	var includes, excludes []string
	for _, raw := range patterns {
		glob, negated, err := c.normalize(raw)
		if err != nil {
			return nil, err
		}
		if negated {
			excludes = append(excludes, glob)
		} else {
			includes = append(includes, glob)
		}
	}

	fsys := afero.NewIOFS(c.fs)

	protected := make(map[string]struct{})
	for _, glob := range excludes {
		matches, err := doublestar.Glob(fsys, glob)
		if err != nil {
			return nil, fmt.Errorf("failed to expand pattern %q: %w", glob, err)
		}
		for _, m := range matches {
			protected[m] = struct{}{}
		}
	}

	candidates := make(map[string]struct{})
	for _, glob := range includes {
		matches, err := doublestar.Glob(fsys, glob)
		if err != nil {
			return nil, fmt.Errorf("failed to expand pattern %q: %w", glob, err)
		}
		for _, m := range matches {
			if m == "." || !dotAllowed(glob, m) || isExcluded(m, excludes) {
				continue
			}
			if _, ok := protected[m]; ok {
				continue
			}
			candidates[m] = struct{}{}
		}
	}

	sorted := make([]string, 0, len(candidates))
	for p := range candidates {
		sorted = append(sorted, p)
	}
	sort.Strings(sorted)

	kept := make(map[string]struct{}, len(sorted))
	result := make([]string, 0, len(sorted))
	keep := func(p string) {
		if _, ok := kept[p]; ok || hasAncestor(p, kept) {
			return
		}
		kept[p] = struct{}{}
		result = append(result, p)
	}

	for _, p := range sorted {
		if !hasProtectedDescendant(p, protected) {
			keep(p)
			continue
		}
		children, err := c.unprotectedChildren(p, protected)
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			keep(child)
		}
	}

	sort.Strings(result)
	return result, nil
}

// unprotectedChildren lists the paths below dir that can be removed without
// touching a protected path
func (c *Cleaner) unprotectedChildren(dir string, protected map[string]struct{}) ([]string, error) {
	entries, err := afero.ReadDir(c.fs, filepath.FromSlash(dir))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	var paths []string
	for _, e := range entries {
		child := path.Join(dir, e.Name())
		if _, ok := protected[child]; ok {
			continue
		}
		if !e.IsDir() || !hasProtectedDescendant(child, protected) {
			paths = append(paths, child)
			continue
		}
		nested, err := c.unprotectedChildren(child, protected)
		if err != nil {
			return nil, err
		}
		paths = append(paths, nested...)
	}
	return paths, nil
}

// dotAllowed reports whether match may contain dot-prefixed names. A dot
// name must be spelled out by the pattern segment it is matched against;
// names consumed by "**" never start with a dot.
func dotAllowed(glob, match string) bool {
	pattern := strings.Split(glob, "/")
	segments := strings.Split(match, "/")

	i := 0
	for ; i < len(pattern) && i < len(segments) && pattern[i] != "**"; i++ {
		if isDotName(segments[i]) && !isDotName(pattern[i]) {
			return false
		}
	}
	if i >= len(pattern) || pattern[i] != "**" {
		return true
	}

	tail := pattern[i+1:]
	start := max(len(segments)-len(tail), i)
	for _, seg := range segments[i:start] {
		if isDotName(seg) {
			return false
		}
	}
	for k, seg := range segments[start:] {
		if k < len(tail) && isDotName(seg) && !isDotName(tail[k]) {
			return false
		}
	}
	return true
}

func isDotName(s string) bool {
	return strings.HasPrefix(s, ".") && s != "." && s != ".."
}

// normalize turns a user pattern into a clean slash-separated glob relative
// to the working directory.
func (c *Cleaner) normalize(raw string) (glob string, negated bool, err error) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "!") {
		negated = true
		s = strings.TrimSpace(s[1:])
	}
	if s == "" {
		return "", false, fmt.Errorf("%w: empty pattern", ErrUnsafePattern)
	}

	if filepath.IsAbs(s) {
		if c.root == "" {
			return "", false, fmt.Errorf("%w: %q is absolute", ErrUnsafePattern, raw)
		}
		root, err := filepath.Abs(c.root)
		if err != nil {
			return "", false, fmt.Errorf("failed to resolve working directory: %w", err)
		}
		rel, err := filepath.Rel(root, s)
		if err != nil {
			return "", false, fmt.Errorf("%w: %q is outside the working directory", ErrUnsafePattern, raw)
		}
		s = rel
	}

	s = path.Clean(filepath.ToSlash(s))
	switch {
	case s == ".":
		return "", false, fmt.Errorf("%w: %q matches the working directory", ErrUnsafePattern, raw)
	case s == ".." || strings.HasPrefix(s, "../"):
		return "", false, fmt.Errorf("%w: %q is outside the working directory", ErrUnsafePattern, raw)
	}

	if !doublestar.ValidatePattern(s) {
		return "", false, fmt.Errorf("invalid glob pattern %q", raw)
	}

	return s, negated, nil
}

func isExcluded(p string, excludes []string) bool {
	for _, glob := range excludes {
		if doublestar.MatchUnvalidated(glob, p) {
			return true
		}
	}
	return false
}

func hasAncestor(p string, set map[string]struct{}) bool {
	for dir := path.Dir(p); dir != "." && dir != "/"; dir = path.Dir(dir) {
		if _, ok := set[dir]; ok {
			return true
		}
	}
	return false
}

func hasProtectedDescendant(p string, protected map[string]struct{}) bool {
	prefix := p + "/"
	for q := range protected {
		if strings.HasPrefix(q, prefix) {
			return true
		}
	}
	return false
}
