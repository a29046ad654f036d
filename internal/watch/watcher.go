// Package watch rebuilds when files below the working directory change.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/fluxbase-eu/fluxbuild/internal/config"
)

// BuildFunc runs one build. A returned error is logged and watching
// continues.
type BuildFunc func(ctx context.Context) error

// Watcher monitors a directory tree and triggers debounced rebuilds
type Watcher struct {
	root     string
	debounce time.Duration
	ignore   []string
	build    BuildFunc
	limiter  *rate.Limiter
	logger   zerolog.Logger

	fsw     *fsnotify.Watcher
	trigger chan struct{}
}

// Option configures a Watcher
type Option func(*Watcher)

// WithIgnore adds ignore globs relative to the root. Patterns without a
// slash match any path segment.
func WithIgnore(patterns ...string) Option {
	return func(w *Watcher) {
		for _, p := range patterns {
			if p = normalizeIgnore(p); p != "" {
				w.ignore = append(w.ignore, p)
			}
		}
	}
}

// WithLogger overrides the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// New creates a watcher for root
func New(root string, cfg config.WatchConfig, build BuildFunc, opts ...Option) (*Watcher, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve watch root: %w", err)
	}

	limit := rate.Inf
	if cfg.MinInterval > 0 {
		limit = rate.Every(cfg.MinInterval)
	}

	w := &Watcher{
		root:     absRoot,
		debounce: cfg.Debounce,
		build:    build,
		limiter:  rate.NewLimiter(limit, 1),
		logger:   log.With().Str("component", "watch").Logger(),
		trigger:  make(chan struct{}, 1),
	}
	WithIgnore(cfg.Ignore...)(w)
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Ignored reports whether a slash-separated path relative to the root is
// excluded from watching
func (w *Watcher) Ignored(rel string) bool {
	rel = path.Clean(filepath.ToSlash(rel))
	if rel == "." {
		return false
	}
	segments := strings.Split(rel, "/")

	for _, pattern := range w.ignore {
		if !strings.Contains(pattern, "/") {
			for _, seg := range segments {
				if doublestar.MatchUnvalidated(pattern, seg) {
					return true
				}
			}
			continue
		}
		if doublestar.MatchUnvalidated(pattern, rel) || doublestar.MatchUnvalidated(pattern+"/**", rel) {
			return true
		}
	}
	return false
}

// Run builds once, then rebuilds on changes until ctx is cancelled
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	w.fsw = fsw
	defer func() { _ = fsw.Close() }()

	if err := w.addTree(w.root); err != nil {
		return err
	}

	w.logger.Info().
		Str("root", w.root).
		Dur("debounce", w.debounce).
		Strs("ignore", w.ignore).
		Msg("Watching for changes")

	w.rebuild(ctx)

	go w.eventLoop(ctx)

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			w.logger.Info().Msg("Stopped watching")
			return nil
		case <-w.trigger:
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.debounce)
			fire = timer.C
		case <-fire:
			fire = nil
			if err := w.limiter.Wait(ctx); err != nil {
				continue
			}
			w.rebuild(ctx)
		}
	}
}

func (w *Watcher) rebuild(ctx context.Context) {
	if err := w.build(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		w.logger.Error().Err(err).Msg("Rebuild failed, waiting for changes")
	}
}

func (w *Watcher) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("File watcher error")
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Op == fsnotify.Chmod {
		return
	}

	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil || w.Ignored(rel) {
		return
	}

	if event.Has(fsnotify.Create) {
		if err := w.addTree(event.Name); err != nil {
			w.logger.Debug().Err(err).Str("path", rel).Msg("Failed to watch new path")
		}
	}

	w.logger.Debug().
		Str("path", filepath.ToSlash(rel)).
		Str("op", event.Op.String()).
		Msg("Change detected")
	w.triggerRebuild()
}

// triggerRebuild signals a pending rebuild without blocking
func (w *Watcher) triggerRebuild() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

// addTree watches dir and every directory below it that is not ignored
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == dir {
				return fmt.Errorf("failed to walk %s: %w", p, err)
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(w.root, p)
		if relErr == nil && w.Ignored(rel) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(p); err != nil {
			return fmt.Errorf("failed to watch %s: %w", p, err)
		}
		return nil
	})
}

// normalizeIgnore cleans p and drops negations and paths outside the root
func normalizeIgnore(p string) string {
	p = strings.TrimSpace(p)
	if p == "" || strings.HasPrefix(p, "!") {
		return ""
	}
	p = path.Clean(filepath.ToSlash(p))
	if p == "." || p == ".." || strings.HasPrefix(p, "../") || path.IsAbs(p) {
		return ""
	}
	return p
}

// Limit returns the configured minimum interval between rebuilds
func (w *Watcher) Limit() time.Duration {
	l := w.limiter.Limit()
	if l == rate.Inf || l == 0 {
		return 0
	}
	return time.Duration(math.Round(float64(time.Second) / float64(l)))
}
