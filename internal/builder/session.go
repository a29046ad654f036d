package builder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/google/uuid"

	"github.com/fluxbase-eu/fluxbuild/internal/observability"
)

// Session holds an esbuild build context for repeated, incremental builds.
// Rebuilds must not run concurrently.
type Session struct {
	builder *Builder
	bctx    api.BuildContext

	mu  sync.Mutex
	ctx context.Context
}

// NewSession creates an esbuild build context
func (b *Builder) NewSession() (*Session, error) {
	s := &Session{
		builder: b,
		ctx:     context.Background(),
	}

	bctx, cerr := api.Context(b.Options(s.current))
	if cerr != nil {
		return nil, &BuildError{Messages: cerr.Errors}
	}
	s.bctx = bctx
	return s, nil
}

func (s *Session) current() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

func (s *Session) setCurrent(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
}

// Rebuild runs one build. Cancelling ctx cancels the in-flight build.
func (s *Session) Rebuild(ctx context.Context) (result *Result, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b := s.builder
	buildID := uuid.New().String()
	logger := b.logger.With().Str("build_id", buildID).Logger()

	ctx, span := observability.StartBuildSpan(ctx, buildID, b.cfg.EntryPoints, b.cfg.Outfile)
	defer func() { observability.EndSpan(span, err) }()
	if traceID := observability.ExtractTraceID(ctx); traceID != "" {
		logger = logger.With().Str("trace_id", traceID).Logger()
	}

	s.setCurrent(logger.WithContext(ctx))
	defer s.setCurrent(context.Background())

	stop := context.AfterFunc(ctx, s.bctx.Cancel)
	defer stop()

	logger.Debug().
		Strs("entry_points", b.cfg.EntryPoints).
		Str("outfile", b.cfg.Outfile).
		Str("format", b.cfg.Format).
		Msg("Starting build")

	start := time.Now()
	res := s.bctx.Rebuild()
	duration := time.Since(start)

	if ctx.Err() != nil {
		b.record(observability.StatusCanceled, duration, 0, len(res.Warnings))
		logger.Warn().Dur("duration", duration).Msg("Build canceled")
		return nil, ctx.Err()
	}

	for _, msg := range api.FormatMessages(res.Warnings, api.FormatMessagesOptions{Kind: api.WarningMessage}) {
		logger.Warn().Msg(msg)
	}

	if len(res.Errors) > 0 {
		b.record(observability.StatusFailure, duration, 0, len(res.Warnings))
		logger.Error().
			Int("errors", len(res.Errors)).
			Dur("duration", duration).
			Msg("Build failed")
		return nil, &BuildError{BuildID: buildID, Messages: res.Errors}
	}

	outfile := b.Outfile()
	var size int64
	if info, statErr := os.Stat(outfile); statErr == nil {
		size = info.Size()
	} else if !errors.Is(statErr, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat output file: %w", statErr)
	}

	b.record(observability.StatusSuccess, duration, size, len(res.Warnings))
	logger.Info().
		Str("outfile", b.cfg.Outfile).
		Int64("bytes", size).
		Int("warnings", len(res.Warnings)).
		Dur("duration", duration).
		Msg("Build succeeded")

	return &Result{
		BuildID:  buildID,
		Outfile:  outfile,
		Bytes:    size,
		Warnings: res.Warnings,
		Metafile: res.Metafile,
		Duration: duration,
	}, nil
}

// Close disposes the esbuild build context
func (s *Session) Close() {
	if s.bctx != nil {
		s.bctx.Dispose()
		s.bctx = nil
	}
}

func (b *Builder) record(status string, duration time.Duration, size int64, warnings int) {
	if b.metrics != nil {
		b.metrics.RecordBuild(status, duration, size, warnings)
	}
}
