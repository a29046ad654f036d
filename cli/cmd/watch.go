package cmd

import (
	"context"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fluxbase-eu/fluxbuild/cli/util"
	"github.com/fluxbase-eu/fluxbuild/internal/builder"
	"github.com/fluxbase-eu/fluxbuild/internal/observability"
	"github.com/fluxbase-eu/fluxbuild/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Build, then rebuild whenever sources change",
	Long: `Build once, then watch the working directory and rebuild on every change.

The output directory, node_modules, .git, clean plugin patterns and
watch.ignore globs are not watched. Changes are debounced by watch.debounce
and rebuilds are spaced by at least watch.min_interval. A failed rebuild is
reported and watching continues. Press Ctrl+C to stop.

Examples:
  fluxbuild watch
  FLUXBUILD_WATCH_DEBOUNCE=500ms fluxbuild watch`,
	Args:    cobra.NoArgs,
	PreRunE: requireConfig,
	RunE:    runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&buildMetricsFile, "metrics-file", "", "write Prometheus metrics to this textfile after every build")
}

func runWatch(cmd *cobra.Command, args []string) error {
	metrics := observability.NewMetrics()
	b, err := builder.New(cfg.Build, builder.WithMetrics(metrics))
	if err != nil {
		return err
	}

	session, err := b.NewSession()
	if err != nil {
		return err
	}
	defer session.Close()

	rebuild := func(ctx context.Context) error {
		result, err := session.Rebuild(ctx)
		if err := writeMetrics(metrics); err != nil {
			log.Warn().Err(err).Msg("Failed to write metrics")
		}
		if err != nil {
			return err
		}
		formatter.PrintSuccess("Built " + relativeTo(b.WorkDir(), result.Outfile) +
			" (" + util.FormatBytes(result.Bytes) + ") in " + util.FormatDuration(result.Duration))
		return nil
	}

	w, err := watch.New(b.WorkDir(), cfg.Watch, rebuild, watch.WithIgnore(watchIgnores(b)...))
	if err != nil {
		return err
	}

	return w.Run(cmd.Context())
}

// watchIgnores lists the paths a build itself writes or deletes
func watchIgnores(b *builder.Builder) []string {
	ignores := []string{
		filepath.ToSlash(relativeTo(b.WorkDir(), b.Outfile())),
	}
	if dir := filepath.Dir(b.Outfile()); dir != b.WorkDir() {
		ignores = append(ignores, filepath.ToSlash(relativeTo(b.WorkDir(), dir)))
	}
	if cfgFile != "" {
		ignores = append(ignores, filepath.ToSlash(cfgFile))
	}

	for _, c := range b.Cleaners() {
		opts := c.Options()
		ignores = append(ignores, opts.StartPatterns()...)
		ignores = append(ignores, opts.CleanOnEndPatterns...)
	}
	return ignores
}
