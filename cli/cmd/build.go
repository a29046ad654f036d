package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fluxbase-eu/fluxbuild/cli/bundler"
	"github.com/fluxbase-eu/fluxbuild/cli/util"
	"github.com/fluxbase-eu/fluxbuild/internal/builder"
	"github.com/fluxbase-eu/fluxbuild/internal/observability"
)

var (
	buildAnalyze     bool
	buildDetails     bool
	buildMetafile    string
	buildMetricsFile string
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Bundle the entry points once",
	Long: `Run the clean plugin's start patterns, bundle the entry points with esbuild,
write the output file and run the end patterns.

Examples:
  fluxbuild build
  fluxbuild build --analyze
  fluxbuild build --metafile dist/meta.json --metrics-file /var/lib/node_exporter/fluxbuild.prom
  FLUXBUILD_BUILD_FORMAT=esm fluxbuild build -o json`,
	Args:    cobra.NoArgs,
	PreRunE: requireConfig,
	RunE:    runBuild,
}

// buildSummary is printed for -o json and -o yaml
type buildSummary struct {
	BuildID    string                  `json:"build_id" yaml:"build_id"`
	Outfile    string                  `json:"outfile" yaml:"outfile"`
	Bytes      int64                   `json:"bytes" yaml:"bytes"`
	DurationMS int64                   `json:"duration_ms" yaml:"duration_ms"`
	Warnings   int                     `json:"warnings" yaml:"warnings"`
	Analysis   *bundler.AnalysisResult `json:"analysis,omitempty" yaml:"analysis,omitempty"`
}

func addBuildFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&buildAnalyze, "analyze", false, "print a bundle size breakdown")
	cmd.Flags().BoolVar(&buildDetails, "details", false, "list every input in the breakdown")
	cmd.Flags().StringVar(&buildMetafile, "metafile", "", "write the esbuild metafile JSON to this path")
	cmd.Flags().StringVar(&buildMetricsFile, "metrics-file", "", "write Prometheus metrics to this textfile")
}

func init() {
	addBuildFlags(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	buildCfg := cfg.Build
	if buildAnalyze || buildMetafile != "" {
		buildCfg.Metafile = true
	}

	metrics := observability.NewMetrics()
	b, err := builder.New(buildCfg, builder.WithMetrics(metrics))
	if err != nil {
		return err
	}

	result, buildErr := b.Build(cmd.Context())
	if err := writeMetrics(metrics); err != nil {
		log.Warn().Err(err).Msg("Failed to write metrics")
	}
	if buildErr != nil {
		return buildErr
	}

	if buildMetafile != "" {
		if err := os.WriteFile(buildMetafile, []byte(result.Metafile), 0600); err != nil {
			return fmt.Errorf("failed to write metafile: %w", err)
		}
	}

	summary := buildSummary{
		BuildID:    result.BuildID,
		Outfile:    relativeTo(b.WorkDir(), result.Outfile),
		Bytes:      result.Bytes,
		DurationMS: result.Duration.Milliseconds(),
		Warnings:   len(result.Warnings),
	}

	if buildAnalyze {
		analysis, err := bundler.Analyze(result.Metafile, filepath.ToSlash(summary.Outfile))
		if err != nil {
			return err
		}
		summary.Analysis = analysis
		if !formatter.Structured() && !formatter.Quiet {
			bundler.DisplayAnalysis(formatter.Writer, analysis, buildDetails)
		}
	}

	return formatter.PrintResult(fmt.Sprintf("Built %s (%s) in %s",
		summary.Outfile,
		util.FormatBytes(result.Bytes),
		util.FormatDuration(result.Duration),
	), summary)
}

// metricsPath resolves the textfile from the flag or the configuration
func metricsPath() string {
	if buildMetricsFile != "" {
		return buildMetricsFile
	}
	return cfg.Metrics.Textfile
}

func writeMetrics(metrics *observability.Metrics) error {
	path := metricsPath()
	if path == "" {
		return nil
	}
	return metrics.WriteTextfile(path)
}

func relativeTo(dir, p string) string {
	rel, err := filepath.Rel(dir, p)
	if err != nil {
		return p
	}
	return rel
}
