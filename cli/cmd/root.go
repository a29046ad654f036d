// Package cmd provides the Cobra commands for the fluxbuild CLI.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fluxbase-eu/fluxbuild/cli/output"
	"github.com/fluxbase-eu/fluxbuild/internal/config"
	"github.com/fluxbase-eu/fluxbuild/internal/logging"
	"github.com/fluxbase-eu/fluxbuild/internal/observability"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"

	// Global flags
	cfgFile   string
	outputFmt string
	noHeaders bool
	quiet     bool
	debug     bool
	logFormat string
	logFile   string

	// Shared across commands
	cfg       *config.Config
	formatter *output.Formatter
	logWriter *logging.Writer
	tracer    *observability.Tracer
)

// rootCmd builds with the configured options when run without a subcommand
var rootCmd = &cobra.Command{
	Use:   "fluxbuild",
	Short: "fluxbuild - bundle JavaScript with esbuild",
	Long: `fluxbuild bundles a JavaScript entry point into a single output file with
esbuild and cleans glob-matched paths before and after every build.

Without a configuration file it runs:
  entry points: ./src/index.js
  bundle:       true
  format:       cjs
  outfile:      ./dist/index.cjs
  clean:        ./dist/* and ./prepare on start, ./post on end

Get started:
  fluxbuild              Build once
  fluxbuild watch        Rebuild on changes
  fluxbuild config init  Write fluxbuild.yaml with the defaults`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	Args:              cobra.NoArgs,
	PersistentPreRunE: initGlobals,
	PreRunE:           requireConfig,
	RunE:              runBuild,
}

// Execute runs the CLI. SIGINT and SIGTERM cancel the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	defer closeGlobals()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is ./fluxbuild.yaml or ./config/fluxbuild.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table",
		"output format: table, json, yaml")
	rootCmd.PersistentFlags().BoolVar(&noHeaders, "no-headers", false,
		"hide table headers")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false,
		"minimal output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false,
		"enable debug output")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console",
		"log format: console, json")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "",
		"append log entries as JSON lines to this file")

	addBuildFlags(rootCmd)

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(completionCmd)
}

// initGlobals sets up the formatter and a flag-only logger so that
// configuration errors are logged consistently
func initGlobals(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(outputFmt)
	if err != nil {
		return err
	}
	formatter = output.NewFormatter(format, noHeaders, quiet)
	formatter.Writer = cmd.OutOrStdout()
	formatter.ErrWriter = cmd.ErrOrStderr()

	return setupLogging(logging.Options{
		Format: logFormat,
		Debug:  debug,
		Quiet:  quiet,
		Out:    cmd.ErrOrStderr(),
	})
}

// requireConfig loads the configuration, applies global flag overrides and
// reconfigures logging and tracing from it
func requireConfig(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("log-format") {
		loaded.Log.Format = logFormat
	}
	if flags.Changed("log-file") {
		loaded.Log.File = logFile
	}
	if debug {
		loaded.Debug = true
	}
	if err := loaded.Log.Validate(); err != nil {
		return err
	}
	cfg = loaded

	opts := logging.FromConfig(cfg.Log, cfg.Debug)
	opts.Quiet = quiet
	opts.Out = cmd.ErrOrStderr()
	if err := setupLogging(opts); err != nil {
		return err
	}

	t, err := observability.NewTracer(cmd.Context(), cfg.Tracing, Version)
	if err != nil {
		return err
	}
	tracer = t

	log.Debug().
		Str("version", Version).
		Str("config", cfgFile).
		Bool("tracing", tracer.IsEnabled()).
		Msg("Configuration loaded")
	return nil
}

func setupLogging(opts logging.Options) error {
	w, err := logging.Setup(opts)
	if err != nil {
		return err
	}
	if logWriter != nil {
		_ = logWriter.Close()
	}
	logWriter = w
	return nil
}

// closeGlobals flushes spans and closes the log file
func closeGlobals() {
	if tracer != nil {
		if err := tracer.Shutdown(context.Background()); err != nil {
			log.Warn().Err(err).Msg("Failed to shut down tracer")
		}
		tracer = nil
	}
	if logWriter != nil {
		_ = logWriter.Close()
		logWriter = nil
	}
}

// GetConfigPath returns the config file path used by config init
func GetConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultFileName
}
