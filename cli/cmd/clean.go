package cmd

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fluxbase-eu/fluxbuild/cli/output"
	"github.com/fluxbase-eu/fluxbuild/cli/util"
	"github.com/fluxbase-eu/fluxbuild/internal/builder"
	"github.com/fluxbase-eu/fluxbuild/internal/clean"
)

var (
	cleanPhase  string
	cleanDryRun bool
	cleanYes    bool
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Run the clean plugin without building",
	Long: `Remove the paths matched by the clean plugin's patterns without running esbuild.

Phases:
  start  patterns and clean_on_start_patterns
  end    clean_on_end_patterns
  all    start, then end

When stdin is a terminal the matched paths are listed and confirmation is
requested unless --yes is given.

Examples:
  fluxbuild clean
  fluxbuild clean --phase end
  fluxbuild clean --dry-run -o json`,
	Args:    cobra.NoArgs,
	PreRunE: requireConfig,
	RunE:    runClean,
}

func init() {
	cleanCmd.Flags().StringVar(&cleanPhase, "phase", "all", "phase to clean: start, end, all")
	cleanCmd.Flags().BoolVar(&cleanDryRun, "dry-run", false, "list matches without removing them")
	cleanCmd.Flags().BoolVarP(&cleanYes, "yes", "y", false, "skip the confirmation prompt")
}

// phasePatterns pairs a phase with the patterns a cleaner removes in it
type phasePatterns struct {
	phase    clean.Phase
	patterns []string
}

func selectPhases(phase string, opts clean.Options) ([]phasePatterns, error) {
	start := phasePatterns{clean.PhaseStart, opts.StartPatterns()}
	end := phasePatterns{clean.PhaseEnd, opts.CleanOnEndPatterns}

	switch phase {
	case "start":
		return []phasePatterns{start}, nil
	case "end":
		return []phasePatterns{end}, nil
	case "all", "":
		return []phasePatterns{start, end}, nil
	default:
		return nil, fmt.Errorf("invalid phase %q (must be one of: start, end, all)", phase)
	}
}

func runClean(cmd *cobra.Command, args []string) error {
	b, err := builder.New(cfg.Build, builder.WithCleanDryRun(cleanDryRun))
	if err != nil {
		return err
	}

	cleaners := b.Cleaners()
	if len(cleaners) == 0 {
		formatter.PrintWarning("no clean plugin configured")
		return nil
	}

	// Collect matches first so the prompt shows everything that will go
	var matched []string
	for _, c := range cleaners {
		phases, err := selectPhases(cleanPhase, c.Options())
		if err != nil {
			return err
		}
		for _, p := range phases {
			paths, err := c.Match(p.patterns)
			if err != nil {
				return err
			}
			matched = append(matched, paths...)
		}
	}

	if len(matched) == 0 {
		return formatter.PrintResult("Nothing to clean", []map[string]string{})
	}

	if !cleanDryRun && !cleanYes && util.IsInteractive() {
		for _, p := range matched {
			_, _ = fmt.Fprintf(formatter.ErrWriter, "  %s\n", util.TruncateString(p, 120))
		}
		ok, err := util.Confirm(cmd.InOrStdin(), formatter.ErrWriter,
			fmt.Sprintf("Remove %d path(s)?", len(matched)), false)
		if err != nil {
			return err
		}
		if !ok {
			formatter.PrintSuccess("Aborted")
			return nil
		}
	}

	action := "removed"
	if cleanDryRun {
		action = "would remove"
	}

	table := output.TableData{Headers: []string{"PHASE", "PATH", "ACTION"}}
	for _, c := range cleaners {
		phases, _ := selectPhases(cleanPhase, c.Options())
		for _, p := range phases {
			removed, err := c.Clean(cmd.Context(), p.phase, p.patterns)
			for _, path := range removed {
				table.Rows = append(table.Rows, []string{string(p.phase), path, action})
			}
			if err != nil {
				_ = formatter.PrintTable(table)
				return err
			}
		}
	}

	log.Debug().Int("paths", len(table.Rows)).Bool("dry_run", cleanDryRun).Msg("Clean finished")
	return formatter.PrintTable(table)
}
