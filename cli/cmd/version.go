package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long:  `Display the version, commit hash, and build date of fluxbuild.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := map[string]string{
			"version":    Version,
			"commit":     Commit,
			"build_date": BuildDate,
			"go":         runtime.Version(),
		}
		if formatter.Structured() {
			return formatter.Print(info)
		}

		w := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(w, "fluxbuild %s\n", Version)
		_, _ = fmt.Fprintf(w, "Commit: %s\n", Commit)
		_, _ = fmt.Fprintf(w, "Build Date: %s\n", BuildDate)
		_, _ = fmt.Fprintf(w, "Go: %s\n", runtime.Version())
		return nil
	},
}
