package main

import (
	"fmt"
	"os"

	"github.com/fluxbase-eu/fluxbuild/cli/cmd"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	cmd.Version = Version
	cmd.Commit = Commit
	cmd.BuildDate = BuildDate

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
