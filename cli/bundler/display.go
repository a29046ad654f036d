package bundler

import (
	"fmt"
	"io"
	"strings"
)

// maxBreakdownFiles limits the breakdown unless details are requested
const maxBreakdownFiles = 10

// DisplayAnalysis prints the bundle analysis in a formatted way
func DisplayAnalysis(w io.Writer, result *AnalysisResult, showDetails bool) {
	_, _ = fmt.Fprintf(w, "\n=== Bundle Analysis: %s ===\n", result.Outfile)
	_, _ = fmt.Fprintf(w, "Total bundle size: %s\n", formatBytesHuman(result.TotalBytes))
	if result.EntryPoint != "" {
		_, _ = fmt.Fprintf(w, "Entry point: %s\n", result.EntryPoint)
	}
	if len(result.Exports) > 0 {
		_, _ = fmt.Fprintf(w, "Exports: %s\n", strings.Join(result.Exports, ", "))
	}

	if len(result.ExternalImports) > 0 {
		_, _ = fmt.Fprintln(w, "\nExternal imports (resolved at runtime):")
		for _, imp := range result.ExternalImports {
			_, _ = fmt.Fprintf(w, "  - %s\n", imp)
		}
	}

	if len(result.InputFiles) > 0 {
		_, _ = fmt.Fprintln(w, "\nBundle breakdown:")

		limit := maxBreakdownFiles
		if showDetails || limit > len(result.InputFiles) {
			limit = len(result.InputFiles)
		}

		width := 0
		for _, file := range result.InputFiles[:limit] {
			width = max(width, len(truncatePath(file.Path, 50)))
		}

		for _, file := range result.InputFiles[:limit] {
			displayPath := truncatePath(file.Path, 50)
			_, _ = fmt.Fprintf(w, "  %-*s  %10s  %5.1f%%\n",
				width,
				displayPath,
				formatBytesHuman(file.BytesInOutput),
				file.Percentage,
			)
		}
		if remaining := len(result.InputFiles) - limit; remaining > 0 {
			_, _ = fmt.Fprintf(w, "  ... and %d more files\n", remaining)
		}
	}

	if len(result.Packages) > 0 {
		displayPackages(w, result.Packages)
	}

	if len(result.Warnings) > 0 {
		_, _ = fmt.Fprintln(w, "\nWarnings:")
		for _, warn := range result.Warnings {
			_, _ = fmt.Fprintf(w, "  - %s\n", warn)
		}
	}

	_, _ = fmt.Fprintln(w)
}

// displayPackages prints the per-package totals as aligned columns
func displayPackages(w io.Writer, packages []PackageAnalysis) {
	width := len("PACKAGE")
	for _, p := range packages {
		width = max(width, len(p.Name))
	}

	_, _ = fmt.Fprintln(w, "\nPackages:")
	_, _ = fmt.Fprintf(w, "  %-*s  %10s  %5s  %6s\n", width, "PACKAGE", "SIZE", "FILES", "SHARE")
	_, _ = fmt.Fprintf(w, "  %s  ----------  -----  ------\n", strings.Repeat("-", width))

	var total int
	for _, p := range packages {
		total += p.BytesInOutput
		_, _ = fmt.Fprintf(w, "  %-*s  %10s  %5d  %5.1f%%\n",
			width,
			p.Name,
			formatBytesHuman(p.BytesInOutput),
			p.Files,
			p.Percentage,
		)
	}

	_, _ = fmt.Fprintf(w, "  %s  ----------\n", strings.Repeat("-", width))
	_, _ = fmt.Fprintf(w, "  %-*s  %10s\n", width, "TOTAL", formatBytesHuman(total))
}

// formatBytesHuman formats bytes in human-readable format
func formatBytesHuman(bytes int) string {
	const (
		KB = 1024
		MB = 1024 * KB
	)
	switch {
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// truncatePath shortens a path if it's too long
func truncatePath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	return "..." + path[len(path)-maxLen+3:]
}
