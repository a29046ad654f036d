package bundler

import (
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"
)

// entryLabel replaces the entry point path in the breakdown
const entryLabel = "<entry>"

// Analyze parses a metafile and describes the output at outfile, a path
// relative to the build working directory. An empty outfile selects the
// first output that has an entry point.
func Analyze(metafileJSON string, outfile string) (*AnalysisResult, error) {
	if strings.TrimSpace(metafileJSON) == "" {
		return nil, fmt.Errorf("metafile is empty (was the build run with metafile enabled?)")
	}

	var meta Metafile
	if err := json.Unmarshal([]byte(metafileJSON), &meta); err != nil {
		return nil, fmt.Errorf("failed to parse metafile: %w", err)
	}

	name, output, ok := selectOutput(&meta, outfile)
	if !ok {
		return nil, fmt.Errorf("output %q not found in metafile", outfile)
	}

	return analyzeOutput(&meta, name, output), nil
}

func selectOutput(meta *Metafile, outfile string) (string, MetafileOutput, bool) {
	if outfile != "" {
		want := path.Clean(strings.TrimPrefix(outfile, "./"))
		for name, out := range meta.Outputs {
			if path.Clean(name) == want {
				return name, out, true
			}
		}
		return "", MetafileOutput{}, false
	}

	names := make([]string, 0, len(meta.Outputs))
	for name := range meta.Outputs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if meta.Outputs[name].EntryPoint != "" {
			return name, meta.Outputs[name], true
		}
	}
	return "", MetafileOutput{}, false
}

// analyzeOutput processes one output of the metafile
func analyzeOutput(meta *Metafile, name string, output MetafileOutput) *AnalysisResult {
	result := &AnalysisResult{
		Outfile:    name,
		EntryPoint: output.EntryPoint,
		TotalBytes: output.Bytes,
		Exports:    output.Exports,
	}

	seenExternal := make(map[string]struct{})
	for _, imp := range output.Imports {
		if !imp.External {
			continue
		}
		if _, ok := seenExternal[imp.Path]; ok {
			continue
		}
		seenExternal[imp.Path] = struct{}{}
		result.ExternalImports = append(result.ExternalImports, imp.Path)
	}

	packages := make(map[string]*PackageAnalysis)
	for inputPath, contrib := range output.Inputs {
		inputInfo, ok := meta.Inputs[inputPath]
		if !ok {
			continue
		}

		displayPath := inputPath
		if inputPath == output.EntryPoint {
			displayPath = entryLabel
		}

		file := FileAnalysis{
			Path:          displayPath,
			Bytes:         inputInfo.Bytes,
			BytesInOutput: contrib.BytesInOutput,
			Percentage:    percentage(contrib.BytesInOutput, result.TotalBytes),
			ImportCount:   len(inputInfo.Imports),
			Package:       packageName(inputPath),
		}
		result.InputFiles = append(result.InputFiles, file)

		if file.Package == "" {
			continue
		}
		pkg, ok := packages[file.Package]
		if !ok {
			pkg = &PackageAnalysis{Name: file.Package}
			packages[file.Package] = pkg
		}
		pkg.Files++
		pkg.BytesInOutput += contrib.BytesInOutput
	}

	for _, pkg := range packages {
		pkg.Percentage = percentage(pkg.BytesInOutput, result.TotalBytes)
		result.Packages = append(result.Packages, *pkg)
	}

	sort.Slice(result.InputFiles, func(i, j int) bool {
		a, b := result.InputFiles[i], result.InputFiles[j]
		if a.BytesInOutput != b.BytesInOutput {
			return a.BytesInOutput > b.BytesInOutput
		}
		return a.Path < b.Path
	})
	sort.Slice(result.Packages, func(i, j int) bool {
		a, b := result.Packages[i], result.Packages[j]
		if a.BytesInOutput != b.BytesInOutput {
			return a.BytesInOutput > b.BytesInOutput
		}
		return a.Name < b.Name
	})
	sort.Strings(result.ExternalImports)

	if len(result.InputFiles) == 0 {
		result.Warnings = append(result.Warnings, "output has no bundled inputs")
	}

	return result
}

// packageName returns the npm package an input belongs to, if any
func packageName(inputPath string) string {
	const marker = "node_modules/"
	idx := strings.LastIndex(inputPath, marker)
	if idx < 0 {
		return ""
	}
	parts := strings.Split(inputPath[idx+len(marker):], "/")
	if len(parts) == 0 || parts[0] == "" {
		return ""
	}
	if strings.HasPrefix(parts[0], "@") && len(parts) > 1 {
		return parts[0] + "/" + parts[1]
	}
	return parts[0]
}

func percentage(part, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}
