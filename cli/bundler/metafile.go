// Package bundler analyzes the esbuild metafile of a fluxbuild build.
package bundler

// Metafile represents the esbuild metafile JSON structure
type Metafile struct {
	Inputs  map[string]MetafileInput  `json:"inputs"`
	Outputs map[string]MetafileOutput `json:"outputs"`
}

// MetafileInput represents an input file in the metafile
type MetafileInput struct {
	Bytes   int              `json:"bytes"`
	Imports []MetafileImport `json:"imports"`
	Format  string           `json:"format,omitempty"` // "cjs" or "esm"
}

// MetafileImport represents an import in the metafile
type MetafileImport struct {
	Path     string `json:"path"`
	Kind     string `json:"kind"`
	External bool   `json:"external,omitempty"`
	Original string `json:"original,omitempty"`
}

// MetafileOutput represents an output file in the metafile
type MetafileOutput struct {
	Bytes      int                     `json:"bytes"`
	Inputs     map[string]InputContrib `json:"inputs"`
	Imports    []MetafileImport        `json:"imports"`
	Exports    []string                `json:"exports"`
	EntryPoint string                  `json:"entryPoint,omitempty"`
}

// InputContrib represents the contribution of an input to an output
type InputContrib struct {
	BytesInOutput int `json:"bytesInOutput"`
}

// AnalysisResult describes one output file
type AnalysisResult struct {
	Outfile         string            `json:"outfile"`
	EntryPoint      string            `json:"entry_point,omitempty"`
	TotalBytes      int               `json:"total_bytes"`
	Exports         []string          `json:"exports,omitempty"`
	InputFiles      []FileAnalysis    `json:"inputs"`
	Packages        []PackageAnalysis `json:"packages,omitempty"`
	ExternalImports []string          `json:"external_imports,omitempty"`
	Warnings        []string          `json:"warnings,omitempty"`
}

// FileAnalysis contains analysis for a single input file
type FileAnalysis struct {
	Path          string  `json:"path"`
	Bytes         int     `json:"bytes"`
	BytesInOutput int     `json:"bytes_in_output"`
	Percentage    float64 `json:"percentage"`
	ImportCount   int     `json:"import_count"`
	Package       string  `json:"package,omitempty"`
}

// PackageAnalysis sums the inputs that come from one node_modules package
type PackageAnalysis struct {
	Name          string  `json:"name"`
	Files         int     `json:"files"`
	BytesInOutput int     `json:"bytes_in_output"`
	Percentage    float64 `json:"percentage"`
}
