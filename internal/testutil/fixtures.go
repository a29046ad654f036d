// Package testutil provides filesystem fixtures shared by package tests.
package testutil

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

// DefaultEntry is the source of the default entry point fixture
const DefaultEntry = "export const x = 1;\n"

// WriteFile writes content to a slash-separated path below root, creating
// parent directories
func WriteFile(t testing.TB, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0750))
	require.NoError(t, os.WriteFile(full, []byte(content), 0600))
}

// Exists reports whether the slash-separated path below root exists
func Exists(root, rel string) bool {
	_, err := os.Stat(filepath.Join(root, filepath.FromSlash(rel)))
	return err == nil
}

// ReadFile returns the content of a path below root
func ReadFile(t testing.TB, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

// ListDir returns the sorted entry names of a directory below root
func ListDir(t testing.TB, root, rel string) []string {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

// Project creates a temporary working directory holding files, keyed by
// slash-separated path. A nil map yields ./src/index.js with DefaultEntry.
func Project(t testing.TB, files map[string]string) string {
	t.Helper()
	if files == nil {
		files = map[string]string{"src/index.js": DefaultEntry}
	}
	root := t.TempDir()
	for rel, content := range files {
		WriteFile(t, root, rel, content)
	}
	return root
}
