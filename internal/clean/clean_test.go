package clean

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxbase-eu/fluxbuild/internal/testutil"
)

func writeFile(t *testing.T, root, rel string) {
	t.Helper()
	testutil.WriteFile(t, root, rel, rel)
}

var exists = testutil.Exists

func TestOptions_StartPatterns(t *testing.T) {
	opts := Options{
		Patterns:             []string{"./dist/*"},
		CleanOnStartPatterns: []string{"./prepare"},
		CleanOnEndPatterns:   []string{"./post"},
	}

	assert.Equal(t, []string{"./dist/*", "./prepare"}, opts.StartPatterns())
	assert.Len(t, opts.Patterns, 1, "StartPatterns must not alias Patterns")
}

func TestCleaner_CleanStartAndEnd(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "dist/index.cjs")
	writeFile(t, root, "dist/stale.js")
	writeFile(t, root, "prepare/tmp.txt")
	writeFile(t, root, "post/report.txt")
	writeFile(t, root, "src/index.js")

	c := New(root, Options{
		Patterns:             []string{"./dist/*"},
		CleanOnStartPatterns: []string{"./prepare"},
		CleanOnEndPatterns:   []string{"./post"},
	})

	removed, err := c.CleanStart(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"dist/index.cjs", "dist/stale.js", "prepare"}, removed)

	assert.True(t, exists(root, "dist"), "dist/* keeps the directory itself")
	assert.False(t, exists(root, "dist/stale.js"))
	assert.False(t, exists(root, "prepare"))
	assert.True(t, exists(root, "post/report.txt"), "end patterns are not cleaned at start")
	assert.True(t, exists(root, "src/index.js"))

	removed, err = c.CleanEnd(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"post"}, removed)
	assert.False(t, exists(root, "post"))
}

func TestCleaner_NoMatchesIsNotAnError(t *testing.T) {
	root := t.TempDir()
	c := New(root, Options{Patterns: []string{"./dist/*", "./prepare"}})

	removed, err := c.CleanStart(context.Background())
	require.NoError(t, err)
	assert.Empty(t, removed)
}

func TestCleaner_Match(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "dist/a.js")
	writeFile(t, root, "dist/keep.js")
	writeFile(t, root, "dist/sub/b.js")
	writeFile(t, root, "dist/sub/c.map")
	writeFile(t, root, "build/x.js")

	tests := []struct {
		name     string
		patterns []string
		expected []string
	}{
		{
			name:     "single star",
			patterns: []string{"dist/*"},
			expected: []string{"dist/a.js", "dist/keep.js", "dist/sub"},
		},
		{
			name:     "double star collapses into the directory",
			patterns: []string{"./dist/**"},
			expected: []string{"dist"},
		},
		{
			name:     "double star with extension",
			patterns: []string{"dist/**/*.map"},
			expected: []string{"dist/sub/c.map"},
		},
		{
			name:     "negation protects a file and its parent",
			patterns: []string{"dist/**", "!dist/keep.js"},
			expected: []string{"dist/a.js", "dist/sub"},
		},
		{
			name:     "alternation across directories",
			patterns: []string{"{dist,build}/*.js"},
			expected: []string{"build/x.js", "dist/a.js", "dist/keep.js"},
		},
		{
			name:     "duplicates are removed",
			patterns: []string{"dist/a.js", "./dist/a.js"},
			expected: []string{"dist/a.js"},
		},
	}

	c := New(root, Options{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Match(tt.patterns)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestCleaner_MatchSkipsDotNames(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "dist/.gitkeep")
	writeFile(t, root, "dist/a.js")
	writeFile(t, root, "dist/.cache/x.js")
	writeFile(t, root, "src/.env")

	tests := []struct {
		name     string
		patterns []string
		expected []string
	}{
		{
			name:     "single star skips dotfiles",
			patterns: []string{"./dist/*"},
			expected: []string{"dist/a.js"},
		},
		{
			name:     "double star skips dot directories",
			patterns: []string{"**/*.js"},
			expected: []string{"dist/a.js"},
		},
		{
			name:     "literal dotfile",
			patterns: []string{"dist/.gitkeep"},
			expected: []string{"dist/.gitkeep"},
		},
		{
			name:     "dot prefixed wildcard",
			patterns: []string{"dist/.*"},
			expected: []string{"dist/.cache", "dist/.gitkeep"},
		},
		{
			name:     "dotfile after double star",
			patterns: []string{"**/.env"},
			expected: []string{"src/.env"},
		},
	}

	c := New(root, Options{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Match(tt.patterns)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestCleaner_CleanStartKeepsGitkeep(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "dist/.gitkeep")
	writeFile(t, root, "dist/index.cjs")

	c := New(root, Options{Patterns: []string{"./dist/*"}})
	removed, err := c.CleanStart(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"dist/index.cjs"}, removed)
	assert.True(t, exists(root, "dist/.gitkeep"))
}

func TestCleaner_NegationInsideMatchedDirectory(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		expected []string
	}{
		{
			name:     "direct child",
			patterns: []string{"tmp", "!tmp/keep"},
			expected: []string{"tmp/a.txt", "tmp/sub"},
		},
		{
			name:     "nested child",
			patterns: []string{"tmp", "!tmp/sub/keep.txt"},
			expected: []string{"tmp/a.txt", "tmp/keep", "tmp/sub/b.txt"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			writeFile(t, root, "tmp/keep")
			writeFile(t, root, "tmp/a.txt")
			writeFile(t, root, "tmp/sub/b.txt")
			writeFile(t, root, "tmp/sub/keep.txt")

			c := New(root, Options{Patterns: tt.patterns})
			removed, err := c.CleanStart(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.expected, removed)

			for _, p := range tt.expected {
				assert.False(t, exists(root, p), p)
			}
			assert.True(t, exists(root, "tmp"))
		})
	}
}

func TestCleaner_UnsafePatterns(t *testing.T) {
	root := t.TempDir()
	c := New(root, Options{})

	patterns := []string{
		".",
		"./",
		"dist/..",
		"..",
		"../other",
		"./dist/../../x",
		"",
		"!",
		filepath.Join(filepath.Dir(root), "elsewhere"),
	}

	for _, p := range patterns {
		t.Run(p, func(t *testing.T) {
			_, err := c.Match([]string{p})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrUnsafePattern)
		})
	}
}

func TestCleaner_AbsolutePatternInsideRoot(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "dist/a.js")

	c := New(root, Options{})
	got, err := c.Match([]string{filepath.Join(root, "dist", "*")})
	require.NoError(t, err)
	assert.Equal(t, []string{"dist/a.js"}, got)
}

func TestCleaner_InvalidGlob(t *testing.T) {
	c := New(t.TempDir(), Options{})
	_, err := c.Match([]string{"dist/[a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid glob pattern")
}

func TestCleaner_DryRun(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "dist/a.js")

	c := New(root, Options{Patterns: []string{"dist/*"}, DryRun: true})
	removed, err := c.CleanStart(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"dist/a.js"}, removed)
	assert.True(t, exists(root, "dist/a.js"))
}

func TestCleaner_Observer(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "post/a.txt")

	var gotPhase Phase
	var gotRemoved []string
	c := New(root, Options{CleanOnEndPatterns: []string{"post"}},
		WithObserver(func(phase Phase, removed []string) {
			gotPhase = phase
			gotRemoved = removed
		}),
	)

	_, err := c.CleanEnd(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PhaseEnd, gotPhase)
	assert.Equal(t, []string{"post"}, gotRemoved)
}

func TestCleaner_CancelledContext(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "dist/a.js")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := New(root, Options{Patterns: []string{"dist/*"}})
	_, err := c.CleanStart(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, exists(root, "dist/a.js"))
}

func TestCleaner_MemFs(t *testing.T) {
	fsys := afero.NewBasePathFs(afero.NewMemMapFs(), "/")
	require.NoError(t, afero.WriteFile(fsys, "dist/a.js", []byte("a"), 0600))
	require.NoError(t, afero.WriteFile(fsys, "src/index.js", []byte("b"), 0600))

	c := New("", Options{Patterns: []string{"./dist/*"}}, WithFs(fsys))
	removed, err := c.CleanStart(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"dist/a.js"}, removed)

	ok, err := afero.Exists(fsys, "dist/a.js")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = afero.Exists(fsys, "src/index.js")
	require.NoError(t, err)
	assert.True(t, ok)
}
