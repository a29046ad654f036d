package logging

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxbase-eu/fluxbuild/internal/config"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"TRACE", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"WARNING", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"panic", zerolog.PanicLevel},
		{"", zerolog.InfoLevel},
		{"unknown", zerolog.InfoLevel},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			assert.Equal(t, tc.expected, parseLogLevel(tc.input))
		})
	}
}

func TestParseZerologJSON(t *testing.T) {
	t.Run("parses basic entry", func(t *testing.T) {
		entry, err := parseZerologJSON([]byte(`{"level":"warn","message":"Slow build","time":"2024-06-15T14:30:45Z"}`))
		require.NoError(t, err)

		assert.Equal(t, "warn", entry.Level)
		assert.Equal(t, "Slow build", entry.Message)
		assert.Equal(t, time.Date(2024, 6, 15, 14, 30, 45, 0, time.UTC), entry.Time)
		assert.Nil(t, entry.Fields)
	})

	t.Run("parses unix timestamps", func(t *testing.T) {
		entry, err := parseZerologJSON([]byte(`{"level":"info","time":1718461845}`))
		require.NoError(t, err)
		assert.Equal(t, int64(1718461845), entry.Time.Unix())
	})

	t.Run("extracts build fields", func(t *testing.T) {
		entry, err := parseZerologJSON([]byte(`{"level":"info","message":"Removed path","build_id":"b-1","component":"clean","phase":"start","path":"dist/a.js"}`))
		require.NoError(t, err)

		assert.Equal(t, "b-1", entry.BuildID)
		assert.Equal(t, "clean", entry.Component)
		assert.Equal(t, "start", entry.Phase)
		assert.Equal(t, map[string]any{"path": "dist/a.js"}, entry.Fields)
	})

	t.Run("error field upgrades info level", func(t *testing.T) {
		entry, err := parseZerologJSON([]byte(`{"level":"info","message":"x","error":"boom"}`))
		require.NoError(t, err)
		assert.Equal(t, "error", entry.Level)
		assert.Equal(t, "boom", entry.Error)
	})

	t.Run("error field keeps higher level", func(t *testing.T) {
		entry, err := parseZerologJSON([]byte(`{"level":"fatal","message":"x","error":"boom"}`))
		require.NoError(t, err)
		assert.Equal(t, "fatal", entry.Level)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		_, err := parseZerologJSON([]byte(`not json`))
		assert.Error(t, err)
	})
}

type nopCloser struct {
	bytes.Buffer
	closed bool
}

func (n *nopCloser) Close() error {
	n.closed = true
	return nil
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestWriter(t *testing.T) {
	t.Run("tees console and file", func(t *testing.T) {
		var console bytes.Buffer
		file := &nopCloser{}
		w := NewWriter(&console, file)

		logger := zerolog.New(w)
		logger.Info().Str("build_id", "b-2").Msg("Build finished")

		assert.Contains(t, console.String(), `"message":"Build finished"`)

		var entry Entry
		require.NoError(t, json.Unmarshal(file.Bytes(), &entry))
		assert.Equal(t, "Build finished", entry.Message)
		assert.Equal(t, "b-2", entry.BuildID)

		require.NoError(t, w.Close())
		assert.True(t, file.closed)
	})

	t.Run("console errors are ignored", func(t *testing.T) {
		w := NewWriter(failingWriter{}, nil)
		n, err := w.Write([]byte(`{"level":"info"}`))
		require.NoError(t, err)
		assert.Equal(t, 16, n)
	})

	t.Run("unparseable input skips the file", func(t *testing.T) {
		file := &nopCloser{}
		w := NewWriter(nil, file)
		_, err := w.Write([]byte("plain text"))
		require.NoError(t, err)
		assert.Zero(t, file.Len())
	})

	t.Run("close without file", func(t *testing.T) {
		assert.NoError(t, NewWriter(nil, nil).Close())
	})
}

func TestLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, Level(Options{Level: "error", Debug: true}))
	assert.Equal(t, zerolog.WarnLevel, Level(Options{Level: "info", Quiet: true}))
	assert.Equal(t, zerolog.ErrorLevel, Level(Options{Level: "error"}))
	assert.Equal(t, zerolog.InfoLevel, Level(Options{}))
}

func TestFromConfig(t *testing.T) {
	opts := FromConfig(config.LogConfig{Level: "warn", Format: "json", File: "build.log"}, true)
	assert.Equal(t, Options{Level: "warn", Format: "json", File: "build.log", Debug: true}, opts)
}

func TestSetup(t *testing.T) {
	previous := log.Logger
	previousLevel := zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = previous
		zerolog.SetGlobalLevel(previousLevel)
	})

	var out bytes.Buffer
	path := filepath.Join(t.TempDir(), "fluxbuild.log")

	w, err := Setup(Options{Level: "info", Format: "json", File: path, Out: &out})
	require.NoError(t, err)

	log.Debug().Msg("hidden")
	log.Info().Str("component", "builder").Msg("visible")
	require.NoError(t, w.Close())

	assert.NotContains(t, out.String(), "hidden")
	assert.Contains(t, out.String(), `"message":"visible"`)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Entry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
		entries = append(entries, e)
	}
	require.Len(t, entries, 1)
	assert.Equal(t, "builder", entries[0].Component)
}

func TestSetup_ConsoleFormat(t *testing.T) {
	previous := log.Logger
	previousLevel := zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = previous
		zerolog.SetGlobalLevel(previousLevel)
	})

	var out bytes.Buffer
	w, err := Setup(Options{Format: "console", Out: &out})
	require.NoError(t, err)
	defer w.Close()

	log.Info().Msg("hello")
	assert.Contains(t, out.String(), "INF")
	assert.NotContains(t, out.String(), `"message"`)
}

func TestSetup_BadFile(t *testing.T) {
	_, err := Setup(Options{File: filepath.Join(t.TempDir(), "missing", "x.log"), Out: &bytes.Buffer{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open log file")
}
