package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Entry is one line of the JSONL log file
type Entry struct {
	Time      time.Time      `json:"time"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	BuildID   string         `json:"build_id,omitempty"`
	Component string         `json:"component,omitempty"`
	Phase     string         `json:"phase,omitempty"`
	Error     string         `json:"error,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Writer is an io.Writer that intercepts zerolog output, writes it to the
// console and appends a normalized Entry to a log file.
type Writer struct {
	console io.Writer
	file    io.WriteCloser

	mu  sync.Mutex
	enc *json.Encoder
}

// NewWriter creates a writer teeing to console and file. Either may be nil.
func NewWriter(console io.Writer, file io.WriteCloser) *Writer {
	w := &Writer{
		console: console,
		file:    file,
	}
	if file != nil {
		w.enc = json.NewEncoder(file)
	}
	return w
}

// OpenFile opens path for appending log entries
func OpenFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600) //nolint:gosec // path comes from local config
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, nil
}

// Write implements io.Writer. Console and file errors never fail the caller.
func (w *Writer) Write(p []byte) (n int, err error) {
	n = len(p)

	if w.console != nil {
		_, _ = w.console.Write(p)
	}

	if w.enc == nil {
		return n, nil
	}

	entry, parseErr := parseZerologJSON(p)
	if parseErr != nil {
		return n, nil
	}

	w.mu.Lock()
	_ = w.enc.Encode(entry)
	w.mu.Unlock()

	return n, nil
}

// Close closes the log file
func (w *Writer) Close() error {
	if w.file == nil {
		return nil
	}
	return w.file.Close()
}

// parseZerologJSON parses zerolog JSON output into an Entry
func parseZerologJSON(p []byte) (*Entry, error) {
	var raw map[string]any
	if err := json.Unmarshal(p, &raw); err != nil {
		return nil, err
	}

	entry := &Entry{
		Time:   time.Now().UTC(),
		Level:  zerolog.InfoLevel.String(),
		Fields: make(map[string]any),
	}

	if level, ok := raw[zerolog.LevelFieldName].(string); ok {
		entry.Level = parseLogLevel(level).String()
		delete(raw, zerolog.LevelFieldName)
	}

	if msg, ok := raw[zerolog.MessageFieldName].(string); ok {
		entry.Message = msg
		delete(raw, zerolog.MessageFieldName)
	}

	switch ts := raw[zerolog.TimestampFieldName].(type) {
	case string:
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			entry.Time = parsed
		}
	case float64:
		entry.Time = time.Unix(int64(ts), 0).UTC()
	}
	delete(raw, zerolog.TimestampFieldName)

	if buildID, ok := raw["build_id"].(string); ok {
		entry.BuildID = buildID
		delete(raw, "build_id")
	}
	if component, ok := raw["component"].(string); ok {
		entry.Component = component
		delete(raw, "component")
	}
	if phase, ok := raw["phase"].(string); ok {
		entry.Phase = phase
		delete(raw, "phase")
	}
	if errMsg, ok := raw[zerolog.ErrorFieldName].(string); ok {
		entry.Error = errMsg
		delete(raw, zerolog.ErrorFieldName)
		if entry.Level == zerolog.InfoLevel.String() {
			entry.Level = zerolog.ErrorLevel.String()
		}
	}

	for k, v := range raw {
		entry.Fields[k] = v
	}
	if len(entry.Fields) == 0 {
		entry.Fields = nil
	}

	return entry, nil
}

// parseLogLevel converts a level string to a zerolog level, defaulting to info
func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "warning":
		return zerolog.WarnLevel
	case "":
		return zerolog.InfoLevel
	}
	parsed, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || parsed == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return parsed
}
