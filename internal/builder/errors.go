package builder

import (
	"errors"
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// ErrBuildFailed is wrapped by every error reported by the bundler
var ErrBuildFailed = errors.New("build failed")

// BuildError carries the diagnostics of a failed build
type BuildError struct {
	BuildID  string
	Messages []api.Message
}

func (e *BuildError) Error() string {
	if len(e.Messages) == 0 {
		return ErrBuildFailed.Error()
	}

	formatted := api.FormatMessages(e.Messages, api.FormatMessagesOptions{
		Kind: api.ErrorMessage,
	})

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s with %d error(s)", ErrBuildFailed.Error(), len(e.Messages))
	for _, msg := range formatted {
		sb.WriteString("\n")
		sb.WriteString(strings.TrimRight(msg, "\n"))
	}
	return sb.String()
}

func (e *BuildError) Unwrap() error {
	return ErrBuildFailed
}

// Texts returns the plain text of every message
func (e *BuildError) Texts() []string {
	texts := make([]string, 0, len(e.Messages))
	for _, msg := range e.Messages {
		text := msg.Text
		if msg.PluginName != "" {
			text = fmt.Sprintf("[plugin %s] %s", msg.PluginName, text)
		}
		texts = append(texts, text)
	}
	return texts
}
