package dael

import (
	"encoding/json"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// NewLogger returns a logger that writes to stdout with colorized output if
// stdout is a terminal, at the given level.
func NewLogger(level slog.Level) *slog.Logger {
	return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
		NoColor:    !isatty.IsTerminal(os.Stdout.Fd()),
	}))
}

// NewJSONLogger returns a logger that writes to stdout in JSON format, for
// deployments that ship logs to a collector rather than a terminal.
func NewJSONLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

// ParseLevel maps a configuration string ("debug", "info", "warn",
// "error") onto an slog.Level, defaulting to Info on an unrecognized
// value.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ComponentLogger returns a logger scoped to one named component
// ("engine", "sandbox", "tools", "mcpserver", ...). A per-component level
// override, if configured, is applied by the caller's handler setup; this
// only tags the component name onto every record so overrides can filter
// on it downstream.
func ComponentLogger(base *slog.Logger, component string) *slog.Logger {
	return base.With("component", component)
}

// Truncate renders v for logging, truncating long string/JSON
// representations at limit bytes so a verbose tool result or code-step
// output doesn't flood the log (§ ambient stack, show_params/show_results).
func Truncate(v any, limit int) string {
	var s string
	switch val := v.(type) {
	case string:
		s = val
	default:
		b, err := json.Marshal(val)
		if err != nil {
			s = ""
		} else {
			s = string(b)
		}
	}
	if limit > 0 && len(s) > limit {
		return s[:limit] + "...(truncated)"
	}
	return s
}
