package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// LevelTrace sits below debug and is used for raw MCP wire lines. The
// value matches the trace level of other slog extensions.
const LevelTrace = slog.Level(-8)

// levelNames maps the accepted log_level spellings to levels.
var levelNames = map[string]slog.Level{
	"":        slog.LevelInfo,
	"info":    slog.LevelInfo,
	"trace":   LevelTrace,
	"debug":   slog.LevelDebug,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// ParseLogLevel converts a log_level value to an [slog.Level]. Matching
// ignores case and surrounding whitespace; "" means info.
func ParseLogLevel(s string) (slog.Level, error) {
	if level, ok := levelNames[strings.ToLower(strings.TrimSpace(s))]; ok {
		return level, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q (valid: trace, debug, info, warn, error)", s)
}

// ReplaceLevelNames renders [LevelTrace] as "TRACE" instead of slog's
// "DEBUG-4". Use it as [slog.HandlerOptions.ReplaceAttr].
func ReplaceLevelNames(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	if level, ok := a.Value.Any().(slog.Level); ok && level == LevelTrace {
		a.Value = slog.StringValue("TRACE")
	}
	return a
}

// NewLogger builds the process logger. Format "json" selects the JSON
// handler; anything else is text. Every record carries the
// "component" attribute so bridge logs can be told apart when they are
// merged into a host agent's stream.
func NewLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level, ReplaceAttr: ReplaceLevelNames}

	var h slog.Handler = slog.NewTextHandler(w, opts)
	if format == "json" {
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(h).With("component", "dimos-bridge")
}

// Logger builds the logger described by log_level and log_format.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	// Load and FromEnv have already validated the level.
	level, _ := ParseLogLevel(c.LogLevel)
	return NewLogger(w, level, c.LogFormat)
}
