package internal

import (
	"io"
	"log/slog"
	"strings"
	"time"
)

// redactedKeys are attribute keys whose values never reach the log.
var redactedKeys = map[string]bool{
	"authorization":  true,
	"hmac":           true,
	"signature":      true,
	"secret":         true,
	"api_key":        true,
	"webhook_secret": true,
}

// ParseLevel maps a LOG_LEVEL value to a slog level. Unknown values fall
// back to info and report false.
func ParseLevel(level string) (slog.Level, bool) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelInfo, false
	}
	return l, true
}

// NewLogger builds the service logger: JSON with UTC timestamps in prod,
// text elsewhere. Every record carries the service name and environment.
func NewLogger(w io.Writer, env string, level string) *slog.Logger {
	l, ok := ParseLevel(level)
	if !ok {
		slog.Default().Warn("Invalid log level. Using default level: info", slog.String("value", level))
	}

	opts := &slog.HandlerOptions{
		Level: l,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if redactedKeys[strings.ToLower(a.Key)] {
				return slog.String(a.Key, "[redacted]")
			}
			return a
		},
	}

	var h slog.Handler
	if env == "prod" {
		redact := opts.ReplaceAttr
		opts.ReplaceAttr = func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.String(slog.TimeKey, a.Value.Time().UTC().Format(time.RFC3339Nano))
			}
			return redact(groups, a)
		}
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}

	return slog.New(h).With("service", "qitchen", "env", env)
}
