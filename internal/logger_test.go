package internal

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in     string
		want   slog.Level
		wantOK bool
	}{
		{"info", slog.LevelInfo, true},
		{"debug", slog.LevelDebug, true},
		{"WARN", slog.LevelWarn, true},
		{" error ", slog.LevelError, true},
		{"loud", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseLevel(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestNewLogger_Prod(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "prod", "warn")

	logger.Info("dropped")
	logger.Warn("webhook rejected", "provider", "paymob", "hmac", "abc123")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "webhook rejected", rec["msg"])
	assert.Equal(t, "qitchen", rec["service"])
	assert.Equal(t, "prod", rec["env"])
	assert.Equal(t, "paymob", rec["provider"])
	assert.Equal(t, "[redacted]", rec["hmac"])
	assert.Regexp(t, `Z$`, rec["time"])
}

func TestNewLogger_DevIsText(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "dev", "debug")

	logger.Debug("checkout session created", "signature", "t=1,v1=abc")

	out := buf.String()
	assert.Contains(t, out, "msg=\"checkout session created\"")
	assert.Contains(t, out, "env=dev")
	assert.Contains(t, out, "signature=[redacted]")
	assert.NotContains(t, out, "v1=abc")
}
