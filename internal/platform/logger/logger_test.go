package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ConsoleOnly(t *testing.T) {
	l := New(Options{Env: "dev", App: "fridgemind"})
	require.NotNil(t, l)
	assert.NoError(t, Close(l))
}

func TestNew_WithFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "server.log")
	l := New(Options{Env: "prod", App: "fridgemind", File: file})
	require.NotNil(t, l)

	l.Info("hello")
	require.NoError(t, Close(l))

	// Second close is a no-op.
	assert.NoError(t, Close(l))
}

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"DEBUG", slog.LevelDebug},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, levelFromString(tt.in), "input=%q", tt.in)
	}
}

func TestRedactingHandler_MasksSensitiveKeys(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, nil)
	h := NewRedactingHandler(inner, []string{"vapid_private_key", "api_key"})
	l := slog.New(h)

	l.Info("configured",
		slog.String("vapid_private_key", "super-secret"),
		slog.String("api_key", "abc123"),
		slog.String("user", "a@x.com"),
	)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "[REDACTED]", rec["vapid_private_key"])
	assert.Equal(t, "[REDACTED]", rec["api_key"])
	assert.Equal(t, "a@x.com", rec["user"])
}

func TestMultiHandler_FansOut(t *testing.T) {
	var a, b bytes.Buffer
	h := NewMultiHandler(
		slog.NewJSONHandler(&a, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewJSONHandler(&b, &slog.HandlerOptions{Level: slog.LevelError}),
	)
	l := slog.New(h)

	l.Info("only first")
	assert.NotEmpty(t, a.Bytes())
	assert.Empty(t, b.Bytes())

	l.Error("both")
	assert.NotEmpty(t, b.Bytes())
}

func TestMultiHandler_Enabled(t *testing.T) {
	h := NewMultiHandler(
		slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}),
		slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelDebug}),
	)
	assert.True(t, h.Enabled(context.Background(), slog.LevelDebug))
}
