package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(l *Logger) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return &Logger{l.Output(&buf)}, &buf
}

func lastEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.NotEmpty(t, lines)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &entry))
	return entry
}

func TestNewLogger_EntryShape(t *testing.T) {
	l, buf := capture(NewLogger("sync-server"))

	l.Info().Str("session_id", "s-1").Msg("session opened")

	entry := lastEntry(t, buf)
	assert.Equal(t, "sync-server", entry["role"])
	assert.Equal(t, "s-1", entry["session_id"])
	assert.Equal(t, "session opened", entry["message"])
	assert.Contains(t, entry, "time")
	assert.Contains(t, entry, "func")

	assert.Equal(t, "func", zerolog.CallerFieldName)
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
}

func TestNop_Discards(t *testing.T) {
	l := Nop()
	require.NotNil(t, l)
	assert.Equal(t, zerolog.Disabled, l.GetLevel())
}

func TestGetChildLogger(t *testing.T) {
	parent, buf := capture(NewLogger("sync-server"))

	child := parent.GetChildLogger()
	require.NotSame(t, parent, child)
	child.Logger = child.With().Str("trace_id", "abc").Logger()

	child.Info().Msg("child")
	entry := lastEntry(t, buf)
	assert.Equal(t, "sync-server", entry["role"])
	assert.Equal(t, "abc", entry["trace_id"])

	parent.Info().Msg("parent")
	assert.NotContains(t, lastEntry(t, buf), "trace_id")
}

func TestWithDevice_AddsIdentityFields(t *testing.T) {
	l, buf := capture(Nop())
	l.Logger = l.Level(zerolog.DebugLevel)

	l.WithDevice("caja-norte", 42).Info().Msg("scoped")

	entry := lastEntry(t, buf)
	assert.Equal(t, "caja-norte", entry["device_id"])
	assert.Equal(t, float64(42), entry["user_id"])
}

func TestNewClientLogger(t *testing.T) {
	t.Run("writes to file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "agent.log")
		NewClientLogger("device", path).Info().Msg("to file")

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"role":"device"`)
		assert.Contains(t, string(data), `"message":"to file"`)
	})

	t.Run("unwritable path falls back to stderr", func(t *testing.T) {
		l := NewClientLogger("device", filepath.Join(t.TempDir(), "missing", "agent.log"))
		require.NotNil(t, l)
	})
}

func TestSetLevel(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.DebugLevel) })

	tests := []struct {
		name string
		want zerolog.Level
	}{
		{name: "warn", want: zerolog.WarnLevel},
		{name: "not-a-level", want: zerolog.WarnLevel},
		{name: "", want: zerolog.WarnLevel},
		{name: "error", want: zerolog.ErrorLevel},
	}
	for _, tt := range tests {
		SetLevel(tt.name)
		assert.Equal(t, tt.want, zerolog.GlobalLevel(), "SetLevel(%q)", tt.name)
	}
}

func TestFromContext(t *testing.T) {
	t.Run("no logger attached", func(t *testing.T) {
		require.NotNil(t, FromContext(context.Background()))
	})

	t.Run("attached logger", func(t *testing.T) {
		var buf bytes.Buffer
		zl := zerolog.New(&buf).With().Str("device_id", "caja-sur").Logger()
		ctx := zl.WithContext(context.Background())

		FromContext(ctx).Info().Msg("from context")
		assert.Equal(t, "caja-sur", lastEntry(t, &buf)["device_id"])
	})
}

func TestFromRequest(t *testing.T) {
	var buf bytes.Buffer
	zl := zerolog.New(&buf).With().Str("trace_id", "t-9").Logger()

	req := httptest.NewRequest(http.MethodPost, "/sync/sessions", nil)
	req = req.WithContext(zl.WithContext(req.Context()))

	FromRequest(req).Info().Msg("from request")
	assert.Equal(t, "t-9", lastEntry(t, &buf)["trace_id"])
}
