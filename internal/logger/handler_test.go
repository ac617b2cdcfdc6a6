package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrettyHandlerRedactsSensitiveKeys(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(NewPrettyHandler(&buf, nil))

	log.Info("login", "email", "ana@example.com", "password", "hunter22", slog.Group("req", "refresh_token", "rt-abc"))

	out := buf.String()
	assert.Contains(t, out, "ana@example.com")
	assert.Contains(t, out, "req.refresh_token")
	assert.NotContains(t, out, "hunter22")
	assert.NotContains(t, out, "rt-abc")
	assert.Contains(t, out, redacted)
}

func TestPrettyHandlerLevels(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(NewPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	log.Info("hidden")
	log.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestPrettyHandlerWithAttrsAndGroup(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(NewPrettyHandler(&buf, nil)).With("component", "audit").WithGroup("evt")

	log.Info("auth event", "type", "session.started")

	out := buf.String()
	assert.Contains(t, out, "component")
	assert.Contains(t, out, "evt.type")
}

func TestNewJSONRedacts(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := New(&buf, slog.LevelDebug, "json")

	log.Debug("refresh", "Authorization", "Bearer abc.def", "user_id", "u-1")

	out := buf.String()
	require.Contains(t, out, `"user_id":"u-1"`)
	assert.NotContains(t, out, "abc.def")
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}
