package mail

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func TestResetLink(t *testing.T) {
	t.Parallel()

	require.Equal(t,
		"http://localhost:5173/redefinir-senha?token="+testToken,
		ResetLink("http://localhost:5173/", testToken))
	require.Equal(t,
		"https://app.example.com/redefinir-senha?token=abc",
		ResetLink("https://app.example.com", "abc"))
}

func TestRenderPasswordReset(t *testing.T) {
	t.Parallel()

	link := ResetLink("https://app.example.com", testToken)
	html, text, err := renderPasswordReset(link)
	require.NoError(t, err)

	assert.Contains(t, html, `href="`+link+`"`)
	assert.Contains(t, html, "Redefinir Senha")
	assert.Contains(t, text, link)
}

func TestMaskLink(t *testing.T) {
	t.Parallel()

	masked := maskLink(ResetLink("https://app.example.com", testToken))
	assert.NotContains(t, masked, testToken)
	assert.Contains(t, masked, "/redefinir-senha")
	assert.Contains(t, masked, "0123")
}

func TestLogNotifierNeverLogsToken(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	n := NewLogNotifier(slog.New(slog.NewJSONHandler(&buf, nil)))

	err := n.SendPasswordReset(context.Background(), "ana@example.com", ResetLink("https://app.example.com", testToken))
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "ana@example.com")
	assert.NotContains(t, out, testToken)
}

func TestNewSMTPNotifierValidates(t *testing.T) {
	t.Parallel()

	_, err := NewSMTPNotifier(SMTPConfig{FromAddr: "noreply@example.com"})
	require.Error(t, err)

	_, err = NewSMTPNotifier(SMTPConfig{Host: "smtp.example.com"})
	require.Error(t, err)

	n, err := NewSMTPNotifier(SMTPConfig{Host: "smtp.example.com", FromAddr: "noreply@example.com"})
	require.NoError(t, err)
	require.Equal(t, 587, n.cfg.Port)
}

func TestSMTPPasswordResetMessage(t *testing.T) {
	t.Parallel()

	n, err := NewSMTPNotifier(SMTPConfig{
		Host:     "smtp.example.com",
		FromAddr: "noreply@example.com",
		FromName: "MLMP App",
	})
	require.NoError(t, err)

	msg, err := n.passwordResetMessage("ana@example.com", ResetLink("https://app.example.com", testToken))
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = msg.WriteTo(&buf)
	require.NoError(t, err)

	raw := buf.String()
	assert.Contains(t, raw, "ana@example.com")
	assert.Contains(t, raw, "noreply@example.com")
	assert.Contains(t, raw, "MLMP App")
	assert.True(t, strings.Contains(raw, "text/html") && strings.Contains(raw, "text/plain"))

	_, err = n.passwordResetMessage("not an address", "https://app.example.com")
	require.Error(t, err)
}
