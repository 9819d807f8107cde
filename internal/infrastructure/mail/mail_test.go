package mail

import (
	"context"
	"errors"
	"net/smtp"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackgate/backend/internal/config"
	"github.com/stackgate/backend/internal/core/ports"
	"github.com/stackgate/backend/internal/infrastructure/logger"
)

func TestRendererBuiltins(t *testing.T) {
	r, err := NewRenderer("")
	require.NoError(t, err)

	out, err := r.Render("token", map[string]interface{}{"task_type": "invite_user", "token": "abc123"})
	require.NoError(t, err)
	assert.Contains(t, out, "invite_user")
	assert.Contains(t, out, "abc123")

	out, err = r.Render("notification", map[string]interface{}{
		"notification_id": "n1",
		"task_id":         "t1",
		"error":           true,
		"notes":           map[string]interface{}{"event": "task_failed", "task_type": "x", "notes": []string{"boom"}},
	})
	require.NoError(t, err)
	assert.Contains(t, out, "ERROR notification n1 for task t1")
	assert.Contains(t, out, "- boom")

	_, err = r.Render("missing", nil)
	assert.Error(t, err)
}

func TestRendererOverridesFromDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "token.txt"), []byte("custom {{.token}}"), 0o644))

	r, err := NewRenderer(dir)
	require.NoError(t, err)
	out, err := r.Render("token", map[string]interface{}{"token": "xyz"})
	require.NoError(t, err)
	assert.Equal(t, "custom xyz", out)
}

func TestSMTPDeliveryComposesMessage(t *testing.T) {
	r, err := NewRenderer("")
	require.NoError(t, err)

	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
	)
	d := NewSMTPDelivery(config.EmailConfig{Host: "mail.local", Port: 2525, From: "noreply@stackgate.io"}, r, logger.NewNop()).(*smtpDelivery)
	d.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	d.send = func(addr string, _ smtp.Auth, _ string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		return nil
	}

	err = d.Send(context.Background(), ports.Message{
		Event:      "token_issued",
		Recipients: []string{"a@b.io"},
		Subject:    "Your token\r\nBcc: evil@x.io",
		Reply:      "help@stackgate.io",
		Template:   "token",
		Data:       map[string]interface{}{"token": "tok-1", "task_type": "invite_user"},
	})
	require.NoError(t, err)
	assert.Equal(t, "mail.local:2525", gotAddr)
	assert.Equal(t, []string{"a@b.io"}, gotTo)
	assert.Contains(t, gotMsg, "Reply-To: help@stackgate.io\r\n")
	assert.Contains(t, gotMsg, "Subject: Your token  Bcc: evil@x.io\r\n")
	assert.NotContains(t, gotMsg, "\r\nBcc:")
	assert.Contains(t, gotMsg, "tok-1")
}

func TestSMTPDeliveryPropagatesFailure(t *testing.T) {
	r, err := NewRenderer("")
	require.NoError(t, err)
	d := NewSMTPDelivery(config.EmailConfig{Host: "mail.local", Port: 25}, r, logger.NewNop()).(*smtpDelivery)
	d.send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("connection refused") }

	err = d.Send(context.Background(), ports.Message{Recipients: []string{"a@b.io"}, Template: "completed"})
	assert.EqualError(t, err, "connection refused")
}

func TestNewSelectsBackend(t *testing.T) {
	d, err := New(config.EmailConfig{Backend: "log"}, logger.NewNop())
	require.NoError(t, err)
	assert.NoError(t, d.Send(context.Background(), ports.Message{Template: "completed", Recipients: []string{"x@y.z"}}))

	_, err = New(config.EmailConfig{Backend: "pigeon"}, logger.NewNop())
	assert.Error(t, err)
}
