package notify

import (
	"context"
	"testing"

	"github.com/dungla2011/monitor-2025-sub000/internal/config"
	"github.com/dungla2011/monitor-2025-sub000/internal/secret"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComposeEmailSubjectDiffersByKind(t *testing.T) {
	assert.Contains(t, composeEmailSubject(Event{Kind: KindError, MonitorName: "api"}), "Alert")
	assert.Contains(t, composeEmailSubject(Event{Kind: KindRecovery, MonitorName: "api"}), "Recovered")
}

func TestComposeEmailBodyIncludesBothParts(t *testing.T) {
	plain, html := composeEmailBody(Event{Kind: KindError, MonitorName: "api", URL: "https://x", Message: "down", ConsecutiveCount: 2})
	assert.Contains(t, plain, "down")
	assert.Contains(t, html, "<b>api</b>")
}

func TestBuildMultipartMessageIncludesBothContentTypes(t *testing.T) {
	msg := string(buildMultipartMessage("from@example.com", "Monitor", "to@example.com", "subject", "plain body", "<p>html body</p>"))
	assert.Contains(t, msg, "Content-Type: text/plain")
	assert.Contains(t, msg, "Content-Type: text/html")
	assert.Contains(t, msg, "plain body")
	assert.Contains(t, msg, "<p>html body</p>")
	assert.Contains(t, msg, "To: to@example.com")
}

func TestEmailTransportRejectsEmptyRecipient(t *testing.T) {
	box := secret.NewBox("test-key-material")
	sealed, err := box.Seal("irrelevant")
	require.NoError(t, err)

	cfg := &config.SMTPConfig{
		Host:     "localhost",
		Port:     25,
		FromName: "Monitor Service",
		Accounts: []config.SMTPAccount{{Email: "from@example.com", Password: sealed}},
	}
	transport := NewEmailTransport(cfg, box)
	err = transport.Send(context.Background(), "  ", Event{Kind: KindError})
	assert.Error(t, err)
}

func TestEmailTransportRejectsNoAccountsConfigured(t *testing.T) {
	box := secret.NewBox("test-key-material")
	cfg := &config.SMTPConfig{Host: "localhost", Port: 25}
	transport := NewEmailTransport(cfg, box)
	err := transport.Send(context.Background(), "to@example.com", Event{Kind: KindError})
	assert.Error(t, err)
}
