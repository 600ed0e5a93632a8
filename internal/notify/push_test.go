package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/dungla2011/monitor-2025-sub000/internal/httpclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRequestSetsEventType(t *testing.T) {
	transport := &PushTransport{}
	req := transport.buildRequest("device-token", Event{Kind: KindError, MonitorID: 9, MonitorName: "api", Message: "down"})
	assert.Equal(t, "monitor_alert", req.Data.Type)
	assert.Equal(t, "device-token", req.To)
	assert.Contains(t, req.Notification.Title, "down")

	req = transport.buildRequest("device-token", Event{Kind: KindRecovery, MonitorName: "api"})
	assert.Equal(t, "monitor_recovery", req.Data.Type)
	assert.Contains(t, req.Notification.Title, "recovered")
}

func TestPushTransportSendRequiresServiceAccount(t *testing.T) {
	transport := NewPushTransport(httpclient.New(httpclient.DefaultOptions()), "")
	err := transport.Send(context.Background(), "device-token", Event{Kind: KindError})
	assert.Error(t, err)
}

func TestPushTransportSendsAuthHeaderFromServiceAccountFile(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "key.txt")
	require.NoError(t, os.WriteFile(keyPath, []byte("fake-server-key"), 0o600))

	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	transport := NewPushTransport(httpclient.New(httpclient.DefaultOptions()), keyPath)
	transport.endpoint = server.URL

	err := transport.Send(context.Background(), "device-token", Event{Kind: KindError, MonitorName: "api"})
	require.NoError(t, err)
	assert.Equal(t, "key=fake-server-key", gotAuth)
}

func TestPushTransportRejectsEmptyDeviceToken(t *testing.T) {
	transport := NewPushTransport(httpclient.New(httpclient.DefaultOptions()), "")
	err := transport.Send(context.Background(), "", Event{Kind: KindError})
	assert.Error(t, err)
}
