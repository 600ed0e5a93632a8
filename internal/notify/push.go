package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/dungla2011/monitor-2025-sub000/internal/httpclient"
)

// PushTransport sends device push notifications through Firebase Cloud
// Messaging's legacy HTTP API (§4.5 "Push"). alert_config carries the
// destination device token; the server key is read from the configured
// service-account path at send time, per FirebaseConfig (§6).
type PushTransport struct {
	client             *httpclient.Client
	serviceAccountPath string
	endpoint           string // defaults to the FCM legacy endpoint; overridable in tests
}

const fcmEndpoint = "https://fcm.googleapis.com/fcm/send"

// NewPushTransport creates a push transport.
func NewPushTransport(client *httpclient.Client, serviceAccountPath string) *PushTransport {
	return &PushTransport{client: client, serviceAccountPath: serviceAccountPath, endpoint: fcmEndpoint}
}

// Channel implements Transport.
func (t *PushTransport) Channel() string { return "push" }

type pushData struct {
	MonitorID int64  `json:"monitor_id"`
	URL       string `json:"url"`
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

type pushNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type pushRequest struct {
	To           string           `json:"to"`
	Notification pushNotification `json:"notification"`
	Data         pushData         `json:"data"`
}

func (t *PushTransport) buildRequest(deviceToken string, event Event) pushRequest {
	eventType := "monitor_alert"
	title := fmt.Sprintf("%s is down", event.MonitorName)
	if event.Kind == KindRecovery {
		eventType = "monitor_recovery"
		title = fmt.Sprintf("%s recovered", event.MonitorName)
	}

	return pushRequest{
		To:           deviceToken,
		Notification: pushNotification{Title: title, Body: event.Message},
		Data: pushData{
			MonitorID: event.MonitorID,
			URL:       event.URL,
			Type:      eventType,
			Timestamp: event.Timestamp.UTC().Format("2006-01-02T15:04:05Z07:00"),
		},
	}
}

func (t *PushTransport) serverKey() (string, error) {
	if t.serviceAccountPath == "" {
		return "", fmt.Errorf("no firebase service account path configured")
	}
	key, err := os.ReadFile(t.serviceAccountPath)
	if err != nil {
		return "", fmt.Errorf("failed to read firebase service account: %w", err)
	}
	return string(key), nil
}

// Send delivers event to deviceToken (passed as alertConfig to match the
// Transport interface; the device token itself is looked up by the
// caller through User Policy, not stored as monitor_configs.alert_config).
func (t *PushTransport) Send(ctx context.Context, alertConfig string, event Event) error {
	deviceToken := alertConfig
	if deviceToken == "" {
		return fmt.Errorf("push: no device token for user")
	}

	key, err := t.serverKey()
	if err != nil {
		return fmt.Errorf("push: %w", err)
	}

	body, err := json.Marshal(t.buildRequest(deviceToken, event))
	if err != nil {
		return fmt.Errorf("push: failed to marshal payload: %w", err)
	}

	return withBackoffRetry(ctx, "push", 3, func(ctx context.Context) (bool, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
		if err != nil {
			return false, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "key="+key)

		resp, err := t.client.Do(ctx, req)
		if err != nil {
			return true, err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			return retryableStatus(resp.StatusCode), fmt.Errorf("fcm returned status %d", resp.StatusCode)
		}
		return false, nil
	})
}
