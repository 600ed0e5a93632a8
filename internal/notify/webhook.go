package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/dungla2011/monitor-2025-sub000/internal/httpclient"
)

// WebhookTransport POSTs the §6 JSON payload to a monitor-configured URL.
type WebhookTransport struct {
	client     *httpclient.Client
	maxRetries int
	version    string
}

// NewWebhookTransport creates a webhook transport. version is reported in
// the payload's metadata.version field.
func NewWebhookTransport(client *httpclient.Client, maxRetries int, version string) *WebhookTransport {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &WebhookTransport{client: client, maxRetries: maxRetries, version: version}
}

// Channel implements Transport.
func (t *WebhookTransport) Channel() string { return "webhook" }

func validateWebhookURL(alertConfig string) (string, error) {
	url := strings.TrimSpace(alertConfig)
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return "", fmt.Errorf("webhook alert_config must start with http:// or https://")
	}
	return url, nil
}

type webhookService struct {
	Name      string `json:"name"`
	URL       string `json:"url"`
	MonitorID int64  `json:"monitor_id"`
}

type webhookError struct {
	Message              string `json:"message"`
	ConsecutiveCount     int    `json:"consecutive_count"`
	CheckIntervalSeconds int    `json:"check_interval_seconds"`
}

type webhookRecovery struct {
	Message        string   `json:"message"`
	ResponseTimeMs *float64 `json:"response_time_ms"`
}

type webhookMetadata struct {
	Source      string `json:"source"`
	Version     string `json:"version"`
	WebhookName string `json:"webhook_name,omitempty"`
}

type webhookPayload struct {
	Timestamp string           `json:"timestamp"`
	AlertType string           `json:"alert_type"`
	Status    string           `json:"status"`
	Service   webhookService   `json:"service"`
	Error     *webhookError    `json:"error,omitempty"`
	Recovery  *webhookRecovery `json:"recovery,omitempty"`
	Metadata  webhookMetadata  `json:"metadata"`
}

func (t *WebhookTransport) buildPayload(event Event) webhookPayload {
	payload := webhookPayload{
		Timestamp: event.Timestamp.UTC().Format("2006-01-02T15:04:05Z07:00"),
		Service: webhookService{
			Name:      event.MonitorName,
			URL:       event.URL,
			MonitorID: event.MonitorID,
		},
		Metadata: webhookMetadata{Source: "monitor_service", Version: t.version},
	}

	if event.Kind == KindRecovery {
		payload.AlertType = "recovery"
		payload.Status = "up"
		payload.Recovery = &webhookRecovery{Message: event.Message, ResponseTimeMs: event.ResponseTimeMs}
	} else {
		payload.AlertType = "error"
		payload.Status = "down"
		payload.Error = &webhookError{
			Message:              event.Message,
			ConsecutiveCount:     event.ConsecutiveCount,
			CheckIntervalSeconds: event.CheckIntervalSeconds,
		}
	}
	return payload
}

// Send POSTs the JSON payload, retrying only on 5xx/transport errors
// (§4.5 "Webhook").
func (t *WebhookTransport) Send(ctx context.Context, alertConfig string, event Event) error {
	url, err := validateWebhookURL(alertConfig)
	if err != nil {
		return fmt.Errorf("webhook: %w", err)
	}

	body, err := json.Marshal(t.buildPayload(event))
	if err != nil {
		return fmt.Errorf("webhook: failed to marshal payload: %w", err)
	}

	return withBackoffRetry(ctx, "webhook", t.maxRetries, func(ctx context.Context) (bool, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return false, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := t.client.Do(ctx, req)
		if err != nil {
			return true, err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			return retryableStatus(resp.StatusCode), fmt.Errorf("webhook endpoint returned status %d", resp.StatusCode)
		}
		return false, nil
	})
}
