package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/dungla2011/monitor-2025-sub000/internal/httpclient"
)

// ChatTransport sends Telegram bot messages (§4.5 "Chat").
type ChatTransport struct {
	client  *httpclient.Client
	baseURL string // defaults to the Telegram Bot API; overridable in tests
}

const telegramBaseURL = "https://api.telegram.org/bot%s/sendMessage"

// NewChatTransport creates a chat transport over client.
func NewChatTransport(client *httpclient.Client) *ChatTransport {
	return &ChatTransport{client: client, baseURL: telegramBaseURL}
}

// Channel implements Transport.
func (t *ChatTransport) Channel() string { return "chat" }

// parseTelegramConfig splits "<bot_token>,<chat_id>" and validates the
// shape described in §6 ("bot_token contains ':' and chat_id is numeric
// with optional '-' prefix or begins with '@'").
func parseTelegramConfig(alertConfig string) (botToken, chatID string, err error) {
	parts := strings.SplitN(alertConfig, ",", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("telegram alert_config must be '<bot_token>,<chat_id>'")
	}
	botToken = strings.TrimSpace(parts[0])
	chatID = strings.TrimSpace(parts[1])

	if !strings.Contains(botToken, ":") {
		return "", "", fmt.Errorf("telegram bot_token missing ':'")
	}
	if !strings.HasPrefix(chatID, "@") {
		trimmed := strings.TrimPrefix(chatID, "-")
		if _, convErr := strconv.Atoi(trimmed); convErr != nil {
			return "", "", fmt.Errorf("telegram chat_id must be numeric or begin with '@'")
		}
	}
	return botToken, chatID, nil
}

// Send posts event as an HTML-formatted message via the Telegram Bot API.
func (t *ChatTransport) Send(ctx context.Context, alertConfig string, event Event) error {
	botToken, chatID, err := parseTelegramConfig(alertConfig)
	if err != nil {
		return fmt.Errorf("chat: %w", err)
	}

	text := composeChatText(event)
	body, err := json.Marshal(map[string]interface{}{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "HTML",
	})
	if err != nil {
		return fmt.Errorf("chat: failed to marshal payload: %w", err)
	}

	url := fmt.Sprintf(t.baseURL, botToken)

	return withBackoffRetry(ctx, "chat", 3, func(ctx context.Context) (bool, error) {
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
			return retryableStatus(resp.StatusCode), fmt.Errorf("telegram returned status %d", resp.StatusCode)
		}
		return false, nil
	})
}

func composeChatText(event Event) string {
	if event.Kind == KindRecovery {
		return fmt.Sprintf("<b>✅ %s recovered</b>\n%s\nResponse time: %.0fms",
			event.MonitorName, event.URL, derefOrZero(event.ResponseTimeMs))
	}

	link := ""
	if event.AdminDomain != "" {
		link = fmt.Sprintf("\n<a href=\"%s/items/%d\">View in admin</a>", event.AdminDomain, event.MonitorID)
	}
	return fmt.Sprintf("<b>🔴 %s down</b>\n%s\n%s (consecutive failures: %d)%s",
		event.MonitorName, event.URL, event.Message, event.ConsecutiveCount, link)
}

func derefOrZero(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
