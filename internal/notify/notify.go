// Package notify implements the Notification Dispatchers (C5): one
// sender per channel (chat, webhook, push, email) behind a shared
// gate->throttle->counter->send skeleton (SPEC_FULL §4.5), grounded on
// infra-core's cmd/probe/main.go gin+httpclient wiring style for the
// HTTP-based channels and on other_examples' notifier.go retry-with-log
// loop (reference-only) for the shared backoff helper.
package notify

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Kind distinguishes an error notification from a recovery notification.
type Kind string

const (
	KindError    Kind = "error"
	KindRecovery Kind = "recovery"
)

// Event carries everything a channel-specific composer needs to build
// its payload (§4.5/§6).
type Event struct {
	Kind                 Kind
	MonitorID            int64
	MonitorName          string
	URL                  string
	Message              string
	ConsecutiveCount     int
	CheckIntervalSeconds int
	ResponseTimeMs       *float64
	AdminDomain          string
	Timestamp            time.Time
}

// Transport is implemented by each channel's sender.
type Transport interface {
	// Channel names the generic alertmanager channel this transport
	// backs ("chat", "webhook", "push", "email").
	Channel() string
	// Send delivers event using the raw alert_config string for this
	// monitor's linked channel (§6 "alert_config encoding").
	Send(ctx context.Context, alertConfig string, event Event) error
}

// retryableStatus reports whether an HTTP status code should be retried
// (§4.5: "do not retry on 4xx from the transport").
func retryableStatus(status int) bool {
	return status >= 500 || status == 0
}

// withBackoffRetry drives attempt up to maxAttempts times with the
// recommended 1s/2s/4s backoff (§4.5 point 5), stopping early when
// attempt reports a non-retryable failure by returning retryable=false.
func withBackoffRetry(ctx context.Context, label string, maxAttempts int, attempt func(ctx context.Context) (retryable bool, err error)) error {
	backoff := 1 * time.Second
	var lastErr error

	for i := 0; i < maxAttempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		retryable, err := attempt(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		log.Printf("notify: %s send failed (attempt %d/%d): %v", label, i+1, maxAttempts, err)
		if !retryable {
			break
		}
	}
	return fmt.Errorf("%s: %w", label, lastErr)
}
