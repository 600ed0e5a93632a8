// Package probe implements the stateless probe functions of SPEC_FULL §4.1:
// HTTP, TCP, ICMP(-fallback), TLS-expiry and body-keyword checks, wrapped
// in a uniform retry contract. Probes never panic the caller: a crashing
// attempt is converted into a failed ProbeResult (SPEC_FULL invariant 5).
package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/dungla2011/monitor-2025-sub000/internal/model"
)

// MaxRetries is the number of retries after the first attempt; every probe
// tries up to 1+MaxRetries times (§4.1).
const MaxRetries = 2

// RetryDelay is the sleep between attempts. It is a var (not const) only
// so tests can shrink it; production code never mutates it.
var RetryDelay = 5 * time.Second

// ProbeResult is the uniform shape every probe type returns.
type ProbeResult struct {
	Success        bool                   `json:"success"`
	ResponseTimeMs *float64               `json:"response_time_ms"`
	Message        string                 `json:"message"`
	Details        map[string]interface{} `json:"details"`
}

func newResult() ProbeResult {
	return ProbeResult{Details: make(map[string]interface{})}
}

// attemptFunc performs a single probe attempt. It must never panic; any
// recoverable condition (timeout, refused, validation failure) is reported
// through ProbeResult.Success=false, not a Go error.
type attemptFunc func(ctx context.Context, item *model.MonitorItem) ProbeResult

// runWithRetry drives attempt up to 1+MaxRetries times, sleeping RetryDelay
// between failures, and stops at the first success. It recovers from a
// panicking attempt and converts it into a failure result, satisfying
// invariant 5 ("a probe that crashes is treated as a failure result").
func runWithRetry(ctx context.Context, item *model.MonitorItem, attempt attemptFunc) ProbeResult {
	var messages []string
	var last ProbeResult

	for i := 0; i <= MaxRetries; i++ {
		result := safeAttempt(ctx, item, attempt)
		if result.Details == nil {
			result.Details = make(map[string]interface{})
		}
		result.Details["retry_attempts"] = i
		if len(messages) > 0 {
			result.Details["retry_messages"] = append([]string{}, messages...)
		}

		if result.Success {
			return result
		}

		messages = append(messages, result.Message)
		last = result

		if i < MaxRetries {
			select {
			case <-ctx.Done():
				last.Message = "cancelled: " + last.Message
				return last
			case <-time.After(RetryDelay):
			}
		}
	}

	return last
}

// safeAttempt recovers from a panic inside attempt and converts it to a
// failed ProbeResult, so a crashing probe never takes down the monitor loop.
func safeAttempt(ctx context.Context, item *model.MonitorItem, attempt attemptFunc) (result ProbeResult) {
	defer func() {
		if r := recover(); r != nil {
			result = newResult()
			result.Success = false
			result.Message = fmt.Sprintf("probe panicked: %v", r)
		}
	}()
	return attempt(ctx, item)
}

// Run dispatches to the probe implementation for item.Type and applies the
// shared retry contract, except for the documented no-retry fast paths
// (unparseable tcp target).
func Run(ctx context.Context, item *model.MonitorItem) ProbeResult {
	switch item.Type {
	case model.TypePingWeb:
		return runWithRetry(ctx, item, attemptPingWeb)
	case model.TypeWebContent:
		return runWithRetry(ctx, item, attemptWebContent)
	case model.TypeTCP, model.TypeOpenPortTCPThenValid:
		if r, bypass := attemptTCPFastFail(item, false); bypass {
			return r
		}
		return runWithRetry(ctx, item, func(ctx context.Context, item *model.MonitorItem) ProbeResult {
			return attemptTCP(ctx, item, false)
		})
	case model.TypeOpenPortTCPThenError:
		if r, bypass := attemptTCPFastFail(item, true); bypass {
			return r
		}
		return runWithRetry(ctx, item, func(ctx context.Context, item *model.MonitorItem) ProbeResult {
			return attemptTCP(ctx, item, true)
		})
	case model.TypePingICMP:
		return runWithRetry(ctx, item, attemptICMP)
	case model.TypeSSLExpiredCheck:
		return runWithRetry(ctx, item, attemptTLSExpiry)
	default:
		r := newResult()
		r.Success = false
		r.Message = fmt.Sprintf("unsupported probe type: %s", item.Type)
		r.Details["retry_attempts"] = 0
		return r
	}
}
