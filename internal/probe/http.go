package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dungla2011/monitor-2025-sub000/internal/httpclient"
	"github.com/dungla2011/monitor-2025-sub000/internal/model"
)

const (
	pingWebTimeout  = 30 * time.Second
	maxBodyReadBytes = 10 * 1024 // 10 KiB, §4.1
	bodySnippetLen   = 50
)

// fetchBody performs the shared ping_web/web_content GET, following
// redirects, reading at most 10 KiB of the response body.
func fetchBody(ctx context.Context, url string, timeout time.Duration) (status int, body []byte, elapsedMs float64, err error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if reqErr != nil {
		return 0, nil, 0, fmt.Errorf("build request: %w", reqErr)
	}

	resp, doErr := httpclient.Shared().Do(ctx, req)
	elapsedMs = float64(time.Since(start).Microseconds()) / 1000.0
	if doErr != nil {
		return 0, nil, elapsedMs, doErr
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, maxBodyReadBytes)
	data, readErr := io.ReadAll(limited)
	if readErr != nil && readErr != io.EOF {
		return resp.StatusCode, data, elapsedMs, readErr
	}

	return resp.StatusCode, data, elapsedMs, nil
}

func snippet(body []byte) string {
	s := string(body)
	if len(s) > bodySnippetLen {
		return s[:bodySnippetLen]
	}
	return s
}

// attemptPingWeb implements the ping_web probe type (§4.1).
func attemptPingWeb(ctx context.Context, item *model.MonitorItem) ProbeResult {
	r := newResult()

	status, body, elapsedMs, err := fetchBody(ctx, item.URLCheck, pingWebTimeout)
	rt := elapsedMs
	r.ResponseTimeMs = &rt
	r.Details["body_snippet"] = snippet(body)

	if err != nil {
		r.Success = false
		r.Message = classifyTransportError(err)
		return r
	}

	r.Details["status_code"] = status
	if status >= 400 {
		r.Success = false
		r.Message = fmt.Sprintf("http status %d", status)
		return r
	}

	r.Success = true
	r.Message = fmt.Sprintf("http status %d", status)
	return r
}

// attemptWebContent implements the web_content probe type (§4.1): fetch
// as ping_web, then apply result_error keywords before result_valid
// keywords (S3: error check precedes valid check).
func attemptWebContent(ctx context.Context, item *model.MonitorItem) ProbeResult {
	r := newResult()

	status, body, elapsedMs, err := fetchBody(ctx, item.URLCheck, pingWebTimeout)
	rt := elapsedMs
	r.ResponseTimeMs = &rt
	r.Details["body_snippet"] = snippet(body)

	if err != nil {
		r.Success = false
		r.Message = classifyTransportError(err)
		return r
	}

	r.Details["status_code"] = status
	if status >= 400 {
		r.Success = false
		r.Message = fmt.Sprintf("http status %d", status)
		return r
	}

	text := string(body)

	if forbidden := firstMatch(text, splitKeywords(item.ResultError)); forbidden != "" {
		r.Success = false
		r.Message = fmt.Sprintf("forbidden keyword found: %s", forbidden)
		r.Details["forbidden_keyword"] = forbidden
		return r
	}

	if missing := missingKeywords(text, splitKeywords(item.ResultValid)); len(missing) > 0 {
		r.Success = false
		r.Message = fmt.Sprintf("missing required keywords: %s", strings.Join(missing, ", "))
		r.Details["missing_keywords"] = missing
		return r
	}

	r.Success = true
	r.Message = fmt.Sprintf("http status %d, content checks passed", status)
	return r
}

// splitKeywords splits a comma-separated keyword list, trims whitespace,
// and drops whitespace-only or empty entries (§8 boundary behavior).
func splitKeywords(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func firstMatch(text string, keywords []string) string {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return kw
		}
	}
	return ""
}

func missingKeywords(text string, keywords []string) []string {
	var missing []string
	for _, kw := range keywords {
		if !strings.Contains(text, kw) {
			missing = append(missing, kw)
		}
	}
	return missing
}

func classifyTransportError(err error) string {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "context deadline exceeded"), strings.Contains(msg, "Timeout"):
		return "timeout: " + msg
	case strings.Contains(msg, "connection refused"):
		return "connection refused: " + msg
	default:
		return "transport error: " + msg
	}
}
