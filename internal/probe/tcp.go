package probe

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/dungla2011/monitor-2025-sub000/internal/model"
)

const tcpTimeout = 10 * time.Second

// attemptTCPFastFail implements the no-retry fast path: an unparseable
// host:port target fails immediately without consuming a retry (§4.1).
// Returns (result, true) when the fast path applies.
func attemptTCPFastFail(item *model.MonitorItem, inverted bool) (ProbeResult, bool) {
	if _, _, err := splitHostPort(item.URLCheck); err != nil {
		r := newResult()
		r.Success = false
		r.Message = fmt.Sprintf("invalid host:port target: %v", err)
		r.Details["retry_attempts"] = 0
		return r, true
	}
	return ProbeResult{}, false
}

func splitHostPort(target string) (host string, port int, err error) {
	h, p, splitErr := net.SplitHostPort(target)
	if splitErr != nil {
		return "", 0, splitErr
	}
	portNum, convErr := strconv.Atoi(p)
	if convErr != nil {
		return "", 0, fmt.Errorf("port %q is not numeric", p)
	}
	return h, portNum, nil
}

// attemptTCP implements tcp/open_port_tcp_then_valid (inverted=false) and
// open_port_tcp_then_error (inverted=true) (§4.1).
func attemptTCP(ctx context.Context, item *model.MonitorItem, inverted bool) ProbeResult {
	r := newResult()

	ctx, cancel := context.WithTimeout(ctx, tcpTimeout)
	defer cancel()

	start := time.Now()
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", item.URLCheck)
	elapsed := float64(time.Since(start).Microseconds()) / 1000.0
	r.ResponseTimeMs = &elapsed

	connected := err == nil
	if connected {
		conn.Close()
	}

	if !inverted {
		if connected {
			r.Success = true
			r.Message = "tcp connection established"
		} else {
			r.Success = false
			r.Message = classifyTCPError(err)
		}
		return r
	}

	// open_port_tcp_then_error: success means the port is closed/filtered.
	if !connected {
		r.Success = true
		r.Message = "tcp connection failed as expected: " + classifyTCPError(err)
	} else {
		r.Success = false
		r.Message = "tcp connection unexpectedly established"
	}
	return r
}

func classifyTCPError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "refused"):
		return "connection refused: " + msg
	case strings.Contains(msg, "deadline exceeded"), strings.Contains(msg, "i/o timeout"):
		return "timeout: " + msg
	default:
		return "transport error: " + msg
	}
}
