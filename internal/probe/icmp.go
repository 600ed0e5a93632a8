package probe

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dungla2011/monitor-2025-sub000/internal/model"
)

const icmpTimeout = 5 * time.Second

var rttPattern = regexp.MustCompile(`time[=<]([0-9.]+)\s*ms`)

// attemptICMP implements ping_icmp (§4.1). It shells out to the OS ping
// utility for a single echo; when that is unavailable (missing binary,
// sandboxed environment without raw-socket privilege) it falls back to a
// TCP reachability check against port 80, exactly the trade-off the
// teacher's own executeICMPProbe documents and applies unconditionally —
// here the fallback is used only when the real ping invocation fails, and
// the mode actually used is recorded in details["icmp_mode"].
func attemptICMP(ctx context.Context, item *model.MonitorItem) ProbeResult {
	r := newResult()

	ctx, cancel := context.WithTimeout(ctx, icmpTimeout)
	defer cancel()

	if rttMs, ok := runSystemPing(ctx, item.URLCheck); ok {
		r.Success = true
		r.ResponseTimeMs = rttMs
		r.Message = "icmp echo reply received"
		r.Details["icmp_mode"] = "raw"
		return r
	}

	start := time.Now()
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(item.URLCheck, "80"))
	elapsed := float64(time.Since(start).Microseconds()) / 1000.0
	r.Details["icmp_mode"] = "tcp_fallback"

	if err != nil {
		r.Success = false
		r.Message = fmt.Sprintf("icmp fallback check failed: %v", err)
		return r
	}
	conn.Close()

	r.Success = true
	r.ResponseTimeMs = &elapsed
	r.Message = "tcp fallback reachability check passed"
	return r
}

// runSystemPing shells out to the OS ping binary for a single echo and
// extracts the reported RTT when present. Returns ok=false on any failure
// so the caller can fall back.
func runSystemPing(ctx context.Context, host string) (*float64, bool) {
	cmd := exec.CommandContext(ctx, "ping", "-c", "1", "-W", "5", host)
	out, err := cmd.Output()
	if err != nil {
		return nil, false
	}

	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		if m := rttPattern.FindStringSubmatch(scanner.Text()); m != nil {
			if v, convErr := strconv.ParseFloat(m[1], 64); convErr == nil {
				return &v, true
			}
		}
	}
	// ping succeeded but RTT could not be parsed from output; report
	// success without a measured time.
	return nil, true
}
