package probe

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/dungla2011/monitor-2025-sub000/internal/model"
)

const (
	tlsTimeout            = 15 * time.Second
	tlsMinDaysUntilExpiry = 10 // strict >10, §8 boundary behavior
	tlsDefaultPort        = "443"
)

// attemptTLSExpiry implements ssl_expired_check (§4.1): establish a TLS
// session, read the peer certificate, and succeed only when days-until-
// expiry is strictly greater than 10. The peer-certificate inspection
// idiom (pem-less here, since tls.Conn hands back parsed x509 certs
// directly) is grounded on infra-core/pkg/acme/client.go's
// x509.ParseCertificate / cert.NotAfter handling, adapted from certificate
// issuance bookkeeping to a read-only expiry check.
func attemptTLSExpiry(ctx context.Context, item *model.MonitorItem) ProbeResult {
	r := newResult()

	host, port := splitHostOrDefaultPort(item.URLCheck, tlsDefaultPort)

	ctx, cancel := context.WithTimeout(ctx, tlsTimeout)
	defer cancel()

	start := time.Now()
	var d net.Dialer
	rawConn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, port))
	if err != nil {
		r.Success = false
		r.Message = fmt.Sprintf("tcp connect failed: %v", err)
		return r
	}
	defer rawConn.Close()

	tlsConn := tls.Client(rawConn, &tls.Config{ServerName: host})
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		elapsed := float64(time.Since(start).Microseconds()) / 1000.0
		r.ResponseTimeMs = &elapsed
		r.Success = false
		r.Message = fmt.Sprintf("tls handshake failed: %v", err)
		return r
	}
	defer tlsConn.Close()

	elapsed := float64(time.Since(start).Microseconds()) / 1000.0
	r.ResponseTimeMs = &elapsed

	certs := tlsConn.ConnectionState().PeerCertificates
	if len(certs) == 0 {
		r.Success = false
		r.Message = "no peer certificate presented"
		return r
	}

	cert := certs[0]
	daysLeft := int(time.Until(cert.NotAfter).Hours() / 24)
	r.Details["days_until_expiry"] = daysLeft
	r.Details["not_after"] = cert.NotAfter
	r.Details["subject"] = cert.Subject.CommonName

	if daysLeft <= tlsMinDaysUntilExpiry {
		r.Success = false
		r.Message = fmt.Sprintf("certificate expires in %d days", daysLeft)
		return r
	}

	r.Success = true
	r.Message = fmt.Sprintf("certificate valid for %d more days", daysLeft)
	return r
}

func splitHostOrDefaultPort(target, defaultPort string) (host, port string) {
	if h, p, err := net.SplitHostPort(target); err == nil {
		return h, p
	}
	return strings.TrimSpace(target), defaultPort
}
