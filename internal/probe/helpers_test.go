package probe

import (
	"net"
	"testing"
	"time"
)

func setRetryDelayForTest(d time.Duration) {
	RetryDelay = d
}

func newLocalListener(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to open local listener: %v", err)
	}
	return ln
}
