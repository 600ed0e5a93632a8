// Package supervisor implements the Instance Supervisor (C8):
// single-instance port lock, chunk/limit assignment, and graceful-then-
// forced signal handling (SPEC_FULL §4.8). Grounded on infra-core/cmd/
// probe/main.go's `signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)`
// + `server.Shutdown(ctx)` + defer-based teardown, generalized to also
// acquire/release a port-scoped lock file and apply chunk/limit
// filtering to the Cache refresh result.
package supervisor

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// LockInfo is the JSON body written to the lock file (§6 "Persisted lock
// file").
type LockInfo struct {
	PID        int       `json:"pid"`
	Port       int       `json:"port"`
	StartedAt  time.Time `json:"started_at"`
	Host       string    `json:"host"`
	InstanceID string    `json:"instance_id"`
}

// Chunk describes this process's slice of the enabled-item list
// (`--chunk=K-S`, §4.8).
type Chunk struct {
	Number int // K, 1-based; 0 means "no chunking, process everything"
	Size   int // S
}

// ParseChunk parses a "--chunk" flag value of the form "K-S".
func ParseChunk(spec string) (Chunk, error) {
	if spec == "" {
		return Chunk{}, nil
	}
	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return Chunk{}, fmt.Errorf("chunk spec must be 'K-S', got %q", spec)
	}
	k, err := strconv.Atoi(parts[0])
	if err != nil || k < 1 {
		return Chunk{}, fmt.Errorf("chunk number must be a positive integer, got %q", parts[0])
	}
	s, err := strconv.Atoi(parts[1])
	if err != nil || s < 1 {
		return Chunk{}, fmt.Errorf("chunk size must be a positive integer, got %q", parts[1])
	}
	return Chunk{Number: k, Size: s}, nil
}

// Bounds returns the [lo, hi) slice bounds this chunk covers over a list
// of length n (§4.8 "[(K-1)*S, K*S)").
func (c Chunk) Bounds(n int) (lo, hi int) {
	if c.Number == 0 {
		return 0, n
	}
	lo = (c.Number - 1) * c.Size
	hi = c.Number * c.Size
	if lo > n {
		lo = n
	}
	if hi > n {
		hi = n
	}
	return lo, hi
}

// Filter returns a scheduler.ChunkFilter-compatible predicate over ids,
// keeping only the ids in this chunk's bounds. ids is expected to already
// reflect the `--limit` cap: cmd/monitor caps the enabled-item list the
// same way cache.New's limit parameter caps each Cache refresh, upstream
// of chunking (§4.8: "--limit caps the total working set before chunks are
// carved out of it").
func Filter(ids []int64, chunk Chunk) func(id int64) bool {
	lo, hi := chunk.Bounds(len(ids))
	allowed := make(map[int64]bool, hi-lo)
	for _, id := range ids[lo:hi] {
		allowed[id] = true
	}
	return func(id int64) bool { return allowed[id] }
}

// lockFileName builds "monitor_service[_chunk_N].lock" (§4.8/§6).
func lockFileName(chunk Chunk) string {
	if chunk.Number == 0 {
		return "monitor_service.lock"
	}
	return fmt.Sprintf("monitor_service_chunk_%d.lock", chunk.Number)
}

// Port computes the listen port for this chunk: base_port + (chunk-1)
// (§4.8). Chunk number 0 is treated as chunk 1 (no offset).
func Port(basePort int, chunk Chunk) int {
	number := chunk.Number
	if number == 0 {
		number = 1
	}
	return basePort + (number - 1)
}

// Lock acquires the single-instance lock for port: binds the port (the
// caller keeps the listener open for the life of the process) and writes
// the lock file. Returns a net.Listener the caller must use for the
// admin API and a release function that closes the listener and removes
// the lock file.
func Lock(basePort int, chunk Chunk) (net.Listener, func(), error) {
	port := Port(basePort, chunk)
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, nil, fmt.Errorf("port %d already in use (another instance may be running): %w", port, err)
	}

	host, _ := os.Hostname()
	info := LockInfo{
		PID:        os.Getpid(),
		Port:       port,
		StartedAt:  time.Now().UTC(),
		Host:       host,
		InstanceID: uuid.NewString(),
	}

	path := lockFileName(chunk)
	body, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		ln.Close()
		return nil, nil, fmt.Errorf("failed to encode lock file: %w", err)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		ln.Close()
		return nil, nil, fmt.Errorf("failed to write lock file %s: %w", path, err)
	}

	release := func() {
		ln.Close()
		os.Remove(path)
	}
	return ln, release, nil
}

// WaitForShutdown registers for SIGINT/SIGTERM and returns immediately
// with the channel they are delivered on. A second signal while a caller is draining (observed via the returned
// channel firing again) should force an immediate os.Exit; callers pass
// that channel to a bounded grace-period select.
func WaitForShutdown() <-chan os.Signal {
	quit := make(chan os.Signal, 2)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	return quit
}

// GracePeriod is how long shutdown waits for monitor loops to drain
// before abandoning them (scheduler.Stop), and bounds the admin API
// server's graceful shutdown (§4.8/§5 "recommended 10s").
const GracePeriod = 10 * time.Second
