// Package httpclient provides the shared, connection-pooled HTTP client
// used by every probe and notification dispatcher (SPEC_FULL §5: "HTTP
// client: shared, with connection pooling and keep-alive; per-host limits
// ... and a global cap"). Per-host and global pacing is implemented with
// golang.org/x/time/rate token buckets, one limiter per host plus one
// shared global limiter.
package httpclient

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Client is a rate-limited wrapper around a shared *http.Client.
type Client struct {
	http   *http.Client
	global *rate.Limiter

	mu       sync.Mutex
	perHost  map[string]*rate.Limiter
	hostRPS  rate.Limit
	hostBurst int
}

// Options configures the shared client's pooling and pacing.
type Options struct {
	// GlobalConcurrency bounds simultaneous in-flight requests across all
	// hosts (recommended default 2000, §5).
	GlobalConcurrency int
	// PerHostConcurrency bounds simultaneous in-flight requests to a
	// single host (recommended 50-100, §5).
	PerHostConcurrency int
	// MaxIdleConnsPerHost sizes the keep-alive pool.
	MaxIdleConnsPerHost int
}

// DefaultOptions mirrors the spec's recommended defaults.
func DefaultOptions() Options {
	return Options{
		GlobalConcurrency:   2000,
		PerHostConcurrency:  100,
		MaxIdleConnsPerHost: 100,
	}
}

// New builds a shared client. Rate limiters use requests/second equal to
// the configured concurrency, with a burst of the same size, which in
// practice behaves as a concurrency gate for short-lived probe requests.
func New(opts Options) *Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        opts.GlobalConcurrency,
		MaxIdleConnsPerHost: opts.MaxIdleConnsPerHost,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Client{
		http:      &http.Client{Transport: transport},
		global:    rate.NewLimiter(rate.Limit(opts.GlobalConcurrency), opts.GlobalConcurrency),
		perHost:   make(map[string]*rate.Limiter),
		hostRPS:   rate.Limit(opts.PerHostConcurrency),
		hostBurst: opts.PerHostConcurrency,
	}
}

func (c *Client) limiterFor(host string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.perHost[host]
	if !ok {
		l = rate.NewLimiter(c.hostRPS, c.hostBurst)
		c.perHost[host] = l
	}
	return l
}

// Do waits for both the global and per-host limiters before issuing req
// under ctx. Do sets no timeout of its own: the caller is expected to pass
// a context with its own deadline, so per-attempt timeouts are enforced
// via context, matching probes that need different timeouts per type.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if err := c.global.Wait(ctx); err != nil {
		return nil, err
	}
	if err := c.limiterFor(req.URL.Host).Wait(ctx); err != nil {
		return nil, err
	}
	return c.http.Do(req.WithContext(ctx))
}

// Raw returns the underlying *http.Client for callers (TLS probe) that
// need to manage connections directly rather than issue *http.Request.
func (c *Client) Raw() *http.Client {
	return c.http
}

var (
	sharedMu     sync.Mutex
	sharedClient *Client
)

// Shared returns the process-wide client, lazily constructing it with
// DefaultOptions on first use. Configure should be called once at startup
// before any probe runs, to size it from runtime configuration.
func Shared() *Client {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if sharedClient == nil {
		sharedClient = New(DefaultOptions())
	}
	return sharedClient
}

// Configure replaces the process-wide client with one sized for opts.
// Intended to be called once during Supervisor startup (§4.8).
func Configure(opts Options) {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	sharedClient = New(opts)
}
