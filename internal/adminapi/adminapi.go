// Package adminapi implements the Admin API (C9, generalizing
// infra-core/cmd/probe/main.go's gin route groups): a status summary and
// a bearer-token-guarded shutdown trigger (SPEC_FULL §6 "Admin API wire
// contract"). The full dashboard stays external per spec.md §1; only
// these two routes are added.
package adminapi

import (
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/dungla2011/monitor-2025-sub000/internal/alertmanager"
	"github.com/dungla2011/monitor-2025-sub000/internal/cache"
)

// Status summarizes the process's current state (§6, no time-series per
// spec.md's Non-goals).
type Status struct {
	TotalItems     int            `json:"total_items"`
	EnabledItems   int            `json:"enabled_items"`
	RunningLoops   int            `json:"running_loops"`
	ActiveAlerts   map[string]int `json:"active_alerts_per_channel"`
}

// RunningLoopCounter reports how many monitor loops the Scheduler
// currently has running.
type RunningLoopCounter interface {
	RunningCount() int
}

// Server wires the admin routes onto a gin engine.
type Server struct {
	cache       *cache.Cache
	manager     *alertmanager.Manager
	loops       RunningLoopCounter
	adminToken  string
	shutdownFn  func()
	shutdownMu  sync.Mutex
	shutdownHit bool
}

// New creates the admin API server. shutdownFn is invoked exactly once,
// the first time /api/shutdown is called with a valid token.
func New(c *cache.Cache, manager *alertmanager.Manager, loops RunningLoopCounter, adminToken string, shutdownFn func()) *Server {
	return &Server{cache: c, manager: manager, loops: loops, adminToken: adminToken, shutdownFn: shutdownFn}
}

// Register mounts the admin routes onto engine.
func (s *Server) Register(engine *gin.Engine) {
	engine.GET("/api/status", s.handleStatus)
	engine.POST("/api/shutdown", s.requireBearer(), s.handleShutdown)
}

func (s *Server) handleStatus(c *gin.Context) {
	items := s.cache.All()
	enabled := 0
	for _, item := range items {
		if item.Enable {
			enabled++
		}
	}

	running := 0
	if s.loops != nil {
		running = s.loops.RunningCount()
	}

	c.JSON(http.StatusOK, Status{
		TotalItems:   len(items),
		EnabledItems: enabled,
		RunningLoops: running,
		ActiveAlerts: map[string]int{
			alertmanager.ChannelChat:    0,
			alertmanager.ChannelWebhook: 0,
			alertmanager.ChannelPush:    0,
			alertmanager.ChannelEmail:   0,
		},
	})
}

func (s *Server) handleShutdown(c *gin.Context) {
	s.shutdownMu.Lock()
	already := s.shutdownHit
	s.shutdownHit = true
	s.shutdownMu.Unlock()

	c.JSON(http.StatusAccepted, gin.H{"shutting_down": true})

	if !already && s.shutdownFn != nil {
		go s.shutdownFn()
	}
}

// requireBearer generalizes infra-core's AuthMiddleware/extractToken
// bearer-check idiom down to a single shared-secret comparison — the JWT
// claims/session/role machinery that idiom also carries has no
// equivalent here, since the Admin API has exactly one caller (the
// operator invoking `monitor stop`).
func (s *Server) requireBearer() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearer(c)
		if token == "" || s.adminToken == "" || token != s.adminToken {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing admin token"})
			c.Abort()
			return
		}
		c.Next()
	}
}

func extractBearer(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
