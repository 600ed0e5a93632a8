// Command monitor is the synthetic uptime-monitoring service's single
// binary: it boots the full service (config -> supervisor lock -> store
// -> cache -> alertmanager -> policy -> notify -> scheduler -> adminapi)
// or acts as a thin client against a running instance's Admin
// API, depending on the subcommand (SPEC_FULL §6 "CLI surface").
// Grounded on infra-core/cmd/probe/main.go's load-config -> open-db ->
// start-monitor -> gin-server -> signal-wait -> graceful-shutdown shape.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dungla2011/monitor-2025-sub000/internal/adminapi"
	"github.com/dungla2011/monitor-2025-sub000/internal/alertmanager"
	"github.com/dungla2011/monitor-2025-sub000/internal/cache"
	"github.com/dungla2011/monitor-2025-sub000/internal/config"
	"github.com/dungla2011/monitor-2025-sub000/internal/httpclient"
	"github.com/dungla2011/monitor-2025-sub000/internal/notify"
	"github.com/dungla2011/monitor-2025-sub000/internal/policy"
	"github.com/dungla2011/monitor-2025-sub000/internal/probe"
	"github.com/dungla2011/monitor-2025-sub000/internal/scheduler"
	"github.com/dungla2011/monitor-2025-sub000/internal/secret"
	"github.com/dungla2011/monitor-2025-sub000/internal/store"
	"github.com/dungla2011/monitor-2025-sub000/internal/supervisor"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "start", "manager":
		err = runStart(args)
	case "stop":
		err = runStop(args)
	case "status":
		err = runStatus(args)
	case "test":
		err = runTest(args)
	default:
		usage()
		os.Exit(1)
	}

	if err != nil {
		log.Printf("❌ %v", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: monitor <start|stop|status|test> [flags]")
}

// runStart boots the full service: config, persistence, cache, alert
// registry, policy, notification dispatcher, scheduler, instance lock,
// and the admin API, then blocks until a shutdown signal arrives.
func runStart(args []string) error {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	configPath := fs.String("config", "", "path to the service's YAML config file")
	chunkSpec := fs.String("chunk", "", "this process's slice of the enabled-item list, as K-S")
	limit := fs.Int("limit", 0, "cap the total number of items this process considers")
	testMode := fs.Bool("test", false, "load the alternate test config instead of the default path")
	fs.Parse(args)

	log.Println("🔍 Starting monitor service...")

	cfgPath := *configPath
	if *testMode && cfgPath == "" {
		cfgPath = "config.test.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	chunk, err := supervisor.ParseChunk(*chunkSpec)
	if err != nil {
		return fmt.Errorf("invalid --chunk: %w", err)
	}

	ln, releaseLock, err := supervisor.Lock(cfg.HTTP.Port, chunk)
	if err != nil {
		return fmt.Errorf("failed to acquire instance lock: %w", err)
	}
	defer releaseLock()

	db, err := store.Open(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	items := store.NewItemRepository(db)
	alerts := store.NewAlertConfigRepository(db)
	settings := store.NewSettingsRepository(db)

	enabledItems, err := items.ListEnabledItems(context.Background())
	if err != nil {
		return fmt.Errorf("failed to read initial item set: %w", err)
	}
	if *limit > 0 && len(enabledItems) > *limit {
		enabledItems = enabledItems[:*limit]
	}
	ids := make([]int64, len(enabledItems))
	for i, item := range enabledItems {
		ids[i] = item.ID
	}
	chunkFilter := scheduler.ChunkFilter(supervisor.Filter(ids, chunk))

	itemCache := cache.New(items, *limit)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := itemCache.Start(ctx); err != nil {
		return fmt.Errorf("failed to start item cache: %w", err)
	}
	defer itemCache.Stop()

	manager := alertmanager.New()
	pol := policy.New(settings)
	box := secret.NewBox(cfg.SecretKey)

	client := httpclient.New(httpclient.DefaultOptions())
	transports := []notify.Transport{
		notify.NewChatTransport(client),
		notify.NewWebhookTransport(client, cfg.Webhook.MaxRetries, "1.0.0"),
		notify.NewPushTransport(client, cfg.Firebase.ServiceAccountPath),
		notify.NewEmailTransport(&cfg.SMTP, box),
	}
	dispatcher := notify.New(manager, pol, alerts, transports, cfg.Throttle, cfg.Webhook, cfg.Runtime.AdminDomain)

	sched := scheduler.New(itemCache, items, manager, dispatcher, chunkFilter)
	sched.Start(ctx)
	defer sched.Stop()

	if cfg.Runtime.MaxConcurrentChecks > 0 {
		log.Printf("📋 max_concurrent_checks=%d connection_pool_size=%d", cfg.Runtime.MaxConcurrentChecks, cfg.Runtime.ConnectionPoolSize)
	}

	// adminapi.Server already guarantees this runs at most once.
	shutdownCh := make(chan struct{})
	admin := adminapi.New(itemCache, manager, sched, cfg.Runtime.AdminToken, func() {
		close(shutdownCh)
	})

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	admin.Register(engine)

	server := &http.Server{
		Handler:        engine,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		log.Printf("🚀 Admin API listening on %s", ln.Addr())
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("❌ admin API server error: %v", err)
		}
	}()

	quit := supervisor.WaitForShutdown()
	select {
	case <-quit:
		log.Println("🛑 Shutdown signal received...")
	case <-shutdownCh:
		log.Println("🛑 Shutdown requested via admin API...")
	}

	// A second signal during drain forces an immediate exit rather than
	// waiting out the grace period.
	go func() {
		<-quit
		log.Println("🛑 Second shutdown signal received, forcing exit")
		os.Exit(1)
	}()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), supervisor.GracePeriod)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("❌ admin API forced to shutdown: %v", err)
	}

	log.Println("✅ monitor service shutdown complete")
	return nil
}

// runStop POSTs to a running instance's /api/shutdown.
func runStop(args []string) error {
	fs := flag.NewFlagSet("stop", flag.ExitOnError)
	addr := fs.String("addr", "http://127.0.0.1:8099", "running instance's admin API base URL")
	token := fs.String("token", os.Getenv("ADMIN_TOKEN"), "admin API bearer token")
	fs.Parse(args)

	req, err := http.NewRequest(http.MethodPost, *addr+"/api/shutdown", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+*token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach admin API at %s: %w", *addr, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("shutdown request rejected (status %d): %s", resp.StatusCode, string(body))
	}
	log.Println("✅ shutdown requested")
	return nil
}

// runStatus GETs a running instance's /api/status.
func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	addr := fs.String("addr", "http://127.0.0.1:8099", "running instance's admin API base URL")
	fs.Parse(args)

	resp, err := http.Get(*addr + "/api/status")
	if err != nil {
		return fmt.Errorf("failed to reach admin API at %s: %w", *addr, err)
	}
	defer resp.Body.Close()

	var status adminapi.Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("failed to parse status response: %w", err)
	}

	fmt.Printf("total_items=%d enabled_items=%d running_loops=%d\n",
		status.TotalItems, status.EnabledItems, status.RunningLoops)
	return nil
}

// runTest loads configuration, probes the first enabled item once, and
// prints the result without starting the scheduler or admin API.
func runTest(args []string) error {
	fs := flag.NewFlagSet("test", flag.ExitOnError)
	configPath := fs.String("config", "config.test.yaml", "path to the config file to load")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	db, err := store.Open(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	items := store.NewItemRepository(db)
	enabled, err := items.ListEnabledItems(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list enabled items: %w", err)
	}
	if len(enabled) == 0 {
		return fmt.Errorf("no enabled items configured to test")
	}

	item := enabled[0]
	result := probe.Run(context.Background(), item)

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "item=%d name=%q success=%v message=%q", item.ID, item.Name, result.Success, result.Message)
	fmt.Println(buf.String())
	if !result.Success {
		return fmt.Errorf("test probe failed")
	}
	return nil
}
