// Package cache implements the Item Cache (C2): an in-process snapshot of
// the enabled monitor items (Source.ListEnabledItems; disabled items are
// not held by a refresh), refreshed on a fixed tick, that shields the database
// from the Scheduler's probe-rate reads (SPEC_FULL §4.2). The locking
// discipline (one writer, many readers, pointer-swap snapshot) is
// generalized from infra-core/pkg/probe/probe.go's
// `probes map[string]*ProbeConfig` + sync.RWMutex pattern.
package cache

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/dungla2011/monitor-2025-sub000/internal/model"
)

// RefreshInterval is how often the background refresher reloads items.
const RefreshInterval = 1 * time.Second

// FreshnessWindow is how long a snapshot may be served before a lookup
// falls back to a direct persistence read (§4.2).
const FreshnessWindow = 5 * time.Second

// Source is the persistence read the cache refreshes from. It is kept
// minimal so the cache never depends on the full store package surface.
type Source interface {
	ListEnabledItems(ctx context.Context) ([]*model.MonitorItem, error)
	GetItem(ctx context.Context, id int64) (*model.MonitorItem, error)
}

// Cache holds the latest snapshot of monitor items.
type Cache struct {
	source Source
	limit  int

	mu          sync.RWMutex
	items       map[int64]*model.MonitorItem
	lastRefresh time.Time

	stop chan struct{}
	done chan struct{}
}

// New creates a Cache over source. limit, when >0, caps the number of
// items kept after each refresh (process-scoped LIMIT, §4.2/§4.8).
func New(source Source, limit int) *Cache {
	return &Cache{
		source: source,
		limit:  limit,
		items:  make(map[int64]*model.MonitorItem),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start loads an initial snapshot and begins the background refresher.
func (c *Cache) Start(ctx context.Context) error {
	if err := c.refresh(ctx); err != nil {
		return err
	}
	go c.refreshLoop(ctx)
	return nil
}

// Stop halts the background refresher and waits for it to exit.
func (c *Cache) Stop() {
	close(c.stop)
	<-c.done
}

func (c *Cache) refreshLoop(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.refresh(ctx); err != nil {
				log.Printf("cache: refresh failed: %v", err)
			}
		}
	}
}

func (c *Cache) refresh(ctx context.Context) error {
	items, err := c.source.ListEnabledItems(ctx)
	if err != nil {
		return err
	}

	if c.limit > 0 && len(items) > c.limit {
		items = items[:c.limit]
	}

	next := make(map[int64]*model.MonitorItem, len(items))
	for _, item := range items {
		next[item.ID] = item
	}

	c.mu.Lock()
	c.items = next
	c.lastRefresh = time.Now()
	c.mu.Unlock()

	return nil
}

// snapshot returns the current map and its age, under the read lock.
func (c *Cache) snapshot() (map[int64]*model.MonitorItem, time.Time) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.items, c.lastRefresh
}

// fresh reports whether the cache was refreshed within FreshnessWindow.
func (c *Cache) fresh() bool {
	_, last := c.snapshot()
	return !last.IsZero() && time.Since(last) <= FreshnessWindow
}

// All returns every cached item. Callers must not mutate the returned
// map or its values.
func (c *Cache) All() map[int64]*model.MonitorItem {
	items, _ := c.snapshot()
	return items
}

// Get looks up an item by id. Within the freshness window it is served
// from the snapshot; otherwise it falls back to a direct persistence read
// and opportunistically updates the cache entry (§4.2, §6 invariant 6).
func (c *Cache) Get(ctx context.Context, id int64) (*model.MonitorItem, bool) {
	if c.fresh() {
		items, _ := c.snapshot()
		if item, ok := items[id]; ok {
			return item, true
		}
		// Not fresh-missing is still a miss within the window: the item
		// may be newly created or disabled. Fall through to a direct read
		// so the scheduler still makes progress (invariant 6).
	}

	item, err := c.source.GetItem(ctx, id)
	if err != nil || item == nil {
		return nil, false
	}

	c.mu.Lock()
	c.items[id] = item
	c.mu.Unlock()

	return item, true
}
