package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dungla2011/monitor-2025-sub000/internal/model"
)

type fakeSource struct {
	mu    sync.Mutex
	items []*model.MonitorItem
	calls int
}

func (f *fakeSource) ListEnabledItems(ctx context.Context) ([]*model.MonitorItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	out := make([]*model.MonitorItem, len(f.items))
	copy(out, f.items)
	return out, nil
}

func (f *fakeSource) GetItem(ctx context.Context, id int64) (*model.MonitorItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, it := range f.items {
		if it.ID == id {
			return it, nil
		}
	}
	return nil, nil
}

func TestCacheStartLoadsSnapshot(t *testing.T) {
	src := &fakeSource{items: []*model.MonitorItem{{ID: 1, Name: "a"}, {ID: 2, Name: "b"}}}
	c := New(src, 0)
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	all := c.All()
	assert.Len(t, all, 2)
}

func TestCacheLimitCapsWorkingSet(t *testing.T) {
	src := &fakeSource{items: []*model.MonitorItem{{ID: 1}, {ID: 2}, {ID: 3}}}
	c := New(src, 2)
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	assert.Len(t, c.All(), 2)
}

func TestCacheGetFallsBackOutsideFreshnessWindow(t *testing.T) {
	src := &fakeSource{items: []*model.MonitorItem{{ID: 1, Name: "a"}}}
	c := New(src, 0)
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	c.mu.Lock()
	c.lastRefresh = time.Now().Add(-10 * time.Second)
	c.mu.Unlock()

	before := src.calls
	item, ok := c.Get(context.Background(), 1)
	require.True(t, ok)
	assert.Equal(t, "a", item.Name)
	assert.Greater(t, src.calls, before)
}

func TestCacheGetWithinFreshnessServesSnapshot(t *testing.T) {
	src := &fakeSource{items: []*model.MonitorItem{{ID: 1, Name: "a"}}}
	c := New(src, 0)
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	before := src.calls
	item, ok := c.Get(context.Background(), 1)
	require.True(t, ok)
	assert.Equal(t, "a", item.Name)
	assert.Equal(t, before, src.calls)
}
