package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dungla2011/monitor-2025-sub000/internal/alertmanager"
	"github.com/dungla2011/monitor-2025-sub000/internal/cache"
	"github.com/dungla2011/monitor-2025-sub000/internal/config"
	"github.com/dungla2011/monitor-2025-sub000/internal/model"
	"github.com/dungla2011/monitor-2025-sub000/internal/notify"
	"github.com/dungla2011/monitor-2025-sub000/internal/policy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCacheSource struct {
	mu    sync.Mutex
	items map[int64]*model.MonitorItem
}

func newFakeCacheSource() *fakeCacheSource {
	return &fakeCacheSource{items: make(map[int64]*model.MonitorItem)}
}

func (f *fakeCacheSource) set(item *model.MonitorItem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[item.ID] = item
}

func (f *fakeCacheSource) remove(id int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, id)
}

func (f *fakeCacheSource) ListEnabledItems(ctx context.Context) ([]*model.MonitorItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.MonitorItem
	for _, item := range f.items {
		if item.Enable {
			out = append(out, item)
		}
	}
	return out, nil
}

func (f *fakeCacheSource) GetItem(ctx context.Context, id int64) (*model.MonitorItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	if !ok {
		return nil, nil
	}
	return item, nil
}

type fakeItemStore struct {
	mu                 sync.Mutex
	updates            []struct {
		id     int64
		status int
	}
	clearedForceRestart []int64
}

func (f *fakeItemStore) UpdateProbeResult(ctx context.Context, id int64, status int, errorMsg, validMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, struct {
		id     int64
		status int
	}{id, status})
	return nil
}

func (f *fakeItemStore) ClearForceRestart(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clearedForceRestart = append(f.clearedForceRestart, id)
	return nil
}

func (f *fakeItemStore) updateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.updates)
}

type fakeConfigSource struct{}

func (fakeConfigSource) GetAlertConfigForItem(ctx context.Context, itemID int64, channel string) (*model.AlertConfig, error) {
	return nil, nil
}

type fakePolicySource struct{}

func (fakePolicySource) GetMonitorSettings(ctx context.Context, userID int64) (*model.MonitorSettings, error) {
	return nil, nil
}
func (fakePolicySource) GetUserEmail(ctx context.Context, userID int64) (*string, error) { return nil, nil }
func (fakePolicySource) GetPushToken(ctx context.Context, userID int64) (*string, error) { return nil, nil }

func newTestDispatcher(manager *alertmanager.Manager) *notify.Dispatcher {
	return notify.New(
		manager,
		policy.New(fakePolicySource{}),
		fakeConfigSource{},
		nil,
		config.ThrottleConfig{TelegramThrottleSeconds: 30, WebhookThrottleSeconds: 30, FirebaseThrottleSeconds: 30, EmailThrottleSeconds: 300},
		config.WebhookConfig{Enabled: true},
		"",
	)
}

// fastFailingTCPItem always fails instantly: an unparseable host:port
// target short-circuits probe.Run without any retry sleep.
func fastFailingTCPItem(id int64) *model.MonitorItem {
	return &model.MonitorItem{
		ID:                   id,
		Name:                 "test-item",
		Enable:               true,
		URLCheck:             "not-a-valid-target",
		Type:                 model.TypeTCP,
		CheckIntervalSeconds: 1,
	}
}

func TestReconcileStartsAndStopsLoopsOnEligibilityChange(t *testing.T) {
	src := newFakeCacheSource()
	item := fastFailingTCPItem(1)
	src.set(item)

	c := cache.New(src, 0)
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	store := &fakeItemStore{}
	manager := alertmanager.New()
	dispatcher := newTestDispatcher(manager)

	s := New(c, store, manager, dispatcher, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.reconcile(ctx)
	s.mu.Lock()
	_, running := s.running[1]
	s.mu.Unlock()
	assert.True(t, running)

	// Disable the item; next reconcile should stop its loop.
	item.Enable = false
	src.set(item)
	require.Eventually(t, func() bool {
		s.reconcile(ctx)
		s.mu.Lock()
		_, stillRunning := s.running[1]
		s.mu.Unlock()
		return !stillRunning
	}, 2*time.Second, 50*time.Millisecond)
}

func TestMonitorLoopPersistsFirstErrorNotification(t *testing.T) {
	src := newFakeCacheSource()
	c := cache.New(src, 0)
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	item := fastFailingTCPItem(2)
	item.CheckIntervalSeconds = 3600 // only one cycle should run in this test's window
	src.set(item)

	store := &fakeItemStore{}
	manager := alertmanager.New()
	dispatcher := newTestDispatcher(manager)
	s := New(c, store, manager, dispatcher, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.startLoop(ctx, item)

	require.Eventually(t, func() bool {
		return store.updateCount() >= 1
	}, 2*time.Second, 20*time.Millisecond)

	assert.Equal(t, 1, manager.GetConsecutiveErrorCount(item.ID))

	s.mu.Lock()
	loop := s.running[item.ID]
	s.mu.Unlock()
	loop.cancel()
	<-loop.done
}

func TestChunkFilterExcludesItemsOutsideChunk(t *testing.T) {
	src := newFakeCacheSource()
	src.set(fastFailingTCPItem(10))
	src.set(fastFailingTCPItem(11))

	c := cache.New(src, 0)
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	store := &fakeItemStore{}
	manager := alertmanager.New()
	dispatcher := newTestDispatcher(manager)

	onlyEven := func(id int64) bool { return id%2 == 0 }
	s := New(c, store, manager, dispatcher, onlyEven)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.reconcile(ctx)

	s.mu.Lock()
	_, has10 := s.running[10]
	_, has11 := s.running[11]
	s.mu.Unlock()

	assert.True(t, has10)
	assert.False(t, has11)

	for _, id := range []int64{10} {
		s.stopLoop(id)
		_ = id
	}
}
