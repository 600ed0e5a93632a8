package adminapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dungla2011/monitor-2025-sub000/internal/alertmanager"
	"github.com/dungla2011/monitor-2025-sub000/internal/cache"
	"github.com/dungla2011/monitor-2025-sub000/internal/model"
)

type fakeSource struct {
	items map[int64]*model.MonitorItem
}

func (f *fakeSource) ListEnabledItems(ctx context.Context) ([]*model.MonitorItem, error) {
	var out []*model.MonitorItem
	for _, item := range f.items {
		if item.Enable {
			out = append(out, item)
		}
	}
	return out, nil
}

func (f *fakeSource) GetItem(ctx context.Context, id int64) (*model.MonitorItem, error) {
	return f.items[id], nil
}

type fakeLoopCounter struct{ n int }

func (f fakeLoopCounter) RunningCount() int { return f.n }

func newTestEngine(t *testing.T, s *Server) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	s.Register(engine)
	return engine
}

func TestHandleStatusReportsCountsAndZeroedChannels(t *testing.T) {
	src := &fakeSource{items: map[int64]*model.MonitorItem{
		1: {ID: 1, Enable: true},
		2: {ID: 2, Enable: false},
	}}
	c := cache.New(src, 0)
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	s := New(c, alertmanager.New(), fakeLoopCounter{n: 2}, "secret", func() {})
	engine := newTestEngine(t, s)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total_items":2`)
	assert.Contains(t, rec.Body.String(), `"enabled_items":1`)
	assert.Contains(t, rec.Body.String(), `"running_loops":2`)
	assert.Contains(t, rec.Body.String(), `"active_alerts_per_channel"`)
}

func TestHandleShutdownRejectsMissingOrWrongToken(t *testing.T) {
	s := New(nil, nil, fakeLoopCounter{}, "correct-token", func() {})
	engine := newTestEngine(t, s)

	req := httptest.NewRequest(http.MethodPost, "/api/shutdown", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/shutdown", nil)
	req.Header.Set("Authorization", "Bearer wrong-token")
	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleShutdownFiresExactlyOnceAcrossRepeatedCalls(t *testing.T) {
	var calls int32
	s := New(nil, nil, fakeLoopCounter{}, "correct-token", func() {
		atomic.AddInt32(&calls, 1)
	})
	engine := newTestEngine(t, s)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/shutdown", nil)
		req.Header.Set("Authorization", "Bearer correct-token")
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusAccepted, rec.Code)
	}

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) == 1
	}, time.Second, 10*time.Millisecond)
}
