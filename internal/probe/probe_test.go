package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dungla2011/monitor-2025-sub000/internal/model"
)

func TestPingWebSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	item := &model.MonitorItem{Type: model.TypePingWeb, URLCheck: srv.URL}
	result := Run(context.Background(), item)

	require.True(t, result.Success)
	assert.Equal(t, 0, result.Details["retry_attempts"])
	assert.NotNil(t, result.ResponseTimeMs)
}

func TestPingWebFailureStatusAbove400(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	item := &model.MonitorItem{Type: model.TypePingWeb, URLCheck: srv.URL}
	result := runWithRetryForTest(t, item, attemptPingWeb)

	assert.False(t, result.Success)
}

// runWithRetryForTest exercises runWithRetry directly with a shortened
// RetryDelay so tests don't pay the full 2x5s retry delay budget for
// deliberately-always-failing attempts.
func runWithRetryForTest(t *testing.T, item *model.MonitorItem, attempt attemptFunc) ProbeResult {
	t.Helper()
	orig := RetryDelay
	setRetryDelayForTest(1 * time.Millisecond)
	defer setRetryDelayForTest(orig)
	return runWithRetry(context.Background(), item, attempt)
}

func TestWebContentErrorBeforeValid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK but under maintenance"))
	}))
	defer srv.Close()

	item := &model.MonitorItem{
		Type:        model.TypeWebContent,
		URLCheck:    srv.URL,
		ResultValid: "OK,healthy",
		ResultError: "maintenance",
	}
	result := attemptWebContent(context.Background(), item)

	require.False(t, result.Success)
	assert.Equal(t, "maintenance", result.Details["forbidden_keyword"])
}

func TestWebContentMissingValidKeyword(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Service is healthy"))
	}))
	defer srv.Close()

	item := &model.MonitorItem{
		Type:        model.TypeWebContent,
		URLCheck:    srv.URL,
		ResultValid: "OK,healthy",
		ResultError: "maintenance",
	}
	result := attemptWebContent(context.Background(), item)

	require.False(t, result.Success)
	assert.Equal(t, []string{"OK"}, result.Details["missing_keywords"])
}

func TestWebContentSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Service is healthy and OK"))
	}))
	defer srv.Close()

	item := &model.MonitorItem{
		Type:        model.TypeWebContent,
		URLCheck:    srv.URL,
		ResultValid: "OK,healthy",
		ResultError: "maintenance",
	}
	result := attemptWebContent(context.Background(), item)
	assert.True(t, result.Success)
}

func TestSplitKeywordsSkipsWhitespaceOnly(t *testing.T) {
	assert.Nil(t, splitKeywords("   ,  ,"))
	assert.Equal(t, []string{"a", "b"}, splitKeywords(" a , b "))
}

func TestTCPUnparseablePortFailsWithoutRetry(t *testing.T) {
	item := &model.MonitorItem{Type: model.TypeTCP, URLCheck: "localhost:notaport"}
	result := Run(context.Background(), item)

	require.False(t, result.Success)
	assert.Equal(t, 0, result.Details["retry_attempts"])
}

func TestTCPConnectSuccess(t *testing.T) {
	ln := newLocalListener(t)
	defer ln.Close()

	item := &model.MonitorItem{Type: model.TypeTCP, URLCheck: ln.Addr().String()}
	result := attemptTCP(context.Background(), item, false)
	assert.True(t, result.Success)
}

func TestOpenPortTCPThenErrorInvertsSuccess(t *testing.T) {
	ln := newLocalListener(t)
	addr := ln.Addr().String()
	ln.Close() // now closed: nothing listens

	item := &model.MonitorItem{Type: model.TypeOpenPortTCPThenError, URLCheck: addr}
	result := attemptTCP(context.Background(), item, true)
	assert.True(t, result.Success)
}

func TestEffectiveIntervalDefaultsTo300(t *testing.T) {
	item := &model.MonitorItem{CheckIntervalSeconds: 0}
	assert.Equal(t, 300, item.EffectiveIntervalSeconds())

	item2 := &model.MonitorItem{CheckIntervalSeconds: -5}
	assert.Equal(t, 300, item2.EffectiveIntervalSeconds())

	item3 := &model.MonitorItem{CheckIntervalSeconds: 45}
	assert.Equal(t, 45, item3.EffectiveIntervalSeconds())
}
