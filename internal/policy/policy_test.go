package policy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dungla2011/monitor-2025-sub000/internal/model"
)

type fakeSource struct {
	settings map[int64]*model.MonitorSettings
	emails   map[int64]string
	tokens   map[int64]string
}

func (f *fakeSource) GetMonitorSettings(ctx context.Context, userID int64) (*model.MonitorSettings, error) {
	return f.settings[userID], nil
}

func (f *fakeSource) GetUserEmail(ctx context.Context, userID int64) (*string, error) {
	if v, ok := f.emails[userID]; ok {
		return &v, nil
	}
	return nil, nil
}

func (f *fakeSource) GetPushToken(ctx context.Context, userID int64) (*string, error) {
	if v, ok := f.tokens[userID]; ok {
		return &v, nil
	}
	return nil, nil
}

func TestNoSettingsRowDefaultAllows(t *testing.T) {
	src := &fakeSource{settings: map[int64]*model.MonitorSettings{}}
	p := New(src)

	allowed, reason, err := p.IsAlertTimeAllowed(context.Background(), 1, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Contains(t, reason, "default-allow")
}

func TestGlobalMuteDeniesWhileInFuture(t *testing.T) {
	future := time.Now().UTC().Add(1 * time.Hour)
	src := &fakeSource{settings: map[int64]*model.MonitorSettings{
		1: {UserID: 1, GlobalStopAlertTo: &future},
	}}
	p := New(src)

	allowed, reason, err := p.IsAlertTimeAllowed(context.Background(), 1, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Contains(t, reason, "muted until")
}

func TestAlertTimeRangeMembership(t *testing.T) {
	src := &fakeSource{settings: map[int64]*model.MonitorSettings{
		1: {UserID: 1, AlertTimeRanges: "08:00-22:00", Timezone: "UTC"},
	}}
	p := New(src)

	inWindow := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	allowed, _, err := p.IsAlertTimeAllowed(context.Background(), 1, inWindow)
	require.NoError(t, err)
	assert.True(t, allowed)

	outOfWindow := time.Date(2026, 7, 30, 2, 0, 0, 0, time.UTC)
	allowed, reason, err := p.IsAlertTimeAllowed(context.Background(), 1, outOfWindow)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Contains(t, reason, "outside allowed window")
}

func TestAlertTimeRangeWrapsPastMidnight(t *testing.T) {
	src := &fakeSource{settings: map[int64]*model.MonitorSettings{
		1: {UserID: 1, AlertTimeRanges: "22:00-06:00", Timezone: "UTC"},
	}}
	p := New(src)

	atNight := time.Date(2026, 7, 30, 23, 30, 0, 0, time.UTC)
	allowed, _, err := p.IsAlertTimeAllowed(context.Background(), 1, atNight)
	require.NoError(t, err)
	assert.True(t, allowed)

	atNoon := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	allowed, _, err = p.IsAlertTimeAllowed(context.Background(), 1, atNoon)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestNumericOffsetTimezoneResolves(t *testing.T) {
	src := &fakeSource{settings: map[int64]*model.MonitorSettings{
		1: {UserID: 1, AlertTimeRanges: "08:00-22:00", Timezone: "7"},
	}}
	p := New(src)

	// 01:00 UTC is 08:00 in Asia/Ho_Chi_Minh (UTC+7): right at the window edge.
	edge := time.Date(2026, 7, 30, 1, 0, 0, 0, time.UTC)
	allowed, _, err := p.IsAlertTimeAllowed(context.Background(), 1, edge)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestInvalidTimezoneFailsOpen(t *testing.T) {
	src := &fakeSource{settings: map[int64]*model.MonitorSettings{
		1: {UserID: 1, AlertTimeRanges: "08:00-22:00", Timezone: "Not/AZone"},
	}}
	p := New(src)

	allowed, reason, err := p.IsAlertTimeAllowed(context.Background(), 1, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Contains(t, reason, "fail-open")
}

func TestEmailAndPushTokenLookup(t *testing.T) {
	src := &fakeSource{
		emails: map[int64]string{1: "a@example.com"},
		tokens: map[int64]string{1: "device-token"},
	}
	p := New(src)

	email, err := p.GetEmail(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, email)
	assert.Equal(t, "a@example.com", *email)

	token, err := p.GetPushToken(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, token)
	assert.Equal(t, "device-token", *token)

	missingEmail, err := p.GetEmail(context.Background(), 2)
	require.NoError(t, err)
	assert.Nil(t, missingEmail)
}
