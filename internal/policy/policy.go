// Package policy implements the User Policy (C6): per-user alert-window
// and timezone gating (SPEC_FULL §4.6), backed by internal/store's
// MonitorSettings/User reads. Grounded on the teacher's thin
// Repository-wraps-a-DB shape (pkg/database/repositories.go), generalized
// from infra-core's permission-check repositories to a time-window policy
// evaluator.
package policy

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dungla2011/monitor-2025-sub000/internal/model"
)

// Source is the persistence read the policy evaluator needs. Satisfied
// by internal/store.SettingsRepository.
type Source interface {
	GetMonitorSettings(ctx context.Context, userID int64) (*model.MonitorSettings, error)
	GetUserEmail(ctx context.Context, userID int64) (*string, error)
	GetPushToken(ctx context.Context, userID int64) (*string, error)
}

// DefaultTimezone is used when the timezone is empty or is a numeric
// offset with no entry in offsetToIANA (§4.6).
const DefaultTimezone = "UTC"

// offsetToIANA maps a small set of documented numeric UTC offsets to an
// IANA zone name (§4.6 "fixed table"). Unknown numbers fall back to
// DefaultTimezone.
var offsetToIANA = map[int]string{
	0:  "UTC",
	7:  "Asia/Ho_Chi_Minh",
	8:  "Asia/Shanghai",
	9:  "Asia/Tokyo",
	-5: "America/New_York",
	-8: "America/Los_Angeles",
	1:  "Europe/Paris",
}

// Policy evaluates alert-window gating for users.
type Policy struct {
	source Source
}

// New creates a Policy over source.
func New(source Source) *Policy {
	return &Policy{source: source}
}

// GetSettings returns the user's alert-window settings, or nil if none
// exist (§4.6 rule 1: default-allow).
func (p *Policy) GetSettings(ctx context.Context, userID int64) (*model.MonitorSettings, error) {
	return p.source.GetMonitorSettings(ctx, userID)
}

// GetPushToken returns the user's device token, or nil.
func (p *Policy) GetPushToken(ctx context.Context, userID int64) (*string, error) {
	return p.source.GetPushToken(ctx, userID)
}

// GetEmail returns the user's email address, or nil.
func (p *Policy) GetEmail(ctx context.Context, userID int64) (*string, error) {
	return p.source.GetUserEmail(ctx, userID)
}

// IsAlertTimeAllowed evaluates the ordered rules of §4.6 against now
// (which callers should pass as time.Now().UTC()).
func (p *Policy) IsAlertTimeAllowed(ctx context.Context, userID int64, now time.Time) (bool, string, error) {
	settings, err := p.source.GetMonitorSettings(ctx, userID)
	if err != nil {
		return false, "", fmt.Errorf("failed to load settings for user %d: %w", userID, err)
	}

	// Rule 1: no settings row => allowed.
	if settings == nil {
		return true, "no settings row, default-allow", nil
	}

	// Rule 2: global mute.
	if settings.GlobalStopAlertTo != nil && settings.GlobalStopAlertTo.After(now) {
		return false, fmt.Sprintf("muted until %s", settings.GlobalStopAlertTo.Format(time.RFC3339)), nil
	}

	// Rule 3: alert_time_ranges membership, evaluated in the user's zone.
	if strings.TrimSpace(settings.AlertTimeRanges) != "" {
		local, err := toLocalTime(now, settings.Timezone)
		if err != nil {
			return true, "timezone error, fail-open", nil
		}

		allowed, matched := withinAnyRange(local, settings.AlertTimeRanges)
		if !matched {
			// No valid range parsed at all is treated the same as "no
			// ranges configured" would be, but since the field was
			// non-empty we still evaluate: if every range was invalid we
			// have no valid membership test, so fail-open rather than
			// deny on a config typo.
			return true, "no valid ranges configured, fail-open", nil
		}
		if !allowed {
			return false, fmt.Sprintf("outside allowed window %s", settings.AlertTimeRanges), nil
		}
		return true, "within allowed window", nil
	}

	// Rule 4: otherwise allowed.
	return true, "no window restriction", nil
}

// toLocalTime converts now (assumed UTC) into tz, which may be an IANA
// name or a bare numeric offset in hours (§4.6).
func toLocalTime(now time.Time, tz string) (time.Time, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		tz = DefaultTimezone
	}

	if offset, err := strconv.Atoi(tz); err == nil {
		name, ok := offsetToIANA[offset]
		if !ok {
			name = DefaultTimezone
		}
		loc, err := time.LoadLocation(name)
		if err != nil {
			return time.Time{}, err
		}
		return now.In(loc), nil
	}

	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Time{}, err
	}
	return now.In(loc), nil
}

// withinAnyRange tests local's HH:MM against every "HH:MM-HH:MM" entry in
// ranges (comma-separated). Invalid entries are skipped. matched reports
// whether at least one entry parsed successfully, so the caller can
// distinguish "denied by a valid range" from "nothing to test against".
func withinAnyRange(local time.Time, ranges string) (allowed bool, matched bool) {
	nowMinutes := local.Hour()*60 + local.Minute()

	for _, r := range strings.Split(ranges, ",") {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		parts := strings.SplitN(r, "-", 2)
		if len(parts) != 2 {
			continue
		}
		start, ok1 := parseHHMM(parts[0])
		end, ok2 := parseHHMM(parts[1])
		if !ok1 || !ok2 {
			continue
		}
		matched = true
		if start <= end {
			if nowMinutes >= start && nowMinutes <= end {
				return true, true
			}
		} else {
			// Range wraps past midnight, e.g. 22:00-06:00.
			if nowMinutes >= start || nowMinutes <= end {
				return true, true
			}
		}
	}
	return false, matched
}

func parseHHMM(s string) (int, bool) {
	s = strings.TrimSpace(s)
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}
