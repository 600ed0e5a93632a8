// Package model holds the persisted entities of the monitor service,
// mirrored 1:1 onto the schema in SPEC_FULL.md §6.
package model

import "time"

// Monitor item types. open_port_tcp_then_valid is an alias of tcp;
// open_port_tcp_then_error inverts the same probe's success condition.
const (
	TypePingWeb               = "ping_web"
	TypePingICMP              = "ping_icmp"
	TypeTCP                   = "tcp"
	TypeOpenPortTCPThenValid  = "open_port_tcp_then_valid"
	TypeOpenPortTCPThenError  = "open_port_tcp_then_error"
	TypeSSLExpiredCheck       = "ssl_expired_check"
	TypeWebContent            = "web_content"
)

// DefaultCheckIntervalSeconds is used whenever CheckIntervalSeconds is
// absent or non-positive (SPEC_FULL §8 boundary behavior).
const DefaultCheckIntervalSeconds = 300

// MonitorItem is a single probe definition (target + method + cadence).
type MonitorItem struct {
	ID                            int64      `db:"id" json:"id"`
	Name                          string     `db:"name" json:"name"`
	Enable                        bool       `db:"enable" json:"enable"`
	URLCheck                      string     `db:"url_check" json:"url_check"`
	Type                          string     `db:"type" json:"type"`
	CheckIntervalSeconds          int        `db:"check_interval_seconds" json:"check_interval_seconds"`
	ResultValid                   string     `db:"result_valid" json:"result_valid"`
	ResultError                   string     `db:"result_error" json:"result_error"`
	MaxAlertCount                 int        `db:"maxAlertCount" json:"maxAlertCount"`
	UserID                        int64      `db:"user_id" json:"user_id"`
	CountOnline                   int64      `db:"count_online" json:"count_online"`
	CountOffline                  int64      `db:"count_offline" json:"count_offline"`
	LastCheckStatus               *int       `db:"last_check_status" json:"last_check_status"`
	LastCheckTime                 *time.Time `db:"last_check_time" json:"last_check_time"`
	StopTo                        *time.Time `db:"stopTo" json:"stopTo"`
	ForceRestart                  bool       `db:"forceRestart" json:"forceRestart"`
	AllowAlertForConsecutiveError *int       `db:"allow_alert_for_consecutive_error" json:"allow_alert_for_consecutive_error"`
	DeletedAt                     *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
	CreatedAt                     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt                     time.Time  `db:"updated_at" json:"updated_at"`
}

// EffectiveIntervalSeconds applies the §8 boundary rule: interval<=0 or
// unset falls back to DefaultCheckIntervalSeconds.
func (m *MonitorItem) EffectiveIntervalSeconds() int {
	if m.CheckIntervalSeconds <= 0 {
		return DefaultCheckIntervalSeconds
	}
	return m.CheckIntervalSeconds
}

// IsPaused reports whether StopTo is set and strictly in the future.
// StopTo == now is NOT paused (§8 boundary behavior).
func (m *MonitorItem) IsPaused(now time.Time) bool {
	return m.StopTo != nil && m.StopTo.After(now)
}

// AllowRepeatAlerts reports the repeat-alert policy derived from
// AllowAlertForConsecutiveError: null/0 => first-error-only, 1 => repeats.
func (m *MonitorItem) AllowRepeatAlerts() bool {
	return m.AllowAlertForConsecutiveError != nil && *m.AllowAlertForConsecutiveError == 1
}

// TrackedSnapshot captures the fields the scheduler diffs on each monitor
// loop cycle (§4.3 "Tracked fields"). Two snapshots are Equal when none of
// the tracked fields changed; any difference forces the loop to restart.
type TrackedSnapshot struct {
	Enable               bool
	Name                 string
	UserID                int64
	URLCheck             string
	Type                 string
	MaxAlertCount        int
	CheckIntervalSeconds int
	ResultValid          string
	ResultError          string
	StopTo               *time.Time
	ForceRestart         bool
}

// Snapshot extracts the tracked fields from the item.
func (m *MonitorItem) Snapshot() TrackedSnapshot {
	return TrackedSnapshot{
		Enable:               m.Enable,
		Name:                 m.Name,
		UserID:               m.UserID,
		URLCheck:             m.URLCheck,
		Type:                 m.Type,
		MaxAlertCount:        m.MaxAlertCount,
		CheckIntervalSeconds: m.CheckIntervalSeconds,
		ResultValid:          m.ResultValid,
		ResultError:          m.ResultError,
		StopTo:               m.StopTo,
		ForceRestart:         m.ForceRestart,
	}
}

// Equal compares two tracked snapshots field by field.
func (s TrackedSnapshot) Equal(other TrackedSnapshot) bool {
	if s.Enable != other.Enable ||
		s.Name != other.Name ||
		s.UserID != other.UserID ||
		s.URLCheck != other.URLCheck ||
		s.Type != other.Type ||
		s.MaxAlertCount != other.MaxAlertCount ||
		s.CheckIntervalSeconds != other.CheckIntervalSeconds ||
		s.ResultValid != other.ResultValid ||
		s.ResultError != other.ResultError ||
		s.ForceRestart != other.ForceRestart {
		return false
	}
	if (s.StopTo == nil) != (other.StopTo == nil) {
		return false
	}
	if s.StopTo != nil && !s.StopTo.Equal(*other.StopTo) {
		return false
	}
	return true
}

// Alert channel kinds. "telegram" is the concrete chat transport behind
// the generic "chat" channel used by the Alert Manager Registry.
const (
	AlertTypeTelegram = "telegram"
	AlertTypeWebhook  = "webhook"
	AlertTypeEmail    = "email"
	AlertTypePush     = "push"
)

// AlertConfig is a named notification channel configuration.
type AlertConfig struct {
	ID          int64     `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	UserID      int64     `db:"user_id" json:"user_id"`
	Status      int       `db:"status" json:"status"`
	AlertType   string    `db:"alert_type" json:"alert_type"`
	AlertConfig string    `db:"alert_config" json:"alert_config"`
	DeletedAt   *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// MonitorAndConfig links a MonitorItem to an AlertConfig. Soft-deleting
// the link disables that channel for that item (§3).
type MonitorAndConfig struct {
	ID            int64      `db:"id" json:"id"`
	MonitorItemID int64      `db:"monitor_item_id" json:"monitor_item_id"`
	ConfigID      int64      `db:"config_id" json:"config_id"`
	DeletedAt     *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// User is a monitor-service account.
type User struct {
	ID        int64      `db:"id" json:"id"`
	Email     *string    `db:"email" json:"email"`
	PushToken *string    `db:"push_token" json:"push_token,omitempty"`
	DeletedAt *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// MonitorSettings is the per-user alert-window and timezone policy (C6).
type MonitorSettings struct {
	ID                int64      `db:"id" json:"id"`
	UserID            int64      `db:"user_id" json:"user_id"`
	Status            int        `db:"status" json:"status"`
	AlertTimeRanges   string     `db:"alert_time_ranges" json:"alert_time_ranges"`
	Timezone          string     `db:"timezone" json:"timezone"`
	GlobalStopAlertTo *time.Time `db:"global_stop_alert_to" json:"global_stop_alert_to"`
	DeletedAt         *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}
