package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dungla2011/monitor-2025-sub000/internal/model"
)

// SettingsRepository implements the User Policy's persistence half
// (§4.6/§4.7): per-user alert-window settings, email, and push token.
type SettingsRepository struct {
	db *DB
}

// NewSettingsRepository creates a new settings repository.
func NewSettingsRepository(db *DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// GetMonitorSettings returns the alert-window/timezone policy row for
// userID, or (nil, nil) when absent (§4.6 rule 1: no row => default-allow).
func (r *SettingsRepository) GetMonitorSettings(ctx context.Context, userID int64) (*model.MonitorSettings, error) {
	query := `SELECT id, user_id, status, alert_time_ranges, timezone, global_stop_alert_to,
		deleted_at, created_at, updated_at
		FROM monitor_settings WHERE user_id = ? AND deleted_at IS NULL`
	var settings model.MonitorSettings
	err := r.db.GetContext(ctx, &settings, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get monitor settings for user %d: %w", userID, err)
	}
	return &settings, nil
}

// GetUserEmail returns the user's email address, or nil if unset.
func (r *SettingsRepository) GetUserEmail(ctx context.Context, userID int64) (*string, error) {
	var email sql.NullString
	query := `SELECT email FROM users WHERE id = ? AND deleted_at IS NULL`
	err := r.db.GetContext(ctx, &email, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get email for user %d: %w", userID, err)
	}
	if !email.Valid {
		return nil, nil
	}
	return &email.String, nil
}

// GetPushToken returns the user's registered push token, or nil if unset.
func (r *SettingsRepository) GetPushToken(ctx context.Context, userID int64) (*string, error) {
	var token sql.NullString
	query := `SELECT push_token FROM users WHERE id = ? AND deleted_at IS NULL`
	err := r.db.GetContext(ctx, &token, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get push token for user %d: %w", userID, err)
	}
	if !token.Valid {
		return nil, nil
	}
	return &token.String, nil
}

// UpsertMonitorSettings creates or replaces the settings row for userID.
// Not named in spec.md §4.7 directly but required to exercise the table
// from tests and the (future) admin surface.
func (r *SettingsRepository) UpsertMonitorSettings(ctx context.Context, s *model.MonitorSettings) error {
	query := `INSERT INTO monitor_settings (user_id, status, alert_time_ranges, timezone, global_stop_alert_to)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			status = excluded.status,
			alert_time_ranges = excluded.alert_time_ranges,
			timezone = excluded.timezone,
			global_stop_alert_to = excluded.global_stop_alert_to`
	_, err := r.db.ExecContext(ctx, query, s.UserID, s.Status, s.AlertTimeRanges, s.Timezone, s.GlobalStopAlertTo)
	if err != nil {
		return fmt.Errorf("failed to upsert monitor settings for user %d: %w", s.UserID, err)
	}
	return nil
}
