package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dungla2011/monitor-2025-sub000/internal/model"
)

// AlertConfigRepository implements the alert-config half of the
// Persistence Adapter (§4.7): looking up a monitor item's notification
// channels through the monitor_and_configs link table.
type AlertConfigRepository struct {
	db *DB
}

// NewAlertConfigRepository creates a new alert config repository.
func NewAlertConfigRepository(db *DB) *AlertConfigRepository {
	return &AlertConfigRepository{db: db}
}

const alertConfigColumns = `c.id, c.name, c.user_id, c.status, c.alert_type, c.alert_config,
	c.deleted_at, c.created_at, c.updated_at`

// GetAlertConfigForItem returns the single active config of the given
// channel type linked to item, or (nil, nil) if none is linked. The
// generic "chat" channel is matched against the "telegram" alert_type.
func (r *AlertConfigRepository) GetAlertConfigForItem(ctx context.Context, itemID int64, channel string) (*model.AlertConfig, error) {
	alertType := channel
	if channel == "chat" {
		alertType = model.AlertTypeTelegram
	}
	query := `SELECT ` + alertConfigColumns + `
		FROM monitor_configs c
		JOIN monitor_and_configs mac ON mac.config_id = c.id
		WHERE mac.monitor_item_id = ? AND mac.deleted_at IS NULL
		  AND c.deleted_at IS NULL AND c.alert_type = ? AND c.status = 1
		ORDER BY c.id LIMIT 1`
	var cfg model.AlertConfig
	err := r.db.GetContext(ctx, &cfg, query, itemID, alertType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s alert config for item %d: %w", channel, itemID, err)
	}
	return &cfg, nil
}

// GetAllAlertConfigsForItem returns every active channel config linked
// to item, across all channel types.
func (r *AlertConfigRepository) GetAllAlertConfigsForItem(ctx context.Context, itemID int64) ([]*model.AlertConfig, error) {
	query := `SELECT ` + alertConfigColumns + `
		FROM monitor_configs c
		JOIN monitor_and_configs mac ON mac.config_id = c.id
		WHERE mac.monitor_item_id = ? AND mac.deleted_at IS NULL
		  AND c.deleted_at IS NULL AND c.status = 1
		ORDER BY c.id`
	var configs []*model.AlertConfig
	if err := r.db.SelectContext(ctx, &configs, query, itemID); err != nil {
		return nil, fmt.Errorf("failed to list alert configs for item %d: %w", itemID, err)
	}
	return configs, nil
}
