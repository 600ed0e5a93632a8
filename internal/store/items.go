package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dungla2011/monitor-2025-sub000/internal/model"
)

// ItemRepository implements the MonitorItem half of the Persistence
// Adapter (§4.7), grounded on infra-core/pkg/database's ServiceRepository
// shape generalized to the monitor_items table.
type ItemRepository struct {
	db *DB
}

// NewItemRepository creates a new item repository.
func NewItemRepository(db *DB) *ItemRepository {
	return &ItemRepository{db: db}
}

const itemColumns = `id, name, enable, url_check, type, check_interval_seconds,
	result_valid, result_error, maxAlertCount, user_id, count_online, count_offline,
	last_check_status, last_check_time, stopTo, forceRestart,
	allow_alert_for_consecutive_error, deleted_at, created_at, updated_at`

// ListEnabledItems returns every non-deleted, enabled monitor item.
func (r *ItemRepository) ListEnabledItems(ctx context.Context) ([]*model.MonitorItem, error) {
	query := `SELECT ` + itemColumns + ` FROM monitor_items
		WHERE deleted_at IS NULL AND enable = TRUE ORDER BY id`
	var items []*model.MonitorItem
	if err := r.db.SelectContext(ctx, &items, query); err != nil {
		return nil, fmt.Errorf("failed to list enabled items: %w", err)
	}
	return items, nil
}

// ListAllItems returns every non-deleted item, optionally capped at limit
// (limit<=0 means unbounded).
func (r *ItemRepository) ListAllItems(ctx context.Context, limit int) ([]*model.MonitorItem, error) {
	query := `SELECT ` + itemColumns + ` FROM monitor_items WHERE deleted_at IS NULL ORDER BY id`
	var items []*model.MonitorItem
	var err error
	if limit > 0 {
		query += ` LIMIT ?`
		err = r.db.SelectContext(ctx, &items, query, limit)
	} else {
		err = r.db.SelectContext(ctx, &items, query)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list all items: %w", err)
	}
	return items, nil
}

// GetItem fetches a single non-deleted item by id. It returns (nil, nil)
// when no such row exists, so callers can distinguish a missing row from
// a transport error.
func (r *ItemRepository) GetItem(ctx context.Context, id int64) (*model.MonitorItem, error) {
	query := `SELECT ` + itemColumns + ` FROM monitor_items WHERE id = ? AND deleted_at IS NULL`
	var item model.MonitorItem
	err := r.db.GetContext(ctx, &item, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item %d: %w", id, err)
	}
	return &item, nil
}

// UpdateProbeResult atomically records a probe outcome: last_check_status,
// last_check_time, result_error/result_valid, and the matching online/
// offline counter increment (§4.7).
func (r *ItemRepository) UpdateProbeResult(ctx context.Context, id int64, status int, errorMsg, validMsg string) error {
	counterColumn := "count_offline"
	if status == 1 {
		counterColumn = "count_online"
	}
	query := fmt.Sprintf(`UPDATE monitor_items SET
			last_check_status = ?,
			last_check_time = ?,
			result_error = ?,
			result_valid = ?,
			%s = %s + 1
		WHERE id = ? AND deleted_at IS NULL`, counterColumn, counterColumn)

	_, err := r.db.ExecContext(ctx, query, status, time.Now().UTC(), errorMsg, validMsg, id)
	if err != nil {
		return fmt.Errorf("failed to update probe result for item %d: %w", id, err)
	}
	return nil
}

// ResetCounters zeroes both online/offline counters for an item.
func (r *ItemRepository) ResetCounters(ctx context.Context, id int64) error {
	query := `UPDATE monitor_items SET count_online = 0, count_offline = 0 WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to reset counters for item %d: %w", id, err)
	}
	return nil
}

// ClearForceRestart flips forceRestart back to false once the scheduler
// has observed and acted on the pulse (§3 "forceRestart" supplement).
func (r *ItemRepository) ClearForceRestart(ctx context.Context, id int64) error {
	query := `UPDATE monitor_items SET forceRestart = FALSE WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to clear forceRestart for item %d: %w", id, err)
	}
	return nil
}
