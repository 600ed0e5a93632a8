// Package store is the Persistence Adapter (C7): sqlx-backed repositories
// over sqlite for monitor items, alert configs, the monitor/config link
// table, per-user alert settings, and users, grounded on
// infra-core/pkg/database's DB wrapper + InitSchema + per-entity
// repository shape, generalized from infra-core's services/routes/
// certificates entities to the monitor domain (SPEC_FULL §4.7).
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/dungla2011/monitor-2025-sub000/internal/config"
)

// DB wraps a sqlx connection plus the schema/migration responsibilities
// the rest of the store package's repositories share.
type DB struct {
	*sqlx.DB
}

// Open connects to the configured sqlite database and initializes its
// schema. ":memory:" is honored for tests, exactly as infra-core's
// NewDB does for its own in-memory path.
func Open(cfg *config.DatabaseConfig) (*DB, error) {
	if cfg.Path == ":memory:" {
		conn, err := sqlx.Connect("sqlite", ":memory:")
		if err != nil {
			return nil, fmt.Errorf("failed to connect to in-memory database: %w", err)
		}
		db := &DB{DB: conn}
		if err := db.InitSchema(); err != nil {
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
		return db, nil
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	connStr := cfg.Path
	if cfg.WALMode {
		connStr += "?_journal_mode=WAL&_sync=NORMAL&_cache_size=1000&_foreign_keys=ON"
	}

	conn, err := sqlx.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(time.Hour)

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{DB: conn}
	if err := db.InitSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return db, nil
}

// InitSchema creates every table, lookup index, and updated_at trigger
// the monitor service needs (SPEC_FULL §4.7/§6), following the teacher's
// single-embedded-SQL-string convention.
func (db *DB) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email TEXT UNIQUE,
		push_token TEXT,
		deleted_at DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS monitor_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		enable BOOLEAN NOT NULL DEFAULT TRUE,
		url_check TEXT NOT NULL,
		type TEXT NOT NULL,
		check_interval_seconds INTEGER NOT NULL DEFAULT 0,
		result_valid TEXT NOT NULL DEFAULT '',
		result_error TEXT NOT NULL DEFAULT '',
		maxAlertCount INTEGER NOT NULL DEFAULT 0,
		user_id INTEGER NOT NULL,
		count_online INTEGER NOT NULL DEFAULT 0,
		count_offline INTEGER NOT NULL DEFAULT 0,
		last_check_status INTEGER,
		last_check_time DATETIME,
		stopTo DATETIME,
		forceRestart BOOLEAN NOT NULL DEFAULT FALSE,
		allow_alert_for_consecutive_error INTEGER,
		deleted_at DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS monitor_configs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		user_id INTEGER NOT NULL,
		status INTEGER NOT NULL DEFAULT 1,
		alert_type TEXT NOT NULL,
		alert_config TEXT NOT NULL,
		deleted_at DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS monitor_and_configs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		monitor_item_id INTEGER NOT NULL,
		config_id INTEGER NOT NULL,
		deleted_at DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (monitor_item_id) REFERENCES monitor_items(id) ON DELETE CASCADE,
		FOREIGN KEY (config_id) REFERENCES monitor_configs(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS monitor_settings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL UNIQUE,
		status INTEGER NOT NULL DEFAULT 1,
		alert_time_ranges TEXT NOT NULL DEFAULT '',
		timezone TEXT NOT NULL DEFAULT 'UTC',
		global_stop_alert_to DATETIME,
		deleted_at DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_monitor_items_enable ON monitor_items(enable, deleted_at);
	CREATE INDEX IF NOT EXISTS idx_monitor_items_user ON monitor_items(user_id);
	CREATE INDEX IF NOT EXISTS idx_monitor_configs_deleted ON monitor_configs(deleted_at);
	CREATE INDEX IF NOT EXISTS idx_monitor_and_configs_item ON monitor_and_configs(monitor_item_id, deleted_at);
	CREATE INDEX IF NOT EXISTS idx_monitor_settings_user ON monitor_settings(user_id);

	CREATE TRIGGER IF NOT EXISTS trg_users_updated_at
		AFTER UPDATE ON users
		BEGIN
			UPDATE users SET updated_at = CURRENT_TIMESTAMP WHERE id = NEW.id;
		END;

	CREATE TRIGGER IF NOT EXISTS trg_monitor_items_updated_at
		AFTER UPDATE ON monitor_items
		BEGIN
			UPDATE monitor_items SET updated_at = CURRENT_TIMESTAMP WHERE id = NEW.id;
		END;

	CREATE TRIGGER IF NOT EXISTS trg_monitor_configs_updated_at
		AFTER UPDATE ON monitor_configs
		BEGIN
			UPDATE monitor_configs SET updated_at = CURRENT_TIMESTAMP WHERE id = NEW.id;
		END;

	CREATE TRIGGER IF NOT EXISTS trg_monitor_and_configs_updated_at
		AFTER UPDATE ON monitor_and_configs
		BEGIN
			UPDATE monitor_and_configs SET updated_at = CURRENT_TIMESTAMP WHERE id = NEW.id;
		END;

	CREATE TRIGGER IF NOT EXISTS trg_monitor_settings_updated_at
		AFTER UPDATE ON monitor_settings
		BEGIN
			UPDATE monitor_settings SET updated_at = CURRENT_TIMESTAMP WHERE id = NEW.id;
		END;
	`

	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// Close releases the underlying connection.
func (db *DB) Close() error {
	return db.DB.Close()
}
