// Package config loads the monitor service's configuration from a YAML
// file with environment-variable overrides, following the teacher's
// pkg/config layering (file -> env override -> validate).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DatabaseConfig describes the persistence target (§6 DB_TYPE table).
type DatabaseConfig struct {
	Type    string `yaml:"type" json:"type"`
	Host    string `yaml:"host" json:"host"`
	Port    int    `yaml:"port" json:"port"`
	User    string `yaml:"user" json:"user"`
	Password string `yaml:"password" json:"password"`
	Name    string `yaml:"name" json:"name"`
	Path    string `yaml:"path" json:"path"` // sqlite file path, or ":memory:"
	WALMode bool   `yaml:"wal_mode" json:"wal_mode"`
}

// HTTPConfig describes the admin API bind address (§6 HTTP_HOST/HTTP_PORT).
type HTTPConfig struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`
}

// RuntimeConfig describes process sizing knobs (§6, §5).
type RuntimeConfig struct {
	MaxConcurrentChecks int    `yaml:"max_concurrent_checks" json:"max_concurrent_checks"`
	ConnectionPoolSize  int    `yaml:"connection_pool_size" json:"connection_pool_size"`
	HTTPTimeout         string `yaml:"http_timeout" json:"http_timeout"`
	AdminDomain         string `yaml:"admin_domain" json:"admin_domain"`
	AdminToken          string `yaml:"admin_token" json:"admin_token"`
}

// ThrottleConfig describes the per-channel and extended-throttle curve
// (§6, §4.4).
type ThrottleConfig struct {
	TelegramThrottleSeconds int `yaml:"telegram_throttle_seconds" json:"telegram_throttle_seconds"`
	WebhookThrottleSeconds  int `yaml:"webhook_throttle_seconds" json:"webhook_throttle_seconds"`
	FirebaseThrottleSeconds int `yaml:"firebase_throttle_seconds" json:"firebase_throttle_seconds"`
	EmailThrottleSeconds    int `yaml:"email_throttle_seconds" json:"email_throttle_seconds"`

	ConsecutiveErrorThreshold           int `yaml:"consecutive_error_threshold" json:"consecutive_error_threshold"`
	ExtendedAlertIntervalMinutes        int `yaml:"extended_alert_interval_minutes" json:"extended_alert_interval_minutes"`
	CountSendAlertBeforeExtendedInterval int `yaml:"count_send_alert_before_extended_interval" json:"count_send_alert_before_extended_interval"`
}

// WebhookConfig describes the webhook transport (§6).
type WebhookConfig struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	TimeoutSec int    `yaml:"timeout" json:"timeout"`
	MaxRetries int    `yaml:"max_retries" json:"max_retries"`
}

// FirebaseConfig describes the push transport (§6).
type FirebaseConfig struct {
	ServiceAccountPath string `yaml:"service_account_path" json:"service_account_path"`
}

// SMTPAccount is one entry in the email account pool (§4.5 "chosen at
// random from a configured account pool").
type SMTPAccount struct {
	Email    string `yaml:"email" json:"email"`
	Password string `yaml:"password" json:"-"`
}

// SMTPConfig describes the email transport (§6).
type SMTPConfig struct {
	Enabled  bool          `yaml:"enabled" json:"enabled"`
	Host     string        `yaml:"host" json:"host"`
	Port     int           `yaml:"port" json:"port"`
	UseTLS   bool          `yaml:"use_tls" json:"use_tls"`
	FromName string        `yaml:"from_name" json:"from_name"`
	Accounts []SMTPAccount `yaml:"accounts" json:"-"`
}

// Config is the complete monitor-service configuration.
type Config struct {
	Database  DatabaseConfig  `yaml:"database" json:"database"`
	HTTP      HTTPConfig      `yaml:"http" json:"http"`
	Runtime   RuntimeConfig   `yaml:"runtime" json:"runtime"`
	Throttle  ThrottleConfig  `yaml:"throttle" json:"throttle"`
	Webhook   WebhookConfig   `yaml:"webhook" json:"webhook"`
	Firebase  FirebaseConfig  `yaml:"firebase" json:"firebase"`
	SMTP      SMTPConfig      `yaml:"smtp" json:"smtp"`
	SecretKey string          `yaml:"secret_key" json:"-"`
}

// Defaults returns a Config populated with the spec's documented defaults
// (§4.1, §4.4, §4.5, §5, §6), used before the YAML file and environment
// overrides are applied.
func Defaults() *Config {
	return &Config{
		Database: DatabaseConfig{
			Type: "sqlite",
			Path: "./data/monitor.db",
			WALMode: true,
		},
		HTTP: HTTPConfig{
			Host: "0.0.0.0",
			Port: 8099,
		},
		Runtime: RuntimeConfig{
			MaxConcurrentChecks: 500,
			ConnectionPoolSize:  50,
			HTTPTimeout:         "30s",
		},
		Throttle: ThrottleConfig{
			TelegramThrottleSeconds:              30,
			WebhookThrottleSeconds:               30,
			FirebaseThrottleSeconds:              30,
			EmailThrottleSeconds:                 300,
			ConsecutiveErrorThreshold:            5,
			ExtendedAlertIntervalMinutes:         5,
			CountSendAlertBeforeExtendedInterval: 5,
		},
		Webhook: WebhookConfig{
			Enabled:    true,
			TimeoutSec: 10,
			MaxRetries: 3,
		},
		SMTP: SMTPConfig{
			Port: 587,
			UseTLS: true,
			FromName: "Monitor Service",
		},
	}
}

// Load reads configPath (if it exists) over the documented defaults, then
// applies environment-variable overrides, then validates the result.
// An empty configPath skips the file-read step (defaults + env only).
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			data, err := os.ReadFile(configPath)
			if err != nil {
				return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
			}
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
			}
		}
	}

	overrideWithEnv(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func overrideWithEnv(cfg *Config) {
	if v := os.Getenv("HTTP_HOST"); v != "" {
		cfg.HTTP.Host = v
	}
	if v := os.Getenv("HTTP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.HTTP.Port = p
		}
	}
	if v := os.Getenv("DB_TYPE"); v != "" {
		cfg.Database.Type = v
	}
	if v := os.Getenv("DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = p
		}
	}
	if v := os.Getenv("DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("ADMIN_DOMAIN"); v != "" {
		cfg.Runtime.AdminDomain = v
	}
	if v := os.Getenv("ADMIN_TOKEN"); v != "" {
		cfg.Runtime.AdminToken = v
	}
	if v := os.Getenv("MAX_CONCURRENT_CHECKS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Runtime.MaxConcurrentChecks = n
		}
	}
	if v := os.Getenv("CONNECTION_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Runtime.ConnectionPoolSize = n
		}
	}
	if v := os.Getenv("HTTP_TIMEOUT"); v != "" {
		cfg.Runtime.HTTPTimeout = v
	}

	if v := os.Getenv("TELEGRAM_THROTTLE_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Throttle.TelegramThrottleSeconds = n
		}
	}
	if v := os.Getenv("WEBHOOK_THROTTLE_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Throttle.WebhookThrottleSeconds = n
		}
	}
	if v := os.Getenv("WEBHOOK_ENABLED"); v != "" {
		cfg.Webhook.Enabled = strings.EqualFold(v, "true")
	}
	if v := os.Getenv("WEBHOOK_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Webhook.TimeoutSec = n
		}
	}
	if v := os.Getenv("WEBHOOK_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Webhook.MaxRetries = n
		}
	}
	if v := os.Getenv("FIREBASE_THROTTLE_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Throttle.FirebaseThrottleSeconds = n
		}
	}
	if v := os.Getenv("FIREBASE_SERVICE_ACCOUNT_PATH"); v != "" {
		cfg.Firebase.ServiceAccountPath = v
	}
	if v := os.Getenv("EMAIL_THROTTLE_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Throttle.EmailThrottleSeconds = n
		}
	}
	if v := os.Getenv("SMTP_ENABLED"); v != "" {
		cfg.SMTP.Enabled = strings.EqualFold(v, "true")
	}
	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.SMTP.Host = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SMTP.Port = n
		}
	}
	if v := os.Getenv("SMTP_USE_TLS"); v != "" {
		cfg.SMTP.UseTLS = strings.EqualFold(v, "true")
	}
	if v := os.Getenv("SMTP_FROM_NAME"); v != "" {
		cfg.SMTP.FromName = v
	}
	loadSMTPAccountPool(cfg)

	if v := os.Getenv("CONSECUTIVE_ERROR_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Throttle.ConsecutiveErrorThreshold = n
		}
	}
	if v := os.Getenv("EXTENDED_ALERT_INTERVAL_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Throttle.ExtendedAlertIntervalMinutes = n
		}
	}
	if v := os.Getenv("COUNT_SEND_ALERT_BEFORE_EXTENDED_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Throttle.CountSendAlertBeforeExtendedInterval = n
		}
	}
	if v := os.Getenv("MONITOR_SECRET_KEY"); v != "" {
		cfg.SecretKey = v
	}
}

// loadSMTPAccountPool reads SMTP_ACCOUNT_<i>_EMAIL / _PASSWORD pairs for
// i = 1, 2, 3... stopping at the first gap (§6).
func loadSMTPAccountPool(cfg *Config) {
	var accounts []SMTPAccount
	for i := 1; ; i++ {
		email := os.Getenv(fmt.Sprintf("SMTP_ACCOUNT_%d_EMAIL", i))
		if email == "" {
			break
		}
		password := os.Getenv(fmt.Sprintf("SMTP_ACCOUNT_%d_PASSWORD", i))
		accounts = append(accounts, SMTPAccount{Email: email, Password: password})
	}
	if len(accounts) > 0 {
		cfg.SMTP.Accounts = accounts
	}
}

func validate(cfg *Config) error {
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return fmt.Errorf("invalid http.port: %d", cfg.HTTP.Port)
	}
	if cfg.Database.Type == "" {
		return fmt.Errorf("database.type cannot be empty")
	}
	if cfg.Database.Type == "sqlite" && cfg.Database.Path == "" {
		return fmt.Errorf("database.path cannot be empty for sqlite")
	}
	if cfg.Runtime.MaxConcurrentChecks <= 0 {
		return fmt.Errorf("runtime.max_concurrent_checks must be positive")
	}
	if cfg.Runtime.ConnectionPoolSize <= 0 {
		return fmt.Errorf("runtime.connection_pool_size must be positive")
	}
	if cfg.Throttle.ConsecutiveErrorThreshold <= 0 {
		return fmt.Errorf("throttle.consecutive_error_threshold must be positive")
	}
	if cfg.Throttle.ExtendedAlertIntervalMinutes <= 0 {
		return fmt.Errorf("throttle.extended_alert_interval_minutes must be positive")
	}
	return nil
}
