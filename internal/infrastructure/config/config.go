// Package config provides centralized configuration management.
//
// Configuration can be loaded from:
//  1. YAML file (config.yaml)
//  2. Environment variables (fallback)
//
// Example usage:
//
//	cfg := config.LoadOrEnv()
//	dbPath := cfg.Storage.DatabasePath
//	token := cfg.Mercury.APIToken
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the entire application configuration
type Config struct {
	Mercury       MercuryConfig       `yaml:"mercury"`
	Odoo          OdooConfig          `yaml:"odoo"`
	Sync          SyncConfig          `yaml:"sync"`
	Storage       StorageConfig       `yaml:"storage"`
	Slack         SlackConfig         `yaml:"slack"`
	Server        ServerConfig        `yaml:"server"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// StorageConfig holds database configuration
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// MercuryConfig holds bank feed API configuration
type MercuryConfig struct {
	APIToken       string `yaml:"api_token"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// OdooConfig holds accounting backend (XML-RPC) configuration
type OdooConfig struct {
	URL      string `yaml:"url"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	APIKey   string `yaml:"api_key"`
}

// Enabled reports whether enough is configured to talk to the backend.
func (o OdooConfig) Enabled() bool {
	return o.URL != "" && o.APIKey != ""
}

// SyncConfig holds scheduler and reconciliation settings
type SyncConfig struct {
	IntervalMinutes     int     `yaml:"interval_minutes"`
	InitialDelaySeconds int     `yaml:"initial_delay_seconds"`
	AutoReconcile       *bool   `yaml:"auto_reconcile"`
	MinConfidence       float64 `yaml:"min_confidence"`
	DateToleranceDays   int     `yaml:"date_tolerance_days"`
	InvoicePrefix       string  `yaml:"invoice_prefix"`
	PageSize            int     `yaml:"page_size"`
	ReconcileDays       int     `yaml:"reconcile_days"`
}

// AutoReconcileEnabled returns the auto-reconcile flag, defaulting to true.
func (s SyncConfig) AutoReconcileEnabled() bool {
	if s.AutoReconcile == nil {
		return true
	}
	return *s.AutoReconcile
}

// SlackConfig holds notification settings
type SlackConfig struct {
	WebhookURL string `yaml:"webhook_url"`
}

// ServerConfig holds HTTP API settings
type ServerConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "maven" (default), "json" or "text"
}

// Defaults
const (
	DefaultDatabasePath      = "/tmp/mercury_sync.db"
	DefaultMercuryBaseURL    = "https://api.mercury.com/api/v1"
	DefaultOdooURL           = "http://localhost:8069"
	DefaultOdooDatabase      = "aiqso_db"
	DefaultOdooUsername      = "admin"
	DefaultIntervalMinutes   = 15
	DefaultMinConfidence     = 0.7
	DefaultDateToleranceDays = 60
	DefaultInvoicePrefix     = "AIQSO"
	DefaultPageSize          = 500
	DefaultReconcileDays     = 1
	DefaultPort              = 8080
)

// Load reads and parses the config file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${MERCURY_API_TOKEN})
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// LoadFromEnv loads configuration from environment variables only
func LoadFromEnv() *Config {
	autoReconcile := getEnvBool("MERCURY_AUTO_RECONCILE", true)

	cfg := &Config{
		Storage: StorageConfig{
			DatabasePath: getEnv("MERCURY_SYNC_DB", DefaultDatabasePath),
		},
		Mercury: MercuryConfig{
			APIToken: os.Getenv("MERCURY_API_TOKEN"),
			BaseURL:  getEnv("MERCURY_API_URL", DefaultMercuryBaseURL),
		},
		Odoo: OdooConfig{
			URL:      getEnv("ODOO_URL", DefaultOdooURL),
			Database: getEnv("ODOO_DB", DefaultOdooDatabase),
			Username: getEnv("ODOO_USERNAME", DefaultOdooUsername),
			APIKey:   os.Getenv("ODOO_API_KEY"),
		},
		Sync: SyncConfig{
			IntervalMinutes:   getEnvInt("MERCURY_SYNC_INTERVAL", DefaultIntervalMinutes),
			AutoReconcile:     &autoReconcile,
			MinConfidence:     getEnvFloat("MERCURY_MIN_CONFIDENCE", DefaultMinConfidence),
			DateToleranceDays: getEnvInt("MERCURY_DATE_TOLERANCE_DAYS", DefaultDateToleranceDays),
			InvoicePrefix:     getEnv("MERCURY_INVOICE_PREFIX", DefaultInvoicePrefix),
		},
		Slack: SlackConfig{
			WebhookURL: os.Getenv("SLACK_WEBHOOK_URL"),
		},
		Server: ServerConfig{
			Port: getEnvInt("PORT", DefaultPort),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "maven"),
			},
		},
	}

	cfg.applyDefaults()
	return cfg
}

// LoadOrEnv tries to load from config.yaml, falls back to environment variables
func LoadOrEnv() *Config {
	return LoadOrEnvWithPath("config.yaml")
}

// LoadOrEnvWithPath tries to load from specified path, falls back to environment variables
func LoadOrEnvWithPath(path string) *Config {
	if cfg, err := Load(path); err == nil {
		return cfg
	}
	return LoadFromEnv()
}

// applyDefaults fills zero values left by a partial YAML file.
func (c *Config) applyDefaults() {
	if c.Storage.DatabasePath == "" {
		c.Storage.DatabasePath = DefaultDatabasePath
	}
	if c.Mercury.BaseURL == "" {
		c.Mercury.BaseURL = DefaultMercuryBaseURL
	}
	if c.Mercury.TimeoutSeconds <= 0 {
		c.Mercury.TimeoutSeconds = 30
	}
	if c.Odoo.URL == "" {
		c.Odoo.URL = DefaultOdooURL
	}
	if c.Odoo.Database == "" {
		c.Odoo.Database = DefaultOdooDatabase
	}
	if c.Odoo.Username == "" {
		c.Odoo.Username = DefaultOdooUsername
	}
	if c.Sync.IntervalMinutes <= 0 {
		c.Sync.IntervalMinutes = DefaultIntervalMinutes
	}
	if c.Sync.InitialDelaySeconds <= 0 {
		c.Sync.InitialDelaySeconds = 5
	}
	if c.Sync.MinConfidence <= 0 || c.Sync.MinConfidence > 1 {
		c.Sync.MinConfidence = DefaultMinConfidence
	}
	if c.Sync.DateToleranceDays <= 0 {
		c.Sync.DateToleranceDays = DefaultDateToleranceDays
	}
	if c.Sync.InvoicePrefix == "" {
		c.Sync.InvoicePrefix = DefaultInvoicePrefix
	}
	if c.Sync.PageSize <= 0 || c.Sync.PageSize > DefaultPageSize {
		c.Sync.PageSize = DefaultPageSize
	}
	if c.Sync.ReconcileDays <= 0 {
		c.Sync.ReconcileDays = DefaultReconcileDays
	}
	if c.Server.Port <= 0 {
		c.Server.Port = DefaultPort
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	if c.Observability.Logging.Level == "" {
		c.Observability.Logging.Level = "info"
	}
}

// getEnv retrieves an environment variable with a fallback default
func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// getEnvInt retrieves an integer environment variable with a fallback default
func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		var result int
		if _, err := fmt.Sscanf(val, "%d", &result); err == nil {
			return result
		}
	}
	return fallback
}

// getEnvFloat retrieves a float environment variable with a fallback default
func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if result, err := strconv.ParseFloat(val, 64); err == nil {
			return result
		}
	}
	return fallback
}

// getEnvBool accepts true/false/1/0/yes/no, case-insensitive.
func getEnvBool(key string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return fallback
	}
}
