package config

import (
	"errors"
	"fmt"
	"os"

	"roomdesk/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Scheduling SchedulingConfig `yaml:"scheduling"`
	Audit      AuditConfig      `yaml:"audit"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type APIConfig struct {
	Port      int                `yaml:"port"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`

	// Per-user limits enforced through the repository layer.
	UserRequests int `yaml:"user_requests"`
	UserWindow   int `yaml:"user_window"` // seconds
}

type SchedulingConfig struct {
	// MaxAdvanceDays caps how far in the future a reservation may start.
	MaxAdvanceDays int `yaml:"max_advance_days"`

	// ScheduleCacheTTL (seconds) bounds staleness of cached day schedules.
	ScheduleCacheTTL int `yaml:"schedule_cache_ttl"`

	// CatalogPath points at the rooms/event-types YAML file.
	CatalogPath string `yaml:"catalog_path"`
}

type AuditConfig struct {
	Enabled      bool   `yaml:"enabled"`
	JournalPath  string `yaml:"journal_path"`
	PollInterval string `yaml:"poll_interval"`
	BatchSize    int    `yaml:"batch_size"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional outside of local development
	_ = godotenv.Load(".env")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Expand ${VAR} references before parsing
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.Scheduling.CatalogPath == "" {
		return errors.New("scheduling catalog path is required")
	}
	if c.Scheduling.MaxAdvanceDays < 0 {
		return errors.New("scheduling max_advance_days must not be negative")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Scheduling.MaxAdvanceDays == 0 {
		c.Scheduling.MaxAdvanceDays = models.DefaultMaxAdvanceDays
	}
	if c.Scheduling.ScheduleCacheTTL == 0 {
		c.Scheduling.ScheduleCacheTTL = models.DefaultScheduleCacheTTL
	}
	if c.API.RateLimit.UserRequests == 0 {
		c.API.RateLimit.UserRequests = models.RateLimitRequests
	}
	if c.API.RateLimit.UserWindow == 0 {
		c.API.RateLimit.UserWindow = models.RateLimitWindow
	}
	if c.Audit.BatchSize == 0 {
		c.Audit.BatchSize = 20
	}
	if c.Audit.PollInterval == "" {
		c.Audit.PollInterval = "10s"
	}
}

// Catalog is the reference data file: rooms and event types.
type Catalog struct {
	Rooms      []models.Room      `yaml:"rooms"`
	EventTypes []models.EventType `yaml:"event_types"`
}

// ValidateCatalog rejects duplicate or zero ids and inverted duration
// bounds before the caches are populated.
func ValidateCatalog(cat Catalog) error {
	roomIDs := make(map[int64]bool)
	for _, room := range cat.Rooms {
		if room.ID == 0 {
			return fmt.Errorf("room %q has invalid ID 0", room.Name)
		}
		if roomIDs[room.ID] {
			return fmt.Errorf("duplicate room ID found: %d", room.ID)
		}
		roomIDs[room.ID] = true
	}

	typeIDs := make(map[int64]bool)
	for _, et := range cat.EventTypes {
		if et.ID == 0 {
			return fmt.Errorf("event type %q has invalid ID 0", et.Name)
		}
		if typeIDs[et.ID] {
			return fmt.Errorf("duplicate event type ID found: %d", et.ID)
		}
		typeIDs[et.ID] = true
		if et.MaxMinutes > 0 && et.MaxMinutes < et.MinMinutes {
			return fmt.Errorf("event type %q has max duration below min", et.Name)
		}
	}
	return nil
}
