package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"hittracker/internal/models"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. HITTRACKER_MARKETPLACE_COOKIE.
const EnvPrefix = "HITTRACKER_"

const DefaultMaxRetries = 8

type Config struct {
	App         AppConfig         `yaml:"app"`
	Marketplace MarketplaceConfig `yaml:"marketplace"`
	Sync        SyncConfig        `yaml:"sync"`
	Calendar    CalendarConfig    `yaml:"calendar"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	Backup      BackupConfig      `yaml:"backup"`
	Monitoring  MonitoringConfig  `yaml:"monitoring"`
	Logging     LoggingConfig     `yaml:"logging"`
	API         APIConfig         `yaml:"api"`
	Telegram    TelegramConfig    `yaml:"telegram"`
	Exports     ExportConfig      `yaml:"exports"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment" env:"APP_ENV"`
	Version     string `yaml:"version"`
}

type MarketplaceConfig struct {
	BaseURL        string          `yaml:"base_url" env:"MARKETPLACE_BASE_URL"`
	Cookie         string          `yaml:"cookie" env:"MARKETPLACE_COOKIE"`
	UserAgent      string          `yaml:"user_agent"`
	RequestTimeout time.Duration   `yaml:"request_timeout"`
	Retry          RetryConfig     `yaml:"retry"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
}

// RetryConfig bounds retries of transient marketplace failures.
// A negative MaxRetries retries forever, zero disables retries. An absent
// max_retries key means DefaultMaxRetries.
type RetryConfig struct {
	MaxRetries    int           `yaml:"max_retries" env:"MARKETPLACE_MAX_RETRIES"`
	InitialDelay  time.Duration `yaml:"initial_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	BackoffFactor float64       `yaml:"backoff_factor"`
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type SyncConfig struct {
	Concurrency int    `yaml:"concurrency" env:"SYNC_CONCURRENCY"`
	WindowDays  int    `yaml:"window_days"`
	Schedule    string `yaml:"schedule" env:"SYNC_SCHEDULE"`
}

type CalendarConfig struct {
	StandardOffsetHours int    `yaml:"standard_offset_hours"`
	DaylightOffsetHours int    `yaml:"daylight_offset_hours"`
	DisableDST          bool   `yaml:"disable_dst"`
	HostTimezone        string `yaml:"host_timezone"`
	WeekStart           string `yaml:"week_start"`
}

type DatabaseConfig struct {
	Path string `yaml:"path" env:"DATABASE_PATH"`
}

type RedisConfig struct {
	Address     string        `yaml:"address" env:"REDIS_ADDRESS"`
	Password    string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB          int           `yaml:"db"`
	PoolSize    int           `yaml:"pool_size"`
	ProgressTTL time.Duration `yaml:"progress_ttl"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
}

type LoggingConfig struct {
	Level    string `yaml:"level" env:"LOG_LEVEL"`
	Format   string `yaml:"format" env:"LOG_FORMAT"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	Port      int                `yaml:"port" env:"API_PORT"`
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
	// SyncPerMinute caps sync triggers per client; 0 disables the cap.
	SyncPerMinute int `yaml:"sync_per_minute"`
}

type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token" env:"TELEGRAM_BOT_TOKEN"`
	ChatID   int64  `yaml:"chat_id" env:"TELEGRAM_CHAT_ID"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

func Load(configPath string) (*Config, error) {
	// .env необязателен
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
	expandedData := []byte(os.ExpandEnv(string(data)))

	// max_retries: 0 означает "без повторов", поэтому умолчание ставится до разбора
	config := Config{Marketplace: MarketplaceConfig{Retry: RetryConfig{MaxRetries: DefaultMaxRetries}}}
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	if err := env.ParseWithOptions(&config, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("apply env overrides: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Marketplace.BaseURL == "" {
		return errors.New("marketplace base_url is required")
	}
	u, err := url.Parse(c.Marketplace.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("marketplace base_url %q is not an absolute URL", c.Marketplace.BaseURL)
	}

	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if c.Sync.Concurrency < 1 {
		return fmt.Errorf("sync concurrency must be positive, got %d", c.Sync.Concurrency)
	}

	if _, err := c.Calendar.Weekday(); err != nil {
		return err
	}
	if _, err := c.Calendar.Location(); err != nil {
		return err
	}

	if c.Telegram.Enabled && (c.Telegram.BotToken == "" || c.Telegram.ChatID == 0) {
		return errors.New("telegram alerts require bot_token and chat_id")
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "hittracker"
	}
	c.Marketplace.BaseURL = strings.TrimRight(c.Marketplace.BaseURL, "/")
	if c.Marketplace.RequestTimeout == 0 {
		c.Marketplace.RequestTimeout = 30 * time.Second
	}
	if c.Marketplace.Retry.InitialDelay == 0 {
		c.Marketplace.Retry.InitialDelay = 2 * time.Second
	}
	if c.Marketplace.Retry.MaxDelay == 0 {
		c.Marketplace.Retry.MaxDelay = time.Minute
	}
	if c.Marketplace.Retry.BackoffFactor == 0 {
		c.Marketplace.Retry.BackoffFactor = 2
	}

	if c.Sync.Concurrency == 0 {
		c.Sync.Concurrency = models.DefaultSyncConcurrency
	}
	if c.Sync.WindowDays == 0 {
		c.Sync.WindowDays = models.SyncWindowDays
	}

	if c.Calendar.StandardOffsetHours == 0 {
		c.Calendar.StandardOffsetHours = -8
	}
	if c.Calendar.DaylightOffsetHours == 0 {
		c.Calendar.DaylightOffsetHours = -7
	}
	if c.Calendar.WeekStart == "" {
		c.Calendar.WeekStart = "sunday"
	}

	if c.Redis.ProgressTTL == 0 {
		c.Redis.ProgressTTL = 24 * time.Hour
	}
	if c.Backup.StoragePath == "" {
		c.Backup.StoragePath = "backups"
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}

	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	// auth enabled by default when API is enabled
	if c.API.Enabled && !c.API.Auth.Enabled {
		c.API.Auth.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
}

// Weekday parses the configured week start.
func (c CalendarConfig) Weekday() (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(c.WeekStart, d.String()) {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("unknown calendar week_start %q", c.WeekStart)
}

// Location resolves the zone the DST boundaries are read in. Empty or "Local"
// means the process zone.
func (c CalendarConfig) Location() (*time.Location, error) {
	if c.HostTimezone == "" || strings.EqualFold(c.HostTimezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.HostTimezone)
	if err != nil {
		return nil, fmt.Errorf("calendar host_timezone: %w", err)
	}
	return loc, nil
}
