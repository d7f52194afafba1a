package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"bookingsync/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Remote     RemoteConfig     `yaml:"remote"`
	Sync       SyncConfig       `yaml:"sync"`
	Wizard     WizardConfig     `yaml:"wizard"`
	OTP        OTPConfig        `yaml:"otp"`
	API        APIConfig        `yaml:"api"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	Backup     BackupConfig     `yaml:"backup"`
	Exports    ExportConfig     `yaml:"exports"`
	Telegram   TelegramConfig   `yaml:"telegram"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// RedisConfig is optional; an empty address keeps session state in memory.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type RemoteConfig struct {
	BaseURL      string          `yaml:"base_url"`
	AuthToken    string          `yaml:"auth_token"`
	Language     string          `yaml:"language"`
	Timeout      time.Duration   `yaml:"timeout"`
	RateLimit    RateLimitConfig `yaml:"rate_limit"`
	ZoneCacheTTL time.Duration   `yaml:"zone_cache_ttl"`
}

type SyncConfig struct {
	OnlineSettle    time.Duration   `yaml:"online_settle"`
	StartupSettle   time.Duration   `yaml:"startup_settle"`
	Interval        time.Duration   `yaml:"interval"`
	CleanupInterval time.Duration   `yaml:"cleanup_interval"`
	Retention       time.Duration   `yaml:"retention"`
	MaxAttempts     int             `yaml:"max_attempts"`
	Backoff         []time.Duration `yaml:"backoff"`
	StaleSyncing    time.Duration   `yaml:"stale_syncing"`
}

type WizardConfig struct {
	MaxDaysAhead int           `yaml:"max_days_ahead"`
	SessionTTL   time.Duration `yaml:"session_ttl"`
	ZonesFile    string        `yaml:"zones_file"`
	Timezone     string        `yaml:"timezone"`
}

type OTPConfig struct {
	CodeTTL       time.Duration `yaml:"code_ttl"`
	RequestLimit  int           `yaml:"request_limit"`
	RequestWindow time.Duration `yaml:"request_window"`
}

type APIConfig struct {
	Enabled   bool            `yaml:"enabled"`
	HTTP      APIHTTPConfig   `yaml:"http"`
	Auth      APIAuthConfig   `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
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

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

type TelegramConfig struct {
	Enabled  bool    `yaml:"enabled"`
	BotToken string  `yaml:"bot_token"`
	ChatIDs  []int64 `yaml:"chat_ids"`
	Debug    bool    `yaml:"debug"`
}

// Load reads the YAML file at configPath, expanding ${VAR} references from the
// environment (and an optional .env file in the working directory).
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

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

	if c.Remote.BaseURL == "" {
		return errors.New("remote base url is required")
	}
	u, err := url.Parse(c.Remote.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("remote base url %q is invalid", c.Remote.BaseURL)
	}

	if len(c.Sync.Backoff) == 0 {
		return errors.New("sync backoff table is empty")
	}
	for i, d := range c.Sync.Backoff {
		if d <= 0 {
			return fmt.Errorf("sync backoff[%d] must be positive", i)
		}
	}
	if c.Sync.MaxAttempts < 1 {
		return errors.New("sync max_attempts must be at least 1")
	}

	if c.Telegram.Enabled && (c.Telegram.BotToken == "" || c.Telegram.BotToken == "YOUR_BOT_TOKEN_HERE") {
		return errors.New("telegram bot token is required when telegram is enabled")
	}

	return ValidateAPIKeys(c.API.Auth.APIKeys)
}

// ValidateAPIKeys rejects empty and duplicate keys.
func ValidateAPIKeys(keys []APIClientKey) error {
	seen := make(map[string]bool)
	for _, k := range keys {
		if k.Key == "" {
			return fmt.Errorf("api key '%s' is empty", k.Name)
		}
		if seen[k.Key] {
			return fmt.Errorf("duplicate api key for client '%s'", k.Name)
		}
		seen[k.Key] = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "bookingsync"
	}

	if c.Remote.Timeout == 0 {
		c.Remote.Timeout = 15 * time.Second
	}
	if c.Remote.Language == "" {
		c.Remote.Language = "en"
	}
	if c.Remote.ZoneCacheTTL == 0 {
		c.Remote.ZoneCacheTTL = 10 * time.Minute
	}
	if c.Remote.RateLimit.RPS == 0 {
		c.Remote.RateLimit.RPS = 5
	}
	if c.Remote.RateLimit.Burst == 0 {
		c.Remote.RateLimit.Burst = 5
	}

	if c.Sync.OnlineSettle == 0 {
		c.Sync.OnlineSettle = 2 * time.Second
	}
	if c.Sync.StartupSettle == 0 {
		c.Sync.StartupSettle = 3 * time.Second
	}
	if c.Sync.Interval == 0 {
		c.Sync.Interval = 5 * time.Minute
	}
	if c.Sync.CleanupInterval == 0 {
		c.Sync.CleanupInterval = time.Hour
	}
	if c.Sync.Retention == 0 {
		c.Sync.Retention = models.DefaultRetention
	}
	if c.Sync.MaxAttempts == 0 {
		c.Sync.MaxAttempts = models.DefaultMaxAttempts
	}
	if len(c.Sync.Backoff) == 0 {
		c.Sync.Backoff = append([]time.Duration(nil), models.DefaultBackoff...)
	}
	if c.Sync.StaleSyncing == 0 {
		c.Sync.StaleSyncing = 10 * time.Minute
	}

	if c.Wizard.MaxDaysAhead == 0 {
		c.Wizard.MaxDaysAhead = models.DefaultMaxDaysAhead
	}
	if c.Wizard.SessionTTL == 0 {
		c.Wizard.SessionTTL = models.DefaultSessionTTL
	}
	if c.Wizard.Timezone == "" {
		c.Wizard.Timezone = "Local"
	}

	if c.OTP.CodeTTL == 0 {
		c.OTP.CodeTTL = 5 * time.Minute
	}
	if c.OTP.RequestLimit == 0 {
		c.OTP.RequestLimit = 3
	}
	if c.OTP.RequestWindow == 0 {
		c.OTP.RequestWindow = 10 * time.Minute
	}

	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}
	if c.API.RateLimit.RPS == 0 {
		c.API.RateLimit.RPS = 10
	}
	if c.API.RateLimit.Burst == 0 {
		c.API.RateLimit.Burst = 20
	}

	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}

	if c.Backup.StoragePath == "" {
		c.Backup.StoragePath = "data/backups"
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
}
