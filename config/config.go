package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/kosarica/feed-service/internal/generator"
	"github.com/kosarica/feed-service/internal/http/ratelimit"
	"github.com/kosarica/feed-service/internal/scheduler"
	"github.com/kosarica/feed-service/internal/telemetry"
)

// Config holds the application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Generation generator.Config `mapstructure:"generation"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Sweeper    SweeperConfig    `mapstructure:"sweeper"`
	Upload     UploadConfig     `mapstructure:"upload"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Telemetry  telemetry.Config `mapstructure:"telemetry"`
	// Workspace is a YAML file of feeds and catalog used instead of the database
	Workspace string `mapstructure:"workspace"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	Host         string        `mapstructure:"host"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// APIKey guards the /internal routes
	APIKey string `mapstructure:"api_key"`
	// Docs serves the swagger UI at /swagger
	Docs bool `mapstructure:"docs"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	// Driver is postgres or sqlite. With sqlite only generation logs are
	// persisted and feeds come from the workspace file.
	Driver          string        `mapstructure:"driver"`
	URL             string        `mapstructure:"url"`
	SQLitePath      string        `mapstructure:"sqlite_path"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MinConnections  int           `mapstructure:"min_connections"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	// AutoMigrate applies pending migrations on startup
	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// RateLimitConfig limits requests to the internal API
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Type     string `mapstructure:"type"`
	BasePath string `mapstructure:"base_path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Format  string `mapstructure:"format"`
	NoColor bool   `mapstructure:"no_color"`
}

// SchedulerConfig controls scheduled regeneration
type SchedulerConfig struct {
	Enabled          bool `mapstructure:"enabled"`
	scheduler.Config `mapstructure:",squash"`
}

// SweeperConfig controls stuck-run recovery and log retention
type SweeperConfig struct {
	Interval  time.Duration `mapstructure:"interval"`
	Retention time.Duration `mapstructure:"retention"`
}

// UploadConfig controls delivery to feed destinations
type UploadConfig struct {
	Timeout   time.Duration    `mapstructure:"timeout"`
	RateLimit ratelimit.Config `mapstructure:"rate_limit"`
}

// NotifyConfig controls failure alerts. Without a webhook URL alerts are only logged.
type NotifyConfig struct {
	WebhookURL   string `mapstructure:"webhook_url"`
	WebhookToken string `mapstructure:"webhook_token"`
}

const envPrefix = "FEED_SERVICE"

var globalConfig *Config

// Load loads the configuration from file, .env, and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	if err := loadEnvFile(); err != nil {
		log.Debug().Err(err).Msg(".env file not loaded")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvVars(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	globalConfig = &cfg
	return &cfg, nil
}

// Validate checks settings that have no safe fallback
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Storage.Type != "local" {
		return fmt.Errorf("unsupported storage type %q", c.Storage.Type)
	}
	if c.Database.Driver == "sqlite" && c.Workspace == "" {
		return fmt.Errorf("database driver sqlite requires a workspace file")
	}
	return nil
}

// loadEnvFile loads the first .env found; existing variables win
func loadEnvFile() error {
	for _, dir := range []string{".", "./config"} {
		path := filepath.Join(dir, ".env")
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
		return nil
	}
	return fmt.Errorf("no .env file found")
}

// bindEnvVars binds conventional unprefixed variables
func bindEnvVars(v *viper.Viper) {
	_ = v.BindEnv("database.url", envPrefix+"_DATABASE_URL", "DATABASE_URL")
	_ = v.BindEnv("server.port", envPrefix+"_SERVER_PORT", "PORT")
	_ = v.BindEnv("server.host", envPrefix+"_SERVER_HOST", "HOST")
	_ = v.BindEnv("server.api_key", envPrefix+"_SERVER_API_KEY", "INTERNAL_API_KEY")
	_ = v.BindEnv("logging.level", envPrefix+"_LOGGING_LEVEL", "LOG_LEVEL")
	_ = v.BindEnv("storage.base_path", envPrefix+"_STORAGE_BASE_PATH", "STORAGE_PATH")
	_ = v.BindEnv("notify.webhook_url", envPrefix+"_NOTIFY_WEBHOOK_URL", "NOTIFY_WEBHOOK_URL")
	_ = v.BindEnv("workspace", envPrefix+"_WORKSPACE", "FEED_WORKSPACE")
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.api_key", "")
	v.SetDefault("server.docs", true)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.url", "")
	v.SetDefault("database.sqlite_path", "./data/feeds.db")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_connections", 5)
	v.SetDefault("database.max_conn_lifetime", 1*time.Hour)
	v.SetDefault("database.max_conn_idle_time", 30*time.Minute)
	v.SetDefault("database.auto_migrate", false)

	v.SetDefault("rate_limit.requests_per_second", 50)
	v.SetDefault("rate_limit.burst", 100)

	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.base_path", "./data/feeds")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.no_color", false)

	gen := generator.DefaultConfig()
	v.SetDefault("generation.batch_size", gen.BatchSize)
	v.SetDefault("generation.checkpoint_every", gen.CheckpointEvery)
	v.SetDefault("generation.gc_every_pages", gen.GCEveryPages)
	v.SetDefault("generation.max_error_rate_percent", gen.MaxErrorRatePercent)
	v.SetDefault("generation.min_processed", gen.MinProcessed)
	v.SetDefault("generation.stuck_timeout", gen.StuckTimeout)
	v.SetDefault("generation.preview_limit", gen.PreviewLimit)
	v.SetDefault("generation.validation_full_check_limit", gen.ValidationFullCheckLimit)

	sched := scheduler.DefaultConfig()
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.interval", sched.Interval)
	v.SetDefault("scheduler.concurrency", sched.Concurrency)

	v.SetDefault("sweeper.interval", 5*time.Minute)
	v.SetDefault("sweeper.retention", 30*24*time.Hour)

	rl := ratelimit.DefaultConfig()
	v.SetDefault("upload.timeout", 5*time.Minute)
	v.SetDefault("upload.rate_limit.requests_per_second", rl.RequestsPerSecond)
	v.SetDefault("upload.rate_limit.max_retries", rl.MaxRetries)
	v.SetDefault("upload.rate_limit.initial_backoff_ms", rl.InitialBackoffMs)
	v.SetDefault("upload.rate_limit.max_backoff_ms", rl.MaxBackoffMs)

	v.SetDefault("notify.webhook_url", "")
	v.SetDefault("notify.webhook_token", "")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.service_name", telemetry.DefaultServiceName)
	v.SetDefault("telemetry.export_interval", time.Minute)

	v.SetDefault("workspace", "")
}

// Get returns the global configuration
func Get() *Config {
	return globalConfig
}
