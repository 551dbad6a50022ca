// /internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type StorageDriver string

const (
	DriverJSON   StorageDriver = "json"
	DriverSQLite StorageDriver = "sqlite"
	DriverRedis  StorageDriver = "redis"
)

type Config struct {
	DiscordToken string `env:"DISCORD_TOKEN,required,notEmpty"`
	DeveloperID  string `env:"DEVELOPER_ID"`

	StorageDriver StorageDriver `env:"STORAGE_DRIVER" envDefault:"json"`
	StoragePath   string        `env:"STORAGE_PATH" envDefault:"datastore.json"`
	SQLitePath    string        `env:"SQLITE_PATH" envDefault:"timers.db"`
	RedisAddr     string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile  string `env:"LOG_FILE"`

	MetricsAddr string `env:"METRICS_ADDR"`
	PolicyFile  string `env:"POLICY_FILE"`

	InitSlashCommands bool   `env:"INIT_SLASH_COMMANDS" envDefault:"true"`
	CommandCacheDir   string `env:"COMMAND_CACHE_DIR" envDefault:"data/commands"`
	RecoveryWorkers   int    `env:"RECOVERY_WORKERS" envDefault:"4"`
}

// Load reads .env files if present, then the process environment.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return Parse()
}

// Parse reads the configuration from the process environment only.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.StorageDriver {
	case DriverJSON, DriverSQLite, DriverRedis:
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}
	if c.RecoveryWorkers < 1 {
		return fmt.Errorf("RECOVERY_WORKERS must be at least 1")
	}
	return nil
}
