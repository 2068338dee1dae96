package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/smith3v/wortschatz/pkg/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Database DatabaseConfig `json:"database"`
	Server   ServerConfig   `json:"server"`
	Redis    RedisConfig    `json:"redis"`
	Logging  LoggingConfig  `json:"logging"`
	Catalog  CatalogConfig  `json:"catalog"`
	Progress ProgressConfig `json:"progress"`
}

type DatabaseConfig struct {
	Driver   string `json:"driver"`
	Host     string `json:"host"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	Port     int    `json:"port"`
	SSLMode  string `json:"sslmode"`
	// Path is the sqlite database file, ignored for postgres.
	Path string `json:"path"`
}

type ServerConfig struct {
	Addr      string `json:"addr"`
	JWTSecret string `json:"jwt_secret"`
}

type RedisConfig struct {
	// URL is optional; without it practice events are not de-duplicated.
	URL             string `json:"url"`
	DedupTTLSeconds int    `json:"dedup_ttl_seconds"`
}

type LoggingConfig struct {
	Level     string `json:"level"`
	File      string `json:"file"`
	GormLevel string `json:"gorm_level"`
	JSON      bool   `json:"json"`
}

type CatalogConfig struct {
	Path string `json:"path"`
}

type ProgressConfig struct {
	Timezone        string `json:"timezone"`
	StrictCounters  bool   `json:"strict_counters"`
	StreakSweepTime string `json:"streak_sweep_time"`
}

var AppConfig Config

func (c RedisConfig) DedupTTL() time.Duration {
	return time.Duration(c.DedupTTLSeconds) * time.Second
}

// Location resolves the time zone that defines a learner's calendar day.
func (c ProgressConfig) Location() (*time.Location, error) {
	if strings.TrimSpace(c.Timezone) == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
}

func LoadConfig(filename string) error {
	// A missing .env is normal outside local development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Error("failed to load .env file", "error", err)
	}

	file, err := os.Open(filename)
	if err != nil {
		logger.Error("failed to open config file", "error", err)
		return err
	}
	defer file.Close()

	cfg := Config{}
	decoder := json.NewDecoder(file)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&cfg); err != nil {
		logger.Error("failed to decode config file", "error", err)
		return err
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		return err
	}

	AppConfig = cfg
	return nil
}

func (c Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.Host == "" || c.Database.DBName == "" {
			errs = append(errs, errors.New("database.host and database.dbname are required for postgres"))
		}
	case DriverSQLite:
		if c.Database.Path == "" {
			errs = append(errs, errors.New("database.path is required for sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported database.driver %q", c.Database.Driver))
	}
	if c.Redis.DedupTTLSeconds < 0 {
		errs = append(errs, errors.New("redis.dedup_ttl_seconds must not be negative"))
	}
	if _, err := c.Progress.Location(); err != nil {
		errs = append(errs, fmt.Errorf("progress.timezone: %w", err))
	}
	if _, err := time.Parse("15:04", c.Progress.StreakSweepTime); err != nil {
		errs = append(errs, fmt.Errorf("progress.streak_sweep_time must be HH:MM: %w", err))
	}
	return errors.Join(errs...)
}

func applyDefaults(cfg *Config) {
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DriverPostgres
	}
	if cfg.Database.Driver == DriverPostgres {
		if cfg.Database.Port == 0 {
			cfg.Database.Port = 5432
		}
		if cfg.Database.SSLMode == "" {
			cfg.Database.SSLMode = "disable"
		}
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Redis.DedupTTLSeconds == 0 {
		cfg.Redis.DedupTTLSeconds = 24 * 60 * 60
	}
	if cfg.Progress.StreakSweepTime == "" {
		cfg.Progress.StreakSweepTime = "00:05"
	}
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.Database.Driver, "WORTSCHATZ_DB_DRIVER")
	overrideString(&cfg.Database.Host, "WORTSCHATZ_DB_HOST")
	overrideString(&cfg.Database.User, "WORTSCHATZ_DB_USER")
	overrideString(&cfg.Database.Password, "WORTSCHATZ_DB_PASSWORD")
	overrideString(&cfg.Database.DBName, "WORTSCHATZ_DB_NAME")
	overrideInt(&cfg.Database.Port, "WORTSCHATZ_DB_PORT")
	overrideString(&cfg.Database.SSLMode, "WORTSCHATZ_DB_SSLMODE")
	overrideString(&cfg.Database.Path, "WORTSCHATZ_DB_PATH")
	overrideString(&cfg.Server.Addr, "WORTSCHATZ_ADDR")
	overrideString(&cfg.Server.JWTSecret, "WORTSCHATZ_JWT_SECRET")
	overrideString(&cfg.Redis.URL, "WORTSCHATZ_REDIS_URL")
	overrideString(&cfg.Logging.Level, "WORTSCHATZ_LOG_LEVEL")
	overrideString(&cfg.Catalog.Path, "WORTSCHATZ_CATALOG_PATH")
	overrideString(&cfg.Progress.Timezone, "WORTSCHATZ_TIMEZONE")
}

func overrideString(target *string, key string) {
	if val, ok := os.LookupEnv(key); ok && strings.TrimSpace(val) != "" {
		*target = strings.TrimSpace(val)
	}
}

func overrideInt(target *int, key string) {
	val, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(val) == "" {
		return
	}
	n, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		logger.Error("ignoring non-numeric environment override", "key", key, "value", val)
		return
	}
	*target = n
}
