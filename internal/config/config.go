// Package config loads device and server settings from defaults, an optional
// YAML file, a .env file and HENSCO_ environment variables, in rising order
// of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. HENSCO_DATABASE_PATH.
const EnvPrefix = "HENSCO"

type Config struct {
	Device   DeviceConfig
	Database DatabaseConfig
	Server   ServerConfig
	Sync     SyncConfig
	Log      LogConfig
	Catalog  CatalogConfig
	Listen   ListenConfig
	Serve    ServeConfig
}

type DeviceConfig struct {
	ID   string
	Name string
}

type DatabaseConfig struct {
	Path string
}

// ServerConfig is the remote server the device syncs with.
type ServerConfig struct {
	URL     string
	Token   string
	Timeout time.Duration
}

type SyncConfig struct {
	CheckInterval     time.Duration
	AutoSync          bool
	RefreshAfterDrain bool
}

type LogConfig struct {
	Level    string
	Encoding string
}

type CatalogConfig struct {
	Path string
}

// ListenConfig is the device's live query API.
type ListenConfig struct {
	Addr string
}

// ServeConfig configures henscopos-server.
type ServeConfig struct {
	Addr           string
	JWTSecret      string
	RedisURL       string
	AllowedOrigins []string
	TaxRate        decimal.Decimal
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("device.id", "device-1")
	v.SetDefault("device.name", "Till 1")
	v.SetDefault("database.path", "henscopos.db")
	v.SetDefault("server.url", "http://localhost:8080")
	v.SetDefault("server.token", "")
	v.SetDefault("server.timeout", "10s")
	v.SetDefault("sync.check_interval", "15s")
	v.SetDefault("sync.auto_sync", true)
	v.SetDefault("sync.refresh_after_drain", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("catalog.path", "")
	v.SetDefault("listen.addr", "127.0.0.1:7070")
	v.SetDefault("serve.addr", ":8080")
	v.SetDefault("serve.jwt_secret", "")
	v.SetDefault("serve.redis_url", "")
	v.SetDefault("serve.allowed_origins", []string{"*"})
	v.SetDefault("serve.tax_rate", "0")
}

// Load reads configuration. path names an optional YAML file; an empty path
// uses defaults and the environment only. A .env file in the working
// directory is loaded first when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	taxRate, err := decimal.NewFromString(v.GetString("serve.tax_rate"))
	if err != nil {
		return nil, fmt.Errorf("serve.tax_rate: %w", err)
	}

	return &Config{
		Device: DeviceConfig{
			ID:   v.GetString("device.id"),
			Name: v.GetString("device.name"),
		},
		Database: DatabaseConfig{Path: v.GetString("database.path")},
		Server: ServerConfig{
			URL:     v.GetString("server.url"),
			Token:   v.GetString("server.token"),
			Timeout: v.GetDuration("server.timeout"),
		},
		Sync: SyncConfig{
			CheckInterval:     v.GetDuration("sync.check_interval"),
			AutoSync:          v.GetBool("sync.auto_sync"),
			RefreshAfterDrain: v.GetBool("sync.refresh_after_drain"),
		},
		Log: LogConfig{
			Level:    v.GetString("log.level"),
			Encoding: v.GetString("log.encoding"),
		},
		Catalog: CatalogConfig{Path: v.GetString("catalog.path")},
		Listen:  ListenConfig{Addr: v.GetString("listen.addr")},
		Serve: ServeConfig{
			Addr:           v.GetString("serve.addr"),
			JWTSecret:      v.GetString("serve.jwt_secret"),
			RedisURL:       v.GetString("serve.redis_url"),
			AllowedOrigins: v.GetStringSlice("serve.allowed_origins"),
			TaxRate:        taxRate,
		},
	}, nil
}

// Validate reports settings the device cannot run without.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Device.ID) == "" {
		errs = append(errs, errors.New("device.id is required"))
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if c.Sync.CheckInterval <= 0 {
		errs = append(errs, errors.New("sync.check_interval must be positive"))
	}
	if c.Serve.TaxRate.IsNegative() {
		errs = append(errs, errors.New("serve.tax_rate must not be negative"))
	}
	return errors.Join(errs...)
}
