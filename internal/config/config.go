package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Session  SessionConfig  `yaml:"session"`
	Security SecurityConfig `yaml:"security"`
	Storage  StorageConfig  `yaml:"storage"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Mode        string `yaml:"mode"`
	MaxUploadMB int64  `yaml:"max_upload_mb"`
}

type DatabaseConfig struct {
	Driver         string  `yaml:"driver"` // postgres | sqlite
	Host           string  `yaml:"host"`
	Port           int     `yaml:"port"`
	User           string  `yaml:"user"`
	Password       string  `yaml:"password"`
	DBName         string  `yaml:"dbname"`
	SSLMode        string  `yaml:"sslmode"`
	Path           string  `yaml:"path"`
	MaxRetries     int     `yaml:"max_retries"`
	RetryDelaySecs float64 `yaml:"retry_delay_seconds"`
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type SessionConfig struct {
	Store                string `yaml:"store"` // database | redis
	TTLSeconds           int    `yaml:"ttl_seconds"`
	SweepIntervalMinutes int    `yaml:"sweep_interval_minutes"`
}

type SecurityConfig struct {
	SecretKey           string `yaml:"secret_key"`
	FileTokenTTLSeconds int    `yaml:"file_token_ttl_seconds"`
	FileTokenSalt       string `yaml:"file_token_salt"`
}

type StorageConfig struct {
	UploadDir         string   `yaml:"upload_dir"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
}

type LogConfig struct {
	Dir    string `yaml:"dir"`
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text | json
}

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	SessionStoreDatabase = "database"
	SessionStoreRedis    = "redis"
)

// Load loads configuration from file and environment variables.
// A missing file is not an error: defaults and environment are used instead.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, err
		}
	}

	// Override with environment variables if present
	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in settings. Values from the YAML file and the
// environment are layered on top, so an explicit zero always wins.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        5000,
			Mode:        "debug",
			MaxUploadMB: 32,
		},
		Database: DatabaseConfig{
			Driver:         DriverSQLite,
			Port:           5432,
			SSLMode:        "disable",
			Path:           "./data/inventory.db",
			MaxRetries:     10,
			RetryDelaySecs: 2,
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: 6379,
		},
		Session: SessionConfig{
			Store:                SessionStoreDatabase,
			TTLSeconds:           60 * 60 * 24,
			SweepIntervalMinutes: 10,
		},
		Security: SecurityConfig{
			FileTokenTTLSeconds: 60 * 60,
			FileTokenSalt:       "file-download",
		},
		Storage: StorageConfig{
			UploadDir:         "./uploads",
			AllowedExtensions: []string{"png", "jpg", "jpeg", "gif", "pdf", "webp"},
		},
		Log: LogConfig{
			Dir:    "./logs",
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks the settings that cannot be defaulted safely.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Security.SecretKey == "" {
		return errors.New("security.secret_key must be set")
	}
	if c.Security.FileTokenSalt == "" {
		return errors.New("security.file_token_salt must be set")
	}
	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}
	switch c.Session.Store {
	case SessionStoreDatabase, SessionStoreRedis:
	default:
		return fmt.Errorf("unsupported session store: %s", c.Session.Store)
	}
	if c.Session.TTLSeconds <= 0 {
		return fmt.Errorf("invalid session ttl: %d", c.Session.TTLSeconds)
	}
	if c.Security.FileTokenTTLSeconds < 0 {
		return fmt.Errorf("invalid file token ttl: %d", c.Security.FileTokenTTLSeconds)
	}
	return nil
}

func (c *Config) loadFromEnv() {
	// Server
	if v := os.Getenv("SERVER_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("SERVER_MODE"); v != "" {
		c.Server.Mode = v
	}

	// Database
	if v := os.Getenv("DB_DRIVER"); v != "" {
		c.Database.Driver = strings.ToLower(v)
	}
	if v := os.Getenv("DB_HOST"); v != "" {
		c.Database.Host = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Database.Port = port
		}
	}
	if v := os.Getenv("DB_USER"); v != "" {
		c.Database.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		c.Database.DBName = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		c.Database.Path = v
	}

	// Redis
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
	}
	if v := os.Getenv("REDIS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Redis.Port = port
		}
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}

	// Sessions
	if v := os.Getenv("SESSION_STORE"); v != "" {
		c.Session.Store = strings.ToLower(v)
	}
	if v := os.Getenv("TOKEN_TTL_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			c.Session.TTLSeconds = secs
		}
	}

	// Security
	if v := os.Getenv("SECRET_KEY"); v != "" {
		c.Security.SecretKey = v
	}
	if v := os.Getenv("FILE_TOKEN_TTL_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			c.Security.FileTokenTTLSeconds = secs
		}
	}

	// Storage and logs
	if v := os.Getenv("UPLOAD_FOLDER"); v != "" {
		c.Storage.UploadDir = v
	}
	if v := os.Getenv("LOG_DIR"); v != "" {
		c.Log.Dir = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return "host=" + c.Host +
		" port=" + strconv.Itoa(c.Port) +
		" user=" + c.User +
		" password=" + c.Password +
		" dbname=" + c.DBName +
		" sslmode=" + c.SSLMode
}

// RetryDelay returns the pause between connection attempts.
func (c *DatabaseConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySecs * float64(time.Second))
}

// Addr returns the redis host:port pair.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// TTL returns the session lifetime.
func (c *SessionConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// SweepInterval returns how often expired sessions are purged. Zero disables the sweep.
func (c *SessionConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMinutes) * time.Minute
}

// FileTokenMaxAge returns the file token lifetime. Zero disables expiry checks.
func (c *SecurityConfig) FileTokenMaxAge() time.Duration {
	return time.Duration(c.FileTokenTTLSeconds) * time.Second
}

// Addr returns the listen address.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MaxUploadBytes returns the request body cap for uploads and imports.
func (c *ServerConfig) MaxUploadBytes() int64 {
	return c.MaxUploadMB << 20
}
