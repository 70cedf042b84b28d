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

const defaultJWTSecret = "dev-secret-change-me"

// Config is the server configuration. Values come from defaults, then the
// optional YAML file named by CONFIG_FILE, then the environment.
type Config struct {
	Env      string `yaml:"env"`
	Port     string `yaml:"port"`
	LogLevel string `yaml:"log_level"`

	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`

	DBDriver    string         `yaml:"db_driver"`
	DatabaseDSN string         `yaml:"database_dsn"`
	Postgres    PostgresConfig `yaml:"postgres"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	PresenceTTL            time.Duration `yaml:"presence_ttl"`
	PresenceResyncSchedule string        `yaml:"presence_resync_schedule"`
	SendQueueSize          int           `yaml:"send_queue_size"`
	AllowedOrigins         []string      `yaml:"allowed_origins"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DB       string `yaml:"db"`
	Port     string `yaml:"port"`
	SSLMode  string `yaml:"sslmode"`
}

func defaults() *Config {
	return &Config{
		Env:       "development",
		Port:      "8080",
		LogLevel:  "info",
		JWTSecret: defaultJWTSecret,
		TokenTTL:  24 * time.Hour,
		DBDriver:  "postgres",
		Postgres: PostgresConfig{
			Host:    "localhost",
			User:    "postgres",
			DB:      "collabnotes",
			Port:    "5432",
			SSLMode: "disable",
		},
		PresenceTTL:            2 * time.Minute,
		PresenceResyncSchedule: "@every 30s",
		SendQueueSize:          64,
		AllowedOrigins:         []string{"*"},
	}
}

// LoadConfig builds and validates the configuration.
func LoadConfig() (*Config, error) {
	config := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, config); err != nil {
			return nil, err
		}
	}
	if err := applyEnv(config); err != nil {
		return nil, err
	}
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	return config, nil
}

func loadFile(path string, config *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, config); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func applyEnv(c *Config) error {
	c.Env = getEnvOrDefault("ENV", c.Env)
	c.Port = getEnvOrDefault("PORT", c.Port)
	c.LogLevel = getEnvOrDefault("LOG_LEVEL", c.LogLevel)
	c.JWTSecret = getEnvOrDefault("JWT_SECRET", c.JWTSecret)
	c.DBDriver = getEnvOrDefault("DB_DRIVER", c.DBDriver)
	c.DatabaseDSN = getEnvOrDefault("DATABASE_DSN", c.DatabaseDSN)
	c.Postgres.Host = getEnvOrDefault("POSTGRES_HOST", c.Postgres.Host)
	c.Postgres.User = getEnvOrDefault("POSTGRES_USER", c.Postgres.User)
	c.Postgres.Password = getEnvOrDefault("POSTGRES_PASSWORD", c.Postgres.Password)
	c.Postgres.DB = getEnvOrDefault("POSTGRES_DB", c.Postgres.DB)
	c.Postgres.Port = getEnvOrDefault("POSTGRES_PORT", c.Postgres.Port)
	c.Postgres.SSLMode = getEnvOrDefault("POSTGRES_SSLMODE", c.Postgres.SSLMode)
	c.RedisAddr = getEnvOrDefault("REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = getEnvOrDefault("REDIS_PASSWORD", c.RedisPassword)
	c.PresenceResyncSchedule = getEnvOrDefault("PRESENCE_RESYNC_SCHEDULE", c.PresenceResyncSchedule)

	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = splitList(v)
	}

	var err error
	if c.TokenTTL, err = getDurationOrDefault("TOKEN_TTL", c.TokenTTL); err != nil {
		return err
	}
	if c.PresenceTTL, err = getDurationOrDefault("PRESENCE_TTL", c.PresenceTTL); err != nil {
		return err
	}
	if c.RedisDB, err = getIntOrDefault("REDIS_DB", c.RedisDB); err != nil {
		return err
	}
	if c.SendQueueSize, err = getIntOrDefault("SEND_QUEUE_SIZE", c.SendQueueSize); err != nil {
		return err
	}
	return nil
}

func validateConfig(config *Config) error {
	if config.Port == "" {
		return errors.New("PORT must not be empty")
	}
	if config.JWTSecret == "" {
		return errors.New("JWT_SECRET must not be empty")
	}
	if config.Env == "production" && config.JWTSecret == defaultJWTSecret {
		return errors.New("JWT_SECRET must be set in production")
	}
	if config.TokenTTL <= 0 {
		return errors.New("TOKEN_TTL must be positive")
	}
	switch config.DBDriver {
	case "postgres", "sqlite":
	default:
		return errors.New("unsupported DB_DRIVER: " + config.DBDriver + ". Currently supported: postgres, sqlite")
	}
	if config.DBDriver == "sqlite" && config.DatabaseDSN == "" {
		return errors.New("DATABASE_DSN is required for the sqlite driver")
	}
	if config.SendQueueSize < 1 {
		return errors.New("SEND_QUEUE_SIZE must be at least 1")
	}
	if config.PresenceTTL <= 0 {
		return errors.New("PRESENCE_TTL must be positive")
	}
	return nil
}

// PostgresDSN returns DATABASE_DSN if set, otherwise a DSN assembled from
// the POSTGRES_* values.
func (c *Config) PostgresDSN() string {
	if c.DatabaseDSN != "" {
		return c.DatabaseDSN
	}
	p := c.Postgres
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		p.Host, p.User, p.Password, p.DB, p.Port, p.SSLMode)
}

// RedisEnabled reports whether Redis-backed features should be started.
func (c *Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getDurationOrDefault(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
