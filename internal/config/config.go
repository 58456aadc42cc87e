package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the service
type Config struct {
	DatabaseURL string
	APIPort     int

	// Queue. An empty AMQPURL selects the in-memory queue.
	AMQPURL       string
	DispatchQueue string

	// Dispatch
	SendTimeout                 time.Duration
	ScanInterval                time.Duration
	ScanBatchSize               int
	PersistNormalizedRecipients bool

	// SMTPAllowPlaintext lets non-secure accounts talk to servers that do
	// not offer STARTTLS. Off by default.
	SMTPAllowPlaintext bool

	DefaultTimezone string

	// Logging
	LogLevel  string
	LogFormat string
}

// Load reads configuration from environment variables. Call godotenv.Load
// first to pick up a local .env file.
func Load() (*Config, error) {
	cfg := &Config{
		AMQPURL:         os.Getenv("AMQP_URL"),
		DispatchQueue:   getEnvOrDefault("DISPATCH_QUEUE", "scheduled_sends"),
		DefaultTimezone: getEnvOrDefault("DEFAULT_TIMEZONE", "UTC"),
		LogLevel:        getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       getEnvOrDefault("LOG_FORMAT", "json"),
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = dsnFromParts()
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL (or DB_HOST/DB_NAME) is required but not set")
	}

	var err error
	if cfg.APIPort, err = getEnvInt("API_PORT", 8080); err != nil {
		return nil, err
	}
	if cfg.ScanBatchSize, err = getEnvInt("SCAN_BATCH_SIZE", 100); err != nil {
		return nil, err
	}
	if cfg.SendTimeout, err = getEnvDuration("SEND_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.ScanInterval, err = getEnvDuration("SCAN_INTERVAL", time.Minute); err != nil {
		return nil, err
	}

	if cfg.PersistNormalizedRecipients, err = getEnvBool("PERSIST_NORMALIZED_RECIPIENTS", true); err != nil {
		return nil, err
	}
	if cfg.SMTPAllowPlaintext, err = getEnvBool("SMTP_ALLOW_PLAINTEXT", false); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadWithValidation loads and validates configuration, failing fast on errors
func LoadWithValidation() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DatabaseURL cannot be empty")
	}
	if c.APIPort <= 0 || c.APIPort > 65535 {
		return fmt.Errorf("APIPort must be between 1 and 65535")
	}
	if c.SendTimeout <= 0 {
		return fmt.Errorf("SendTimeout must be positive")
	}
	if c.ScanInterval <= 0 {
		return fmt.Errorf("ScanInterval must be positive")
	}
	if c.ScanBatchSize <= 0 {
		return fmt.Errorf("ScanBatchSize must be positive")
	}
	if c.DispatchQueue == "" {
		return fmt.Errorf("DispatchQueue cannot be empty")
	}
	if _, err := time.LoadLocation(c.DefaultTimezone); err != nil {
		return fmt.Errorf("DefaultTimezone %q is not a known time zone: %w", c.DefaultTimezone, err)
	}
	return nil
}

// Location returns the default time zone used when a caller sends none.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.DefaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// LogConfig logs configuration values (excluding secrets)
func (c *Config) LogConfig(logger *slog.Logger) {
	logger.Info("configuration loaded",
		slog.Int("api_port", c.APIPort),
		slog.Bool("amqp_enabled", c.AMQPURL != ""),
		slog.String("dispatch_queue", c.DispatchQueue),
		slog.Duration("send_timeout", c.SendTimeout),
		slog.Duration("scan_interval", c.ScanInterval),
		slog.Int("scan_batch_size", c.ScanBatchSize),
		slog.Bool("persist_normalized_recipients", c.PersistNormalizedRecipients),
		slog.Bool("smtp_allow_plaintext", c.SMTPAllowPlaintext),
		slog.String("default_timezone", c.DefaultTimezone),
		slog.String("log_level", c.LogLevel),
	)
}

func dsnFromParts() string {
	host := os.Getenv("DB_HOST")
	name := os.Getenv("DB_NAME")
	if host == "" || name == "" {
		return ""
	}

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		os.Getenv("DB_USER"), os.Getenv("DB_PASSWORD"), host,
		getEnvOrDefault("DB_PORT", "5432"), name,
	)
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
	}
	return n, nil
}

func getEnvBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be a valid boolean: %w", key, err)
	}
	return b, nil
}

func getEnvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid duration: %w", key, err)
	}
	return d, nil
}
