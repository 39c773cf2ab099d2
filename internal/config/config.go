// Package config loads the server and inbox settings from an optional YAML
// file, a .env file and SCENYX_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Auth    AuthConfig    `yaml:"auth"`
	Storage StorageConfig `yaml:"storage"`
	Feed    FeedConfig    `yaml:"feed"`
	Uploads UploadsConfig `yaml:"uploads"`
	Names   NamesConfig   `yaml:"names"`
	Inbox   InboxConfig   `yaml:"inbox"`
	Log     LogConfig     `yaml:"log"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	PublicURL       string        `yaml:"public_url"`
	CORSOrigin      string        `yaml:"cors_origin"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type StorageConfig struct {
	// Driver is "memory" or "postgres".
	Driver      string `yaml:"driver"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

type FeedConfig struct {
	// Driver is "memory" or "valkey".
	Driver        string `yaml:"driver"`
	ValkeyAddr    string `yaml:"valkey_addr"`
	SnapshotLimit int    `yaml:"snapshot_limit"`
}

type UploadsConfig struct {
	Dir      string `yaml:"dir"`
	MaxBytes int64  `yaml:"max_bytes"`
}

type NamesConfig struct {
	// Driver is "memory" or "valkey". The valkey driver shares feed.valkey_addr.
	Driver string            `yaml:"driver"`
	Seed   map[string]string `yaml:"seed"`
}

// InboxConfig configures the seller console client.
type InboxConfig struct {
	BaseURL            string        `yaml:"base_url"`
	Token              string        `yaml:"token"`
	RequestTimeout     time.Duration `yaml:"request_timeout"`
	HistoryLimit       int           `yaml:"history_limit"`
	SearchDebounce     time.Duration `yaml:"search_debounce"`
	NameTimeout        time.Duration `yaml:"name_timeout"`
	PublishRetries     int           `yaml:"publish_retries"`
	RequirePushConfirm bool          `yaml:"require_push_confirm"`
	ReconnectDelay     time.Duration `yaml:"reconnect_delay"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			PublicURL:       "http://localhost:8080",
			CORSOrigin:      "http://localhost:3000",
			ShutdownTimeout: 10 * time.Second,
		},
		Auth:    AuthConfig{TokenTTL: 24 * time.Hour},
		Storage: StorageConfig{Driver: "memory"},
		Feed:    FeedConfig{Driver: "memory", ValkeyAddr: "localhost:6379", SnapshotLimit: 200},
		Uploads: UploadsConfig{Dir: "uploads", MaxBytes: 25 << 20},
		Names:   NamesConfig{Driver: "memory"},
		Inbox: InboxConfig{
			BaseURL:        "http://localhost:8080",
			RequestTimeout: 15 * time.Second,
			HistoryLimit:   50,
			SearchDebounce: 300 * time.Millisecond,
			NameTimeout:    5 * time.Second,
			PublishRetries: 2,
			ReconnectDelay: 2 * time.Second,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load builds the configuration. path may be empty; a missing .env file is
// not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Server.Addr = getEnv("SCENYX_ADDR", c.Server.Addr)
	c.Server.PublicURL = getEnv("SCENYX_PUBLIC_URL", c.Server.PublicURL)
	c.Server.CORSOrigin = getEnv("SCENYX_CORS_ORIGIN", c.Server.CORSOrigin)
	c.Auth.JWTSecret = getEnv("SCENYX_JWT_SECRET", c.Auth.JWTSecret)
	c.Storage.Driver = getEnv("SCENYX_STORAGE_DRIVER", c.Storage.Driver)
	c.Storage.PostgresDSN = getEnv("SCENYX_POSTGRES_DSN", c.Storage.PostgresDSN)
	c.Feed.Driver = getEnv("SCENYX_FEED_DRIVER", c.Feed.Driver)
	c.Feed.ValkeyAddr = getEnv("SCENYX_VALKEY_ADDR", c.Feed.ValkeyAddr)
	c.Uploads.Dir = getEnv("SCENYX_UPLOADS_DIR", c.Uploads.Dir)
	c.Names.Driver = getEnv("SCENYX_NAMES_DRIVER", c.Names.Driver)
	c.Inbox.BaseURL = getEnv("SCENYX_INBOX_BASE_URL", c.Inbox.BaseURL)
	c.Inbox.Token = getEnv("SCENYX_INBOX_TOKEN", c.Inbox.Token)
	c.Log.Level = getEnv("SCENYX_LOG_LEVEL", c.Log.Level)

	var errs []error
	errs = append(errs,
		envDuration("SCENYX_TOKEN_TTL", &c.Auth.TokenTTL),
		envInt64("SCENYX_UPLOADS_MAX_BYTES", &c.Uploads.MaxBytes),
		envInt("SCENYX_HISTORY_LIMIT", &c.Inbox.HistoryLimit),
		envDuration("SCENYX_SEARCH_DEBOUNCE", &c.Inbox.SearchDebounce),
		envInt("SCENYX_PUBLISH_RETRIES", &c.Inbox.PublishRetries),
		envBool("SCENYX_REQUIRE_PUSH_CONFIRM", &c.Inbox.RequirePushConfirm),
		envBool("SCENYX_LOG_PRETTY", &c.Log.Pretty),
	)
	return errors.Join(errs...)
}

// Validate checks the settings every command depends on.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "memory":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return errors.New("storage.postgres_dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	for name, driver := range map[string]string{"feed": c.Feed.Driver, "names": c.Names.Driver} {
		if driver != "memory" && driver != "valkey" {
			return fmt.Errorf("unknown %s driver %q", name, driver)
		}
	}
	if (c.Feed.Driver == "valkey" || c.Names.Driver == "valkey") && c.Feed.ValkeyAddr == "" {
		return errors.New("feed.valkey_addr is required for the valkey driver")
	}
	if c.Uploads.MaxBytes <= 0 {
		return errors.New("uploads.max_bytes must be positive")
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	return nil
}

// NewLogger builds the process logger from the log section.
func (c LogConfig) NewLogger(w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(c.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	if c.Pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func envInt(key string, dst *int) error {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func envInt64(key string, dst *int64) error {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func envBool(key string, dst *bool) error {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}
