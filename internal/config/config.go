package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultAPIBase    = "http://127.0.0.1:8890/api"
	DefaultRetries    = 2
	DefaultRetryDelay = time.Second
	DefaultProvider   = "deepseek"
	DefaultPort       = "8890"
)

// Config is the resolved client configuration. File values are applied first,
// environment variables override them.
type Config struct {
	APIBase      string `toml:"api_base"`
	Provider     string `toml:"provider"`
	Retries      int    `toml:"retries"`
	RetryDelayMs int    `toml:"retry_delay_ms"`
	Port         string `toml:"port"`

	// TLSFingerprint dials https backends through a browser-like TLS hello.
	TLSFingerprint bool `toml:"tls_fingerprint"`
	// TLSHello names the browser hello: safari, chrome, firefox, edge or ios.
	TLSHello string `toml:"tls_hello"`

	Store StoreConfig `toml:"store"`
}

type StoreConfig struct {
	Backend     string `toml:"backend"`
	SQLitePath  string `toml:"sqlite_path"`
	RedisAddr   string `toml:"redis_addr"`
	RedisDB     int    `toml:"redis_db"`
	RedisPrefix string `toml:"redis_prefix"`
}

func Default() Config {
	return Config{
		APIBase:      DefaultAPIBase,
		Provider:     DefaultProvider,
		Retries:      DefaultRetries,
		RetryDelayMs: int(DefaultRetryDelay / time.Millisecond),
		Port:         DefaultPort,
		TLSHello:     "safari",
		Store: StoreConfig{
			Backend:     "memory",
			SQLitePath:  "novelstream.db",
			RedisPrefix: "novelstream",
		},
	}
}

// Load resolves configuration from NOVELSTREAM_CONFIG_FILE (optional TOML) and
// the NOVELSTREAM_* environment variables.
func Load() (Config, error) {
	cfg := Default()
	if path := strings.TrimSpace(os.Getenv("NOVELSTREAM_CONFIG_FILE")); path != "" {
		if err := LoadFile(path, &cfg); err != nil {
			return cfg, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadFile decodes a TOML file over cfg. Keys absent from the file keep their
// current values.
func LoadFile(path string, cfg *Config) error {
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if v := env("NOVELSTREAM_API_BASE"); v != "" {
		cfg.APIBase = v
	}
	if v := env("NOVELSTREAM_PROVIDER"); v != "" {
		cfg.Provider = v
	}
	if v := env("NOVELSTREAM_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid NOVELSTREAM_RETRIES %q", v)
		}
		cfg.Retries = n
	}
	if v := env("NOVELSTREAM_RETRY_DELAY_MS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid NOVELSTREAM_RETRY_DELAY_MS %q", v)
		}
		cfg.RetryDelayMs = n
	}
	if v := env("NOVELSTREAM_TLS_FINGERPRINT"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid NOVELSTREAM_TLS_FINGERPRINT %q", v)
		}
		cfg.TLSFingerprint = b
	}
	if v := env("NOVELSTREAM_TLS_HELLO"); v != "" {
		cfg.TLSHello = strings.ToLower(v)
	}
	if v := env("PORT"); v != "" {
		cfg.Port = v
	}
	if v := env("NOVELSTREAM_STORE"); v != "" {
		cfg.Store.Backend = strings.ToLower(v)
	}
	if v := env("NOVELSTREAM_SQLITE_PATH"); v != "" {
		cfg.Store.SQLitePath = v
	}
	if v := env("NOVELSTREAM_REDIS_ADDR"); v != "" {
		cfg.Store.RedisAddr = v
	}
	if v := env("NOVELSTREAM_REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid NOVELSTREAM_REDIS_DB %q", v)
		}
		cfg.Store.RedisDB = n
	}
	return nil
}

// RetryDelay returns the base backoff delay.
func (c Config) RetryDelay() time.Duration {
	if c.RetryDelayMs <= 0 {
		return DefaultRetryDelay
	}
	return time.Duration(c.RetryDelayMs) * time.Millisecond
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
