// Package config loads galyarder settings from GALYARDER_* environment
// variables and an optional config file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/galyarder/galyarder-store/internal/vault"
	"github.com/galyarder/galyarder-store/pkg/sdk"
)

const EnvPrefix = "GALYARDER"

type Config struct {
	// Device side
	RemoteURL      string        `mapstructure:"remote_url"`
	APIKey         string        `mapstructure:"api_key"`
	CacheBackend   string        `mapstructure:"cache_backend"`
	CacheDir       string        `mapstructure:"cache_dir"`
	VaultKey       string        `mapstructure:"vault_key"`
	ProbeInterval  time.Duration `mapstructure:"probe_interval"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	Offline        bool          `mapstructure:"offline"`
	MergeReads     bool          `mapstructure:"merge_filtered_reads"`
	LogFile        string        `mapstructure:"log_file"`

	// Hosted backend
	Port        string        `mapstructure:"port"`
	DBPath      string        `mapstructure:"db_path"`
	RequireAuth bool          `mapstructure:"require_auth"`
	SessionTTL  time.Duration `mapstructure:"session_ttl"`

	// TLS serves HTTPS with TLSCert/TLSKey, or a self-signed certificate when they are empty.
	TLS     bool   `mapstructure:"tls"`
	TLSCert string `mapstructure:"tls_cert"`
	TLSKey  string `mapstructure:"tls_key"`

	// Insight providers
	AnthropicAPIKey  string `mapstructure:"anthropic_api_key"`
	OpenAIAPIKey     string `mapstructure:"openai_api_key"`
	OpenRouterAPIKey string `mapstructure:"openrouter_api_key"`
	AnthropicModel   string `mapstructure:"anthropic_model"`
	OpenAIModel      string `mapstructure:"openai_model"`
	OpenRouterModel  string `mapstructure:"openrouter_model"`
}

// New returns a viper instance with defaults and environment binding applied.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("cache_backend", "file")
	v.SetDefault("cache_dir", defaultCacheDir())
	v.SetDefault("probe_interval", 10*time.Second)
	v.SetDefault("request_timeout", 30*time.Second)
	v.SetDefault("port", "7001")
	v.SetDefault("db_path", "./data/galyarder.db")
	v.SetDefault("session_ttl", 7*24*time.Hour)
	return v
}

// Load reads file (when non-empty) on top of the environment and decodes the result.
func Load(v *viper.Viper, file string) (*Config, error) {
	if v == nil {
		v = New()
	}
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", file, err)
		}
	}

	// AutomaticEnv only answers Get; Unmarshal needs every key known up front.
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var keys = []string{
	"remote_url", "api_key", "cache_backend", "cache_dir", "vault_key",
	"probe_interval", "request_timeout", "offline", "merge_filtered_reads", "log_file",
	"port", "db_path", "require_auth", "session_ttl", "tls", "tls_cert", "tls_key",
	"anthropic_api_key", "openai_api_key", "openrouter_api_key",
	"anthropic_model", "openai_model", "openrouter_model",
}

func (c *Config) Validate() error {
	switch c.CacheBackend {
	case "memory", "file", "badger":
	default:
		return fmt.Errorf("invalid cache_backend %q (want memory, file or badger)", c.CacheBackend)
	}
	if c.VaultKey != "" {
		if _, err := vault.ParseKey(c.VaultKey); err != nil {
			return fmt.Errorf("invalid vault_key: %w", err)
		}
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		return errors.New("tls_cert and tls_key must be set together")
	}
	if c.ProbeInterval < 0 || c.RequestTimeout < 0 || c.SessionTTL < 0 {
		return errors.New("durations must not be negative")
	}
	return nil
}

// SDKConfig maps the device-side settings onto sdk.Config. Validate has
// already checked the vault key.
func (c *Config) SDKConfig() sdk.Config {
	var key []byte
	if c.VaultKey != "" {
		key, _ = vault.ParseKey(c.VaultKey)
	}
	return sdk.Config{
		RemoteURL:          c.RemoteURL,
		APIKey:             c.APIKey,
		CacheBackend:       c.CacheBackend,
		CacheDir:           c.CacheDir,
		VaultKey:           key,
		ProbeInterval:      c.ProbeInterval,
		RequestTimeout:     c.RequestTimeout,
		Offline:            c.Offline,
		MergeFilteredReads: c.MergeReads,
	}
}

func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "galyarder")
	}
	return "./data/cache"
}
