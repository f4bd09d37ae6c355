package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Pluggy   PluggyConfig
	AI       AIConfig
	Log      LogConfig
}

// DatabaseConfig holds sqlite settings.
type DatabaseConfig struct {
	Path string
}

// ServerConfig holds webhook listener settings.
type ServerConfig struct {
	Address         string
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
}

// PluggyConfig holds aggregator credentials and client limits.
type PluggyConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	ClientID          string        `mapstructure:"client_id"`
	ClientSecret      string        `mapstructure:"client_secret"`
	WebhookSecret     string        `mapstructure:"webhook_secret"`
	Timeout           time.Duration
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

// AIConfig holds the primary and fallback classifier providers.
type AIConfig struct {
	Timeout  time.Duration
	Primary  ProviderConfig
	Fallback ProviderConfig
}

// ProviderConfig describes one OpenAI-compatible endpoint.
type ProviderConfig struct {
	Provider  string
	Model     string
	APIKey    string `mapstructure:"api_key"`
	APIKeyEnv string `mapstructure:"api_key_env"`
	BaseURL   string `mapstructure:"base_url"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level string
}

// Load reads configuration from file and env. Env var overrides use prefix FINSYNC_.
func Load() (Config, error) {
	v := viper.New()

	// default values
	v.SetDefault("database.path", filepath.Join(os.Getenv("HOME"), ".local", "share", "finsync", "finsync.db"))
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("pluggy.base_url", "https://api.pluggy.ai")
	v.SetDefault("pluggy.client_id", "")
	v.SetDefault("pluggy.client_secret", "")
	v.SetDefault("pluggy.webhook_secret", "")
	v.SetDefault("pluggy.timeout", 20*time.Second)
	v.SetDefault("pluggy.requests_per_second", 5)
	v.SetDefault("ai.timeout", 15*time.Second)
	v.SetDefault("ai.primary.provider", "openai")
	v.SetDefault("ai.primary.model", "gpt-4o-mini")
	v.SetDefault("ai.primary.api_key", "")
	v.SetDefault("ai.primary.api_key_env", "OPENAI_API_KEY")
	v.SetDefault("ai.primary.base_url", "")
	v.SetDefault("ai.fallback.provider", "gateway")
	v.SetDefault("ai.fallback.model", "")
	v.SetDefault("ai.fallback.api_key", "")
	v.SetDefault("ai.fallback.api_key_env", "AI_GATEWAY_API_KEY")
	v.SetDefault("ai.fallback.base_url", "")
	v.SetDefault("log.level", "info")

	v.SetConfigType("toml")

	cfgPath := os.Getenv("FINSYNC_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "finsync"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("FINSYNC")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		// A missing default file is fine; an explicit path must exist.
		var notFound viper.ConfigFileNotFoundError
		if cfgPath != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}
