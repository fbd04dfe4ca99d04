package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Currency  CurrencyConfig  `mapstructure:"currency"`
	Deploy    DeployConfig    `mapstructure:"deploy"`
	Providers ProvidersConfig `mapstructure:"providers"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Address returns the server address in host:port format.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// CurrencyConfig holds exchange-rate service configuration.
type CurrencyConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// DeployConfig bounds the provisioning and reset poll loops.
type DeployConfig struct {
	// AddressPollInterval and AddressPollTimeout bound the wait for a
	// new machine's public address.
	AddressPollInterval time.Duration `mapstructure:"address_poll_interval"`
	AddressPollTimeout  time.Duration `mapstructure:"address_poll_timeout"`

	// PowerPollInterval and PowerPollTimeout bound the wait for a
	// machine to power off before a reimage.
	PowerPollInterval time.Duration `mapstructure:"power_poll_interval"`
	PowerPollTimeout  time.Duration `mapstructure:"power_poll_timeout"`
}

// ProvidersConfig holds per-provider configuration. A provider with an
// empty credential is still registered; callers can supply their own
// credential per request.
type ProvidersConfig struct {
	Hetzner      ProviderConfig `mapstructure:"hetzner"`
	Cherry       ProviderConfig `mapstructure:"cherry"`
	Hivelocity   ProviderConfig `mapstructure:"hivelocity"`
	Vultr        ProviderConfig `mapstructure:"vultr"`
	DigitalOcean ProviderConfig `mapstructure:"digitalocean"`
}

// ProviderConfig configures one provider adapter.
type ProviderConfig struct {
	// Enabled registers the adapter.
	Enabled bool `mapstructure:"enabled"`

	// Endpoint overrides the provider's public API base URL.
	Endpoint string `mapstructure:"endpoint"`

	// Credential is the server-side API credential. Set via
	// RACKMARKET_PROVIDERS_<NAME>_CREDENTIAL environment variable.
	Credential string `mapstructure:"credential"`
}

// =============================================================================
// Config Loading
// =============================================================================

// LoadConfig loads configuration from file and environment.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	// Provisioning responses wait for slow provider operations.
	v.SetDefault("server.write_timeout", "15m")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("currency.base_url", "")
	v.SetDefault("currency.timeout", "15s")
	v.SetDefault("deploy.address_poll_interval", "1s")
	v.SetDefault("deploy.address_poll_timeout", "10m")
	v.SetDefault("deploy.power_poll_interval", "3s")
	v.SetDefault("deploy.power_poll_timeout", "10m")

	for _, name := range []string{"hetzner", "cherry", "hivelocity", "vultr", "digitalocean"} {
		v.SetDefault("providers."+name+".enabled", true)
		v.SetDefault("providers."+name+".endpoint", "")
		v.SetDefault("providers."+name+".credential", "")
	}

	// Load from file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// Only return error if file was explicitly specified and is invalid
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
			// File not found is OK, we'll use defaults
		}
	}

	// Enable environment variable overrides
	v.SetEnvPrefix("RACKMARKET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal config
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format.
func SetupLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
