package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// LoadConfig loads configuration from file using viper.
// CLI flags > environment > config file > defaults precedence.
func LoadConfig(configPath string) (*ServiceConfig, error) {
	v := viper.New()

	// Set defaults matching DefaultServiceConfig
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", "30s")
	v.SetDefault("engine.cache_ttl", "30s")
	v.SetDefault("engine.webhook_timeout", "5s")
	v.SetDefault("engine.fail_mode", "closed")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Bind environment variables with INSTRUCT_ prefix
	v.SetEnvPrefix("INSTRUCT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Secrets are environment-only per 12-factor principles
	if err := validateNoSecretsInConfig(v); err != nil {
		return nil, err
	}

	cfg := &ServiceConfig{
		Host:           v.GetString("server.host"),
		Port:           v.GetInt("server.port"),
		RequestTimeout: v.GetDuration("server.request_timeout"),
		CacheTTL:       v.GetDuration("engine.cache_ttl"),
		WebhookTimeout: v.GetDuration("engine.webhook_timeout"),
		FailMode:       strings.ToLower(v.GetString("engine.fail_mode")),
		LogLevel:       v.GetString("log.level"),
		LogFormat:      v.GetString("log.format"),
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateConfig checks port range, positive timeouts and the fail mode.
func validateConfig(cfg *ServiceConfig) error {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", cfg.Port)
	}
	if cfg.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %v", cfg.RequestTimeout)
	}
	if cfg.WebhookTimeout <= 0 {
		return fmt.Errorf("webhook_timeout must be positive, got %v", cfg.WebhookTimeout)
	}
	if cfg.CacheTTL < 0 {
		return fmt.Errorf("cache_ttl must not be negative, got %v", cfg.CacheTTL)
	}
	if cfg.FailMode != "closed" && cfg.FailMode != "open" {
		return fmt.Errorf("fail_mode must be closed or open, got %q", cfg.FailMode)
	}
	return nil
}

// validateNoSecretsInConfig enforces environment-only secrets.
func validateNoSecretsInConfig(v *viper.Viper) error {
	if v.IsSet("hmac_secret") || v.IsSet("server.hmac_secret") {
		return fmt.Errorf("HMAC secrets not allowed in config files (use INSTRUCT_HMAC_SECRET environment variable)")
	}
	return nil
}
