// Package config provides configuration management for instruct services.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"
)

// ServiceConfig holds configuration for the HTTP rule service.
type ServiceConfig struct {
	Host           string
	Port           int
	RequestTimeout time.Duration

	CacheTTL       time.Duration
	WebhookTimeout time.Duration
	FailMode       string // closed (default) or open

	LogLevel  string
	LogFormat string
}

// DefaultServiceConfig returns configuration with default values.
func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		Host:           "0.0.0.0",
		Port:           8080,
		RequestTimeout: 30 * time.Second,
		CacheTTL:       30 * time.Second,
		WebhookTimeout: 5 * time.Second,
		FailMode:       "closed",
		LogLevel:       "info",
		LogFormat:      "json",
	}
}

// FailOpen reports whether an unreadable rule set should let the triggering
// operation proceed unguarded instead of failing it.
func (c *ServiceConfig) FailOpen() bool {
	return c.FailMode == "open"
}

// HMACSecrets extracts API-key HMAC secrets from environment variables.
// Supports INSTRUCT_HMAC_SECRET (single) and INSTRUCT_HMAC_SECRET_N
// (rotation). Returns map of secret_id -> decoded secret bytes; an empty
// map disables authentication (development mode).
// Secret IDs are 32 hex chars (UUIDv7 without hyphens) matching the API key
// format.
func HMACSecrets() (map[string][]byte, error) {
	secrets := make(map[string][]byte)

	add := func(envKey, val string) error {
		secretID, decoded, err := ParseHMACSecretWithID(val)
		if err != nil {
			return fmt.Errorf("%s: %w", envKey, err)
		}
		if _, exists := secrets[secretID]; exists {
			return fmt.Errorf("duplicate secret_id %q across INSTRUCT_HMAC_SECRET* variables", secretID)
		}
		secrets[secretID] = decoded
		return nil
	}

	if val := os.Getenv("INSTRUCT_HMAC_SECRET"); val != "" {
		if err := add("INSTRUCT_HMAC_SECRET", val); err != nil {
			return nil, err
		}
	}

	// Numbered secrets enable rotation: old and new keys valid during migration
	for i := 1; ; i++ {
		key := fmt.Sprintf("INSTRUCT_HMAC_SECRET_%d", i)
		val := os.Getenv(key)
		if val == "" {
			break
		}
		if err := add(key, val); err != nil {
			return nil, err
		}
	}

	return secrets, nil
}

// ParseHMACSecretWithID parses secret_id:base64_secret format.
// Secret ID must be 32 hex chars (UUIDv7 without hyphens).
func ParseHMACSecretWithID(envValue string) (secretID string, secret []byte, err error) {
	parts := strings.SplitN(strings.TrimSpace(envValue), ":", 2)
	if len(parts) != 2 {
		return "", nil, fmt.Errorf("format must be <secret_id>:<base64_secret>")
	}

	secretID = parts[0]
	if len(secretID) != 32 {
		return "", nil, fmt.Errorf("secret_id must be 32 hex chars (UUIDv7 without hyphens)")
	}
	for _, c := range secretID {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return "", nil, fmt.Errorf("secret_id must be hex chars only")
		}
	}

	secret, err = base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", nil, fmt.Errorf("invalid base64 encoding: %w", err)
	}
	if len(secret) < 32 {
		return "", nil, fmt.Errorf("secret must be at least 32 bytes, got %d", len(secret))
	}

	return secretID, secret, nil
}
