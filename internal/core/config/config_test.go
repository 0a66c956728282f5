// internal/core/config/config_test.go
package config

import (
	"bytes"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validSecretValue(id byte) string {
	secretID := strings.Repeat(string(rune('0'+id%10)), 31) + "a"
	secret := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{id}, 32))
	return secretID + ":" + secret
}

func TestParseHMACSecretWithID(t *testing.T) {
	goodID := "0123456789abcdef0123456789abcdef"
	goodSecret := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{0x42}, 32))

	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"valid", goodID + ":" + goodSecret, false},
		{"missing separator", goodID + goodSecret, true},
		{"short secret_id", "abc:" + goodSecret, true},
		{"uppercase hex rejected", strings.ToUpper(goodID) + ":" + goodSecret, true},
		{"non-hex secret_id", strings.Repeat("g", 32) + ":" + goodSecret, true},
		{"bad base64", goodID + ":not-base64!!", true},
		{"secret too short", goodID + ":" + base64.StdEncoding.EncodeToString([]byte("tiny")), true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, secret, err := ParseHMACSecretWithID(tt.value)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseHMACSecretWithID(%q) error = nil, want error", tt.value)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseHMACSecretWithID() error = %v, want nil", err)
			}
			if id != goodID {
				t.Errorf("secret_id = %q, want %q", id, goodID)
			}
			if len(secret) != 32 {
				t.Errorf("secret length = %d, want 32", len(secret))
			}
		})
	}
}

func TestHMACSecrets_Empty(t *testing.T) {
	t.Setenv("INSTRUCT_HMAC_SECRET", "")
	t.Setenv("INSTRUCT_HMAC_SECRET_1", "")

	secrets, err := HMACSecrets()
	if err != nil {
		t.Fatalf("HMACSecrets() error = %v, want nil", err)
	}
	if len(secrets) != 0 {
		t.Errorf("HMACSecrets() = %d entries, want 0 (auth disabled)", len(secrets))
	}
}

func TestHMACSecrets_Rotation(t *testing.T) {
	t.Setenv("INSTRUCT_HMAC_SECRET", validSecretValue(1))
	t.Setenv("INSTRUCT_HMAC_SECRET_1", validSecretValue(2))
	t.Setenv("INSTRUCT_HMAC_SECRET_2", validSecretValue(3))

	secrets, err := HMACSecrets()
	if err != nil {
		t.Fatalf("HMACSecrets() error = %v, want nil", err)
	}
	if len(secrets) != 3 {
		t.Errorf("HMACSecrets() = %d entries, want 3", len(secrets))
	}
}

func TestHMACSecrets_DuplicateSecretID(t *testing.T) {
	t.Setenv("INSTRUCT_HMAC_SECRET", validSecretValue(1))
	t.Setenv("INSTRUCT_HMAC_SECRET_1", validSecretValue(1))

	if _, err := HMACSecrets(); err == nil {
		t.Error("HMACSecrets() error = nil, want duplicate secret_id error")
	}
}

func TestHMACSecrets_InvalidValue(t *testing.T) {
	t.Setenv("INSTRUCT_HMAC_SECRET", "garbage")

	if _, err := HMACSecrets(); err == nil {
		t.Error("HMACSecrets() error = nil, want parse error")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v, want nil", err)
	}
	if cfg.Host != "0.0.0.0" || cfg.Port != 8080 {
		t.Errorf("listen = %s:%d, want 0.0.0.0:8080", cfg.Host, cfg.Port)
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Errorf("RequestTimeout = %v, want 30s", cfg.RequestTimeout)
	}
	if cfg.CacheTTL != 30*time.Second || cfg.WebhookTimeout != 5*time.Second {
		t.Errorf("engine timings = %v/%v, want 30s/5s", cfg.CacheTTL, cfg.WebhookTimeout)
	}
	if cfg.FailMode != "closed" || cfg.FailOpen() {
		t.Errorf("FailMode = %q, want closed", cfg.FailMode)
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != "json" {
		t.Errorf("log = %s/%s, want info/json", cfg.LogLevel, cfg.LogFormat)
	}
}

func TestLoadConfig_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9090
engine:
  fail_mode: OPEN
  cache_ttl: 2m
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v, want nil", err)
	}
	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
	if !cfg.FailOpen() {
		t.Error("FailOpen() = false, want true (fail_mode lowercased)")
	}
	if cfg.CacheTTL != 2*time.Minute {
		t.Errorf("CacheTTL = %v, want 2m", cfg.CacheTTL)
	}
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad port", "server:\n  port: 70000\n"},
		{"zero request timeout", "server:\n  request_timeout: 0s\n"},
		{"bad fail mode", "engine:\n  fail_mode: maybe\n"},
		{"negative cache ttl", "engine:\n  cache_ttl: -5s\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadConfig(path); err == nil {
				t.Errorf("LoadConfig(%s) error = nil, want validation error", tt.name)
			}
		})
	}
}

func TestLoadConfig_SecretsInFileRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("hmac_secret: abc\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadConfig(path); err == nil {
		t.Error("LoadConfig() error = nil, want secrets-in-file rejection")
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig("/nonexistent/config.yaml"); err == nil {
		t.Error("LoadConfig() error = nil, want read error")
	}
}
