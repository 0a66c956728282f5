// internal/core/auth/hmac_test.go
package auth

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

const (
	testSecretID   = "0123456789abcdef0123456789abcdef"
	testRandomData = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
)

func TestParseAPIKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"valid", "in-v1-" + testSecretID + "-" + testRandomData, false},
		{"empty", "", true},
		{"wrong prefix", "tk-v1-" + testSecretID + "-" + testRandomData, true},
		{"wrong version", "in-v2-" + testSecretID + "-" + testRandomData, true},
		{"too few parts", "in-v1-" + testSecretID, true},
		{"short secret_id", "in-v1-abc-" + testRandomData, true},
		{"short random_data", "in-v1-" + testSecretID + "-abc", true},
		{"uppercase hex", "in-v1-" + strings.ToUpper(testSecretID) + "-" + testRandomData, true},
		{"non-hex random_data", "in-v1-" + testSecretID + "-" + strings.Repeat("z", 64), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			secretID, randomData, err := ParseAPIKey(tt.key)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidKeyFormat) {
					t.Errorf("ParseAPIKey(%q) error = %v, want ErrInvalidKeyFormat", tt.key, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAPIKey() error = %v, want nil", err)
			}
			if secretID != testSecretID || randomData != testRandomData {
				t.Errorf("ParseAPIKey() = %q, %q, want components back", secretID, randomData)
			}
		})
	}
}

func TestFormatAPIKey_RoundTrip(t *testing.T) {
	key := FormatAPIKey(testSecretID, testRandomData)

	secretID, randomData, err := ParseAPIKey(key)
	if err != nil {
		t.Fatalf("ParseAPIKey(FormatAPIKey()) error = %v, want nil", err)
	}
	if secretID != testSecretID || randomData != testRandomData {
		t.Errorf("round trip = %q, %q, want original components", secretID, randomData)
	}
}

func TestComputeHMAC(t *testing.T) {
	secret := bytes.Repeat([]byte{0x42}, 32)
	key := FormatAPIKey(testSecretID, testRandomData)

	h1 := ComputeHMAC(secret, key)
	h2 := ComputeHMAC(secret, key)
	if !bytes.Equal(h1, h2) {
		t.Error("ComputeHMAC() not deterministic for same inputs")
	}
	if len(h1) != 32 {
		t.Errorf("hash length = %d, want 32 (SHA-256)", len(h1))
	}

	other := ComputeHMAC(bytes.Repeat([]byte{0x43}, 32), key)
	if bytes.Equal(h1, other) {
		t.Error("different secrets produced identical hashes")
	}
}

func TestVerifyHMAC(t *testing.T) {
	secret := bytes.Repeat([]byte{0x42}, 32)
	key := FormatAPIKey(testSecretID, testRandomData)
	hash := ComputeHMAC(secret, key)

	if !VerifyHMAC(hash, ComputeHMAC(secret, key)) {
		t.Error("VerifyHMAC(matching hashes) = false, want true")
	}
	if VerifyHMAC(hash, ComputeHMAC(secret, key+"x")) {
		t.Error("VerifyHMAC(different keys) = true, want false")
	}
	if VerifyHMAC(hash, nil) {
		t.Error("VerifyHMAC(nil) = true, want false")
	}
}
