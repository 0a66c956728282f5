// Package auth provides HMAC-based API key authentication for the HTTP API.
//
// Keys are self-describing: in-v1-<secret_id>-<random_data>. The secret_id
// selects an HMAC secret from the environment, and the HMAC-SHA256 of the
// full key is looked up in the api_keys table. The database never holds the
// key itself, so a leaked table cannot be replayed against the API.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// contextKey is a typed key for context values to avoid collisions.
type contextKey string

const subjectKey = contextKey("auth_subject")

// Queries is the slice of db.Queries the authenticator needs.
type Queries interface {
	Get(ctx context.Context, name string, dest interface{}, args ...interface{}) error
	Exec(ctx context.Context, name string, args ...interface{}) (sql.Result, error)
}

// Authenticator validates API keys against stored HMAC hashes.
// An empty secret map disables authentication (development mode).
type Authenticator struct {
	secrets map[string][]byte
	queries Queries
}

// NewAuthenticator creates an authenticator from HMAC secrets and a query
// interface.
func NewAuthenticator(secrets map[string][]byte, queries Queries) *Authenticator {
	return &Authenticator{secrets: secrets, queries: queries}
}

// Enabled reports whether authentication is active.
func (a *Authenticator) Enabled() bool {
	return len(a.secrets) > 0
}

// Authenticate validates an API key and returns the key's subject.
func (a *Authenticator) Authenticate(ctx context.Context, apiKey string) (string, error) {
	secretID, _, err := ParseAPIKey(apiKey)
	if err != nil {
		return "", err
	}

	secret, ok := a.secrets[secretID]
	if !ok {
		return "", ErrUnknownKey
	}

	computedHash := ComputeHMAC(secret, apiKey)

	var result struct {
		APIKeyID   string       `db:"api_key_id"`
		Subject    string       `db:"subject"`
		RevokedAt  sql.NullTime `db:"revoked_at"`
		LastUsedAt sql.NullTime `db:"last_used_at"`
	}
	err = a.queries.Get(ctx, "get-api-key-by-hash", &result, computedHash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrInvalidKey
	}
	if err != nil {
		return "", fmt.Errorf("database error: %w", err)
	}

	if result.RevokedAt.Valid {
		return "", ErrKeyRevoked
	}

	// Throttled last_used_at update keeps write amplification down for
	// chatty callers.
	if shouldUpdateLastUsed(result.LastUsedAt) {
		_, _ = a.queries.Exec(ctx, "update-last-used", time.Now().UTC(), result.APIKeyID)
	}

	return result.Subject, nil
}

func shouldUpdateLastUsed(lastUsed sql.NullTime) bool {
	if !lastUsed.Valid {
		return true
	}
	return time.Since(lastUsed.Time) > time.Minute
}

// Middleware returns an HTTP middleware that authenticates requests via the
// X-API-Key header and injects the key's subject into the request context.
// When no secrets are configured the middleware passes requests through.
func (a *Authenticator) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !a.Enabled() {
				next.ServeHTTP(w, r)
				return
			}

			apiKey := r.Header.Get("X-API-Key")
			if apiKey == "" {
				http.Error(w, ErrMissingKey.Error(), http.StatusUnauthorized)
				return
			}

			subject, err := a.Authenticate(r.Context(), apiKey)
			if err != nil {
				switch {
				case errors.Is(err, ErrKeyRevoked):
					http.Error(w, err.Error(), http.StatusForbidden)
				case errors.Is(err, ErrInvalidKeyFormat),
					errors.Is(err, ErrUnknownKey),
					errors.Is(err, ErrInvalidKey):
					http.Error(w, err.Error(), http.StatusUnauthorized)
				default:
					// Database trouble is not the caller's fault.
					http.Error(w, "authentication unavailable", http.StatusServiceUnavailable)
				}
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), subjectKey, subject)))
		})
	}
}

// SubjectFromContext extracts the authenticated subject, or "" when
// authentication is disabled.
func SubjectFromContext(ctx context.Context) string {
	if subject, ok := ctx.Value(subjectKey).(string); ok {
		return subject
	}
	return ""
}
