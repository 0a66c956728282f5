package auth

import "errors"

// Authentication failures are deliberately coarse on the wire: missing,
// malformed and unknown keys all surface as 401 without confirming whether
// the key exists. Revoked keys get 403 (the caller held a valid key once).
var (
	ErrMissingKey       = errors.New("API key required in X-API-Key header")
	ErrInvalidKeyFormat = errors.New("invalid API key format")
	ErrUnknownKey       = errors.New("unknown secret ID")
	ErrInvalidKey       = errors.New("invalid API key")
	ErrKeyRevoked       = errors.New("API key has been revoked")
)
