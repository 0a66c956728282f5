package types

import (
	"time"

	"github.com/google/uuid"
)

// NewRuleID generates a UUIDv7 rule identifier.
// Time-ordered IDs ensure sequential inserts cluster in B-tree pages.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewRuleID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NewConditionID generates a UUIDv7 condition identifier.
func NewConditionID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NewActionID generates a UUIDv7 action identifier.
func NewActionID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NewScopeID generates a UUIDv7 target scope identifier.
func NewScopeID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NewLogID generates a UUIDv7 execution log identifier.
func NewLogID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// ParseID validates a string as a UUID and returns it unchanged.
// Rejects malformed IDs to prevent invalid references from entering the system.
func ParseID(s string) (string, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", err
	}
	return s, nil
}

// IDTime extracts the timestamp embedded in a UUIDv7 identifier.
// Enables time-based log queries without a database lookup.
// Returns zero time for invalid UUIDs; caller should check IsZero().
func IDTime(id string) time.Time {
	u, err := uuid.Parse(id)
	if err != nil {
		return time.Time{}
	}
	sec, nsec := u.Time().UnixTime()
	return time.Unix(sec, nsec)
}
