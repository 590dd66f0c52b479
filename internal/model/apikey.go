package model

import "time"

// APIKey represents a long-lived bearer credential owned by a principal.
// The raw secret is never stored; only a bcrypt verifier, a short non-secret
// lookup ID embedded in the secret, and a display prefix are persisted.
//
// A key carries its own explicit permission list, independent of the owner's
// role membership, so a leaked key exposes at most what it was scoped to.
type APIKey struct {
	ID          int64      `json:"id" db:"id"`
	PrincipalID int64      `json:"principal_id" db:"principal_id"`
	Name        string     `json:"name" db:"name"`
	KeyHash     string     `json:"-" db:"key_hash"`       // bcrypt verifier, never expose
	LookupID    string     `json:"-" db:"lookup_id"`      // non-secret candidate narrowing
	KeyPrefix   string     `json:"key_prefix" db:"key_prefix"` // for UI disambiguation only
	Permissions []string   `json:"permissions"`
	RateLimit   int        `json:"rate_limit" db:"rate_limit"` // requests per trailing hour
	IsActive    bool       `json:"is_active" db:"is_active"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	TotalRequests   int64  `json:"total_requests" db:"total_requests"`
	MonthlyRequests int64  `json:"monthly_requests" db:"monthly_requests"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}

// Expired reports whether the key has a hard expiry in the past.
func (k *APIKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && k.ExpiresAt.Before(now)
}
