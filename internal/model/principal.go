package model

import "time"

// Privilege tiers. A principal whose tier meets or exceeds TierSuperAdmin
// bypasses the permission catalog entirely when authenticated via a session.
// API keys never inherit this bypass, regardless of the owner's tier.
const (
	TierMember     = 0
	TierRecruiter  = 1
	TierManager    = 2
	TierAdmin      = 3
	TierSuperAdmin = 4
)

// Principal represents a human user account on the platform. Principals are
// created at signup by the main application; this service only reads them,
// flips nothing except last_login_at, and never hard-deletes.
type Principal struct {
	ID           int64      `json:"id" db:"id"`
	Email        string     `json:"email" db:"email"`
	Name         string     `json:"name" db:"name"`
	PasswordHash string     `json:"-" db:"password_hash"` // bcrypt hash, never expose
	IsActive     bool       `json:"is_active" db:"is_active"`
	Tier         int        `json:"tier" db:"tier"`
	Roles        []Role     `json:"roles"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty" db:"last_login_at"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}
