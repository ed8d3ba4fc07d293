package domain

import (
	"time"

	"github.com/google/uuid"
)

// Admin is a back-office account
type Admin struct {
	ID                 uuid.UUID  `json:"id"`
	Username           string     `json:"username"`
	Email              string     `json:"email"`
	Active             bool       `json:"active"`
	MustChangePassword bool       `json:"must_change_password"`
	FailedAttempts     int        `json:"failed_attempts"`
	LockedUntil        *time.Time `json:"locked_until,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Locked reports whether the account is locked out at now
func (a *Admin) Locked(now time.Time) bool {
	return a.LockedUntil != nil && a.LockedUntil.After(now)
}

// AdminSession is the server-side mirror of a client session token
type AdminSession struct {
	Token     string    `json:"token"`
	AdminID   uuid.UUID `json:"admin_id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
	Deleted   bool      `json:"deleted"`
}

// Expired reports whether the session is past its expiry at now
func (s *AdminSession) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}
