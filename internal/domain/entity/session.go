// Package entity contains the core business objects of the project.
package entity

import (
	"time"

	"github.com/google/uuid"
)

// LogoutReason records why a session became terminal. A session with
// IsActive false always carries exactly one of these.
type LogoutReason string

const (
	LogoutReasonUser            LogoutReason = "user_logout"
	LogoutReasonInactivity      LogoutReason = "inactivity_timeout"
	LogoutReasonTokenExpired    LogoutReason = "token_expired"
	LogoutReasonForced          LogoutReason = "forced_logout"
	LogoutReasonPasswordChanged LogoutReason = "password_changed"
	LogoutReasonSecurity        LogoutReason = "security_concern"
)

// IsValid checks if the LogoutReason is a valid value.
func (r LogoutReason) IsValid() bool {
	switch r {
	case LogoutReasonUser, LogoutReasonInactivity, LogoutReasonTokenExpired,
		LogoutReasonForced, LogoutReasonPasswordChanged, LogoutReasonSecurity:
		return true
	default:
		return false
	}
}

// Session is the server-side record of one authenticated device. It is
// independent of any specific token value: RefreshTokenID is re-pointed
// when the device's token rotates.
//
// Invariant: ExpiresAt = LastActivityAt + the configured inactivity
// window. The sweep transitions sessions past that point to inactive.
type Session struct {
	ID             uuid.UUID
	AccountID      uuid.UUID
	RefreshTokenID uuid.UUID
	DeviceInfo     string
	IPAddress      string
	IsActive       bool
	LastActivityAt time.Time
	ExpiresAt      time.Time
	LoginAt        time.Time
	LogoutAt       *time.Time
	LogoutReason   LogoutReason
	CreatedAt      time.Time
}

// IdleExpired reports whether the session has outlived its inactivity
// window and should be swept.
func (s *Session) IdleExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
