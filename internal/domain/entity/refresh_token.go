// Package entity contains the core business objects of the project.
package entity

import (
	"time"

	"github.com/google/uuid"
)

// TokenStatus tracks the lifecycle of a stored refresh token.
//
// A row is created in the pending state before the plaintext token is
// minted, because the session must reference a durable token id while
// the token itself embeds the session id. FinalizeRefreshToken moves
// pending → active once the hash is known. Pending rows never validate.
type TokenStatus string

const (
	TokenStatusPending TokenStatus = "pending"
	TokenStatusActive  TokenStatus = "active"
	TokenStatusRevoked TokenStatus = "revoked"
)

// RefreshToken is the durable record of one issued refresh token. Only
// a one-way hash of the plaintext is ever stored.
type RefreshToken struct {
	ID        uuid.UUID
	AccountID uuid.UUID
	TokenHash string // SHA-256 hex of the plaintext token.
	Status    TokenStatus
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Valid reports whether the token can still be exchanged: finalized,
// not revoked, not expired.
func (t *RefreshToken) Valid(now time.Time) bool {
	return t.Status == TokenStatusActive && now.Before(t.ExpiresAt)
}
