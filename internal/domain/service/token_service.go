package service

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token families. Access and refresh tokens are signed with distinct
// secrets, so a credential from one family never verifies in the other.
const (
	TokenFamilyAccess  = "access"
	TokenFamilyRefresh = "refresh"
)

// Claims defines the custom claims carried by issued JWTs.
type Claims struct {
	AccountID uuid.UUID `json:"account_id"`
	SessionID uuid.UUID `json:"session_id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Family    string    `json:"family"`
	jwt.RegisteredClaims
}

// TokenService defines the interface for generating and validating JWTs.
// This abstracts the details of token creation from the use cases.
type TokenService interface {
	// GenerateTokens creates a new access token and refresh token pair
	// bound to an account and the session it authenticates.
	GenerateTokens(accountID, sessionID uuid.UUID, email, role string) (accessToken string, refreshToken string, err error)

	// ValidateToken checks a token string against the expected family and
	// returns its claims when valid.
	ValidateToken(tokenString, family string) (*Claims, error)

	// HashToken returns the digest under which a token is persisted.
	// Only hashes are stored; a database leak yields no usable credential.
	HashToken(token string) string

	// GetAccessTokenDuration returns the configured access token lifetime.
	GetAccessTokenDuration() time.Duration

	// GetRefreshTokenDuration returns the configured refresh token lifetime.
	GetRefreshTokenDuration() time.Duration
}
