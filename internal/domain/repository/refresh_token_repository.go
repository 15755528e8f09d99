package repository

import (
	"context"
	"errors"
	"time"

	"gatekeeper/internal/domain/entity"

	"github.com/google/uuid"
)

// Domain-specific errors for refresh token persistence.
var (
	// ErrRefreshTokenNotFound is returned when a refresh token is not found.
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	// ErrRefreshTokenNotActive is returned when a conditional revoke finds
	// the token already revoked or still pending.
	ErrRefreshTokenNotActive = errors.New("refresh token is not active")
)

// RefreshTokenRepository defines the interface for refresh token management.
// Tokens are created in the pending state and finalized to active only
// after the issued credential has been handed to the client, so a crash
// between the two writes never leaves a usable orphan.
type RefreshTokenRepository interface {
	// Create persists a new refresh token record in the pending state.
	Create(ctx context.Context, token *entity.RefreshToken) error

	// Finalize stores the minted token's hash and transitions the pending
	// row to active.
	Finalize(ctx context.Context, id uuid.UUID, tokenHash string) error

	// FindByID retrieves a refresh token record by its unique ID.
	FindByID(ctx context.Context, id uuid.UUID) (*entity.RefreshToken, error)

	// FindByHash retrieves a refresh token record by its stored hash.
	FindByHash(ctx context.Context, tokenHash string) (*entity.RefreshToken, error)

	// FindActiveByAccount retrieves all active tokens for an account.
	FindActiveByAccount(ctx context.Context, accountID uuid.UUID) ([]*entity.RefreshToken, error)

	// RevokeActive conditionally revokes a token only if it is currently
	// active. Returns ErrRefreshTokenNotActive when the token was already
	// revoked, which signals a possible replay of a rotated credential.
	RevokeActive(ctx context.Context, id uuid.UUID, revokedAt time.Time) error

	// RevokeAllByAccount revokes every active token for an account.
	// Used for logout-from-all-devices and breach response.
	RevokeAllByAccount(ctx context.Context, accountID uuid.UUID, revokedAt time.Time) (int64, error)

	// DeleteExpired removes tokens whose expiry has passed.
	// This should be called periodically for cleanup.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)

	// CountActiveByAccount returns the number of active tokens for an
	// account, used to enforce the per-account session limit.
	CountActiveByAccount(ctx context.Context, accountID uuid.UUID) (int, error)
}
