package repository

import (
	"context"
	"errors"
	"time"

	"gatekeeper/internal/domain/entity"

	"github.com/google/uuid"
)

// ErrCodeNotFound is returned when no usable one-time code exists.
var ErrCodeNotFound = errors.New("one-time code not found")

// CodeRepository defines the operations for one-time code persistence.
type CodeRepository interface {
	// Create persists a new one-time code. Any earlier unused codes for
	// the same email and purpose are invalidated so only the latest
	// code can succeed.
	Create(ctx context.Context, code *entity.OneTimeCode) error

	// FindLatestValid retrieves the newest unused, unexpired code for an
	// email and purpose. Returns ErrCodeNotFound when none exists.
	FindLatestValid(ctx context.Context, email string, purpose entity.CodePurpose, now time.Time) (*entity.OneTimeCode, error)

	// MarkUsed consumes a code so it can never validate again.
	MarkUsed(ctx context.Context, id uuid.UUID, usedAt time.Time) error

	// DeleteExpired removes codes whose expiry has passed.
	// This should be called periodically for cleanup.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
