package repository

import (
	"context"
	"errors"
	"time"

	"gatekeeper/internal/domain/entity"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned when a session is not found.
var ErrSessionNotFound = errors.New("session not found")

// SessionRepository defines the interface for per-device session persistence.
// A session tracks one device's login from first authentication to logout
// and points at the refresh token currently backing it.
type SessionRepository interface {
	// Create persists a new session record.
	Create(ctx context.Context, session *entity.Session) error

	// FindByID retrieves a session by its unique ID.
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Session, error)

	// FindActiveByAccount retrieves all active sessions for an account,
	// newest activity first.
	FindActiveByAccount(ctx context.Context, accountID uuid.UUID) ([]*entity.Session, error)

	// Touch updates the session's last-activity timestamp.
	Touch(ctx context.Context, id uuid.UUID, at time.Time) error

	// Repoint moves the session onto a new backing refresh token after a
	// rotation and refreshes the activity timestamp.
	Repoint(ctx context.Context, id uuid.UUID, refreshTokenID uuid.UUID, at time.Time) error

	// End terminates a single session with the given reason.
	End(ctx context.Context, id uuid.UUID, reason entity.LogoutReason, at time.Time) error

	// EndAll terminates every active session for an account.
	EndAll(ctx context.Context, accountID uuid.UUID, reason entity.LogoutReason, at time.Time) (int64, error)

	// EndOthers terminates every active session for an account except the
	// one identified by keepID.
	EndOthers(ctx context.Context, accountID uuid.UUID, keepID uuid.UUID, reason entity.LogoutReason, at time.Time) (int64, error)

	// ExpireInactive terminates sessions whose last activity predates the
	// cutoff, recording the inactivity reason.
	ExpireInactive(ctx context.Context, cutoff time.Time, at time.Time) (int64, error)

	// PurgeTerminatedBefore deletes ended sessions older than the cutoff,
	// bounding registry growth.
	PurgeTerminatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
