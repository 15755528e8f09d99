// Package usecase contains the application-specific business rules.
package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SessionInfo is the sanitized, client-facing view of a session.
type SessionInfo struct {
	ID             uuid.UUID `json:"id"`
	DeviceInfo     string    `json:"device_info"`
	IPAddress      string    `json:"ip_address"`
	LoginAt        time.Time `json:"login_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	Current        bool      `json:"current"`
}

// SessionUsecase defines the interface for session management operations.
type SessionUsecase interface {
	// GetActiveSessions lists the account's active sessions, marking the
	// one identified by currentSessionID.
	GetActiveSessions(ctx context.Context, accountID, currentSessionID uuid.UUID) ([]*SessionInfo, error)

	// RevokeSession ends one session and revokes its backing token. The
	// session must belong to the account and must not be the caller's
	// current session.
	RevokeSession(ctx context.Context, accountID, currentSessionID, sessionID uuid.UUID) error

	// RevokeAllOtherSessions ends every session except the caller's.
	RevokeAllOtherSessions(ctx context.Context, accountID, currentSessionID uuid.UUID) error

	// TouchSession records activity on a session, sliding its idle deadline.
	TouchSession(ctx context.Context, sessionID uuid.UUID) error

	// CleanupExpired runs one sweep: expires idle sessions, deletes
	// expired codes and tokens, purges old terminated sessions.
	CleanupExpired(ctx context.Context) (int64, error)
}
