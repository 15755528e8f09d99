// Package repository defines the interfaces for the persistence layer.
// These interfaces act as a contract between the domain/application layers and the infrastructure layer.
package repository

import (
	"context"
	"errors"
	"time"

	"gatekeeper/internal/domain/entity"

	"github.com/google/uuid"
)

// Domain-specific errors for account persistence.
var (
	// ErrAccountNotFound is returned when an account is not found.
	ErrAccountNotFound = errors.New("account not found")
	// ErrIdentityNotFound is returned when an external identity is not found.
	ErrIdentityNotFound = errors.New("external identity not found")
	// ErrDuplicateEmail is returned when an email address is already registered.
	ErrDuplicateEmail = errors.New("email address already registered")
)

// AccountRepository defines the standard operations for account persistence.
// The application layer depends on this interface, never on the concrete implementation.
type AccountRepository interface {
	// FindByID retrieves a single account by its unique ID.
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Account, error)

	// FindByEmail retrieves a single account by its email address.
	// The lookup is case-insensitive; emails are stored lowercased.
	FindByEmail(ctx context.Context, email string) (*entity.Account, error)

	// Create persists a new account entity to the storage.
	// Returns ErrDuplicateEmail if the email is already registered.
	Create(ctx context.Context, account *entity.Account) error

	// Update modifies an existing account entity in the storage.
	Update(ctx context.Context, account *entity.Account) error

	// RecordLoginFailure atomically increments the failure counter and,
	// when the counter reaches the threshold, sets the lock deadline.
	// A lock deadline that has already passed at now is cleared and the
	// counter restarts at one, so an expired lockout does not re-arm on
	// the first miss. The returned account reflects the updated state.
	RecordLoginFailure(ctx context.Context, id uuid.UUID, threshold int, now, lockUntil time.Time) (*entity.Account, error)

	// ResetLoginFailures clears the failure counter and lock deadline
	// after a successful authentication.
	ResetLoginFailures(ctx context.Context, id uuid.UUID, loginAt time.Time, loginIP string) error

	// FindIdentity retrieves an external identity by provider and subject.
	FindIdentity(ctx context.Context, provider entity.IdentityProvider, subject string) (*entity.ExternalIdentity, error)

	// CreateIdentity links an external identity to an account.
	CreateIdentity(ctx context.Context, identity *entity.ExternalIdentity) error

	// DeleteIdentity removes an external identity link from an account.
	DeleteIdentity(ctx context.Context, accountID uuid.UUID, provider entity.IdentityProvider) error
}
