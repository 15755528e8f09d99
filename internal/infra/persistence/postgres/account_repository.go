package postgres

import (
	"context"
	"strings"
	"time"

	"gatekeeper/internal/domain/entity"
	domainerrors "gatekeeper/internal/domain/errors"
	"gatekeeper/internal/domain/repository"
	"gatekeeper/internal/infra/persistence/model"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// accountRepository implements the domain.AccountRepository interface using GORM.
type accountRepository struct {
	db *gorm.DB
}

// NewAccountRepository is the constructor for accountRepository.
// It returns the repository as a domain interface, adhering to dependency inversion.
func NewAccountRepository(db *gorm.DB) repository.AccountRepository {
	return &accountRepository{db: db}
}

// FindByID retrieves a single account by its unique ID.
func (repo *accountRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Account, error) {
	var accountM model.AccountModel
	err := repo.db.WithContext(ctx).
		Where("id = ?", id).
		First(&accountM).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrAccountNotFound
		}

		return nil, errors.Wrap(err, "failed to find account by id")
	}

	return toAccountDomain(&accountM), nil
}

// FindByEmail retrieves a single account by its email address.
// Emails are stored lowercased, so the argument is lowered at the call site.
func (repo *accountRepository) FindByEmail(ctx context.Context, email string) (*entity.Account, error) {
	var accountM model.AccountModel
	err := repo.db.WithContext(ctx).
		Where("email = lower(?)", email).
		First(&accountM).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrAccountNotFound
		}

		return nil, errors.Wrap(err, "failed to find account by email")
	}

	return toAccountDomain(&accountM), nil
}

// Create persists a new account entity to the storage.
func (repo *accountRepository) Create(ctx context.Context, account *entity.Account) error {
	accountM := fromAccountDomain(account)

	if err := repo.db.WithContext(ctx).Create(accountM).Error; err != nil {
		// Convert PostgreSQL errors to domain errors
		if isUniqueConstraintViolation(err) {
			return repository.ErrDuplicateEmail
		}
		if isNotNullConstraintViolation(err) {
			return domainerrors.ErrValidationFailed.WrapMessage("missing required account information")
		}

		return domainerrors.NewDatabaseExecuteError(err, "failed to create account")
	}

	// Update the entity with generated values and the stored email form
	account.ID = accountM.ID
	account.Email = accountM.Email
	account.CreatedAt = accountM.CreatedAt
	account.UpdatedAt = accountM.UpdatedAt

	return nil
}

// Update modifies an existing account entity in the storage.
func (repo *accountRepository) Update(ctx context.Context, account *entity.Account) error {
	accountM := fromAccountDomain(account)

	result := repo.db.WithContext(ctx).
		Model(&model.AccountModel{}).
		Where("id = ?", account.ID).
		Select("*").
		Omit("id", "created_at").
		Updates(accountM)
	if result.Error != nil {
		if isUniqueConstraintViolation(result.Error) {
			return repository.ErrDuplicateEmail
		}

		return domainerrors.NewDatabaseExecuteError(result.Error, "failed to update account")
	}
	if result.RowsAffected == 0 {
		return repository.ErrAccountNotFound
	}

	return nil
}

// RecordLoginFailure atomically increments the failure counter and sets the
// lock deadline once the counter reaches the threshold. An expired lock
// resets the ladder instead of re-arming on the first miss. Single statement
// so concurrent failures never lose an increment; both CASE expressions read
// the pre-update column values.
func (repo *accountRepository) RecordLoginFailure(ctx context.Context, id uuid.UUID, threshold int, now, lockUntil time.Time) (*entity.Account, error) {
	result := repo.db.WithContext(ctx).
		Model(&model.AccountModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"failed_login_count": gorm.Expr(
				"CASE WHEN lock_until IS NOT NULL AND lock_until <= ? THEN 1 ELSE failed_login_count + 1 END",
				now),
			"lock_until": gorm.Expr(
				"CASE WHEN lock_until IS NOT NULL AND lock_until <= ? THEN NULL WHEN failed_login_count + 1 >= ? THEN ? ELSE lock_until END",
				now, threshold, lockUntil),
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return nil, domainerrors.NewDatabaseExecuteError(result.Error, "failed to record login failure")
	}
	if result.RowsAffected == 0 {
		return nil, repository.ErrAccountNotFound
	}

	return repo.FindByID(ctx, id)
}

// ResetLoginFailures clears the failure ladder after a successful login and
// stamps the login metadata.
func (repo *accountRepository) ResetLoginFailures(ctx context.Context, id uuid.UUID, loginAt time.Time, loginIP string) error {
	result := repo.db.WithContext(ctx).
		Model(&model.AccountModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"failed_login_count": 0,
			"lock_until":         nil,
			"last_login_at":      loginAt,
			"last_login_ip":      loginIP,
			"updated_at":         time.Now(),
		})
	if result.Error != nil {
		return domainerrors.NewDatabaseExecuteError(result.Error, "failed to reset login failures")
	}
	if result.RowsAffected == 0 {
		return repository.ErrAccountNotFound
	}

	return nil
}

// FindIdentity retrieves an external identity by provider and subject.
func (repo *accountRepository) FindIdentity(ctx context.Context, provider entity.IdentityProvider, subject string) (*entity.ExternalIdentity, error) {
	var identityM model.ExternalIdentityModel
	err := repo.db.WithContext(ctx).
		Where("provider = ? AND provider_user_id = ?", string(provider), subject).
		First(&identityM).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrIdentityNotFound
		}

		return nil, errors.Wrap(err, "failed to find external identity")
	}

	return toIdentityDomain(&identityM), nil
}

// CreateIdentity links an external identity to an account.
func (repo *accountRepository) CreateIdentity(ctx context.Context, identity *entity.ExternalIdentity) error {
	identityM := fromIdentityDomain(identity)

	if err := repo.db.WithContext(ctx).Create(identityM).Error; err != nil {
		if isUniqueConstraintViolation(err) {
			return domainerrors.ErrValidationFailed.WrapMessage("identity already linked")
		}

		return domainerrors.NewDatabaseExecuteError(err, "failed to create external identity")
	}

	identity.ID = identityM.ID
	identity.CreatedAt = identityM.CreatedAt

	return nil
}

// DeleteIdentity removes an external identity link from an account.
func (repo *accountRepository) DeleteIdentity(ctx context.Context, accountID uuid.UUID, provider entity.IdentityProvider) error {
	result := repo.db.WithContext(ctx).
		Where("account_id = ? AND provider = ?", accountID, string(provider)).
		Delete(&model.ExternalIdentityModel{})
	if result.Error != nil {
		return domainerrors.NewDatabaseExecuteError(result.Error, "failed to delete external identity")
	}
	if result.RowsAffected == 0 {
		return repository.ErrIdentityNotFound
	}

	return nil
}

// toAccountDomain maps the persistence model back to a pure domain entity.
func toAccountDomain(m *model.AccountModel) *entity.Account {
	return &entity.Account{
		ID:                 m.ID,
		Email:              m.Email,
		FirstName:          m.FirstName,
		LastName:           m.LastName,
		PasswordHash:       m.PasswordHash,
		Role:               entity.Role(m.Role),
		Status:             entity.AccountStatus(m.Status),
		IsEmailVerified:    m.IsEmailVerified,
		IsProfileComplete:  m.IsProfileComplete,
		TwoFactorEnabled:   m.TwoFactorEnabled,
		TwoFactorMethod:    entity.TwoFactorMethod(m.TwoFactorMethod),
		TOTPSecret:         m.TOTPSecret,
		KYCStatus:          entity.KYCStatus(m.KYCStatus),
		KYCRejectionReason: m.KYCRejectionReason,
		FailedLoginCount:   m.FailedLoginCount,
		LockUntil:          m.LockUntil,
		LastLoginAt:        m.LastLoginAt,
		LastLoginIP:        m.LastLoginIP,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

// fromAccountDomain maps a domain entity to the persistence model. Emails
// are lowercased here so every write path stores the canonical form the
// unique index and the lower() lookups rely on.
func fromAccountDomain(a *entity.Account) *model.AccountModel {
	return &model.AccountModel{
		ID:                 a.ID,
		Email:              strings.ToLower(a.Email),
		FirstName:          a.FirstName,
		LastName:           a.LastName,
		PasswordHash:       a.PasswordHash,
		Role:               string(a.Role),
		Status:             string(a.Status),
		IsEmailVerified:    a.IsEmailVerified,
		IsProfileComplete:  a.IsProfileComplete,
		TwoFactorEnabled:   a.TwoFactorEnabled,
		TwoFactorMethod:    string(a.TwoFactorMethod),
		TOTPSecret:         a.TOTPSecret,
		KYCStatus:          string(a.KYCStatus),
		KYCRejectionReason: a.KYCRejectionReason,
		FailedLoginCount:   a.FailedLoginCount,
		LockUntil:          a.LockUntil,
		LastLoginAt:        a.LastLoginAt,
		LastLoginIP:        a.LastLoginIP,
		CreatedAt:          a.CreatedAt,
		UpdatedAt:          a.UpdatedAt,
	}
}

func toIdentityDomain(m *model.ExternalIdentityModel) *entity.ExternalIdentity {
	return &entity.ExternalIdentity{
		ID:             m.ID,
		AccountID:      m.AccountID,
		Provider:       entity.IdentityProvider(m.Provider),
		ProviderUserID: m.ProviderUserID,
		CreatedAt:      m.CreatedAt,
	}
}

func fromIdentityDomain(i *entity.ExternalIdentity) *model.ExternalIdentityModel {
	return &model.ExternalIdentityModel{
		ID:             i.ID,
		AccountID:      i.AccountID,
		Provider:       string(i.Provider),
		ProviderUserID: i.ProviderUserID,
		CreatedAt:      i.CreatedAt,
	}
}
