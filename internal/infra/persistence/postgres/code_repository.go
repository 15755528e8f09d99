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

// codeRepository implements the domain.CodeRepository interface using GORM.
type codeRepository struct {
	db *gorm.DB
}

// NewCodeRepository is the constructor for codeRepository.
func NewCodeRepository(db *gorm.DB) repository.CodeRepository {
	return &codeRepository{db: db}
}

// Create persists a new one-time code after consuming any earlier unused
// codes for the same email and purpose.
func (repo *codeRepository) Create(ctx context.Context, code *entity.OneTimeCode) error {
	email := strings.ToLower(code.Email)

	// Invalidate earlier unused codes so only the newest one can succeed.
	if err := repo.db.WithContext(ctx).
		Model(&model.OneTimeCodeModel{}).
		Where("email = ? AND purpose = ? AND used = false", email, string(code.Purpose)).
		Update("used", true).Error; err != nil {
		return domainerrors.NewDatabaseExecuteError(err, "failed to invalidate earlier codes")
	}

	codeM := fromCodeDomain(code)
	codeM.Email = email
	if err := repo.db.WithContext(ctx).Create(codeM).Error; err != nil {
		return domainerrors.NewDatabaseExecuteError(err, "failed to create one-time code")
	}

	code.ID = codeM.ID
	code.CreatedAt = codeM.CreatedAt

	return nil
}

// FindLatestValid retrieves the newest unused, unexpired code for an email
// and purpose.
func (repo *codeRepository) FindLatestValid(ctx context.Context, email string, purpose entity.CodePurpose, now time.Time) (*entity.OneTimeCode, error) {
	var codeM model.OneTimeCodeModel
	err := repo.db.WithContext(ctx).
		Where("email = lower(?) AND purpose = ? AND used = false AND expires_at > ?",
			email, string(purpose), now).
		Order("created_at DESC").
		First(&codeM).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrCodeNotFound
		}

		return nil, errors.Wrap(err, "failed to find one-time code")
	}

	return toCodeDomain(&codeM), nil
}

// MarkUsed consumes a code so it can never validate again.
func (repo *codeRepository) MarkUsed(ctx context.Context, id uuid.UUID, _ time.Time) error {
	result := repo.db.WithContext(ctx).
		Model(&model.OneTimeCodeModel{}).
		Where("id = ? AND used = false", id).
		Update("used", true)
	if result.Error != nil {
		return domainerrors.NewDatabaseExecuteError(result.Error, "failed to mark code used")
	}
	if result.RowsAffected == 0 {
		return repository.ErrCodeNotFound
	}

	return nil
}

// DeleteExpired removes codes whose expiry has passed.
func (repo *codeRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result := repo.db.WithContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&model.OneTimeCodeModel{})
	if result.Error != nil {
		return 0, domainerrors.NewDatabaseExecuteError(result.Error, "failed to delete expired codes")
	}

	return result.RowsAffected, nil
}

func toCodeDomain(m *model.OneTimeCodeModel) *entity.OneTimeCode {
	return &entity.OneTimeCode{
		ID:        m.ID,
		Email:     m.Email,
		Code:      m.Code,
		Purpose:   entity.CodePurpose(m.Purpose),
		Used:      m.Used,
		ExpiresAt: m.ExpiresAt,
		CreatedAt: m.CreatedAt,
	}
}

func fromCodeDomain(c *entity.OneTimeCode) *model.OneTimeCodeModel {
	return &model.OneTimeCodeModel{
		ID:        c.ID,
		Email:     c.Email,
		Code:      c.Code,
		Purpose:   string(c.Purpose),
		Used:      c.Used,
		ExpiresAt: c.ExpiresAt,
		CreatedAt: c.CreatedAt,
	}
}
